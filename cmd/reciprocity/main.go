// Command reciprocity runs indirect-reciprocity evolution simulations.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/talgya/reciprocity/internal/config"
)

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "reciprocity",
		Short: "Indirect reciprocity evolution simulator",
		Long: `reciprocity evolves a population of donors who help or refuse to help
based on the recipient's reputation, and reports how cooperation and the
strategy mix change over the generations.

Without --config the parameters of the original paper are used.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().String("db", "", "SQLite run archive (overrides storage.path)")
	rootCmd.PersistentFlags().String("log-level", "", "info or debug (overrides logging.level)")

	rootCmd.AddCommand(
		newRunCmd(),
		newSweepCmd(),
		newServeCmd(),
		newValidateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig builds the run configuration from defaults, --config, the
// environment and the global flags, and configures logging from it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	applyGlobalFlags(cmd, cfg)
	if err := setupLogging(cfg.Logging.Level); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyGlobalFlags(cmd *cobra.Command, cfg *config.Config) {
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Storage.Path = db
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
}

func setupLogging(level string) error {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	default:
		return fmt.Errorf("%w: invalid log level: %s (valid: info, debug)", config.ErrInvalid, level)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	}))
	slog.SetDefault(logger)
	return nil
}

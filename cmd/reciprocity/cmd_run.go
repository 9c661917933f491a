package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talgya/reciprocity/internal/persistence"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed, _ = cmd.Flags().GetInt64("seed")
			}
			if cmd.Flags().Changed("generations") {
				cfg.NumGenerations, _ = cmd.Flags().GetInt("generations")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			opts := runOptions{}
			if cfg.Storage.Path != "" {
				db, err := persistence.Open(cfg.Storage.Path)
				if err != nil {
					return err
				}
				defer db.Close()
				opts.DB = db
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, err := execute(ctx, cfg, opts)
			if err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}
			printSummary(cmd.OutOrStdout(), summary)
			if opts.DB != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "  archived to:  %s\n", cfg.Storage.Path)
			}
			return nil
		},
	}

	cmd.Flags().Int64("seed", 0, "random seed (0 draws a fresh one)")
	cmd.Flags().Int("generations", 0, "number of generations (overrides num_generations)")
	cmd.Flags().Bool("json", false, "print the summary as JSON")
	return cmd
}

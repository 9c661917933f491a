package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/reciprocity/internal/api"
	"github.com/talgya/reciprocity/internal/persistence"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a simulation behind the HTTP API and websocket stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			port, _ := cmd.Flags().GetInt("port")
			interval, _ := cmd.Flags().GetDuration("interval")
			exitAfter, _ := cmd.Flags().GetBool("exit-after-run")

			var db *persistence.DB
			if cfg.Storage.Path != "" {
				db, err = persistence.Open(cfg.Storage.Path)
				if err != nil {
					return err
				}
				defer db.Close()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := api.NewServer(port, db)
			go srv.Hub.Run(ctx)
			httpSrv := srv.Start()

			summary, runErr := execute(ctx, cfg, runOptions{DB: db, Server: srv, Interval: interval})
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				slog.Error("run failed", "error", runErr)
			}
			if summary != nil {
				printSummary(cmd.OutOrStdout(), summary)
			}

			// Keep serving the final state until interrupted.
			if !exitAfter && ctx.Err() == nil {
				slog.Info("run finished, still serving; interrupt to exit")
				<-ctx.Done()
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				slog.Error("HTTP shutdown error", "error", err)
			}
			slog.Info("server stopped")

			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}
			return nil
		},
	}
	cmd.Flags().IntP("port", "p", 8080, "HTTP port")
	cmd.Flags().Duration("interval", 0, "pause between generations (e.g. 200ms)")
	cmd.Flags().Bool("exit-after-run", false, "stop serving once the run completes")
	return cmd
}

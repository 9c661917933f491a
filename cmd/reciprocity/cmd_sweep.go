package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/talgya/reciprocity/internal/config"
	"github.com/talgya/reciprocity/internal/persistence"
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep <sweep.yaml>",
		Short: "Run every configuration of a parameter sweep",
		Long: `sweep reads a base configuration and a list of changes, and runs one
simulation per change concurrently. Runs with a fixed seed share it, so
the changes are compared on common random numbers.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sweep, err := config.LoadSweep(args[0])
			if err != nil {
				return err
			}
			applyGlobalFlags(cmd, &sweep.Base)
			if err := setupLogging(sweep.Base.Logging.Level); err != nil {
				return err
			}
			cfgs, err := sweep.Expand()
			if err != nil {
				return err
			}

			var db *persistence.DB
			if sweep.Base.Storage.Path != "" {
				db, err = persistence.Open(sweep.Base.Storage.Path)
				if err != nil {
					return err
				}
				defer db.Close()
			}

			workers, _ := cmd.Flags().GetInt("workers")
			if workers <= 0 {
				workers = runtime.GOMAXPROCS(0)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summaries, err := sweepAll(ctx, cfgs, db, workers)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range summaries {
				printSummary(out, s)
			}
			fmt.Fprintf(out, "%s runs complete\n", humanize.Comma(int64(len(summaries))))
			return nil
		},
	}
	cmd.Flags().IntP("workers", "w", 0, "concurrent runs (default GOMAXPROCS)")
	return cmd
}

// sweepAll runs every configuration on a bounded pool. The first failure
// cancels the remaining runs. Summaries keep the order of cfgs.
func sweepAll(ctx context.Context, cfgs []*config.Config, db *persistence.DB, workers int) ([]*runSummary, error) {
	summaries := make([]*runSummary, len(cfgs))
	var mu sync.Mutex

	p := pool.New().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(workers)
	for i, cfg := range cfgs {
		p.Go(func(ctx context.Context) error {
			s, err := execute(ctx, cfg, runOptions{DB: db})
			if err != nil {
				return err
			}
			mu.Lock()
			summaries[i] = s
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

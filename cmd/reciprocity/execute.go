package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/reciprocity/internal/api"
	"github.com/talgya/reciprocity/internal/config"
	"github.com/talgya/reciprocity/internal/engine"
	"github.com/talgya/reciprocity/internal/entropy"
	"github.com/talgya/reciprocity/internal/persistence"
)

// runSummary is what a finished run reports back to the command.
type runSummary struct {
	RunID        string                   `json:"run_id"`
	Name         string                   `json:"name"`
	Seed         int64                    `json:"seed"`
	Generations  int                      `json:"generations"`
	Interactions int                      `json:"interactions"`
	Cooperations int                      `json:"cooperations"`
	Final        *engine.GenerationReport `json:"final,omitempty"`
	Histogram    []engine.StrategyCount   `json:"histogram,omitempty"`
	Elapsed      time.Duration            `json:"elapsed"`
}

// runOptions carries the optional sinks of a run.
type runOptions struct {
	DB       *persistence.DB
	Server   *api.Server
	Interval time.Duration
}

// execute runs one configuration to completion. cfg.Seed is resolved in
// place so the archive and the summary record the seed actually used.
func execute(ctx context.Context, cfg *config.Config, opts runOptions) (*runSummary, error) {
	rng, seed := entropy.New(cfg.Seed)
	cfg.Seed = seed

	sim, err := engine.NewSimulation(cfg, rng)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}

	runID := uuid.NewString()
	if opts.DB != nil {
		run, err := opts.DB.CreateRun(cfg)
		if err != nil {
			return nil, err
		}
		runID = run.ID
	}
	if opts.Server != nil {
		opts.Server.Begin(runID, cfg)
		defer opts.Server.Finish()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Storage failures stop the run at the next generation boundary.
	var (
		storeOnce sync.Once
		storeErr  error
	)
	fail := func(err error) {
		storeOnce.Do(func() {
			storeErr = err
			cancel()
		})
	}

	summary := &runSummary{RunID: runID, Name: cfg.Name, Seed: seed}
	runner := engine.NewRunner(sim)
	runner.Interval = opts.Interval
	runner.OnSnapshot = func(snap engine.PopulationSnapshot) {
		summary.Histogram = snap.Histogram
		if opts.DB != nil {
			if err := opts.DB.SaveSnapshot(runID, snap); err != nil {
				fail(fmt.Errorf("save snapshot %d: %w", snap.Generation, err))
			}
		}
		if opts.Server != nil {
			opts.Server.PublishSnapshot(snap)
		}
	}
	runner.OnGeneration = func(r engine.GenerationReport) {
		if opts.DB != nil {
			if err := opts.DB.SaveReport(runID, r); err != nil {
				fail(fmt.Errorf("save report %d: %w", r.Generation, err))
			}
		}
		if opts.Server != nil {
			opts.Server.PublishReport(r)
		}
	}

	start := time.Now()
	reports, err := runner.Run(ctx)
	summary.Elapsed = time.Since(start)
	if storeErr != nil {
		return nil, storeErr
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}

	summary.Generations = sim.Stats.Generations
	summary.Interactions = sim.Stats.Interactions
	summary.Cooperations = sim.Stats.Cooperations
	if len(reports) > 0 {
		last := reports[len(reports)-1]
		summary.Final = &last
	}

	if opts.DB != nil {
		if err := opts.DB.FinishRun(runID, summary.Generations); err != nil {
			return nil, err
		}
	}

	slog.Info("run complete",
		"run", runID,
		"name", cfg.Name,
		"seed", seed,
		"elapsed", summary.Elapsed.Round(time.Millisecond),
	)
	return summary, nil
}

// printSummary writes a human-readable summary of a run.
func printSummary(w io.Writer, s *runSummary) {
	fmt.Fprintf(w, "%s (run %s, seed %d)\n", s.Name, s.RunID, s.Seed)
	fmt.Fprintf(w, "  generations:  %s\n", humanize.Comma(int64(s.Generations)))
	fmt.Fprintf(w, "  interactions: %s (%s cooperative)\n",
		humanize.Comma(int64(s.Interactions)), humanize.Comma(int64(s.Cooperations)))
	if s.Interactions > 0 {
		fmt.Fprintf(w, "  cooperation:  %s%% overall\n",
			humanize.FtoaWithDigits(100*float64(s.Cooperations)/float64(s.Interactions), 2))
	}
	if s.Final != nil {
		fmt.Fprintf(w, "  last generation: cooperation %.3f, avg payoff %.3f\n",
			s.Final.CooperationRatio, s.Final.AvgPayoff)
	}
	if len(s.Histogram) > 0 {
		fmt.Fprint(w, "  strategies:")
		for _, c := range s.Histogram {
			if c.Count > 0 {
				fmt.Fprintf(w, " %d:%d", c.Strategy, c.Count)
			}
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "  elapsed:      %s\n", s.Elapsed.Round(time.Millisecond))
}

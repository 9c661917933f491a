package engine

import (
	"context"
	"log/slog"
	"time"
)

// Runner drives a Simulation through a fixed number of generations.
type Runner struct {
	Sim         *Simulation
	Generations int
	LogEvery    int           // summary and snapshot period in generations; 0 disables
	Interval    time.Duration // pause between generations, for live viewing

	// Callbacks, populated during setup.
	OnSnapshot   func(snap PopulationSnapshot) // every LogEvery generations, before reproduction
	OnGeneration func(report GenerationReport) // after reproduction
}

// NewRunner creates a runner with the run length and log cadence of sim's config.
func NewRunner(sim *Simulation) *Runner {
	return &Runner{
		Sim:         sim,
		Generations: sim.Config.NumGenerations,
		LogEvery:    sim.Config.LogEvery,
	}
}

// Run plays every generation and returns their reports in order. It stops
// early with ctx's error when ctx is cancelled between generations.
func (r *Runner) Run(ctx context.Context) ([]GenerationReport, error) {
	slog.Info("simulation started",
		"name", r.Sim.Config.Name,
		"agents", r.Sim.Size(),
		"generations", r.Generations,
		"reproduce", r.Sim.Reproducer.Name(),
	)

	reports := make([]GenerationReport, 0, r.Generations)
	for g := 0; g < r.Generations; g++ {
		if err := ctx.Err(); err != nil {
			slog.Info("simulation interrupted", "generation", r.Sim.Generation())
			return reports, err
		}

		report, err := r.step()
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)

		if r.Interval > 0 && g < r.Generations-1 {
			select {
			case <-ctx.Done():
				return reports, ctx.Err()
			case <-time.After(r.Interval):
			}
		}
	}

	slog.Info("simulation finished",
		"name", r.Sim.Config.Name,
		"generations", r.Sim.Stats.Generations,
		"interactions", r.Sim.Stats.Interactions,
		"cooperations", r.Sim.Stats.Cooperations,
	)
	return reports, nil
}

// step advances the simulation by one generation.
func (r *Runner) step() (GenerationReport, error) {
	report, err := r.Sim.PlayGeneration()
	if err != nil {
		return report, err
	}

	if r.LogEvery > 0 && report.Generation%r.LogEvery == 0 {
		if r.OnSnapshot != nil {
			r.OnSnapshot(r.Sim.Snapshot())
		}
		attrs := []any{
			"generation", report.Generation,
			"cooperation_ratio", report.CooperationRatio,
			"avg_payoff", report.AvgPayoff,
		}
		if report.AvgScore != nil {
			attrs = append(attrs, "avg_score", *report.AvgScore)
		}
		slog.Info("generation summary", attrs...)
	}

	if err := r.Sim.Advance(); err != nil {
		return report, err
	}
	if r.OnGeneration != nil {
		r.OnGeneration(report)
	}
	return report, nil
}

// Simulation ties together the population, pairing, interactions and
// reproduction, and advances them one generation at a time.
package engine

import (
	"fmt"
	"log/slog"
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"github.com/talgya/reciprocity/internal/agents"
	"github.com/talgya/reciprocity/internal/config"
	"github.com/talgya/reciprocity/internal/world"
)

// Simulation holds the state of one run.
type Simulation struct {
	Config       *config.Config
	Graph        *world.Graph // nil unless interactions are graph-constrained
	Spawner      *agents.Spawner
	population   *Registry
	Scheduler    Scheduler
	Reproducer   Reproducer
	Interactions *Interactions

	generation int

	// Totals across every generation played so far.
	Stats SimStats
}

// GenerationReport summarizes one generation's interactions.
type GenerationReport struct {
	Generation       int      `json:"generation" db:"generation"`
	Interactions     int      `json:"interactions" db:"interactions"`
	Cooperations     int      `json:"cooperations" db:"cooperations"`
	CooperationRatio float64  `json:"cooperation_ratio" db:"cooperation_ratio"`
	AvgScore         *float64 `json:"avg_score,omitempty" db:"avg_score"` // public reputations only
	AvgPayoff        float64  `json:"avg_payoff" db:"avg_payoff"`
}

// SimStats tracks run-level totals.
type SimStats struct {
	Generations  int `json:"generations"`
	Interactions int `json:"interactions"`
	Cooperations int `json:"cooperations"`
}

// NewSimulation validates cfg and builds the initial generation. rng is the
// single random sequence every component of the run draws from.
func NewSimulation(cfg *config.Config, rng *rand.Rand) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var graph *world.Graph
	if cfg.PhysicalConstraints {
		var err error
		if cfg.Physical.AvgDegree > 0 {
			graph, err = world.NewRandomGraph(rng, cfg.NumAgents, cfg.Physical.AvgDegree)
		} else {
			graph, err = world.NewGrid(cfg.Physical.SideSize, cfg.Physical.Torus)
		}
		if err != nil {
			return nil, fmt.Errorf("build topology: %w", err)
		}
	}

	spawner := agents.NewSpawner(rng, cfg.StrategyLimits.Min, cfg.StrategyLimits.Max)
	initial, err := InitialPopulation(cfg, spawner, graph)
	if err != nil {
		return nil, err
	}
	reg, err := NewRegistry(initial)
	if err != nil {
		return nil, err
	}

	var scheduler, imitation Scheduler
	if graph != nil {
		scheduler = GraphPairs{Graph: graph}
		imitation = scheduler
	} else {
		scheduler = RandomPairs{Count: cfg.NumInteractions, Rng: rng}
		count := cfg.NumSocial
		if count == 0 {
			count = cfg.NumInteractions
		}
		imitation = RandomPairs{Count: count, Rng: rng}
	}

	reproducer, err := NewReproducer(cfg, rng, spawner, imitation)
	if err != nil {
		return nil, err
	}

	return &Simulation{
		Config:       cfg,
		Graph:        graph,
		Spawner:      spawner,
		population:   reg,
		Scheduler:    scheduler,
		Reproducer:   reproducer,
		Interactions: NewInteractions(RulesFromConfig(cfg), rng),
	}, nil
}

// Generation returns the index of the generation currently alive.
func (s *Simulation) Generation() int {
	return s.generation
}

// Size returns the number of live agents.
func (s *Simulation) Size() int {
	return s.population.Len()
}

// IDs returns the ids of the live agents in slot order.
func (s *Simulation) IDs() []agents.AgentID {
	return s.population.IDs()
}

// PlayGeneration runs every scheduled interaction of the current
// generation, in order, and reports the outcome.
func (s *Simulation) PlayGeneration() (GenerationReport, error) {
	pairs, err := s.Scheduler.Pairs(s.population)
	if err != nil {
		return GenerationReport{}, fmt.Errorf("generation %d: schedule: %w", s.generation, err)
	}

	cooperations := 0
	for _, p := range pairs {
		action, err := s.Interactions.Interact(s.population, p)
		if err != nil {
			return GenerationReport{}, fmt.Errorf("generation %d: interaction: %w", s.generation, err)
		}
		if action == Cooperate {
			cooperations++
		}
	}

	report := GenerationReport{
		Generation:   s.generation,
		Interactions: len(pairs),
		Cooperations: cooperations,
		AvgPayoff:    stat.Mean(s.population.Payoffs(), nil),
	}
	if len(pairs) > 0 {
		report.CooperationRatio = float64(cooperations) / float64(len(pairs))
	}
	if !s.Config.NonPublicScores {
		avg := stat.Mean(s.population.Scores(), nil)
		report.AvgScore = &avg
	}

	s.Stats.Interactions += report.Interactions
	s.Stats.Cooperations += report.Cooperations

	slog.Debug("generation played",
		"generation", report.Generation,
		"interactions", report.Interactions,
		"cooperation_ratio", fmt.Sprintf("%.3f", report.CooperationRatio),
		"avg_payoff", fmt.Sprintf("%.3f", report.AvgPayoff),
	)
	return report, nil
}

// Advance replaces the current generation with its offspring.
func (s *Simulation) Advance() error {
	next, err := s.Reproducer.Reproduce(s.population)
	if err != nil {
		return fmt.Errorf("generation %d: %w", s.generation, err)
	}
	if err := s.population.Replace(next); err != nil {
		return fmt.Errorf("generation %d: %w", s.generation, err)
	}
	s.generation++
	s.Stats.Generations++
	return nil
}

// RunGeneration plays the current generation and reproduces it.
func (s *Simulation) RunGeneration() (GenerationReport, error) {
	report, err := s.PlayGeneration()
	if err != nil {
		return report, err
	}
	return report, s.Advance()
}

// Snapshot copies the current generation for external consumers.
func (s *Simulation) Snapshot() PopulationSnapshot {
	views := s.population.Snapshot()
	snap := PopulationSnapshot{
		Generation: s.generation,
		Agents:     views,
		Histogram:  Histogram(views, s.Config.StrategyLimits),
		Layout:     Layout(views, s.Graph),
	}
	if s.Config.MyScoreMatters {
		snap.Joint = JointHistogram(views, s.Config.StrategyLimits)
	}
	return snap
}

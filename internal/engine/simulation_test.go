package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/reciprocity/internal/agents"
	"github.com/talgya/reciprocity/internal/config"
	"github.com/talgya/reciprocity/internal/world"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Name = "test"
	cfg.NumAgents = 20
	cfg.NumInteractions = 30
	cfg.NumGenerations = 5
	cfg.NumObservers = 3
	cfg.LogEvery = 1
	return cfg
}

func gridConfig(side int, torus bool) *config.Config {
	cfg := testConfig()
	cfg.NumAgents = side * side
	cfg.PhysicalConstraints = true
	cfg.Reproduce = config.ReproduceSocial
	cfg.Physical = config.PhysicalConfig{Grid: true, SideSize: side, Torus: torus}
	return cfg
}

func TestNewSimulationRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Benefit = 0
	_, err := NewSimulation(cfg, newRNG(1))
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestRunGenerationKeepsSizeAndIssuesFreshIDs(t *testing.T) {
	sim, err := NewSimulation(testConfig(), newRNG(3))
	require.NoError(t, err)

	for g := 0; g < 5; g++ {
		issued := sim.Spawner.Issued()
		report, err := sim.RunGeneration()
		require.NoError(t, err)

		assert.Equal(t, g, report.Generation)
		assert.Equal(t, 30, report.Interactions)
		assert.InDelta(t, float64(report.Cooperations)/30, report.CooperationRatio, 1e-12)
		require.NotNil(t, report.AvgScore)

		require.Equal(t, 20, sim.population.Len())
		for _, id := range sim.population.IDs() {
			assert.GreaterOrEqual(t, id, issued)
		}
		for i := 0; i < sim.population.Len(); i++ {
			a := sim.population.At(i)
			assert.Zero(t, a.Score)
			assert.Zero(t, a.Payoff)
		}
	}
	assert.Equal(t, 5, sim.Generation())
	assert.Equal(t, 150, sim.Stats.Interactions)
}

func TestSimulationIsDeterministic(t *testing.T) {
	run := func() []GenerationReport {
		sim, err := NewSimulation(testConfig(), newRNG(42))
		require.NoError(t, err)
		reports, err := NewRunner(sim).Run(context.Background())
		require.NoError(t, err)
		return reports
	}
	assert.Equal(t, run(), run())
}

func TestPrivateReportHasNoAverageScore(t *testing.T) {
	cfg := testConfig()
	cfg.NonPublicScores = true
	sim, err := NewSimulation(cfg, newRNG(5))
	require.NoError(t, err)

	report, err := sim.PlayGeneration()
	require.NoError(t, err)
	assert.Nil(t, report.AvgScore)
}

func TestGridInteractionsFollowEdges(t *testing.T) {
	tests := []struct {
		torus bool
		want  int
	}{
		{false, 40},
		{true, 50},
	}
	for _, tt := range tests {
		sim, err := NewSimulation(gridConfig(5, tt.torus), newRNG(8))
		require.NoError(t, err)

		report, err := sim.RunGeneration()
		require.NoError(t, err)
		assert.Equal(t, tt.want, report.Interactions)

		for i := 0; i < sim.population.Len(); i++ {
			require.NotNil(t, sim.population.At(i).Position)
			assert.Equal(t, world.NodeID(i), *sim.population.At(i).Position)
		}
	}
}

func TestRandomGraphSimulation(t *testing.T) {
	cfg := testConfig()
	cfg.PhysicalConstraints = true
	cfg.Reproduce = config.ReproduceSocial
	cfg.Physical = config.PhysicalConfig{AvgDegree: 4}

	sim, err := NewSimulation(cfg, newRNG(9))
	require.NoError(t, err)
	require.NotNil(t, sim.Graph)
	assert.True(t, sim.Graph.Connected())

	report, err := sim.RunGeneration()
	require.NoError(t, err)
	assert.Equal(t, sim.Graph.EdgeCount(), report.Interactions)
}

func TestClusteredSeeding(t *testing.T) {
	cfg := gridConfig(6, true)
	cfg.Seed = 17
	cfg.InitialStrategies = config.SeedClustered

	sim, err := NewSimulation(cfg, newRNG(1))
	require.NoError(t, err)
	for i := 0; i < sim.population.Len(); i++ {
		assert.True(t, cfg.StrategyLimits.Contains(sim.population.At(i).Strategy))
	}
}

func TestClusteredSeedingDrawsFromRunSequence(t *testing.T) {
	layout := func(seed int64) []int {
		cfg := gridConfig(6, true)
		cfg.Seed = 0
		cfg.InitialStrategies = config.SeedClustered
		sim, err := NewSimulation(cfg, newRNG(seed))
		require.NoError(t, err)
		out := make([]int, sim.Size())
		for i := range out {
			out[i] = sim.population.At(i).Strategy
		}
		return out
	}

	assert.Equal(t, layout(4), layout(4))
	assert.NotEqual(t, layout(4), layout(5))
}

func TestPublicScoresStayClamped(t *testing.T) {
	for _, mode := range []string{config.ReproduceNormal, config.ReproduceMoran} {
		t.Run(mode, func(t *testing.T) {
			cfg := testConfig()
			cfg.NumAgents = 100
			cfg.NumInteractions = 400
			cfg.RebelChild = true
			cfg.Reproduce = mode
			lo, hi := cfg.ScoreLimits.Min, cfg.ScoreLimits.Max

			sim, err := NewSimulation(cfg, newRNG(21))
			require.NoError(t, err)

			played := 0
			for g := 0; g < 200; g++ {
				pairs, err := sim.Scheduler.Pairs(sim.population)
				require.NoError(t, err)
				for _, p := range pairs {
					_, err := sim.Interactions.Interact(sim.population, p)
					require.NoError(t, err)
					for i := 0; i < sim.population.Len(); i++ {
						if sc := sim.population.At(i).Score; sc < lo || sc > hi {
							t.Fatalf("generation %d: agent %d score %d outside [%d, %d]",
								g, sim.population.At(i).ID, sc, lo, hi)
						}
					}
				}
				played++

				// A generation without a single cooperation cannot reproduce.
				err = sim.Advance()
				if errors.Is(err, ErrZeroPayoff) {
					break
				}
				require.NoError(t, err)
			}
			assert.Greater(t, played, 1)
		})
	}
}

func TestSimulationExposesIDsOnly(t *testing.T) {
	sim, err := NewSimulation(testConfig(), newRNG(6))
	require.NoError(t, err)
	ids := sim.IDs()
	require.Len(t, ids, sim.Size())

	ids[0] = 9999
	assert.NotEqual(t, agents.AgentID(9999), sim.IDs()[0])
}

func TestSnapshotContents(t *testing.T) {
	cfg := gridConfig(3, false)
	cfg.MyScoreMatters = true
	cfg.MyScoreMattersOperator = config.OperatorAnd

	sim, err := NewSimulation(cfg, newRNG(2))
	require.NoError(t, err)
	_, err = sim.PlayGeneration()
	require.NoError(t, err)

	snap := sim.Snapshot()
	assert.Equal(t, 0, snap.Generation)
	require.Len(t, snap.Agents, 9)
	require.Len(t, snap.Histogram, 12)
	require.Len(t, snap.Joint, 144)
	require.Len(t, snap.Layout, 9)

	total := 0
	for _, c := range snap.Histogram {
		total += c.Count
	}
	assert.Equal(t, 9, total)

	joint := 0
	for _, c := range snap.Joint {
		joint += c.Count
	}
	assert.Equal(t, 9, joint)

	require.NotNil(t, snap.Layout[4].Coord)
	assert.Equal(t, world.GridCoord{Row: 1, Col: 1}, *snap.Layout[4].Coord)
}

func TestHistogramCoversFullRange(t *testing.T) {
	views := []agents.View{{Strategy: 0}, {Strategy: 0}, {Strategy: 1}}
	got := Histogram(views, config.Limits{Min: -1, Max: 1})
	assert.Equal(t, []StrategyCount{
		{Strategy: -1, Count: 0},
		{Strategy: 0, Count: 2},
		{Strategy: 1, Count: 1},
	}, got)
}

func TestLayoutWithoutGraph(t *testing.T) {
	assert.Nil(t, Layout([]agents.View{{Strategy: 1}}, nil))
}

func TestRunnerZeroGenerations(t *testing.T) {
	sim, err := NewSimulation(testConfig(), newRNG(1))
	require.NoError(t, err)
	before := sim.population.IDs()

	r := NewRunner(sim)
	r.Generations = 0
	reports, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.Equal(t, before, sim.population.IDs())
	assert.Equal(t, 0, sim.Generation())
}

func TestRunnerCallbacks(t *testing.T) {
	sim, err := NewSimulation(testConfig(), newRNG(1))
	require.NoError(t, err)

	var snaps []int
	var gens []int
	r := NewRunner(sim)
	r.OnSnapshot = func(s PopulationSnapshot) { snaps = append(snaps, s.Generation) }
	r.OnGeneration = func(rep GenerationReport) { gens = append(gens, rep.Generation) }

	reports, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, reports, 5)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, snaps)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, gens)
}

func TestRunnerStopsOnCancel(t *testing.T) {
	sim, err := NewSimulation(testConfig(), newRNG(1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(sim)
	r.OnGeneration = func(rep GenerationReport) {
		if rep.Generation == 1 {
			cancel()
		}
	}

	reports, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, reports, 2)
}

func TestRunnerSnapshotCadence(t *testing.T) {
	cfg := testConfig()
	cfg.NumGenerations = 7
	cfg.LogEvery = 3
	sim, err := NewSimulation(cfg, newRNG(1))
	require.NoError(t, err)

	var snaps []int
	r := NewRunner(sim)
	r.OnSnapshot = func(s PopulationSnapshot) { snaps = append(snaps, s.Generation) }
	_, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 6}, snaps)
}

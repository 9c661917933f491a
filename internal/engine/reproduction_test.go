package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/reciprocity/internal/agents"
	"github.com/talgya/reciprocity/internal/config"
	"github.com/talgya/reciprocity/internal/world"
)

type fixedPairs []Pair

func (f fixedPairs) Pairs(*Registry) ([]Pair, error) {
	return f, nil
}

// breedingFor returns plain breeding whose spawner issues ids well above
// those of registryOf.
func breedingFor() breeding {
	spawner := agents.NewSpawner(newRNG(12), -5, 6)
	for i := 0; i < 1000; i++ {
		spawner.NextID()
	}
	return breeding{rng: newRNG(11), spawner: spawner}
}

func strategiesOf(list []*agents.Agent) []int {
	out := make([]int, len(list))
	for i, a := range list {
		out[i] = a.Strategy
	}
	return out
}

func TestProportionalApportionsByPayoff(t *testing.T) {
	reg := registryOf(t, 1, 2, 3, 4)
	for i, p := range []float64{2, 1, 1, 0} {
		reg.At(i).Payoff = p
	}

	b := breedingFor()
	before := b.spawner.Issued()

	next, err := Proportional{b}.Reproduce(reg)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2, 3}, strategiesOf(next))
	for _, a := range next {
		assert.GreaterOrEqual(t, a.ID, before, "offspring ids are fresh")
		assert.Zero(t, a.Score)
		assert.Zero(t, a.Payoff)
	}
}

func TestProportionalZeroPayoff(t *testing.T) {
	reg := registryOf(t, 1, 2)
	_, err := Proportional{breedingFor()}.Reproduce(reg)
	assert.ErrorIs(t, err, ErrZeroPayoff)
}

func TestProportionalInheritsSelfAndPosition(t *testing.T) {
	reg := registryOf(t, 1, 2)
	self := 3
	node := world.NodeID(1)
	reg.At(0).StrategySelf = &self
	reg.At(0).Position = &node
	reg.At(0).Payoff = 1

	next, err := Proportional{breedingFor()}.Reproduce(reg)
	require.NoError(t, err)
	for _, a := range next {
		require.NotNil(t, a.StrategySelf)
		assert.Equal(t, 3, *a.StrategySelf)
		require.NotNil(t, a.Position)
		assert.Equal(t, node, *a.Position)
	}

	*next[0].StrategySelf = 0
	assert.Equal(t, 3, self, "offspring share no memory with parents")
}

func TestMoranThresholdSelection(t *testing.T) {
	thresholds, parents := moranThresholds([]float64{3, 0, 1})
	assert.Equal(t, []float64{3, 4}, thresholds)
	assert.Equal(t, []int{0, 2}, parents)

	assert.Equal(t, 2, parents[selectThreshold(thresholds, 3.5)])
	assert.Equal(t, 0, parents[selectThreshold(thresholds, 0)])
	assert.Equal(t, 0, parents[selectThreshold(thresholds, 3)])
	assert.Equal(t, 2, parents[selectThreshold(thresholds, 4)])
}

func TestMoranIgnoresNonPositivePayoffs(t *testing.T) {
	thresholds, parents := moranThresholds([]float64{-2, 5, 0})
	assert.Equal(t, []float64{5}, thresholds)
	assert.Equal(t, []int{1}, parents)
}

func TestMoranKeepsSlotTraits(t *testing.T) {
	reg := registryOf(t, -3, 4, 0)
	for i := 0; i < reg.Len(); i++ {
		self := 10 + i
		node := world.NodeID(i)
		reg.At(i).StrategySelf = &self
		reg.At(i).Position = &node
	}
	reg.At(1).Payoff = 2

	next, err := Moran{breedingFor()}.Reproduce(reg)
	require.NoError(t, err)
	require.Len(t, next, 3)
	for i, a := range next {
		assert.Equal(t, 4, a.Strategy, "the only paid agent is every parent")
		assert.Equal(t, 10+i, *a.StrategySelf)
		assert.Equal(t, world.NodeID(i), *a.Position)
	}
}

func TestMoranZeroPayoff(t *testing.T) {
	reg := registryOf(t, 1, 2)
	reg.At(0).Payoff = -1
	_, err := Moran{breedingFor()}.Reproduce(reg)
	assert.ErrorIs(t, err, ErrZeroPayoff)
}

func TestSocialImitatesBetterPaidPartner(t *testing.T) {
	reg := registryOf(t, -2, 5, 1)
	reg.At(0).Payoff = 0
	reg.At(1).Payoff = 10
	reg.At(2).Payoff = 20

	r := Social{
		breeding: breedingFor(),
		Pairs:    fixedPairs{{Donor: 0, Recipient: 1}, {Donor: 2, Recipient: 1}},
	}
	next, err := r.Reproduce(reg)
	require.NoError(t, err)

	assert.Equal(t, []int{5, 5, 1}, strategiesOf(next))
	assert.Equal(t, []int{-2, 5, 1}, strategiesOf(reg.agents), "outgoing generation is untouched")
	for i, a := range next {
		assert.NotEqual(t, reg.At(i).ID, a.ID)
	}
}

func TestSocialImitationChains(t *testing.T) {
	reg := registryOf(t, 0, 1, 2)
	reg.At(0).Payoff = 0
	reg.At(1).Payoff = 10
	reg.At(2).Payoff = 20

	// Agent 1 copies agent 2 first, so agent 0 then copies the new strategy.
	r := Social{
		breeding: breedingFor(),
		Pairs:    fixedPairs{{Donor: 1, Recipient: 2}, {Donor: 0, Recipient: 1}},
	}
	next, err := r.Reproduce(reg)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2}, strategiesOf(next))
}

func TestImitationProbability(t *testing.T) {
	assert.InDelta(t, 0.5, imitationProbability(0), 1e-12)
	assert.Greater(t, imitationProbability(0.5), 0.99)
	assert.Less(t, imitationProbability(-0.5), 0.01)
}

func TestReproducersKeepPrivateOpinionsConsistent(t *testing.T) {
	for _, method := range []string{config.ReproduceNormal, config.ReproduceMoran, config.ReproduceSocial} {
		t.Run(method, func(t *testing.T) {
			cfg := testConfig()
			cfg.NonPublicScores = true
			cfg.NumObservers = 4
			cfg.Reproduce = method

			sim, err := NewSimulation(cfg, newRNG(21))
			require.NoError(t, err)
			for g := 0; g < 3; g++ {
				_, err := sim.RunGeneration()
				require.NoError(t, err)
				assertOpinionBijection(t, sim.population.agents)
			}
		})
	}
}

func TestNewReproducer(t *testing.T) {
	spawner := agents.NewSpawner(newRNG(1), -5, 6)

	cfg := config.Default()
	r, err := NewReproducer(cfg, newRNG(1), spawner, nil)
	require.NoError(t, err)
	assert.Equal(t, config.ReproduceNormal, r.Name())

	cfg.Reproduce = config.ReproduceMoran
	r, err = NewReproducer(cfg, newRNG(1), spawner, nil)
	require.NoError(t, err)
	assert.Equal(t, config.ReproduceMoran, r.Name())

	cfg.Reproduce = config.ReproduceSocial
	r, err = NewReproducer(cfg, newRNG(1), spawner, fixedPairs{})
	require.NoError(t, err)
	assert.Equal(t, config.ReproduceSocial, r.Name())

	cfg.Reproduce = "clone"
	_, err = NewReproducer(cfg, newRNG(1), spawner, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

// uniformParents returns n paid parents that all play strategy 0.
func uniformParents(t *testing.T, n int) *Registry {
	t.Helper()
	reg := registryOf(t, make([]int, n)...)
	for i := 0; i < n; i++ {
		reg.At(i).Payoff = 1
	}
	return reg
}

func TestRebelChildMutation(t *testing.T) {
	const rounds, n = 1000, 100
	limits := config.Limits{Min: -5, Max: 6}

	for _, name := range []string{config.ReproduceNormal, config.ReproduceMoran} {
		t.Run(name, func(t *testing.T) {
			reg := uniformParents(t, n)
			b := breedingFor()
			b.rebelChild = true
			var r Reproducer = Proportional{b}
			if name == config.ReproduceMoran {
				r = Moran{b}
			}

			mutants := 0
			for i := 0; i < rounds; i++ {
				next, err := r.Reproduce(reg)
				require.NoError(t, err)
				require.Len(t, next, n)
				for _, a := range next {
					require.True(t, limits.Contains(a.Strategy), "strategy %d out of range", a.Strategy)
					if a.Strategy != 0 {
						mutants++
					}
				}
			}
			// 0.001 per offspring, 11 of 12 redraws differ: about 92 expected.
			assert.Greater(t, mutants, 40)
			assert.Less(t, mutants, 160)
		})
	}
}

func TestNoMutationWithoutRebelChild(t *testing.T) {
	reg := uniformParents(t, 100)
	for _, r := range []Reproducer{Proportional{breedingFor()}, Moran{breedingFor()}} {
		for i := 0; i < 200; i++ {
			next, err := r.Reproduce(reg)
			require.NoError(t, err)
			for _, a := range next {
				require.Equal(t, 0, a.Strategy, "%s offspring differs from its parent", r.Name())
			}
		}
	}
}

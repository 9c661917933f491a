package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/reciprocity/internal/agents"
	"github.com/talgya/reciprocity/internal/config"
)

func newRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// registryOf spawns one agent per strategy, in order.
func registryOf(t *testing.T, strategies ...int) *Registry {
	t.Helper()
	spawner := agents.NewSpawner(newRNG(99), -5, 6)
	list := make([]*agents.Agent, len(strategies))
	for i, s := range strategies {
		list[i] = spawner.Spawn(s)
	}
	reg, err := NewRegistry(list)
	require.NoError(t, err)
	return reg
}

func publicRules() Rules {
	return Rules{Benefit: 1, Cost: 0.1, ScoreMin: -5, ScoreMax: 5}
}

func TestDecideDefaultRuleIsInclusive(t *testing.T) {
	in := NewInteractions(publicRules(), newRNG(1))
	donor := &agents.Agent{Strategy: 2}

	assert.Equal(t, Cooperate, in.Decide(donor, 2))
	assert.Equal(t, Cooperate, in.Decide(donor, 5))
	assert.Equal(t, Defect, in.Decide(donor, 1))
}

func TestDecideSelfAware(t *testing.T) {
	self := 0
	donor := &agents.Agent{Strategy: 2, StrategySelf: &self, Score: -1}

	rules := publicRules()
	rules.SelfAware = true
	rules.Operator = config.OperatorAnd
	and := NewInteractions(rules, newRNG(1))

	assert.Equal(t, Cooperate, and.Decide(donor, 3))
	assert.Equal(t, Defect, and.Decide(donor, 2), "recipient comparison is strict")

	donor.Score = 0
	assert.Equal(t, Defect, and.Decide(donor, 3), "own comparison is strict")

	rules.Operator = config.OperatorOr
	or := NewInteractions(rules, newRNG(1))
	assert.Equal(t, Cooperate, or.Decide(donor, 3))
	donor.Score = -1
	assert.Equal(t, Cooperate, or.Decide(donor, -5))
	donor.Score = 3
	assert.Equal(t, Defect, or.Decide(donor, 2))
}

func TestInteractPublicCooperate(t *testing.T) {
	reg := registryOf(t, -5, 0)
	donor, recipient := reg.At(0), reg.At(1)
	donor.Score = 5

	in := NewInteractions(publicRules(), newRNG(1))
	action, err := in.Interact(reg, Pair{Donor: 0, Recipient: 1})
	require.NoError(t, err)

	assert.Equal(t, Cooperate, action)
	assert.Equal(t, 5, donor.Score, "score is clamped at the maximum")
	assert.InDelta(t, 0.0, donor.Payoff, 1e-12)
	assert.InDelta(t, 1.0, recipient.Payoff, 1e-12)
	assert.Equal(t, 0, recipient.Score)
}

func TestInteractPublicDefect(t *testing.T) {
	reg := registryOf(t, 6, 0)
	donor, recipient := reg.At(0), reg.At(1)
	donor.Score = -5

	in := NewInteractions(publicRules(), newRNG(1))
	action, err := in.Interact(reg, Pair{Donor: 0, Recipient: 1})
	require.NoError(t, err)

	assert.Equal(t, Defect, action)
	assert.Equal(t, -5, donor.Score, "score is clamped at the minimum")
	assert.InDelta(t, ParticipationBonus, donor.Payoff, 1e-12)
	assert.Zero(t, recipient.Payoff)
}

func TestInteractPrivateSpreadsOpinion(t *testing.T) {
	reg := registryOf(t, 0, 0, 0, 0, 0, 0)
	resetOpinions(reg.agents)

	rules := publicRules()
	rules.Private = true
	rules.NumObservers = 2
	in := NewInteractions(rules, newRNG(4))

	action, err := in.Interact(reg, Pair{Donor: 0, Recipient: 1})
	require.NoError(t, err)
	require.Equal(t, Cooperate, action)

	donorID := reg.At(0).ID
	assert.Equal(t, 1, reg.At(1).Opinions[donorID], "the recipient always observes")

	raised := 0
	for i := 1; i < reg.Len(); i++ {
		switch reg.At(i).Opinions[donorID] {
		case 1:
			raised++
		case 0:
		default:
			t.Fatalf("unexpected opinion %d", reg.At(i).Opinions[donorID])
		}
	}
	assert.Equal(t, 3, raised)
	assert.Zero(t, reg.At(0).Score, "public score is untouched")
	assert.InDelta(t, 1.0, reg.At(1).Payoff, 1e-12)
}

func TestInteractPrivateDefectLowersOpinion(t *testing.T) {
	reg := registryOf(t, 1, 0, 0)
	resetOpinions(reg.agents)

	rules := publicRules()
	rules.Private = true
	rules.NumObservers = 1
	in := NewInteractions(rules, newRNG(5))

	action, err := in.Interact(reg, Pair{Donor: 0, Recipient: 1})
	require.NoError(t, err)
	require.Equal(t, Defect, action)

	donorID := reg.At(0).ID
	assert.Equal(t, -1, reg.At(1).Opinions[donorID])
	assert.Equal(t, -1, reg.At(2).Opinions[donorID])
}

func TestInteractMissingOpinion(t *testing.T) {
	reg := registryOf(t, 0, 0, 0)
	resetOpinions(reg.agents)
	delete(reg.At(0).Opinions, reg.At(1).ID)

	rules := publicRules()
	rules.Private = true
	in := NewInteractions(rules, newRNG(1))

	_, err := in.Interact(reg, Pair{Donor: 0, Recipient: 1})
	assert.ErrorIs(t, err, ErrMissingOpinion)
}

func TestInteractTooManyObservers(t *testing.T) {
	reg := registryOf(t, 0, 0, 0)
	resetOpinions(reg.agents)

	rules := publicRules()
	rules.Private = true
	rules.NumObservers = 2
	in := NewInteractions(rules, newRNG(1))

	_, err := in.Interact(reg, Pair{Donor: 0, Recipient: 1})
	assert.ErrorIs(t, err, ErrTooManyObservers)
}

func TestApplyUnknownAction(t *testing.T) {
	reg := registryOf(t, 0, 0)
	in := NewInteractions(publicRules(), newRNG(1))

	err := in.apply(reg, Pair{Donor: 0, Recipient: 1}, Action(7))
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Equal(t, "action(7)", Action(7).String())
}

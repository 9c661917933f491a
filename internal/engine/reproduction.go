// Reproduction: the three interchangeable ways a generation is replaced.
package engine

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/talgya/reciprocity/internal/agents"
	"github.com/talgya/reciprocity/internal/apportion"
	"github.com/talgya/reciprocity/internal/config"
	"github.com/talgya/reciprocity/internal/entropy"
)

const (
	// RebelChildRate is the per-offspring probability of a random strategy.
	RebelChildRate = 0.001

	// SocialBeta is the selection intensity of imitation.
	SocialBeta = 10.0
)

var ErrZeroPayoff = errors.New("total payoff is zero")

// Reproducer builds the next generation from the current one. It reads the
// registry and returns fresh agents; the caller swaps them in.
type Reproducer interface {
	Name() string
	Reproduce(reg *Registry) ([]*agents.Agent, error)
}

// breeding holds what every reproducer needs to materialize offspring.
type breeding struct {
	rng        *rand.Rand
	spawner    *agents.Spawner
	rebelChild bool
	private    bool
}

// mutate applies the rebel-child mutation to a freshly created agent.
func (b breeding) mutate(a *agents.Agent) {
	if b.rebelChild && entropy.Chance(b.rng, RebelChildRate) {
		a.Strategy = b.spawner.RandomStrategy()
	}
}

// finish rebuilds neutral opinion maps when reputations are private, so
// every agent of the new generation holds exactly one entry per other.
func (b breeding) finish(next []*agents.Agent) []*agents.Agent {
	if b.private {
		resetOpinions(next)
	}
	return next
}

// Proportional gives each agent offspring in proportion to its payoff,
// rounded with the largest-remainder method so the total stays N.
type Proportional struct {
	breeding
}

func (Proportional) Name() string {
	return config.ReproduceNormal
}

func (r Proportional) Reproduce(reg *Registry) ([]*agents.Agent, error) {
	counts, err := apportion.Proportional(reg.Payoffs(), reg.Len())
	if err != nil {
		if errors.Is(err, apportion.ErrZeroTotal) {
			return nil, fmt.Errorf("proportional reproduction: %w", ErrZeroPayoff)
		}
		return nil, fmt.Errorf("proportional reproduction: %w", err)
	}

	next := make([]*agents.Agent, 0, reg.Len())
	for i, c := range counts {
		parent := reg.At(i)
		for k := 0; k < c; k++ {
			child := r.spawner.Offspring(parent.Strategy, parent.StrategySelf, parent.Position)
			r.mutate(child)
			next = append(next, child)
		}
	}
	return r.finish(next), nil
}

// Moran fills every slot with the strategy of a parent drawn with
// probability proportional to positive payoff. Slot i keeps its own
// self threshold and position.
type Moran struct {
	breeding
}

func (Moran) Name() string {
	return config.ReproduceMoran
}

func (r Moran) Reproduce(reg *Registry) ([]*agents.Agent, error) {
	thresholds, parents := moranThresholds(reg.Payoffs())
	if len(thresholds) == 0 {
		return nil, fmt.Errorf("moran reproduction: %w", ErrZeroPayoff)
	}
	total := thresholds[len(thresholds)-1]

	next := make([]*agents.Agent, reg.Len())
	for i := range next {
		slot := reg.At(i)
		pick := r.rng.Float64() * total
		parent := reg.At(parents[selectThreshold(thresholds, pick)])

		child := r.spawner.Offspring(parent.Strategy, slot.StrategySelf, slot.Position)
		r.mutate(child)
		next[i] = child
	}
	return r.finish(next), nil
}

// moranThresholds returns the running sum of positive payoffs and the slot
// each threshold belongs to.
func moranThresholds(payoffs []float64) ([]float64, []int) {
	var thresholds []float64
	var parents []int
	total := 0.0
	for i, p := range payoffs {
		if p <= 0 {
			continue
		}
		total += p
		thresholds = append(thresholds, total)
		parents = append(parents, i)
	}
	return thresholds, parents
}

// selectThreshold finds the interval containing r: [0, t0] for the first
// entry and (t[k-1], t[k]] afterwards.
func selectThreshold(thresholds []float64, r float64) int {
	k := sort.SearchFloat64s(thresholds, r)
	if k >= len(thresholds) {
		k = len(thresholds) - 1
	}
	return k
}

// Social keeps the population in place and lets agents imitate
// better-paid partners with a Fermi probability.
type Social struct {
	breeding
	Pairs Scheduler
}

func (Social) Name() string {
	return config.ReproduceSocial
}

func (r Social) Reproduce(reg *Registry) ([]*agents.Agent, error) {
	pairs, err := r.Pairs.Pairs(reg)
	if err != nil {
		return nil, fmt.Errorf("social reproduction: %w", err)
	}

	next := make([]*agents.Agent, reg.Len())
	for i := range next {
		a := reg.At(i)
		next[i] = r.spawner.Offspring(a.Strategy, a.StrategySelf, a.Position)
	}

	for _, p := range pairs {
		mine := reg.At(p.Donor).Payoff
		partner := reg.At(p.Recipient).Payoff
		if partner <= mine {
			continue
		}
		if entropy.Chance(r.rng, imitationProbability(partner-mine)) {
			next[p.Donor].Strategy = next[p.Recipient].Strategy
		}
	}
	return r.finish(next), nil
}

func imitationProbability(diff float64) float64 {
	return 1 / (1 + math.Exp(-SocialBeta*diff))
}

// NewReproducer returns the reproducer named by cfg.Reproduce.
func NewReproducer(cfg *config.Config, rng *rand.Rand, spawner *agents.Spawner, pairs Scheduler) (Reproducer, error) {
	b := breeding{
		rng:        rng,
		spawner:    spawner,
		rebelChild: cfg.RebelChild,
		private:    cfg.NonPublicScores,
	}
	switch cfg.Reproduce {
	case config.ReproduceNormal:
		return Proportional{b}, nil
	case config.ReproduceMoran:
		return Moran{b}, nil
	case config.ReproduceSocial:
		b.rebelChild = false
		return Social{breeding: b, Pairs: pairs}, nil
	default:
		return nil, fmt.Errorf("%w: unknown reproduce method %q", config.ErrInvalid, cfg.Reproduce)
	}
}

// Donation decisions and their effect on reputation and payoff.
package engine

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/talgya/reciprocity/internal/agents"
	"github.com/talgya/reciprocity/internal/config"
	"github.com/talgya/reciprocity/internal/entropy"
)

// ParticipationBonus is added to the donor's payoff after every interaction.
const ParticipationBonus = 0.1

var (
	ErrUnknownAction    = errors.New("unknown action")
	ErrMissingOpinion   = errors.New("donor holds no opinion of recipient")
	ErrTooManyObservers = errors.New("not enough agents to observe")
)

// Action is the donor's choice in one interaction.
type Action uint8

const (
	Cooperate Action = iota + 1
	Defect
)

func (a Action) String() string {
	switch a {
	case Cooperate:
		return "cooperate"
	case Defect:
		return "defect"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// Rules are the interaction parameters of a run.
type Rules struct {
	Benefit  float64
	Cost     float64
	ScoreMin int
	ScoreMax int

	// Private reputations: each agent keeps its own view of every other,
	// updated by NumObservers random witnesses plus the recipient.
	Private      bool
	NumObservers int

	// SelfAware enables the "my score matters" rule combined with Operator.
	SelfAware bool
	Operator  string
}

// RulesFromConfig extracts the interaction rules from a run configuration.
func RulesFromConfig(cfg *config.Config) Rules {
	return Rules{
		Benefit:      cfg.Benefit,
		Cost:         cfg.Cost,
		ScoreMin:     cfg.ScoreLimits.Min,
		ScoreMax:     cfg.ScoreLimits.Max,
		Private:      cfg.NonPublicScores,
		NumObservers: cfg.NumObservers,
		SelfAware:    cfg.MyScoreMatters,
		Operator:     cfg.MyScoreMattersOperator,
	}
}

// Interactions resolves donor/recipient encounters against a registry.
type Interactions struct {
	Rules Rules
	rng   *rand.Rand
}

// NewInteractions creates the interaction engine for rules.
func NewInteractions(rules Rules, rng *rand.Rand) *Interactions {
	return &Interactions{Rules: rules, rng: rng}
}

// Interact runs one encounter and returns the donor's action.
func (in *Interactions) Interact(reg *Registry, p Pair) (Action, error) {
	donor := reg.At(p.Donor)
	recipient := reg.At(p.Recipient)

	score, err := in.recipientScore(donor, recipient)
	if err != nil {
		return 0, err
	}

	action := in.Decide(donor, score)
	if err := in.apply(reg, p, action); err != nil {
		return 0, err
	}
	donor.Payoff += ParticipationBonus
	return action, nil
}

// recipientScore is the donor's view of the recipient's reputation.
func (in *Interactions) recipientScore(donor, recipient *agents.Agent) (int, error) {
	if !in.Rules.Private {
		return recipient.Score, nil
	}
	score, ok := donor.Opinions[recipient.ID]
	if !ok {
		return 0, fmt.Errorf("%w: donor %d, recipient %d", ErrMissingOpinion, donor.ID, recipient.ID)
	}
	return score, nil
}

// Decide picks the donor's action. The default rule cooperates when the
// recipient's score reaches the donor's strategy. The self-aware rule uses
// a strict comparison and folds in the donor's own score.
func (in *Interactions) Decide(donor *agents.Agent, recipientScore int) Action {
	if !in.Rules.SelfAware {
		if recipientScore >= donor.Strategy {
			return Cooperate
		}
		return Defect
	}

	firstCond := recipientScore > donor.Strategy
	secondCond := donor.StrategySelf != nil && donor.Score < *donor.StrategySelf

	var cooperate bool
	if in.Rules.Operator == config.OperatorOr {
		cooperate = firstCond || secondCond
	} else {
		cooperate = firstCond && secondCond
	}
	if cooperate {
		return Cooperate
	}
	return Defect
}

func (in *Interactions) apply(reg *Registry, p Pair, action Action) error {
	if action != Cooperate && action != Defect {
		return fmt.Errorf("%w: %v", ErrUnknownAction, action)
	}
	if in.Rules.Private {
		return in.applyPrivate(reg, p, action)
	}
	in.applyPublic(reg.At(p.Donor), reg.At(p.Recipient), action)
	return nil
}

func (in *Interactions) applyPublic(donor, recipient *agents.Agent, action Action) {
	if action == Cooperate {
		if donor.Score < in.Rules.ScoreMax {
			donor.Score++
		}
		donor.Payoff -= in.Rules.Cost
		recipient.Payoff += in.Rules.Benefit
		return
	}
	if donor.Score > in.Rules.ScoreMin {
		donor.Score--
	}
}

// applyPrivate updates the donor's reputation in the eyes of the sampled
// observers and the recipient.
func (in *Interactions) applyPrivate(reg *Registry, p Pair, action Action) error {
	observers, err := in.sampleObservers(reg, p)
	if err != nil {
		return err
	}

	donor := reg.At(p.Donor)
	delta := -1
	if action == Cooperate {
		delta = 1
	}
	for _, slot := range observers {
		obs := reg.At(slot)
		if _, ok := obs.Opinions[donor.ID]; !ok {
			return fmt.Errorf("%w: observer %d, donor %d", ErrMissingOpinion, obs.ID, donor.ID)
		}
		obs.Opinions[donor.ID] += delta
	}

	if action == Cooperate {
		donor.Payoff -= in.Rules.Cost
		reg.At(p.Recipient).Payoff += in.Rules.Benefit
	}
	return nil
}

// sampleObservers draws NumObservers slots other than the donor and the
// recipient, then appends the recipient.
func (in *Interactions) sampleObservers(reg *Registry, p Pair) ([]int, error) {
	n := reg.Len()
	if in.Rules.NumObservers > n-2 {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrTooManyObservers, in.Rules.NumObservers, n-2)
	}
	candidates := make([]int, 0, n-2)
	for i := 0; i < n; i++ {
		if i != p.Donor && i != p.Recipient {
			candidates = append(candidates, i)
		}
	}
	picked := entropy.SampleIndices(in.rng, candidates, in.Rules.NumObservers)
	return append(picked, p.Recipient), nil
}

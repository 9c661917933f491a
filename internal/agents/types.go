// Package agents provides the agent data model and the spawner that issues
// agent ids and initial strategies.
package agents

import (
	"github.com/talgya/reciprocity/internal/world"
)

// AgentID is a unique identifier for an agent. Ids are never reused.
type AgentID uint64

// Agent is one member of the population for a single generation.
type Agent struct {
	ID AgentID `json:"id"`

	// Strategy is the minimum reputation a recipient needs for this agent,
	// as donor, to cooperate.
	Strategy int `json:"strategy"`

	// StrategySelf is set only when the donor's own score enters the
	// decision: below this threshold the agent cooperates regardless.
	StrategySelf *int `json:"strategy_self,omitempty"`

	// Score is the public reputation. Unused when reputations are private.
	Score int `json:"score"`

	// Payoff accumulates during a generation and drives reproduction.
	Payoff float64 `json:"payoff"`

	// Position is the topology node the agent occupies (spatial runs only).
	Position *world.NodeID `json:"position,omitempty"`

	// Opinions holds this agent's private view of every other live agent
	// (private-reputation runs only).
	Opinions map[AgentID]int `json:"-"`
}

// View is a read-only copy of an agent's state.
type View struct {
	ID           AgentID         `json:"id"`
	Strategy     int             `json:"strategy"`
	StrategySelf *int            `json:"strategy_self,omitempty"`
	Score        int             `json:"score"`
	Payoff       float64         `json:"payoff"`
	Position     *world.NodeID   `json:"position,omitempty"`
	Opinions     map[AgentID]int `json:"opinions,omitempty"`
}

// View returns a deep copy of the agent's state.
func (a *Agent) View() View {
	v := View{
		ID:           a.ID,
		Strategy:     a.Strategy,
		StrategySelf: copyInt(a.StrategySelf),
		Score:        a.Score,
		Payoff:       a.Payoff,
		Position:     copyNode(a.Position),
	}
	if a.Opinions != nil {
		v.Opinions = make(map[AgentID]int, len(a.Opinions))
		for id, s := range a.Opinions {
			v.Opinions[id] = s
		}
	}
	return v
}

// HasSelfStrategy reports whether the agent carries a self threshold.
func (a *Agent) HasSelfStrategy() bool {
	return a.StrategySelf != nil
}

// ResetOpinions replaces the agent's private views with a neutral entry for
// every id in others except its own.
func (a *Agent) ResetOpinions(others []AgentID) {
	a.Opinions = make(map[AgentID]int, len(others))
	for _, id := range others {
		if id != a.ID {
			a.Opinions[id] = 0
		}
	}
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyNode(p *world.NodeID) *world.NodeID {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

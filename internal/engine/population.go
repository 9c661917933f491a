// Population registry and initial population construction.
package engine

import (
	"errors"
	"fmt"

	"github.com/talgya/reciprocity/internal/agents"
	"github.com/talgya/reciprocity/internal/config"
	"github.com/talgya/reciprocity/internal/world"
)

var (
	ErrAgentNotFound  = errors.New("agent not found")
	ErrDuplicateID    = errors.New("duplicate agent id")
	ErrPopulationSize = errors.New("population size changed")
)

// Registry owns one generation's agents and the id → slot index.
// A new generation replaces the registry contents wholesale.
type Registry struct {
	agents []*agents.Agent
	index  map[agents.AgentID]int
}

// NewRegistry indexes list. Ids must be unique.
func NewRegistry(list []*agents.Agent) (*Registry, error) {
	r := &Registry{}
	if err := r.load(list); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load(list []*agents.Agent) error {
	index := make(map[agents.AgentID]int, len(list))
	for i, a := range list {
		if _, dup := index[a.ID]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateID, a.ID)
		}
		index[a.ID] = i
	}
	r.agents = list
	r.index = index
	return nil
}

// Replace swaps in the next generation. It must have the same size.
func (r *Registry) Replace(next []*agents.Agent) error {
	if len(next) != len(r.agents) {
		return fmt.Errorf("%w: %d -> %d", ErrPopulationSize, len(r.agents), len(next))
	}
	return r.load(next)
}

// Len returns the population size.
func (r *Registry) Len() int {
	return len(r.agents)
}

// At returns the agent in slot i.
func (r *Registry) At(i int) *agents.Agent {
	return r.agents[i]
}

// ByID returns the live agent with the given id.
func (r *Registry) ByID(id agents.AgentID) (*agents.Agent, error) {
	i, ok := r.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrAgentNotFound, id)
	}
	return r.agents[i], nil
}

// IDs returns the live ids in slot order.
func (r *Registry) IDs() []agents.AgentID {
	ids := make([]agents.AgentID, len(r.agents))
	for i, a := range r.agents {
		ids[i] = a.ID
	}
	return ids
}

// Snapshot returns deep copies of every agent in slot order.
func (r *Registry) Snapshot() []agents.View {
	out := make([]agents.View, len(r.agents))
	for i, a := range r.agents {
		out[i] = a.View()
	}
	return out
}

// Payoffs returns the payoff of every agent in slot order.
func (r *Registry) Payoffs() []float64 {
	out := make([]float64, len(r.agents))
	for i, a := range r.agents {
		out[i] = a.Payoff
	}
	return out
}

// Scores returns the public score of every agent in slot order.
func (r *Registry) Scores() []float64 {
	out := make([]float64, len(r.agents))
	for i, a := range r.agents {
		out[i] = float64(a.Score)
	}
	return out
}

// resetOpinions gives every agent a neutral private view of every other.
func resetOpinions(list []*agents.Agent) {
	ids := make([]agents.AgentID, len(list))
	for i, a := range list {
		ids[i] = a.ID
	}
	for _, a := range list {
		a.ResetOpinions(ids)
	}
}

// InitialPopulation creates the first generation in the shape the
// configured mode requires: a self threshold for "my score matters",
// opinion maps for private reputations, graph positions for spatial runs.
func InitialPopulation(cfg *config.Config, spawner *agents.Spawner, graph *world.Graph) ([]*agents.Agent, error) {
	n := cfg.NumAgents

	var positions []world.NodeID
	if cfg.PhysicalConstraints {
		if graph == nil || graph.NodeCount() != n {
			return nil, fmt.Errorf("%w: topology does not match population of %d", ErrPopulationSize, n)
		}
		positions = graph.Nodes()
	}

	var strategies []int
	if positions != nil && cfg.InitialStrategies == config.SeedClustered {
		// The noise seed comes from the run's sequence like every other draw.
		field, err := world.StrategyField(graph, world.DefaultFieldConfig(spawner.Seed()), cfg.StrategyLimits.Min, cfg.StrategyLimits.Max)
		if err != nil {
			return nil, fmt.Errorf("clustered strategies: %w", err)
		}
		strategies = field
	} else {
		strategies = spawner.RandomStrategies(n)
	}

	var selfStrategies []int
	if cfg.MyScoreMatters {
		selfStrategies = spawner.RandomStrategies(n)
	}

	list := make([]*agents.Agent, 0, n)
	for i := 0; i < n; i++ {
		a := spawner.Spawn(strategies[i])
		if selfStrategies != nil {
			self := selfStrategies[i]
			a.StrategySelf = &self
		}
		if positions != nil {
			pos := positions[i]
			a.Position = &pos
		}
		list = append(list, a)
	}

	if cfg.NonPublicScores {
		resetOpinions(list)
	}
	return list, nil
}

// Read-only views of a generation for logging, plotting and the API.
package engine

import (
	"github.com/talgya/reciprocity/internal/agents"
	"github.com/talgya/reciprocity/internal/config"
	"github.com/talgya/reciprocity/internal/world"
)

// StrategyCount is one bar of the strategy histogram.
type StrategyCount struct {
	Strategy int `json:"strategy" db:"strategy"`
	Count    int `json:"count" db:"count"`
}

// JointCount is one cell of the strategy × self-strategy histogram.
type JointCount struct {
	Strategy     int `json:"strategy" db:"strategy"`
	StrategySelf int `json:"strategy_self" db:"strategy_self"`
	Count        int `json:"count" db:"count"`
}

// Placement is the agent occupying a topology node.
type Placement struct {
	Node     world.NodeID    `json:"node" db:"node"`
	Coord    *world.GridCoord `json:"coord,omitempty" db:"-"`
	AgentID  agents.AgentID  `json:"agent_id" db:"agent_id"`
	Strategy int             `json:"strategy" db:"strategy"`
}

// PopulationSnapshot is an immutable copy of a generation after its
// interactions and before reproduction.
type PopulationSnapshot struct {
	Generation int             `json:"generation"`
	Agents     []agents.View   `json:"agents"`
	Histogram  []StrategyCount `json:"histogram"`
	Joint      []JointCount    `json:"joint,omitempty"`
	Layout     []Placement     `json:"layout,omitempty"`
}

// Histogram counts agents per strategy over the full inclusive range,
// including empty bins.
func Histogram(views []agents.View, limits config.Limits) []StrategyCount {
	out := make([]StrategyCount, 0, limits.Max-limits.Min+1)
	for s := limits.Min; s <= limits.Max; s++ {
		out = append(out, StrategyCount{Strategy: s})
	}
	for _, v := range views {
		if limits.Contains(v.Strategy) {
			out[v.Strategy-limits.Min].Count++
		}
	}
	return out
}

// JointHistogram counts agents per (strategy, self strategy) cell over the
// full square of the range. Agents without a self strategy are skipped.
func JointHistogram(views []agents.View, limits config.Limits) []JointCount {
	span := limits.Max - limits.Min + 1
	out := make([]JointCount, 0, span*span)
	for k := limits.Min; k <= limits.Max; k++ {
		for h := limits.Min; h <= limits.Max; h++ {
			out = append(out, JointCount{Strategy: k, StrategySelf: h})
		}
	}
	for _, v := range views {
		if v.StrategySelf == nil || !limits.Contains(v.Strategy) || !limits.Contains(*v.StrategySelf) {
			continue
		}
		out[(v.Strategy-limits.Min)*span+(*v.StrategySelf-limits.Min)].Count++
	}
	return out
}

// Layout maps every occupied node to its agent, ordered by node.
func Layout(views []agents.View, gr *world.Graph) []Placement {
	if gr == nil {
		return nil
	}
	byNode := make(map[world.NodeID]agents.View, len(views))
	for _, v := range views {
		if v.Position != nil {
			byNode[*v.Position] = v
		}
	}
	out := make([]Placement, 0, len(byNode))
	for _, id := range gr.Nodes() {
		v, ok := byNode[id]
		if !ok {
			continue
		}
		p := Placement{Node: id, AgentID: v.ID, Strategy: v.Strategy}
		if c, ok := gr.Coord(id); ok {
			p.Coord = &c
		}
		out = append(out, p)
	}
	return out
}

package world

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// NodeID identifies a position on the topology.
type NodeID int64

// Edge is an undirected edge stored with U < V.
type Edge struct {
	U NodeID `json:"u"`
	V NodeID `json:"v"`
}

var (
	ErrTooFewNodes   = errors.New("world: graph needs at least two nodes")
	ErrInvalidDegree = errors.New("world: average degree out of range")
	ErrInvalidSide   = errors.New("world: grid side must be positive")
	ErrNotGrid       = errors.New("world: graph has no lattice coordinates")
)

// Graph is an immutable undirected simple graph over nodes 0..n-1.
type Graph struct {
	g         *simple.UndirectedGraph
	nodes     []NodeID
	edges     []Edge
	adjacency map[NodeID][]NodeID

	// Lattice metadata, zero for random graphs.
	side  int
	torus bool
}

// NewRandomGraph builds a uniform random graph on n nodes with round(n*d/2)
// edges. Components left disconnected by the draw are joined to the largest
// one with a single random edge each, so the result is connected.
func NewRandomGraph(rng *rand.Rand, n int, avgDegree float64) (*Graph, error) {
	if n < 2 {
		return nil, ErrTooFewNodes
	}
	if avgDegree <= 0 || avgDegree > float64(n-1) {
		return nil, fmt.Errorf("%w: %v for %d nodes", ErrInvalidDegree, avgDegree, n)
	}

	g := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}

	target := int(math.Round(float64(n) * avgDegree / 2))
	for placed := 0; placed < target; {
		u := int64(rng.Intn(n))
		v := int64(rng.Intn(n))
		if u == v || g.HasEdgeBetween(u, v) {
			continue
		}
		g.SetEdge(simple.Edge{F: simple.Node(u), T: simple.Node(v)})
		placed++
	}

	stitchComponents(rng, g)
	return finalize(g, n, 0, false), nil
}

// NewGrid builds a side x side 4-neighbor lattice. With torus set, edges
// wrap around the borders.
func NewGrid(side int, torus bool) (*Graph, error) {
	if side <= 0 {
		return nil, ErrInvalidSide
	}
	n := side * side
	if n < 2 {
		return nil, ErrTooFewNodes
	}

	g := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	for row := 0; row < side; row++ {
		for col := 0; col < side; col++ {
			here := GridCoord{Row: row, Col: col}
			for _, nb := range here.Neighbors() {
				if torus {
					nb = nb.Wrap(side)
				} else if !nb.InBounds(side) {
					continue
				}
				u, v := int64(here.Node(side)), int64(nb.Node(side))
				if u == v || g.HasEdgeBetween(u, v) {
					continue
				}
				g.SetEdge(simple.Edge{F: simple.Node(u), T: simple.Node(v)})
			}
		}
	}
	return finalize(g, n, side, torus), nil
}

// stitchComponents links every component to the largest one. Components are
// ordered by size, then by smallest node id, so a seeded run is reproducible.
func stitchComponents(rng *rand.Rand, g *simple.UndirectedGraph) {
	comps := topo.ConnectedComponents(g)
	if len(comps) < 2 {
		return
	}
	for _, c := range comps {
		sort.Slice(c, func(i, j int) bool { return c[i].ID() < c[j].ID() })
	}
	sort.Slice(comps, func(i, j int) bool {
		if len(comps[i]) != len(comps[j]) {
			return len(comps[i]) > len(comps[j])
		}
		return comps[i][0].ID() < comps[j][0].ID()
	})

	anchor := append([]graph.Node(nil), comps[0]...)
	for _, c := range comps[1:] {
		from := c[rng.Intn(len(c))]
		to := anchor[rng.Intn(len(anchor))]
		g.SetEdge(simple.Edge{F: from, T: to})
		anchor = append(anchor, c...)
	}
}

func finalize(g *simple.UndirectedGraph, n, side int, torus bool) *Graph {
	out := &Graph{
		g:         g,
		nodes:     make([]NodeID, n),
		adjacency: make(map[NodeID][]NodeID, n),
		side:      side,
		torus:     torus,
	}
	for i := 0; i < n; i++ {
		id := NodeID(i)
		out.nodes[i] = id

		nbs := graph.NodesOf(g.From(int64(i)))
		adj := make([]NodeID, 0, len(nbs))
		for _, nb := range nbs {
			adj = append(adj, NodeID(nb.ID()))
		}
		sort.Slice(adj, func(a, b int) bool { return adj[a] < adj[b] })
		out.adjacency[id] = adj

		for _, v := range adj {
			if v > id {
				out.edges = append(out.edges, Edge{U: id, V: v})
			}
		}
	}
	return out
}

// Nodes returns the node positions in ascending order.
func (gr *Graph) Nodes() []NodeID {
	return append([]NodeID(nil), gr.nodes...)
}

// NodeCount returns the number of nodes.
func (gr *Graph) NodeCount() int {
	return len(gr.nodes)
}

// Edges returns every edge once, ordered by (U, V).
func (gr *Graph) Edges() []Edge {
	return append([]Edge(nil), gr.edges...)
}

// EdgeCount returns the number of undirected edges.
func (gr *Graph) EdgeCount() int {
	return len(gr.edges)
}

// Neighbors returns the sorted neighbors of id.
func (gr *Graph) Neighbors(id NodeID) []NodeID {
	return append([]NodeID(nil), gr.adjacency[id]...)
}

// Degree returns the number of neighbors of id.
func (gr *Graph) Degree(id NodeID) int {
	return len(gr.adjacency[id])
}

// AverageDegree returns 2|E|/|V|.
func (gr *Graph) AverageDegree() float64 {
	if len(gr.nodes) == 0 {
		return 0
	}
	return 2 * float64(len(gr.edges)) / float64(len(gr.nodes))
}

// Connected reports whether every node is reachable from every other.
func (gr *Graph) Connected() bool {
	return len(topo.ConnectedComponents(gr.g)) == 1
}

// IsGrid reports whether the graph carries lattice coordinates.
func (gr *Graph) IsGrid() bool {
	return gr.side > 0
}

// Side returns the lattice side length, 0 for random graphs.
func (gr *Graph) Side() int {
	return gr.side
}

// Coord returns the lattice position of id.
func (gr *Graph) Coord(id NodeID) (GridCoord, bool) {
	if gr.side == 0 || int(id) < 0 || int(id) >= len(gr.nodes) {
		return GridCoord{}, false
	}
	return GridCoord{Row: int(id) / gr.side, Col: int(id) % gr.side}, true
}

// String returns a summary of the graph.
func (gr *Graph) String() string {
	if gr.side > 0 {
		return fmt.Sprintf("Grid(side=%d, torus=%t, edges=%d)", gr.side, gr.torus, len(gr.edges))
	}
	return fmt.Sprintf("Graph(nodes=%d, edges=%d, avg_degree=%.2f)", len(gr.nodes), len(gr.edges), gr.AverageDegree())
}

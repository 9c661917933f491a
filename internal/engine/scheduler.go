// Interaction pairing: unconstrained random draws or one pair per graph edge.
package engine

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/talgya/reciprocity/internal/world"
)

var ErrUnoccupiedNode = errors.New("graph node has no occupant")

// Pair is an ordered (donor, recipient) assignment of registry slots.
type Pair struct {
	Donor     int `json:"donor"`
	Recipient int `json:"recipient"`
}

// Scheduler produces the ordered pairs for one generation.
type Scheduler interface {
	Pairs(reg *Registry) ([]Pair, error)
}

// RandomPairs draws Count ordered pairs of distinct agents, uniformly and
// with replacement across draws.
type RandomPairs struct {
	Count int
	Rng   *rand.Rand
}

func (s RandomPairs) Pairs(reg *Registry) ([]Pair, error) {
	n := reg.Len()
	if n < 2 {
		return nil, fmt.Errorf("random pairs need at least two agents, have %d", n)
	}
	pairs := make([]Pair, s.Count)
	for i := range pairs {
		donor := s.Rng.Intn(n)
		recipient := s.Rng.Intn(n - 1)
		if recipient >= donor {
			recipient++
		}
		pairs[i] = Pair{Donor: donor, Recipient: recipient}
	}
	return pairs, nil
}

// GraphPairs yields one pair per topology edge: the occupant of U donates
// to the occupant of V.
type GraphPairs struct {
	Graph *world.Graph
}

func (s GraphPairs) Pairs(reg *Registry) ([]Pair, error) {
	occupant := make(map[world.NodeID]int, reg.Len())
	for i := 0; i < reg.Len(); i++ {
		if pos := reg.At(i).Position; pos != nil {
			occupant[*pos] = i
		}
	}

	edges := s.Graph.Edges()
	pairs := make([]Pair, 0, len(edges))
	for _, e := range edges {
		u, ok := occupant[e.U]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnoccupiedNode, e.U)
		}
		v, ok := occupant[e.V]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnoccupiedNode, e.V)
		}
		pairs = append(pairs, Pair{Donor: u, Recipient: v})
	}
	return pairs, nil
}

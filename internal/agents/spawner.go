// Agent spawning: id allocation, initial strategy draws, and offspring.
package agents

import (
	"math/rand"

	"github.com/talgya/reciprocity/internal/world"
)

// Spawner issues agent ids from a single monotonically increasing counter
// shared by initialization and every reproduction step.
type Spawner struct {
	rng         *rand.Rand
	nextID      AgentID
	strategyMin int
	strategyMax int
}

// NewSpawner creates a spawner drawing strategies from [lo, hi].
func NewSpawner(rng *rand.Rand, lo, hi int) *Spawner {
	return &Spawner{
		rng:         rng,
		strategyMin: lo,
		strategyMax: hi,
	}
}

// NextID issues a fresh id.
func (s *Spawner) NextID() AgentID {
	id := s.nextID
	s.nextID++
	return id
}

// Issued returns the next id to be issued; every id handed out so far is
// strictly below it.
func (s *Spawner) Issued() AgentID {
	return s.nextID
}

// RandomStrategy draws a strategy uniformly from the configured range.
func (s *Spawner) RandomStrategy() int {
	return s.strategyMin + s.rng.Intn(s.strategyMax-s.strategyMin+1)
}

// Seed draws a seed for a derived generator from the shared sequence.
func (s *Spawner) Seed() int64 {
	return s.rng.Int63()
}

// RandomStrategies draws n strategies uniformly.
func (s *Spawner) RandomStrategies(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = s.RandomStrategy()
	}
	return out
}

// Spawn creates a fresh agent with a new id and zeroed score and payoff.
func (s *Spawner) Spawn(strategy int) *Agent {
	return &Agent{
		ID:       s.NextID(),
		Strategy: strategy,
	}
}

// Offspring creates a new-generation agent. strategySelf and position are
// copied so the child shares no memory with the outgoing generation.
func (s *Spawner) Offspring(strategy int, strategySelf *int, position *world.NodeID) *Agent {
	a := s.Spawn(strategy)
	a.StrategySelf = copyInt(strategySelf)
	a.Position = copyNode(position)
	return a
}

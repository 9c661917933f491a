// Spatially clustered strategy seeding using layered simplex noise.
package world

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// FieldConfig controls the noise field used to seed clustered strategies.
type FieldConfig struct {
	Seed        int64
	Frequency   float64 // Base noise frequency per lattice step
	Octaves     int
	Persistence float64
}

// DefaultFieldConfig returns a field with patches a few cells wide.
func DefaultFieldConfig(seed int64) FieldConfig {
	return FieldConfig{
		Seed:        seed,
		Frequency:   0.15,
		Octaves:     3,
		Persistence: 0.5,
	}
}

// StrategyField samples a noise field at every lattice node and maps it onto
// the inclusive range [lo, hi]. Neighboring nodes get similar values, which
// seeds the population with spatial clusters of like strategies.
func StrategyField(gr *Graph, cfg FieldConfig, lo, hi int) ([]int, error) {
	if !gr.IsGrid() {
		return nil, ErrNotGrid
	}
	noise := opensimplex.NewNormalized(cfg.Seed)
	span := hi - lo + 1

	out := make([]int, gr.NodeCount())
	for i, id := range gr.nodes {
		c, _ := gr.Coord(id)
		v := octaveNoise(noise, float64(c.Col), float64(c.Row), cfg.Octaves, cfg.Frequency, cfg.Persistence)
		s := lo + int(v*float64(span))
		if s > hi {
			s = hi
		}
		if s < lo {
			s = lo
		}
		out[i] = s
	}
	return out, nil
}

// octaveNoise generates fractal noise by layering multiple frequencies.
// The result stays in [0, 1) for a normalized source.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	if octaves < 1 {
		octaves = 1
	}
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

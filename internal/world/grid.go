// Package world provides the fixed interaction topology agents live on:
// a degree-controlled random graph or a square lattice.
package world

// GridCoord is a lattice position. Row 0, column 0 is the top-left corner.
type GridCoord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// GridNeighborDirections are the four lattice offsets (von Neumann neighborhood).
var GridNeighborDirections = [4]GridCoord{
	{Row: 0, Col: 1},
	{Row: 1, Col: 0},
	{Row: 0, Col: -1},
	{Row: -1, Col: 0},
}

// Neighbors returns the four adjacent coordinates, unwrapped.
func (c GridCoord) Neighbors() [4]GridCoord {
	var result [4]GridCoord
	for i, dir := range GridNeighborDirections {
		result[i] = GridCoord{Row: c.Row + dir.Row, Col: c.Col + dir.Col}
	}
	return result
}

// Wrap folds the coordinate onto a side x side torus.
func (c GridCoord) Wrap(side int) GridCoord {
	return GridCoord{Row: mod(c.Row, side), Col: mod(c.Col, side)}
}

// InBounds reports whether the coordinate lies on a side x side lattice.
func (c GridCoord) InBounds(side int) bool {
	return c.Row >= 0 && c.Row < side && c.Col >= 0 && c.Col < side
}

// Node returns the node id of the coordinate in row-major order.
func (c GridCoord) Node(side int) NodeID {
	return NodeID(c.Row*side + c.Col)
}

func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

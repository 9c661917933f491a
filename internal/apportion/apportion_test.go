package apportion

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProportionalPaperExample(t *testing.T) {
	counts, err := Proportional([]float64{0.4, 0.3, 0.2, 0.1}, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 1, 0}, counts)
}

func TestLargestRemainderTieBreaksByOrder(t *testing.T) {
	counts, err := LargestRemainder([]float64{0.5, 0.5, 0.5, 0.5}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 0, 0}, counts)
}

func TestLargestRemainderExactShares(t *testing.T) {
	counts, err := LargestRemainder([]float64{2, 0, 3}, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 3}, counts)
}

func TestProportionalSumsToTotal(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(60)
		weights := make([]float64, n)
		for i := range weights {
			weights[i] = rng.Float64() * 5
		}
		weights[rng.Intn(n)] += 0.01

		counts, err := Proportional(weights, n)
		require.NoError(t, err)

		sum := 0
		for i, c := range counts {
			sum += c
			share := weights[i] * float64(n) / total(weights)
			assert.GreaterOrEqual(t, float64(c), share-1, "count %d too far below share %v", c, share)
			assert.LessOrEqual(t, float64(c), share+1, "count %d too far above share %v", c, share)
		}
		assert.Equal(t, n, sum)
	}
}

func TestProportionalZeroTotal(t *testing.T) {
	_, err := Proportional([]float64{0, 0, 0}, 3)
	assert.ErrorIs(t, err, ErrZeroTotal)
}

func TestLargestRemainderRejectsNegative(t *testing.T) {
	_, err := LargestRemainder([]float64{1.5, -0.5, 1}, 2)
	assert.ErrorIs(t, err, ErrNegativeShare)
}

func TestLargestRemainderUnreachable(t *testing.T) {
	_, err := LargestRemainder([]float64{3, 3}, 4)
	assert.ErrorIs(t, err, ErrUnreachableTotal)
}

func total(ws []float64) float64 {
	s := 0.0
	for _, w := range ws {
		s += w
	}
	return s
}

// Package apportion converts real-valued shares into integer counts that
// sum exactly to a target total, using the largest-remainder method.
package apportion

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrNegativeShare    = errors.New("apportion: negative or non-finite share")
	ErrZeroTotal        = errors.New("apportion: weights sum to zero")
	ErrUnreachableTotal = errors.New("apportion: total cannot be reached from shares")
)

// LargestRemainder floors every share and hands the remaining units to the
// entries with the largest fractional remainder. Ties go to the entry that
// appears first.
func LargestRemainder(shares []float64, total int) ([]int, error) {
	counts := make([]int, len(shares))
	remainders := make([]float64, len(shares))

	assigned := 0
	for i, s := range shares {
		if s < 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("%w: index %d = %v", ErrNegativeShare, i, s)
		}
		fl := math.Floor(s)
		counts[i] = int(fl)
		remainders[i] = s - fl
		assigned += counts[i]
	}

	left := total - assigned
	if left < 0 || left > len(shares) {
		return nil, fmt.Errorf("%w: floors sum to %d, want %d", ErrUnreachableTotal, assigned, total)
	}

	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})
	for _, idx := range order[:left] {
		counts[idx]++
	}
	return counts, nil
}

// Proportional scales weights so they sum to total and apportions the result.
func Proportional(weights []float64, total int) ([]int, error) {
	sum := floats.Sum(weights)
	if sum == 0 {
		return nil, ErrZeroTotal
	}
	shares := make([]float64, len(weights))
	for i, w := range weights {
		shares[i] = w * float64(total) / sum
	}
	return LargestRemainder(shares, total)
}

package gardener

import (
	"gonum.org/v1/gonum/stat"
)

// Health levels, most severe first.
const (
	LevelCollapsed = "COLLAPSED"
	LevelFixated   = "FIXATED"
	LevelWatch     = "WATCH"
	LevelHealthy   = "HEALTHY"
)

// Thresholds tune the triage rules.
type Thresholds struct {
	// Mean cooperation ratio over the window below which the run has collapsed.
	Collapse float64
	// Population share of one strategy at or above which the run has fixated.
	Fixation float64
	// Drop between the older and newer half of the window that warrants a watch.
	Decline float64
}

// DefaultThresholds returns the thresholds the gardener runs with.
func DefaultThresholds() Thresholds {
	return Thresholds{Collapse: 0.1, Fixation: 0.95, Decline: 0.2}
}

// RunHealth holds derived diagnostic signals computed from a RunSnapshot.
type RunHealth struct {
	Generation       int     `json:"generation"`
	MeanCooperation  float64 `json:"mean_cooperation"`  // over the observed window
	EarlyCooperation float64 `json:"early_cooperation"` // older half of the window
	LateCooperation  float64 `json:"late_cooperation"`  // newer half of the window
	DominantStrategy int     `json:"dominant_strategy"`
	DominantShare    float64 `json:"dominant_share"`
	Level            string  `json:"level"`
}

// Triage computes a RunHealth from the snapshot's data.
func Triage(snap *RunSnapshot, th Thresholds) *RunHealth {
	h := &RunHealth{
		Generation: snap.Status.Generation,
		Level:      LevelHealthy,
	}

	ratios := make([]float64, 0, len(snap.Reports))
	for _, r := range snap.Reports {
		if r.Interactions > 0 {
			ratios = append(ratios, r.CooperationRatio)
		}
	}
	if len(ratios) > 0 {
		h.MeanCooperation = stat.Mean(ratios, nil)
		h.EarlyCooperation = h.MeanCooperation
		h.LateCooperation = h.MeanCooperation
		if half := len(ratios) / 2; half > 0 {
			h.EarlyCooperation = stat.Mean(ratios[:half], nil)
			h.LateCooperation = stat.Mean(ratios[half:], nil)
		}
	}

	total, best := 0, 0
	for _, b := range snap.Histogram {
		total += b.Count
		if b.Count > best {
			best = b.Count
			h.DominantStrategy = b.Strategy
		}
	}
	if total > 0 {
		h.DominantShare = float64(best) / float64(total)
	}

	switch {
	case len(ratios) > 0 && h.MeanCooperation < th.Collapse:
		h.Level = LevelCollapsed
	case total > 0 && h.DominantShare >= th.Fixation:
		h.Level = LevelFixated
	case h.EarlyCooperation-h.LateCooperation > th.Decline:
		h.Level = LevelWatch
	}

	return h
}

package gardener

import (
	"fmt"
)

// Decision says whether a cycle's health is worth an alert.
type Decision struct {
	Alert     bool   `json:"alert"`
	Rationale string `json:"rationale"`
}

// Decide compares the current health with the last recorded cycle of the
// same run. It alerts when the level changes into or out of HEALTHY or
// between two unhealthy levels, and stays quiet while the level holds.
func Decide(runID string, h *RunHealth, mem *CycleMemory) Decision {
	last, ok := mem.Last(runID)
	if !ok {
		if h.Level == LevelHealthy {
			return Decision{Rationale: "first observation, healthy"}
		}
		return Decision{Alert: true, Rationale: fmt.Sprintf("first observation is %s", h.Level)}
	}

	if last.Level == h.Level {
		return Decision{Rationale: fmt.Sprintf("level unchanged at %s", h.Level)}
	}
	if h.Level == LevelHealthy {
		return Decision{Alert: true, Rationale: fmt.Sprintf("recovered from %s", last.Level)}
	}
	return Decision{
		Alert:     true,
		Rationale: fmt.Sprintf("level changed from %s to %s at generation %d", last.Level, h.Level, h.Generation),
	}
}

package gardener

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const (
	maxRecords     = 20
	summaryRecords = 5
)

// CycleRecord captures what happened in a single gardener cycle.
type CycleRecord struct {
	RunID           string  `json:"run_id"`
	Generation      int     `json:"generation"`
	Level           string  `json:"level"`
	MeanCooperation float64 `json:"mean_cooperation"`
	DominantShare   float64 `json:"dominant_share"`
	Alerted         bool    `json:"alerted"`
}

// CycleMemory keeps a ring of recent cycle records on disk so a restarted
// gardener does not repeat alerts.
type CycleMemory struct {
	Records []CycleRecord `json:"records"`
	path    string
}

// LoadMemory reads the memory file at path. A missing or unreadable file
// yields empty memory. An empty path keeps memory in-process only.
func LoadMemory(path string) *CycleMemory {
	mem := &CycleMemory{path: path}
	if path == "" {
		return mem
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return mem
	}
	if err := json.Unmarshal(data, mem); err != nil {
		slog.Warn("gardener memory corrupted, starting fresh", "path", path, "error", err)
		return &CycleMemory{path: path}
	}
	return mem
}

// Save writes the memory to disk.
func (m *CycleMemory) Save() {
	if m.path == "" {
		return
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		slog.Error("failed to marshal gardener memory", "error", err)
		return
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		slog.Error("failed to write gardener memory", "path", m.path, "error", err)
	}
}

// Record adds a cycle record, trimming to maxRecords.
func (m *CycleMemory) Record(r CycleRecord) {
	m.Records = append(m.Records, r)
	if len(m.Records) > maxRecords {
		m.Records = m.Records[len(m.Records)-maxRecords:]
	}
}

// Last returns the most recent record for runID.
func (m *CycleMemory) Last(runID string) (CycleRecord, bool) {
	for i := len(m.Records) - 1; i >= 0; i-- {
		if m.Records[i].RunID == runID {
			return m.Records[i], true
		}
	}
	return CycleRecord{}, false
}

// Summary renders the last few cycles, one per line.
func (m *CycleMemory) Summary() string {
	if len(m.Records) == 0 {
		return ""
	}

	var b strings.Builder
	start := 0
	if len(m.Records) > summaryRecords {
		start = len(m.Records) - summaryRecords
	}
	for _, r := range m.Records[start:] {
		fmt.Fprintf(&b, "- gen %d: level=%s, cooperation=%.3f, dominant=%.2f",
			r.Generation, r.Level, r.MeanCooperation, r.DominantShare)
		if r.Alerted {
			b.WriteString(", alerted")
		}
		b.WriteString("\n")
	}
	return b.String()
}

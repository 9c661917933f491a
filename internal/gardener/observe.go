// Package gardener watches a served simulation run. It observes the run
// through the HTTP API, triages its health, decides whether the change is
// worth reporting, and posts alerts to a webhook.
package gardener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RunSnapshot holds all data collected during an observation cycle.
type RunSnapshot struct {
	Status    RunStatus     `json:"status"`
	Reports   []ReportRow   `json:"reports"`
	Histogram []StrategyBin `json:"histogram"`
}

// RunStatus mirrors GET /api/v1/status.
type RunStatus struct {
	RunID        string   `json:"run_id"`
	Name         string   `json:"name"`
	Seed         int64    `json:"seed"`
	Reproduce    string   `json:"reproduce"`
	Agents       int      `json:"agents"`
	Generation   int      `json:"generation"`
	Generations  int      `json:"generations"`
	Running      bool     `json:"running"`
	Cooperation  float64  `json:"cooperation_ratio"`
	AvgPayoff    float64  `json:"avg_payoff"`
	AvgScore     *float64 `json:"avg_score,omitempty"`
	Interactions int      `json:"interactions"`
	Cooperations int      `json:"cooperations"`
}

// ReportRow mirrors items from GET /api/v1/reports.
type ReportRow struct {
	Generation       int      `json:"generation"`
	Interactions     int      `json:"interactions"`
	Cooperations     int      `json:"cooperations"`
	CooperationRatio float64  `json:"cooperation_ratio"`
	AvgScore         *float64 `json:"avg_score,omitempty"`
	AvgPayoff        float64  `json:"avg_payoff"`
}

// StrategyBin mirrors histogram items from GET /api/v1/strategies.
type StrategyBin struct {
	Strategy int `json:"strategy"`
	Count    int `json:"count"`
}

// Observer fetches run state from the API.
type Observer struct {
	BaseURL    string
	Window     int // number of recent generations to fetch
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string, window int) *Observer {
	return &Observer{
		BaseURL: baseURL,
		Window:  window,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches status, the recent reports and the latest histogram. A
// run that has not produced a snapshot yet yields an empty histogram.
func (o *Observer) Observe(ctx context.Context) (*RunSnapshot, error) {
	snap := &RunSnapshot{}

	if err := o.fetchJSON(ctx, "/api/v1/status", &snap.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}

	since := snap.Status.Generation - o.Window
	if since < 0 {
		since = 0
	}
	if err := o.fetchJSON(ctx, fmt.Sprintf("/api/v1/reports?since=%d", since), &snap.Reports); err != nil {
		return nil, fmt.Errorf("fetch reports: %w", err)
	}

	var strategies struct {
		Histogram []StrategyBin `json:"histogram"`
	}
	err := o.fetchJSON(ctx, "/api/v1/strategies", &strategies)
	switch {
	case err == nil:
		snap.Histogram = strategies.Histogram
	case isStatus(err, http.StatusServiceUnavailable):
	default:
		return nil, fmt.Errorf("fetch strategies: %w", err)
	}

	return snap, nil
}

// StatusError is a non-200 API response.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned %d: %s", e.Path, e.Code, e.Body)
}

func isStatus(err error, code int) bool {
	se, ok := err.(*StatusError)
	return ok && se.Code == code
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &StatusError{Path: path, Code: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

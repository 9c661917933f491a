// Package api serves a running simulation over HTTP: read-only JSON
// endpoints for the latest state plus a websocket stream of generation
// reports.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/talgya/reciprocity/internal/config"
	"github.com/talgya/reciprocity/internal/engine"
	"github.com/talgya/reciprocity/internal/persistence"
)

// Stream message types.
const (
	MsgReport   = "report"
	MsgSnapshot = "snapshot"
	MsgFinished = "finished"
)

// Status is the body of /api/v1/status.
type Status struct {
	RunID        string   `json:"run_id"`
	Name         string   `json:"name"`
	Seed         int64    `json:"seed"`
	Reproduce    string   `json:"reproduce"`
	Agents       int      `json:"agents"`
	Generation   int      `json:"generation"` // generations completed
	Generations  int      `json:"generations"`
	Running      bool     `json:"running"`
	Cooperation  float64  `json:"cooperation_ratio"` // last completed generation
	AvgPayoff    float64  `json:"avg_payoff"`
	AvgScore     *float64 `json:"avg_score,omitempty"`
	Interactions int      `json:"interactions"` // run total
	Cooperations int      `json:"cooperations"` // run total
}

// Server holds the latest published state of one run. The simulation
// goroutine writes through Begin/PublishReport/PublishSnapshot/Finish;
// handlers only read.
type Server struct {
	Port int
	DB   *persistence.DB // optional run archive
	Hub  *Hub

	mu       sync.RWMutex
	status   Status
	snapshot *engine.PopulationSnapshot
	reports  []engine.GenerationReport
}

// NewServer creates a server with its own stream hub.
func NewServer(port int, db *persistence.DB) *Server {
	return &Server{Port: port, DB: db, Hub: NewHub()}
}

// Begin resets the published state for a new run.
func (s *Server) Begin(runID string, cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Status{
		RunID:       runID,
		Name:        cfg.Name,
		Seed:        cfg.Seed,
		Reproduce:   cfg.Reproduce,
		Agents:      cfg.NumAgents,
		Generations: cfg.NumGenerations,
		Running:     true,
	}
	s.snapshot = nil
	s.reports = nil
}

// PublishReport records a completed generation and streams it.
func (s *Server) PublishReport(r engine.GenerationReport) {
	s.mu.Lock()
	s.reports = append(s.reports, r)
	s.status.Generation = r.Generation + 1
	s.status.Cooperation = r.CooperationRatio
	s.status.AvgPayoff = r.AvgPayoff
	s.status.AvgScore = r.AvgScore
	s.status.Interactions += r.Interactions
	s.status.Cooperations += r.Cooperations
	s.mu.Unlock()

	s.Hub.Publish(MsgReport, r)
}

// PublishSnapshot replaces the latest population snapshot and streams its
// histogram.
func (s *Server) PublishSnapshot(snap engine.PopulationSnapshot) {
	s.mu.Lock()
	s.snapshot = &snap
	s.mu.Unlock()

	s.Hub.Publish(MsgSnapshot, map[string]any{
		"generation": snap.Generation,
		"histogram":  snap.Histogram,
	})
}

// Finish marks the run as no longer running.
func (s *Server) Finish() {
	s.mu.Lock()
	s.status.Running = false
	status := s.status
	s.mu.Unlock()

	s.Hub.Publish(MsgFinished, status)
}

// Handler returns the API routes wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	agentsLimiter := NewRateLimiter(120, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/agents", RateLimitMiddleware(agentsLimiter, s.handleAgents))
	mux.HandleFunc("/api/v1/strategies", s.handleStrategies)
	mux.HandleFunc("/api/v1/layout", s.handleLayout)
	mux.HandleFunc("/api/v1/reports", s.handleReports)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/runs/", s.handleRunReports)
	mux.HandleFunc("/api/v1/stream", s.Hub.ServeWs)
	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine and returns the server
// so the caller can shut it down.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "archive", s.DB != nil)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// CORS_ORIGINS extends the localhost defaults with a comma-separated list.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()
	writeJSON(w, status)
}

// latest returns the current snapshot or writes 503 when none exists yet.
func (s *Server) latest(w http.ResponseWriter) *engine.PopulationSnapshot {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()
	if snap == nil {
		http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
	}
	return snap
}

// handleAgents lists the latest snapshot's agents. ?strategy=k filters,
// ?limit=n truncates.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	snap := s.latest(w)
	if snap == nil {
		return
	}

	q := r.URL.Query()
	list := snap.Agents
	if v := q.Get("strategy"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid strategy", http.StatusBadRequest)
			return
		}
		filtered := list[:0:0]
		for _, a := range list {
			if a.Strategy == k {
				filtered = append(filtered, a)
			}
		}
		list = filtered
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if n < len(list) {
			list = list[:n]
		}
	}

	writeJSON(w, map[string]any{
		"generation": snap.Generation,
		"count":      len(list),
		"agents":     list,
	})
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	snap := s.latest(w)
	if snap == nil {
		return
	}
	writeJSON(w, map[string]any{
		"generation": snap.Generation,
		"histogram":  snap.Histogram,
		"joint":      snap.Joint,
	})
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	snap := s.latest(w)
	if snap == nil {
		return
	}
	if snap.Layout == nil {
		http.Error(w, "run has no spatial layout", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{
		"generation": snap.Generation,
		"layout":     snap.Layout,
	})
}

// handleReports returns this run's reports, optionally from ?since=g on.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	since := 0
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		since = n
	}

	s.mu.RLock()
	out := make([]engine.GenerationReport, 0, len(s.reports))
	for _, rep := range s.reports {
		if rep.Generation >= since {
			out = append(out, rep)
		}
	}
	s.mu.RUnlock()

	writeJSON(w, out)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "no run archive configured", http.StatusNotFound)
		return
	}
	runs, err := s.DB.Runs()
	if err != nil {
		slog.Error("list runs", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.Run{}
	}
	writeJSON(w, runs)
}

// handleRunReports serves GET /api/v1/runs/{id}/reports from the archive.
func (s *Server) handleRunReports(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "no run archive configured", http.StatusNotFound)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	id, tail, _ := strings.Cut(rest, "/")
	if id == "" || tail != "reports" {
		http.NotFound(w, r)
		return
	}

	if _, err := s.DB.GetRun(id); err != nil {
		if errors.Is(err, persistence.ErrRunNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		slog.Error("get run", "run", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	reports, err := s.DB.Reports(id)
	if err != nil {
		slog.Error("list reports", "run", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if reports == nil {
		reports = []engine.GenerationReport{}
	}
	writeJSON(w, reports)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

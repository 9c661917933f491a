// Command gardener watches a running simulation through its HTTP API,
// classifies the health of cooperation, and posts an alert to a webhook
// whenever the classification changes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/talgya/reciprocity/internal/gardener"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Configuration from environment.
	apiURL := envOrDefault("RECIPROCITY_API_URL", "http://localhost:8080")
	webhook := os.Getenv("GARDENER_WEBHOOK")
	memoryPath := envOrDefault("GARDENER_MEMORY", "gardener_memory.json")
	intervalSec := envIntOrDefault("GARDENER_INTERVAL", 30)
	window := envIntOrDefault("GARDENER_WINDOW", 20)

	interval := time.Duration(intervalSec) * time.Second

	slog.Info("gardener starting",
		"api_url", apiURL,
		"interval", interval,
		"window", window,
		"webhook", webhook != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g := &cycle{
		observer:   gardener.NewObserver(apiURL, window),
		thresholds: gardener.DefaultThresholds(),
		memory:     gardener.LoadMemory(memoryPath),
	}
	if webhook != "" {
		g.actor = gardener.NewActor(webhook)
	}

	slog.Info("waiting for simulation API...")
	if err := waitForAPI(ctx, apiURL); err != nil {
		slog.Error("simulation API unavailable", "error", err)
		os.Exit(1)
	}

	// Run first cycle immediately.
	g.run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.run(ctx)
		case <-ctx.Done():
			slog.Info("shutting down")
			fmt.Println("Gardener stopped.")
			return
		}
	}
}

type cycle struct {
	observer   *gardener.Observer
	thresholds gardener.Thresholds
	memory     *gardener.CycleMemory
	actor      *gardener.Actor // nil logs alerts only
}

// run executes one observe, triage, decide, act cycle.
func (c *cycle) run(ctx context.Context) {
	snap, err := c.observer.Observe(ctx)
	if err != nil {
		slog.Error("observation failed", "error", err)
		return
	}
	if snap.Status.RunID == "" {
		slog.Info("no run in progress")
		return
	}

	health := gardener.Triage(snap, c.thresholds)
	slog.Info("observation complete",
		"run", snap.Status.RunID,
		"generation", health.Generation,
		"level", health.Level,
		"cooperation", fmt.Sprintf("%.3f", health.MeanCooperation),
		"dominant", health.DominantStrategy,
		"share", fmt.Sprintf("%.2f", health.DominantShare),
	)

	decision := gardener.Decide(snap.Status.RunID, health, c.memory)
	record := gardener.CycleRecord{
		RunID:           snap.Status.RunID,
		Generation:      health.Generation,
		Level:           health.Level,
		MeanCooperation: health.MeanCooperation,
		DominantShare:   health.DominantShare,
	}

	if decision.Alert {
		slog.Warn("run health changed", "run", snap.Status.RunID, "rationale", decision.Rationale)
		if c.actor != nil {
			alert := gardener.Alert{
				RunID:     snap.Status.RunID,
				Name:      snap.Status.Name,
				Health:    health,
				Rationale: decision.Rationale,
				At:        time.Now().UTC().Format(time.RFC3339),
			}
			if err := c.actor.Act(ctx, alert); err != nil {
				slog.Error("alert delivery failed", "error", err)
			} else {
				record.Alerted = true
			}
		}
	}

	c.memory.Record(record)
	c.memory.Save()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds. Gives up after 5 minutes.
func waitForAPI(ctx context.Context, apiURL string) error {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/api/v1/status", nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				slog.Info("simulation API is ready")
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("no response from %s within 5 minutes", apiURL)
		}
		slog.Info("simulation API not ready, retrying...", "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

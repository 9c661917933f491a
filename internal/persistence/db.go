// Package persistence provides SQLite-based storage for simulation runs.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/reciprocity/internal/config"
	"github.com/talgya/reciprocity/internal/engine"
	"github.com/talgya/reciprocity/internal/world"
)

var ErrRunNotFound = errors.New("run not found")

// DB wraps a SQLite connection for the run archive.
type DB struct {
	conn *sqlx.DB
}

// Run is one archived simulation run.
type Run struct {
	ID          string  `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Seed        int64   `db:"seed" json:"seed"`
	Reproduce   string  `db:"reproduce" json:"reproduce"`
	NumAgents   int     `db:"num_agents" json:"num_agents"`
	ConfigJSON  string  `db:"config_json" json:"-"`
	StartedAt   string  `db:"started_at" json:"started_at"`
	FinishedAt  *string `db:"finished_at" json:"finished_at,omitempty"`
	Generations int     `db:"generations" json:"generations"`
}

// Config decodes the configuration the run was started with.
func (r *Run) Config() (*config.Config, error) {
	var cfg config.Config
	if err := json.Unmarshal([]byte(r.ConfigJSON), &cfg); err != nil {
		return nil, fmt.Errorf("decode run config: %w", err)
	}
	return &cfg, nil
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Concurrent sweep runs share one writer.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		seed INTEGER NOT NULL,
		reproduce TEXT NOT NULL,
		num_agents INTEGER NOT NULL,
		config_json TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		generations INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS generation_reports (
		run_id TEXT NOT NULL REFERENCES runs(id),
		generation INTEGER NOT NULL,
		interactions INTEGER NOT NULL,
		cooperations INTEGER NOT NULL,
		cooperation_ratio REAL NOT NULL,
		avg_score REAL,
		avg_payoff REAL NOT NULL,
		PRIMARY KEY (run_id, generation)
	);

	CREATE TABLE IF NOT EXISTS strategy_counts (
		run_id TEXT NOT NULL REFERENCES runs(id),
		generation INTEGER NOT NULL,
		strategy INTEGER NOT NULL,
		count INTEGER NOT NULL,
		PRIMARY KEY (run_id, generation, strategy)
	);

	CREATE TABLE IF NOT EXISTS layouts (
		run_id TEXT NOT NULL REFERENCES runs(id),
		generation INTEGER NOT NULL,
		node INTEGER NOT NULL,
		grid_row INTEGER,
		grid_col INTEGER,
		agent_id INTEGER NOT NULL,
		strategy INTEGER NOT NULL,
		PRIMARY KEY (run_id, generation, node)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// CreateRun registers a new run for cfg and returns it. cfg.Seed should
// already hold the resolved seed.
func (db *DB) CreateRun(cfg *config.Config) (*Run, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}

	run := &Run{
		ID:         uuid.NewString(),
		Name:       cfg.Name,
		Seed:       cfg.Seed,
		Reproduce:  cfg.Reproduce,
		NumAgents:  cfg.NumAgents,
		ConfigJSON: string(cfgJSON),
		StartedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	_, err = db.conn.NamedExec(`INSERT INTO runs
		(id, name, seed, reproduce, num_agents, config_json, started_at, generations)
		VALUES (:id, :name, :seed, :reproduce, :num_agents, :config_json, :started_at, 0)`, run)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	slog.Debug("run created", "run", run.ID, "name", run.Name, "seed", run.Seed)
	return run, nil
}

// SaveReport writes one generation report.
func (db *DB) SaveReport(runID string, r engine.GenerationReport) error {
	return db.SaveReports(runID, []engine.GenerationReport{r})
}

// SaveReports writes generation reports in one transaction, replacing any
// earlier rows for the same generations.
func (db *DB) SaveReports(runID string, reports []engine.GenerationReport) error {
	if len(reports) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT OR REPLACE INTO generation_reports
		(run_id, generation, interactions, cooperations, cooperation_ratio, avg_score, avg_payoff)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range reports {
		_, err := stmt.Exec(runID, r.Generation, r.Interactions, r.Cooperations,
			r.CooperationRatio, r.AvgScore, r.AvgPayoff)
		if err != nil {
			return fmt.Errorf("insert report %d: %w", r.Generation, err)
		}
	}

	return tx.Commit()
}

// SaveSnapshot writes a generation's strategy histogram and, for spatial
// runs, its layout (full replace for that generation).
func (db *DB) SaveSnapshot(runID string, snap engine.PopulationSnapshot) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"strategy_counts", "layouts"} {
		_, err := tx.Exec("DELETE FROM "+table+" WHERE run_id = ? AND generation = ?", runID, snap.Generation)
		if err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, c := range snap.Histogram {
		_, err := tx.Exec(`INSERT INTO strategy_counts (run_id, generation, strategy, count)
			VALUES (?, ?, ?, ?)`, runID, snap.Generation, c.Strategy, c.Count)
		if err != nil {
			return fmt.Errorf("insert strategy count %d: %w", c.Strategy, err)
		}
	}

	for _, p := range snap.Layout {
		var row, col sql.NullInt64
		if p.Coord != nil {
			row = sql.NullInt64{Int64: int64(p.Coord.Row), Valid: true}
			col = sql.NullInt64{Int64: int64(p.Coord.Col), Valid: true}
		}
		_, err := tx.Exec(`INSERT INTO layouts (run_id, generation, node, grid_row, grid_col, agent_id, strategy)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, snap.Generation, p.Node, row, col, uint64(p.AgentID), p.Strategy)
		if err != nil {
			return fmt.Errorf("insert layout node %d: %w", p.Node, err)
		}
	}

	return tx.Commit()
}

// FinishRun marks a run complete after the given number of generations.
func (db *DB) FinishRun(runID string, generations int) error {
	res, err := db.conn.Exec(`UPDATE runs SET finished_at = ?, generations = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), generations, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun loads one run by id.
func (db *DB) GetRun(runID string) (*Run, error) {
	var run Run
	err := db.conn.Get(&run, "SELECT * FROM runs WHERE id = ?", runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Runs returns every archived run, oldest first.
func (db *DB) Runs() ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs, "SELECT * FROM runs ORDER BY started_at, id")
	return runs, err
}

// Reports returns a run's generation reports in generation order.
func (db *DB) Reports(runID string) ([]engine.GenerationReport, error) {
	var reports []engine.GenerationReport
	err := db.conn.Select(&reports, `SELECT generation, interactions, cooperations,
		cooperation_ratio, avg_score, avg_payoff
		FROM generation_reports WHERE run_id = ? ORDER BY generation`, runID)
	return reports, err
}

// StrategyCounts returns the stored histogram of one generation.
func (db *DB) StrategyCounts(runID string, generation int) ([]engine.StrategyCount, error) {
	var counts []engine.StrategyCount
	err := db.conn.Select(&counts, `SELECT strategy, count FROM strategy_counts
		WHERE run_id = ? AND generation = ? ORDER BY strategy`, runID, generation)
	return counts, err
}

// Layout returns the stored placements of one generation, ordered by node.
func (db *DB) Layout(runID string, generation int) ([]engine.Placement, error) {
	var rows []struct {
		engine.Placement
		Row sql.NullInt64 `db:"grid_row"`
		Col sql.NullInt64 `db:"grid_col"`
	}
	err := db.conn.Select(&rows, `SELECT node, grid_row, grid_col, agent_id, strategy FROM layouts
		WHERE run_id = ? AND generation = ? ORDER BY node`, runID, generation)
	if err != nil {
		return nil, err
	}

	out := make([]engine.Placement, len(rows))
	for i, r := range rows {
		out[i] = r.Placement
		if r.Row.Valid && r.Col.Valid {
			out[i].Coord = &world.GridCoord{Row: int(r.Row.Int64), Col: int(r.Col.Int64)}
		}
	}
	return out, nil
}

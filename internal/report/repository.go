package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/rs/zerolog"
)

// ErrRunNotFound is returned when no stored run matches an id.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is one row of the run history.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Tickers     []string  `json:"tickers"`
	WindowSize  int       `json:"window_size"`
	TotalValue  float64   `json:"total_value"`
}

// Repository stores completed reports
// Database: history.db (optimization_runs table)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new run repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "optimization_runs").Logger(),
	}
}

// Write implements Sink by saving the report.
func (r *Repository) Write(ctx context.Context, rep *optimization.Report) error {
	return r.Save(ctx, rep)
}

// Save inserts or replaces a report.
func (r *Repository) Save(ctx context.Context, rep *optimization.Report) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO optimization_runs
		(run_id, generated_at, tickers, window_size, total_value, report)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rep.RunID, rep.GeneratedAt.Unix(), strings.Join(rep.Tickers, ","), rep.WindowSize, rep.TotalValue, string(payload))
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rep.RunID, err)
	}

	r.log.Debug().Str("run_id", rep.RunID).Msg("Saved optimization run")
	return nil
}

// Get loads a stored report.
func (r *Repository) Get(ctx context.Context, runID string) (*optimization.Report, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, "SELECT report FROM optimization_runs WHERE run_id = ?", runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	return Decode(FormatJSON, []byte(payload))
}

// List returns the most recent runs, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, generated_at, tickers, window_size, total_value
		FROM optimization_runs
		ORDER BY generated_at DESC, run_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var s RunSummary
		var generatedAt int64
		var tickers string
		if err := rows.Scan(&s.RunID, &generatedAt, &tickers, &s.WindowSize, &s.TotalValue); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.GeneratedAt = time.Unix(generatedAt, 0).UTC()
		s.Tickers = strings.Split(tickers, ",")
		runs = append(runs, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"convanalyzer/internal/storage"
)

// Run is the bookkeeping row written after every analyze invocation.
type Run struct {
	RunID       uuid.UUID `json:"run_id"`
	Model       string    `json:"model"`
	InputPath   string    `json:"input_path"`
	OutputPath  string    `json:"output_path"`
	Selection   string    `json:"selection"`
	Processed   int       `json:"processed"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Interrupted bool      `json:"interrupted"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

type Service struct {
	db     *sql.DB
	driver string
}

func NewService(db *sql.DB, dbType string) (*Service, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	driver, err := storage.NormalizeDriver(dbType)
	if err != nil {
		return nil, err
	}
	return &Service{db: db, driver: driver}, nil
}

func (s *Service) Record(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, storage.Rebind(s.driver,
		`INSERT INTO analysis_runs (run_id, model, input_path, output_path, selection, processed, succeeded, failed, interrupted, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.RunID.String(), r.Model, r.InputPath, r.OutputPath, r.Selection,
		r.Processed, r.Succeeded, r.Failed, r.Interrupted,
		r.StartedAt.UTC(), r.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// List returns the most recent runs first.
func (s *Service) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, storage.Rebind(s.driver,
		`SELECT run_id, model, input_path, output_path, selection, processed, succeeded, failed, interrupted, started_at, finished_at
		FROM analysis_runs ORDER BY started_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := make([]Run, 0)
	for rows.Next() {
		var (
			r  Run
			id string
		)
		if err := rows.Scan(&id, &r.Model, &r.InputPath, &r.OutputPath, &r.Selection,
			&r.Processed, &r.Succeeded, &r.Failed, &r.Interrupted, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.RunID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse run id %q: %w", id, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

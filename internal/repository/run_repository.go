package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jengzang/taxi-etl-go/internal/models"
)

// RunRepository handles database operations for pipeline_runs
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Record stores the outcome of one stage and sets run.ID
func (r *RunRepository) Record(ctx context.Context, run *models.StageRun) error {
	query := `
		INSERT INTO pipeline_runs (
			run_id, stage, status, rows_in, rows_out, rows_dropped,
			message, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		run.RunID,
		run.Stage,
		run.Status,
		run.RowsIn,
		run.RowsOut,
		run.RowsDropped,
		run.Message,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record stage run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// ListByRun returns the stages of one run in execution order
func (r *RunRepository) ListByRun(ctx context.Context, runID string) ([]models.StageRun, error) {
	return r.list(ctx, `
		SELECT id, run_id, stage, status, rows_in, rows_out, rows_dropped,
			   message, started_at, finished_at
		FROM pipeline_runs
		WHERE run_id = ?
		ORDER BY id
	`, runID)
}

// ListRecent returns the latest stage runs across all runs, newest first
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]models.StageRun, error) {
	return r.list(ctx, `
		SELECT id, run_id, stage, status, rows_in, rows_out, rows_dropped,
			   message, started_at, finished_at
		FROM pipeline_runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
}

func (r *RunRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.StageRun, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage runs: %w", err)
	}
	defer rows.Close()

	var runs []models.StageRun
	for rows.Next() {
		var (
			run               models.StageRun
			started, finished string
		)
		err := rows.Scan(&run.ID, &run.RunID, &run.Stage, &run.Status,
			&run.RowsIn, &run.RowsOut, &run.RowsDropped, &run.Message, &started, &finished)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage run: %w", err)
		}
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("stage run %d: %w", run.ID, err)
		}
		if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("stage run %d: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

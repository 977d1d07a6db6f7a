package models

import "time"

// StageRun records the outcome of one stage within one pipeline run
type StageRun struct {
	ID    int64  `json:"id" db:"id"`
	RunID string `json:"run_id" db:"run_id"` // UUID shared by all stages of a run

	Stage  string `json:"stage" db:"stage"`
	Status string `json:"status" db:"status"` // pending, running, completed, degraded, failed, skipped

	// Row accounting
	RowsIn      int `json:"rows_in" db:"rows_in"`
	RowsOut     int `json:"rows_out" db:"rows_out"`
	RowsDropped int `json:"rows_dropped" db:"rows_dropped"`

	Message    string    `json:"message,omitempty" db:"message"`
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	FinishedAt time.Time `json:"finished_at" db:"finished_at"`
}

// Duration returns how long the stage ran
func (r StageRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Stage status constants
const (
	StageStatusPending   = "pending"
	StageStatusRunning   = "running"
	StageStatusCompleted = "completed"
	StageStatusDegraded  = "degraded"
	StageStatusFailed    = "failed"
	StageStatusSkipped   = "skipped"
)

// Stage names
const (
	StageIngest    = "ingest"
	StageTransform = "transform"
	StageLoad      = "load"
	StageReport    = "report"
	StagePublish   = "publish"
)

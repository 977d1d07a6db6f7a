// Package service holds the logic behind the HTTP trigger API.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/jengzang/taxi-etl-go/internal/models"
	"github.com/jengzang/taxi-etl-go/internal/pipeline"
	"github.com/jengzang/taxi-etl-go/internal/repository"
)

var (
	// ErrRunInProgress means another run holds the pipeline
	ErrRunInProgress = errors.New("pipeline run already in progress")

	// ErrRunNotFound means no stage of the run was recorded
	ErrRunNotFound = errors.New("run not found")
)

// RunStatus is the recorded progress of one run
type RunStatus struct {
	RunID  string            `json:"run_id"`
	Active bool              `json:"active"`
	Status string            `json:"status"`
	Stages []models.StageRun `json:"stages"`
}

// SummaryView is what the warehouse currently holds
type SummaryView struct {
	Trips       int                         `json:"trips"`
	DailyVolume []models.DailyVolume        `json:"daily_volume"`
	Rows        []models.DailyVendorSummary `json:"rows,omitempty"`
}

// PipelineService starts runs in the background, one at a time, and reads
// their results back from the store
type PipelineService struct {
	ctx       context.Context
	runner    *pipeline.Runner
	db        *sql.DB
	runs      *repository.RunRepository
	summaries *repository.SummaryRepository
	trips     *repository.TripRepository
	logger    log.FieldLogger

	mu     sync.Mutex
	active string
	wg     sync.WaitGroup

	// at most one health ping against the store at a time
	health singleflight.Group
}

// NewPipelineService creates the service. Background runs inherit ctx, so
// cancelling it stops them between stages.
func NewPipelineService(ctx context.Context, runner *pipeline.Runner, db *sql.DB, logger log.FieldLogger) *PipelineService {
	return &PipelineService{
		ctx:       ctx,
		runner:    runner,
		db:        db,
		runs:      repository.NewRunRepository(db),
		summaries: repository.NewSummaryRepository(db),
		trips:     repository.NewTripRepository(db),
		logger:    logger.WithField("component", "service"),
	}
}

// Stages lists the stages of a full run in order
func (s *PipelineService) Stages() []string {
	return s.runner.Stages()
}

// Active returns the run currently in progress
func (s *PipelineService) Active() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.active != ""
}

// Start launches the named stages, or every stage when names is empty, and
// returns the run ID without waiting for the run to finish
func (s *PipelineService) Start(names ...string) (string, error) {
	if len(names) == 0 {
		names = s.runner.Stages()
	}
	if err := s.checkStages(names); err != nil {
		return "", err
	}

	runID := s.runner.NewRunID()
	s.mu.Lock()
	if s.active != "" {
		s.mu.Unlock()
		return "", ErrRunInProgress
	}
	s.active = runID
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release()

		logger := s.logger.WithField("run_id", runID)
		rep, err := s.runner.RunNamed(s.ctx, runID, names...)
		if err != nil {
			logger.WithError(err).Warn("Triggered run failed")
			return
		}
		logger.WithField("status", rep.Status).Info("Triggered run finished")
	}()

	return runID, nil
}

// Wait blocks until every background run has returned
func (s *PipelineService) Wait() {
	s.wg.Wait()
}

func (s *PipelineService) release() {
	s.mu.Lock()
	s.active = ""
	s.mu.Unlock()
}

func (s *PipelineService) checkStages(names []string) error {
	known := make(map[string]bool)
	for _, name := range s.runner.Stages() {
		known[name] = true
	}
	for _, name := range names {
		if !known[name] {
			return fmt.Errorf("%w: unknown stage %q", models.ErrConfiguration, name)
		}
	}
	return nil
}

// GetRun returns the stages recorded so far for runID
func (s *PipelineService) GetRun(ctx context.Context, runID string) (*RunStatus, error) {
	stages, err := s.runs.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	active, _ := s.Active()
	status := &RunStatus{RunID: runID, Active: active == runID, Stages: stages}
	if len(stages) == 0 && !status.Active {
		return nil, ErrRunNotFound
	}

	status.Status = runStatus(status)
	return status, nil
}

func runStatus(run *RunStatus) string {
	if run.Active {
		return models.StageStatusRunning
	}
	status := models.StageStatusCompleted
	for _, stage := range run.Stages {
		switch stage.Status {
		case models.StageStatusFailed:
			return models.StageStatusFailed
		case models.StageStatusDegraded:
			status = models.StageStatusDegraded
		}
	}
	return status
}

// RecentRuns lists the latest stage outcomes across runs, newest first
func (s *PipelineService) RecentRuns(ctx context.Context, limit int) ([]models.StageRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 20
	}
	return s.runs.ListRecent(ctx, limit)
}

// Trips returns up to limit loaded trips in pickup order
func (s *PipelineService) Trips(ctx context.Context, limit int) ([]models.CleanedTrip, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	return s.trips.List(ctx, limit)
}

// Summary reads the loaded trip count and daily volume, plus every
// summary row when withRows is set
func (s *PipelineService) Summary(ctx context.Context, withRows bool) (*SummaryView, error) {
	trips, err := s.trips.Count(ctx)
	if err != nil {
		return nil, err
	}
	volume, err := s.summaries.DailyVolume(ctx)
	if err != nil {
		return nil, err
	}

	view := &SummaryView{Trips: trips, DailyVolume: volume}
	if withRows {
		if view.Rows, err = s.summaries.List(ctx); err != nil {
			return nil, err
		}
	}
	return view, nil
}

// Healthy pings the store
func (s *PipelineService) Healthy(ctx context.Context) bool {
	const key = "db-ping"
	v, _, _ := s.health.Do(key, func() (interface{}, error) {
		defer s.health.Forget(key)
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.WithError(err).Debug("Database ping failed")
			return false, nil
		}
		return true, nil
	})
	return v.(bool)
}

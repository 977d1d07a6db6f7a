package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/jengzang/taxi-etl-go/internal/metrics"
	"github.com/jengzang/taxi-etl-go/internal/models"
	"github.com/jengzang/taxi-etl-go/internal/repository"
)

// Report is the outcome of one run: every stage that was attempted, in order
type Report struct {
	RunID  string            `json:"run_id"`
	Status string            `json:"status"` // completed, degraded or failed
	Stages []models.StageRun `json:"stages"`
}

// Runner executes registered stages and records each result
type Runner struct {
	registry *Registry
	env      Env
	runs     *repository.RunRepository
	logger   log.FieldLogger
	newRunID func() string
}

// NewRunner creates a runner. When env.DB is set every stage outcome is
// stored in pipeline_runs.
func NewRunner(registry *Registry, env Env) *Runner {
	r := &Runner{
		registry: registry,
		env:      env,
		logger:   env.Logger,
		newRunID: uuid.NewString,
	}
	if env.DB != nil {
		r.runs = repository.NewRunRepository(env.DB)
	}
	return r
}

// Stages returns the names RunAll executes, in order
func (r *Runner) Stages() []string {
	return r.registry.Names()
}

// RunAll executes every stage in order. A fatal stage failure stops the run
// and is returned; a degraded stage is logged and the run continues.
func (r *Runner) RunAll(ctx context.Context) (*Report, error) {
	return r.RunNamed(ctx, r.newRunID(), r.registry.Names()...)
}

// RunStage executes a single stage by name
func (r *Runner) RunStage(ctx context.Context, name string) (*Report, error) {
	if _, err := r.registry.Lookup(name); err != nil {
		return nil, err
	}
	return r.RunNamed(ctx, r.newRunID(), name)
}

// NewRunID returns a fresh identifier for RunNamed
func (r *Runner) NewRunID() string {
	return r.newRunID()
}

// RunNamed executes the named stages in the given order under runID, for
// callers that hand out the run ID before the run finishes
func (r *Runner) RunNamed(ctx context.Context, runID string, names ...string) (*Report, error) {
	for _, name := range names {
		if _, err := r.registry.Lookup(name); err != nil {
			return nil, err
		}
	}

	rep := &Report{RunID: runID, Status: models.StageStatusCompleted}
	logger := r.logger.WithField("run_id", rep.RunID)
	logger.WithField("stages", names).Info("Pipeline run started")

	for _, name := range names {
		run, err := r.execute(ctx, logger, rep.RunID, name)
		rep.Stages = append(rep.Stages, run)

		if err != nil {
			rep.Status = models.StageStatusFailed
			logger.WithError(err).WithField("stage", name).Error("Pipeline run failed")
			return rep, fmt.Errorf("stage %s: %w", name, err)
		}
		if run.Status == models.StageStatusDegraded {
			rep.Status = models.StageStatusDegraded
		}
	}

	logger.WithField("status", rep.Status).Info("Pipeline run finished")
	return rep, nil
}

func (r *Runner) execute(ctx context.Context, logger log.FieldLogger, runID, name string) (models.StageRun, error) {
	run := models.StageRun{
		RunID:     runID,
		Stage:     name,
		Status:    models.StageStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	stageLogger := logger.WithField("stage", name)

	res, err := r.build(ctx, name, stageLogger)
	run.FinishedAt = time.Now().UTC()

	if err != nil {
		run.Status = models.StageStatusFailed
		run.Message = err.Error()
	} else {
		run.Status = res.Status
		if run.Status == "" {
			run.Status = models.StageStatusCompleted
		}
		run.RowsIn, run.RowsOut, run.RowsDropped = res.RowsIn, res.RowsOut, res.RowsDropped
		run.Message = res.Message
	}

	fields := log.Fields{
		"status":   run.Status,
		"rows_in":  run.RowsIn,
		"rows_out": run.RowsOut,
		"dropped":  run.RowsDropped,
		"duration": run.Duration().String(),
	}
	switch run.Status {
	case models.StageStatusFailed:
		stageLogger.WithFields(fields).WithError(err).Error("Stage failed")
	case models.StageStatusDegraded:
		stageLogger.WithFields(fields).Warnf("Stage degraded: %s", run.Message)
	default:
		stageLogger.WithFields(fields).Info("Stage finished")
	}

	metrics.ObserveStage(name, run.Status, run.Duration(), err != nil)
	r.record(ctx, stageLogger, &run)
	return run, err
}

func (r *Runner) build(ctx context.Context, name string, logger log.FieldLogger) (*StageResult, error) {
	factory, err := r.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	env := r.env
	env.Logger = logger
	stage, err := factory(env)
	if err != nil {
		return nil, err
	}
	res, err := stage.Run(ctx)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &StageResult{}, nil
	}
	return res, nil
}

// record stores the stage outcome; a failure to record never fails the run
func (r *Runner) record(ctx context.Context, logger log.FieldLogger, run *models.StageRun) {
	if r.runs == nil {
		return
	}
	// a cancelled run is still recorded
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := r.runs.Record(ctx, run); err != nil {
		logger.WithError(err).Warn("Could not record stage run")
	}
}

// ExitCode maps a run error to a process exit status
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, models.ErrConfiguration):
		return 2
	case errors.Is(err, models.ErrLoadFailure):
		return 3
	default:
		return 1
	}
}

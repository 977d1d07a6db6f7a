package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/taxi-etl-go/internal/config"
	"github.com/jengzang/taxi-etl-go/internal/database"
	"github.com/jengzang/taxi-etl-go/internal/models"
	"github.com/jengzang/taxi-etl-go/internal/pipeline"
	"github.com/jengzang/taxi-etl-go/internal/repository"
	"github.com/jengzang/taxi-etl-go/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// gateStage blocks until its gate is closed
type gateStage struct {
	name string
	gate chan struct{}
}

func (s *gateStage) Name() string { return s.name }

func (s *gateStage) Run(ctx context.Context) (*pipeline.StageResult, error) {
	select {
	case <-s.gate:
		return &pipeline.StageResult{RowsOut: 1}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type fixture struct {
	router *gin.Engine
	svc    *service.PipelineService
	db     *sql.DB
	gate   chan struct{}
}

func newFixture(t *testing.T, secret string) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "taxi.db")
	cfg.JWTSecret = secret

	db, err := database.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	logger, _ := test.NewNullLogger()
	require.NoError(t, database.Migrate(context.Background(), db, config.DriverSQLite, logger))

	gate := make(chan struct{})
	registry := pipeline.NewRegistry()
	for _, name := range []string{"first", "second"} {
		stage := &gateStage{name: name, gate: gate}
		registry.Register(name, func(pipeline.Env) (pipeline.Stage, error) { return stage, nil })
	}

	env := pipeline.Env{Config: cfg, DB: db, Logger: logger}
	svc := service.NewPipelineService(context.Background(), pipeline.NewRunner(registry, env), db, logger)
	t.Cleanup(svc.Wait)

	return &fixture{router: SetupRouter(cfg, svc, logger), svc: svc, db: db, gate: gate}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (f *fixture) do(t *testing.T, method, path string, body []byte) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func TestTriggerRunLifecycle(t *testing.T) {
	f := newFixture(t, "")

	code, env := f.do(t, http.MethodPost, "/api/v1/pipeline/run", nil)
	require.Equal(t, http.StatusAccepted, code)
	var started struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &started))
	require.NotEmpty(t, started.RunID)

	code, _ = f.do(t, http.MethodPost, "/api/v1/stages/first/run", nil)
	assert.Equal(t, http.StatusConflict, code, "one run at a time")

	_, err := f.svc.Start()
	assert.ErrorIs(t, err, service.ErrRunInProgress)

	code, env = f.do(t, http.MethodGet, "/api/v1/runs/"+started.RunID, nil)
	require.Equal(t, http.StatusOK, code)
	var run service.RunStatus
	require.NoError(t, json.Unmarshal(env.Data, &run))
	assert.True(t, run.Active)
	assert.Equal(t, models.StageStatusRunning, run.Status)

	close(f.gate)
	f.svc.Wait()

	code, env = f.do(t, http.MethodGet, "/api/v1/runs/"+started.RunID, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &run))
	assert.False(t, run.Active)
	assert.Equal(t, models.StageStatusCompleted, run.Status)
	require.Len(t, run.Stages, 2)
	assert.Equal(t, "first", run.Stages[0].Stage)
	assert.Equal(t, "second", run.Stages[1].Stage)

	code, env = f.do(t, http.MethodGet, "/api/v1/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, code)
	var recent []models.StageRun
	require.NoError(t, json.Unmarshal(env.Data, &recent))
	assert.Len(t, recent, 2)

	// the slot is free again
	code, _ = f.do(t, http.MethodPost, "/api/v1/pipeline/run", []byte(`{"stages":["second"]}`))
	assert.Equal(t, http.StatusAccepted, code)
}

func TestTriggerRejectsUnknownStage(t *testing.T) {
	f := newFixture(t, "")

	code, _ := f.do(t, http.MethodPost, "/api/v1/stages/nope/run", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/api/v1/pipeline/run", []byte(`{"stages":["first","nope"]}`))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/api/v1/pipeline/run", []byte(`{"stages":`))
	assert.Equal(t, http.StatusBadRequest, code)

	_, busy := f.svc.Active()
	assert.False(t, busy)
}

func TestReadEndpoints(t *testing.T) {
	f := newFixture(t, "")

	code, env := f.do(t, http.MethodGet, "/api/v1/stages", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"stages":["first","second"]}`, string(env.Data))

	code, _ = f.do(t, http.MethodGet, "/api/v1/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodGet, "/api/v1/runs?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = f.do(t, http.MethodGet, "/api/v1/summary?rows=true", nil)
	require.Equal(t, http.StatusOK, code)
	var view service.SummaryView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Zero(t, view.Trips)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListTrips(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	pickup := time.Date(2025, 1, 2, 7, 30, 0, 0, time.UTC)
	var trips []models.CleanedTrip
	for i := 0; i < 3; i++ {
		p := pickup.Add(time.Duration(i) * time.Hour)
		trips = append(trips, models.NewCleanedTrip(models.TripRecord{
			VendorID: "1", PickupAt: p, DropoffAt: p.Add(12 * time.Minute),
			PassengerCount: 1, TripDistance: 2, FareAmount: 9.5, PaymentType: 1,
		}))
	}
	require.NoError(t, database.Transaction(ctx, f.db, func(tx *sql.Tx) error {
		return repository.NewTripRepository(f.db).Replace(ctx, tx, trips)
	}))

	code, env := f.do(t, http.MethodGet, "/api/v1/trips?limit=2", nil)
	require.Equal(t, http.StatusOK, code)
	var got []models.CleanedTrip
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Len(t, got, 2)
	assert.True(t, pickup.Equal(got[0].PickupAt))
	assert.Equal(t, 12.0, got[1].TripDurationMinutes)

	code, _ = f.do(t, http.MethodGet, "/api/v1/trips?limit=many", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.svc.Start("first")
	require.NoError(t, err)
	close(f.gate)
	f.svc.Wait()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "taxi_etl_stage_runs_total")
}

func TestAPIRequiresTokenWhenConfigured(t *testing.T) {
	f := newFixture(t, "s3cret")

	code, _ := f.do(t, http.MethodGet, "/api/v1/stages", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = f.do(t, http.MethodPost, "/api/v1/pipeline/run", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "health stays open")
}

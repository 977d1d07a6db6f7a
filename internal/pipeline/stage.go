// Package pipeline runs the ETL stages in order and records each outcome.
package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	log "github.com/sirupsen/logrus"

	"github.com/jengzang/taxi-etl-go/internal/config"
	"github.com/jengzang/taxi-etl-go/internal/models"
)

// Stage is one independently runnable step of the pipeline
type Stage interface {
	Name() string
	Run(ctx context.Context) (*StageResult, error)
}

// StageResult is what a stage reports back. An empty Status means completed.
type StageResult struct {
	Status      string
	RowsIn      int
	RowsOut     int
	RowsDropped int
	Message     string
	Artifacts   []string
}

// Env carries what stages are built from. Stages share nothing else, so
// each can run on its own from the files the previous stage left behind.
type Env struct {
	Config config.Config
	DB     *sql.DB
	Logger log.FieldLogger

	// S3 overrides the client the publish stage would create
	S3 s3iface.S3API
}

// StageFactory builds a stage for one execution
type StageFactory func(env Env) (Stage, error)

// Registry maps stage names to factories and keeps registration order,
// which is the order RunAll executes them in
type Registry struct {
	mu        sync.RWMutex
	order     []string
	factories map[string]StageFactory
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]StageFactory)}
}

// Register adds or replaces a stage factory
func (r *Registry) Register(name string, factory StageFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; !ok {
		r.order = append(r.order, name)
	}
	r.factories[name] = factory
}

// Lookup returns the factory registered under name
func (r *Registry) Lookup(name string) (StageFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown stage %q", models.ErrConfiguration, name)
	}
	return factory, nil
}

// Names returns the registered stage names in execution order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// DefaultRegistry holds the five stages of the taxi pipeline
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(models.StageIngest, newIngestStage)
	r.Register(models.StageTransform, newTransformStage)
	r.Register(models.StageLoad, newLoadStage)
	r.Register(models.StageReport, newReportStage)
	r.Register(models.StagePublish, newPublishStage)
	return r
}

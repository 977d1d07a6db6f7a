package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jengzang/taxi-etl-go/internal/ingest"
	"github.com/jengzang/taxi-etl-go/internal/loader"
	"github.com/jengzang/taxi-etl-go/internal/metrics"
	"github.com/jengzang/taxi-etl-go/internal/models"
	"github.com/jengzang/taxi-etl-go/internal/report"
	"github.com/jengzang/taxi-etl-go/internal/storage"
	"github.com/jengzang/taxi-etl-go/internal/transform"
)

type ingestStage struct {
	in *ingest.Ingester
}

func newIngestStage(env Env) (Stage, error) {
	in, err := ingest.NewIngester(env.Config, env.Logger)
	if err != nil {
		return nil, err
	}
	return &ingestStage{in: in}, nil
}

func (s *ingestStage) Name() string { return models.StageIngest }

func (s *ingestStage) Run(ctx context.Context) (*StageResult, error) {
	res, err := s.in.Run(ctx)
	if err != nil {
		return nil, err
	}
	metrics.IngestedFrom(res.Source)

	msg := "source=" + res.Source
	if res.Reason != "" {
		msg += " reason=" + res.Reason
	}
	return &StageResult{RowsOut: res.Rows, Message: msg, Artifacts: []string{res.Path}}, nil
}

type transformStage struct {
	t *transform.Transformer
}

func newTransformStage(env Env) (Stage, error) {
	return &transformStage{t: transform.NewTransformer(env.Config, env.Logger)}, nil
}

func (s *transformStage) Name() string { return models.StageTransform }

func (s *transformStage) Run(ctx context.Context) (*StageResult, error) {
	res, err := s.t.Run(ctx)
	if err != nil {
		return nil, err
	}
	for reason, n := range res.Stats.Dropped {
		metrics.AddDropped(reason, n)
	}
	return &StageResult{
		RowsIn:      res.Stats.Total,
		RowsOut:     res.Stats.Valid,
		RowsDropped: res.Stats.DroppedTotal(),
		Message:     fmt.Sprintf("aggregator=%s groups=%d", res.Aggregator, len(res.Summaries)),
		Artifacts:   []string{res.CleanedPath, res.SummaryPath},
	}, nil
}

type loadStage struct {
	l *loader.Loader
}

func newLoadStage(env Env) (Stage, error) {
	if env.DB == nil {
		return nil, fmt.Errorf("%w: load stage needs a database", models.ErrConfiguration)
	}
	return &loadStage{l: loader.NewLoader(env.Config, env.DB, env.Logger)}, nil
}

func (s *loadStage) Name() string { return models.StageLoad }

func (s *loadStage) Run(ctx context.Context) (*StageResult, error) {
	res, err := s.l.Run(ctx)
	if err != nil {
		return nil, err
	}
	return &StageResult{
		RowsIn:  res.Trips,
		RowsOut: res.Trips,
		Message: fmt.Sprintf("trips=%d trip_summary=%d", res.Trips, res.Summaries),
	}, nil
}

type reportStage struct {
	r *report.Reporter
}

func newReportStage(env Env) (Stage, error) {
	return &reportStage{r: report.NewReporter(env.Config, env.Logger)}, nil
}

func (s *reportStage) Name() string { return models.StageReport }

func (s *reportStage) Run(ctx context.Context) (*StageResult, error) {
	res, err := s.r.Run(ctx)
	if err != nil {
		return nil, err
	}

	out := &StageResult{Status: res.Status, RowsOut: len(res.Files()), Artifacts: res.Files()}
	if failed := res.Failed(); len(failed) > 0 {
		msgs := make([]string, len(failed))
		for i, c := range failed {
			msgs[i] = c.Name + ": " + c.Err.Error()
		}
		out.Message = strings.Join(msgs, "; ")
	}
	return out, nil
}

type publishStage struct {
	env Env
}

func newPublishStage(env Env) (Stage, error) {
	return &publishStage{env: env}, nil
}

func (s *publishStage) Name() string { return models.StagePublish }

func (s *publishStage) Run(ctx context.Context) (*StageResult, error) {
	cfg := s.env.Config
	if cfg.S3Bucket == "" {
		return &StageResult{Status: models.StageStatusSkipped, Message: "no bucket configured"}, nil
	}

	var (
		p   *storage.Publisher
		err error
	)
	if s.env.S3 != nil {
		p = storage.NewPublisherWithClient(cfg, s.env.S3, s.env.Logger)
	} else if p, err = storage.NewPublisher(cfg, s.env.Logger); err != nil {
		return nil, err
	}

	files := publishableFiles(cfg.CleanedPath, cfg.SummaryPath, cfg.PlotsDir)
	uris, err := p.Publish(ctx, files)
	if err != nil {
		return nil, err
	}
	return &StageResult{RowsIn: len(files), RowsOut: len(uris), Artifacts: uris}, nil
}

// publishableFiles lists the processed files and the charts of the latest
// report that exist on disk
func publishableFiles(cleaned, summary, plotsDir string) []string {
	candidates := []string{cleaned, summary}
	for _, name := range report.ChartNames {
		candidates = append(candidates, filepath.Join(plotsDir, name))
	}

	var files []string
	for _, f := range candidates {
		if _, err := os.Stat(f); err == nil {
			files = append(files, f)
		}
	}
	return files
}

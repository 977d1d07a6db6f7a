// Package storage publishes pipeline artifacts to S3.
package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jengzang/taxi-etl-go/internal/config"
)

// maxConcurrentUploads bounds the PutObject calls in flight
const maxConcurrentUploads = 4

// RunDateFormat is the layout of the per-run key component
const RunDateFormat = "2006-01-02"

// Publisher uploads files under s3://bucket/prefix/<run-date>/
type Publisher struct {
	Bucket string
	Prefix string

	s3     s3iface.S3API
	logger log.FieldLogger
	now    func() time.Time
}

// NewPublisher configures an S3 client for cfg.S3Region
func NewPublisher(cfg config.Config, logger log.FieldLogger) (*Publisher, error) {
	awsSession, err := session.NewSession(aws.NewConfig().WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return NewPublisherWithClient(cfg, s3.New(awsSession), logger), nil
}

// NewPublisherWithClient uses an existing S3 client
func NewPublisherWithClient(cfg config.Config, client s3iface.S3API, logger log.FieldLogger) *Publisher {
	return &Publisher{
		Bucket: cfg.S3Bucket,
		Prefix: cfg.S3Prefix,
		s3:     client,
		logger: logger.WithField("stage", "publish"),
		now:    time.Now,
	}
}

// Key returns the object key a local file is stored under for runDate
func (p *Publisher) Key(runDate time.Time, file string) string {
	return path.Join(p.Prefix, runDate.UTC().Format(RunDateFormat), filepath.Base(file))
}

// Publish uploads files and returns their s3:// URIs in input order. The
// first failed upload cancels the rest and is returned.
func (p *Publisher) Publish(ctx context.Context, files []string) ([]string, error) {
	runDate := p.now()
	uris := make([]string, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentUploads)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			key := p.Key(runDate, file)
			if err := p.upload(ctx, file, key); err != nil {
				return fmt.Errorf("failed to upload %s to s3://%s/%s: %w", file, p.Bucket, key, err)
			}
			uris[i] = fmt.Sprintf("s3://%s/%s", p.Bucket, key)
			p.logger.WithField("uri", uris[i]).Debug("Uploaded artifact")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.logger.WithFields(log.Fields{"files": len(files), "bucket": p.Bucket}).Info("Published artifacts")
	return uris, nil
}

func (p *Publisher) upload(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket: aws.String(p.Bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if ct := mime.TypeByExtension(filepath.Ext(file)); ct != "" {
		input.ContentType = aws.String(ct)
	}
	_, err = p.s3.PutObjectWithContext(ctx, input)
	return err
}

package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/jengzang/taxi-etl-go/internal/config"
	"github.com/jengzang/taxi-etl-go/internal/models"
)

// TLCFeedURL is the public location of the monthly yellow taxi files
const TLCFeedURL = "https://d37ci6vzurychx.cloudfront.net/trip-data/yellow_tripdata_%s.parquet"

// FeedSource yields raw rows in dataset.RawColumns order
type FeedSource interface {
	Fetch(ctx context.Context) ([][]string, error)
}

// NewFeed returns the feed for cfg.SourceURL, or nil when none is configured.
// "tlc" resolves to the public file for cfg.Period; anything that is not an
// http(s) URL is treated as a local path. The decoder is nil when Parquet
// support is disabled, which the feed reports as a missing capability.
func NewFeed(cfg config.Config) FeedSource {
	src := strings.TrimSpace(cfg.SourceURL)
	if src == "" {
		return nil
	}
	if src == "tlc" {
		src = fmt.Sprintf(TLCFeedURL, cfg.Period)
	}

	var dec Decoder
	if !cfg.DisableParquet {
		dec = NewParquetDecoder()
	}

	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return &HTTPFeed{
			URL:      src,
			Client:   &http.Client{Timeout: cfg.HTTPTimeout},
			MaxBytes: cfg.MaxDownloadBytes,
			Decoder:  dec,
		}
	}
	return &FileFeed{Path: strings.TrimPrefix(src, "file://"), Decoder: dec}
}

// HTTPFeed downloads one archive and decodes it
type HTTPFeed struct {
	URL      string
	Client   *http.Client
	MaxBytes int64
	Decoder  Decoder
}

// Fetch downloads and decodes the archive. Every failure is reported as
// ErrSourceUnavailable.
func (f *HTTPFeed) Fetch(ctx context.Context) ([][]string, error) {
	if f.Decoder == nil {
		return nil, fmt.Errorf("%w: no decoder for %s", models.ErrSourceUnavailable, f.URL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
	}
	req.Header.Set("User-Agent", "taxi-etl/1.0")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %s", models.ErrSourceUnavailable, f.URL, resp.Status)
	}

	body := io.Reader(resp.Body)
	if f.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", models.ErrSourceUnavailable, f.URL, err)
	}
	if f.MaxBytes > 0 && int64(len(data)) > f.MaxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", models.ErrSourceUnavailable, f.URL, f.MaxBytes)
	}

	rows, err := f.Decoder.Decode(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
	}
	return rows, nil
}

// FileFeed decodes an archive already on disk
type FileFeed struct {
	Path    string
	Decoder Decoder
}

// Fetch reads and decodes the file
func (f *FileFeed) Fetch(ctx context.Context) ([][]string, error) {
	if f.Decoder == nil {
		return nil, fmt.Errorf("%w: no decoder for %s", models.ErrSourceUnavailable, f.Path)
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
	}
	rows, err := f.Decoder.Decode(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
	}
	return rows, nil
}

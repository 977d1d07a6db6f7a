package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// BindFlags registers the shared pipeline flags on fs, defaulting to the
// current values of cfg
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.RawPath, "raw-path", cfg.RawPath, "raw trip CSV written by ingest")
	fs.StringVar(&cfg.CleanedPath, "cleaned-path", cfg.CleanedPath, "cleaned trip CSV written by transform")
	fs.StringVar(&cfg.SummaryPath, "summary-path", cfg.SummaryPath, "daily summary CSV written by transform")
	fs.StringVar(&cfg.PlotsDir, "plots-dir", cfg.PlotsDir, "directory for the rendered charts")

	fs.StringVar(&cfg.SourceURL, "source-url", cfg.SourceURL, `remote feed: an http(s) URL, a local Parquet file, or "tlc" for the public feed of --period`)
	fs.StringVar(&cfg.Period, "period", cfg.Period, "month of data to ingest (YYYY-MM)")
	fs.BoolVar(&cfg.ForceSynthetic, "synthetic", cfg.ForceSynthetic, "skip the remote feed and generate synthetic trips")
	fs.BoolVar(&cfg.DisableParquet, "disable-parquet", cfg.DisableParquet, "treat Parquet decoding as unavailable")
	fs.DurationVar(&cfg.HTTPTimeout, "http-timeout", cfg.HTTPTimeout, "timeout of the remote download")
	fs.Int64Var(&cfg.MaxDownloadBytes, "max-download-bytes", cfg.MaxDownloadBytes, "size limit of the remote download")
	fs.IntVar(&cfg.Synthetic.Records, "num-records", cfg.Synthetic.Records, "number of synthetic trips to generate")
	fs.Int64Var(&cfg.Synthetic.Seed, "seed", cfg.Synthetic.Seed, "synthetic generator seed, 0 seeds from the clock")

	fs.StringVar(&cfg.MalformedPolicy, "malformed-policy", cfg.MalformedPolicy, `malformed numeric cells: "drop" the row or read as "zero"`)
	fs.StringVar(&cfg.Aggregator, "aggregator", cfg.Aggregator, `aggregation strategy: "auto", "table" or "iter"`)
	fs.IntVar(&cfg.TableThreshold, "table-threshold", cfg.TableThreshold, "row count from which auto uses the table aggregator")

	fs.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, `relational store: "sqlite" or "mysql"`)
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "sqlite file or mysql DSN")

	fs.StringVar(&cfg.S3Bucket, "s3-bucket", cfg.S3Bucket, "bucket artifacts are published to, empty skips publishing")
	fs.StringVar(&cfg.S3Region, "s3-region", cfg.S3Region, "region of the artifact bucket")
	fs.StringVar(&cfg.S3Prefix, "s3-prefix", cfg.S3Prefix, "key prefix of published artifacts")

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
}

// SetFlagsFromEnv parses all registered flags in the given flagset, and if
// they are not already set it attempts to set their values from environment
// variables named prefix_FLAG_NAME, e.g. TAXI_ETL_DB_PATH for --db-path.
func SetFlagsFromEnv(fs *pflag.FlagSet, prefix string) (err error) {
	alreadySet := make(map[string]bool)
	fs.Visit(func(f *pflag.Flag) {
		alreadySet[f.Name] = true
	})
	fs.VisitAll(func(f *pflag.Flag) {
		if alreadySet[f.Name] {
			return
		}
		key := prefix + "_" + strings.ToUpper(strings.Replace(f.Name, "-", "_", -1))
		if val := os.Getenv(key); val != "" {
			if serr := fs.Set(f.Name, val); serr != nil {
				err = fmt.Errorf("invalid value %q for %s: %v", val, key, serr)
			}
		}
	})
	return err
}

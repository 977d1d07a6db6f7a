package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// EnvPrefix is prepended to every environment override, e.g. TAXI_ETL_DB_PATH.
const EnvPrefix = "TAXI_ETL"

// Aggregator modes
const (
	AggregatorAuto  = "auto"
	AggregatorTable = "table"
	AggregatorIter  = "iter"
)

// Malformed value policies
const (
	PolicyDrop = "drop"
	PolicyZero = "zero"
)

// Database drivers
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Range is a closed numeric interval used by the synthetic generator.
type Range struct {
	Min float64
	Max float64
}

// SyntheticConfig controls the synthetic trip generator.
type SyntheticConfig struct {
	Records      int
	Seed         int64
	Distance     Range // miles
	Fare         Range // USD
	Passengers   Range
	DurationMins Range
	Vendors      []string
	PaymentTypes []int
}

// Config is passed explicitly to every stage.
type Config struct {
	DataDir     string
	RawPath     string
	CleanedPath string
	SummaryPath string
	PlotsDir    string

	// Remote feed
	SourceURL        string
	Period           string // YYYY-MM
	ForceSynthetic   bool
	DisableParquet   bool
	HTTPTimeout      time.Duration
	MaxDownloadBytes int64

	Synthetic SyntheticConfig

	// Transformation
	MalformedPolicy string
	Aggregator      string
	TableThreshold  int

	// Store
	DBDriver string
	DBPath   string // sqlite file or mysql DSN

	// Publish
	S3Bucket string
	S3Region string
	S3Prefix string

	// Trigger server
	Port      string
	JWTSecret string

	Schedule string
	LogLevel string
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	cfg := Config{
		PlotsDir:         "./reports/plots",
		Period:           "2025-01",
		HTTPTimeout:      60 * time.Second,
		MaxDownloadBytes: 512 << 20,
		Synthetic: SyntheticConfig{
			Records:      100000,
			Seed:         0,
			Distance:     Range{Min: 0.1, Max: 30},
			Fare:         Range{Min: 2.5, Max: 150},
			Passengers:   Range{Min: 1, Max: 6},
			DurationMins: Range{Min: 1, Max: 90},
			Vendors:      []string{"1", "2"},
			PaymentTypes: []int{1, 2, 3, 4, 5},
		},
		MalformedPolicy: PolicyDrop,
		Aggregator:      AggregatorAuto,
		TableThreshold:  1024,
		DBDriver:        DriverSQLite,
		DBPath:          "./database/taxi_trips.db",
		S3Prefix:        "taxi-etl",
		S3Region:        "us-east-1",
		Port:            ":8080",
		Schedule:        "0 2 * * *",
		LogLevel:        "info",
	}
	cfg.SetDataDir("./data")
	return cfg
}

// SetDataDir points the raw, cleaned and summary files under dir
func (c *Config) SetDataDir(dir string) {
	c.DataDir = dir
	c.RawPath = filepath.Join(dir, "raw", "yellow_tripdata_2025-01.csv")
	c.CleanedPath = filepath.Join(dir, "processed", "cleaned_trips.csv")
	c.SummaryPath = filepath.Join(dir, "processed", "trip_summary.csv")
}

// Load returns Default() with TAXI_ETL_* environment overrides applied.
func Load() Config {
	cfg := Default()

	if dir := lookup("DATA_DIR"); dir != "" {
		cfg.SetDataDir(dir)
	}
	setString(&cfg.RawPath, "RAW_PATH")
	setString(&cfg.CleanedPath, "CLEANED_PATH")
	setString(&cfg.SummaryPath, "SUMMARY_PATH")
	setString(&cfg.PlotsDir, "PLOTS_DIR")
	setString(&cfg.SourceURL, "SOURCE_URL")
	setString(&cfg.Period, "PERIOD")
	setBool(&cfg.ForceSynthetic, "SYNTHETIC")
	setBool(&cfg.DisableParquet, "DISABLE_PARQUET")
	setInt(&cfg.Synthetic.Records, "NUM_RECORDS")
	setString(&cfg.MalformedPolicy, "MALFORMED_POLICY")
	setString(&cfg.Aggregator, "AGGREGATOR")
	setString(&cfg.DBDriver, "DB_DRIVER")
	setString(&cfg.DBPath, "DB_PATH")
	setString(&cfg.S3Bucket, "S3_BUCKET")
	setString(&cfg.S3Region, "S3_REGION")
	setString(&cfg.S3Prefix, "S3_PREFIX")
	setString(&cfg.Port, "PORT")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.Schedule, "SCHEDULE")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	if v := lookup("HTTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTPTimeout = d
		}
	}
	if v := lookup("SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Synthetic.Seed = n
		}
	}

	return cfg
}

// PeriodStart returns the first instant of the configured month in UTC.
func (c Config) PeriodStart() (time.Time, error) {
	t, err := time.Parse("2006-01", c.Period)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid period %q, want YYYY-MM: %w", c.Period, err)
	}
	return t.UTC(), nil
}

// Validate checks the values that cannot be fixed up silently.
func (c Config) Validate() error {
	if _, err := c.PeriodStart(); err != nil {
		return err
	}
	switch c.Aggregator {
	case AggregatorAuto, AggregatorTable, AggregatorIter:
	default:
		return fmt.Errorf("unknown aggregator %q", c.Aggregator)
	}
	switch c.MalformedPolicy {
	case PolicyDrop, PolicyZero:
	default:
		return fmt.Errorf("unknown malformed value policy %q", c.MalformedPolicy)
	}
	switch c.DBDriver {
	case DriverSQLite, DriverMySQL:
	default:
		return fmt.Errorf("unsupported database driver %q", c.DBDriver)
	}
	if c.Synthetic.Records <= 0 {
		return fmt.Errorf("synthetic record count must be positive, got %d", c.Synthetic.Records)
	}
	if c.Synthetic.Distance.Min <= 0 || c.Synthetic.Distance.Max < c.Synthetic.Distance.Min {
		return fmt.Errorf("invalid synthetic distance range %v", c.Synthetic.Distance)
	}
	if c.Synthetic.Fare.Min < 0 || c.Synthetic.Fare.Max < c.Synthetic.Fare.Min {
		return fmt.Errorf("invalid synthetic fare range %v", c.Synthetic.Fare)
	}
	if c.Synthetic.Passengers.Min < 0 || c.Synthetic.Passengers.Max < c.Synthetic.Passengers.Min {
		return fmt.Errorf("invalid synthetic passenger range %v", c.Synthetic.Passengers)
	}
	if c.Synthetic.DurationMins.Min < 0 || c.Synthetic.DurationMins.Max < c.Synthetic.DurationMins.Min {
		return fmt.Errorf("invalid synthetic duration range %v", c.Synthetic.DurationMins)
	}
	if len(c.Synthetic.Vendors) == 0 || len(c.Synthetic.PaymentTypes) == 0 {
		return fmt.Errorf("synthetic vendors and payment types must not be empty")
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
		}
	}
	return nil
}

func lookup(key string) string {
	return os.Getenv(EnvPrefix + "_" + key)
}

func setString(dst *string, key string) {
	if v := lookup(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := lookup(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := lookup(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

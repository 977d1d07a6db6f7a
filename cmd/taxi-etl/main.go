package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jengzang/taxi-etl-go/internal/config"
	"github.com/jengzang/taxi-etl-go/internal/pipeline"
)

var (
	// cfg is filled from flags, then from TAXI_ETL_* variables for flags
	// left unset
	cfg = config.Load()

	logger log.FieldLogger = log.StandardLogger()
)

var rootCmd = &cobra.Command{
	Use:           "taxi-etl",
	Short:         "NYC taxi trip ETL: ingest, transform, load, report, publish",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.SetFlagsFromEnv(cmd.Flags(), config.EnvPrefix); err != nil {
			return err
		}
		return setupLogger(cfg.LogLevel)
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

func init() {
	// globally set time to UTC
	time.Local = time.UTC

	config.BindFlags(rootCmd.PersistentFlags(), &cfg)
	addCommands()
}

func setupLogger(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger = log.WithField("app", "taxi-etl")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		logger.WithError(err).Error("taxi-etl failed")
		os.Exit(pipeline.ExitCode(err))
	}
}

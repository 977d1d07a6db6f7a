package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jengzang/taxi-etl-go/internal/models"
	"github.com/jengzang/taxi-etl-go/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run every stage in order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRunner(cmd.Context(), func(ctx context.Context, r *pipeline.Runner) error {
			rep, err := r.RunAll(ctx)
			printReport(rep)
			return err
		})
	},
}

var stageDescriptions = map[string]string{
	models.StageIngest:    "fetch the remote feed or generate synthetic trips into the raw CSV",
	models.StageTransform: "validate raw trips and write the cleaned and summary CSVs",
	models.StageLoad:      "replace the trips and trip_summary tables from the processed CSVs",
	models.StageReport:    "render the PNG charts",
	models.StagePublish:   "upload processed files and charts to S3",
}

// stageCommand runs a single stage so each step can be scheduled on its own
func stageCommand(name string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: stageDescriptions[name],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRunner(cmd.Context(), func(ctx context.Context, r *pipeline.Runner) error {
				rep, err := r.RunStage(ctx, name)
				printReport(rep)
				return err
			})
		},
	}
}

var (
	scheduleCron  string
	scheduleStage string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "run the pipeline, or one stage, on a cron schedule until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg.Schedule = scheduleCron
		return withRunner(cmd.Context(), func(ctx context.Context, r *pipeline.Runner) error {
			return schedule(ctx, r)
		})
	},
}

func addCommands() {
	rootCmd.AddCommand(runCmd)
	for _, name := range pipeline.DefaultRegistry().Names() {
		rootCmd.AddCommand(stageCommand(name))
	}

	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", cfg.Schedule, "standard five-field cron expression, UTC")
	scheduleCmd.Flags().StringVar(&scheduleStage, "stage", "", "run only this stage instead of the whole pipeline")
	rootCmd.AddCommand(scheduleCmd)
}

func withRunner(ctx context.Context, fn func(context.Context, *pipeline.Runner) error) error {
	env, err := pipeline.OpenEnv(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, pipeline.NewRunner(pipeline.DefaultRegistry(), env))
}

func schedule(ctx context.Context, r *pipeline.Runner) error {
	if scheduleStage != "" {
		if _, err := pipeline.DefaultRegistry().Lookup(scheduleStage); err != nil {
			return err
		}
	}

	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()

	_, err := scheduler.Cron(cfg.Schedule).Do(func() {
		var err error
		if scheduleStage != "" {
			_, err = r.RunStage(ctx, scheduleStage)
		} else {
			_, err = r.RunAll(ctx)
		}
		if err != nil {
			logger.WithError(err).Error("Scheduled run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}

	scheduler.StartAsync()
	logger.WithFields(log.Fields{"cron": cfg.Schedule, "stage": scheduleStage}).Info("Scheduler started")

	<-ctx.Done()
	scheduler.Stop()
	logger.Info("Scheduler stopped")
	return nil
}

func printReport(rep *pipeline.Report) {
	if rep == nil {
		return
	}
	for _, s := range rep.Stages {
		fmt.Printf("%-10s %-10s in=%-8d out=%-8d dropped=%-6d %s\n",
			s.Stage, s.Status, s.RowsIn, s.RowsOut, s.RowsDropped, s.Message)
	}
	fmt.Printf("run %s: %s\n", rep.RunID, rep.Status)
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jengzang/taxi-etl-go/internal/api"
	"github.com/jengzang/taxi-etl-go/internal/config"
	"github.com/jengzang/taxi-etl-go/internal/pipeline"
	"github.com/jengzang/taxi-etl-go/internal/service"
)

var cfg = config.Load()

var rootCmd = &cobra.Command{
	Use:           "taxi-etl-server",
	Short:         "HTTP API that triggers pipeline runs and serves their results",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.SetFlagsFromEnv(cmd.Flags(), config.EnvPrefix); err != nil {
			return err
		}
		lvl, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		log.SetLevel(lvl)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})

		return serve(cmd.Context(), log.WithField("app", "taxi-etl-server"))
	},
}

func init() {
	time.Local = time.UTC

	flags := rootCmd.Flags()
	config.BindFlags(flags, &cfg)
	flags.StringVar(&cfg.Port, "port", cfg.Port, "listen address")
	flags.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "HS256 secret required on /api/v1, empty disables auth")
}

func serve(ctx context.Context, logger log.FieldLogger) error {
	env, err := pipeline.OpenEnv(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	svc := service.NewPipelineService(ctx, pipeline.NewRunner(pipeline.DefaultRegistry(), env), env.DB, logger)
	defer svc.Wait()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           api.SetupRouter(cfg, svc, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.Port).Info("Server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		log.WithError(err).Error("taxi-etl-server failed")
		os.Exit(pipeline.ExitCode(err))
	}
}

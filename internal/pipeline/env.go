package pipeline

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/jengzang/taxi-etl-go/internal/config"
	"github.com/jengzang/taxi-etl-go/internal/database"
	"github.com/jengzang/taxi-etl-go/internal/models"
)

// OpenEnv validates cfg, opens the store and applies pending migrations
func OpenEnv(ctx context.Context, cfg config.Config, logger log.FieldLogger) (Env, error) {
	if err := cfg.Validate(); err != nil {
		return Env{}, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}

	db, err := database.Open(cfg)
	if err != nil {
		return Env{}, err
	}
	if err := database.Migrate(ctx, db, cfg.DBDriver, logger); err != nil {
		db.Close()
		return Env{}, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}
	logger.WithFields(log.Fields{"driver": cfg.DBDriver, "path": cfg.DBPath}).Debug("Database ready")

	return Env{Config: cfg, DB: db, Logger: logger}, nil
}

// Close releases the store
func (e Env) Close() error {
	if e.DB == nil {
		return nil
	}
	return e.DB.Close()
}

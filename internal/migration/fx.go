package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/railzwaylabs/aquaduct/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Migrate),
)

// Migrate applies the embedded SQL migrations on postgres. The embedded SQL is postgres
// dialect, so other drivers get their schema from the gorm models instead.
func Migrate(cfg config.Config, conn *gorm.DB, log *zap.Logger) error {
	if cfg.Database.Driver != "postgres" {
		if err := conn.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		log.Info("database schema synced from models", zap.String("driver", cfg.Database.Driver))
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	bundle, err := RunMigrations(ctx, sqlDB, log)
	if err != nil {
		return err
	}
	log.Info("database migrated", zap.Uint("version", bundle.Version), zap.String("checksum", bundle.Checksum))
	return nil
}

// EnforceSchemaGate refuses to start a postgres-backed process against an unmigrated database.
func EnforceSchemaGate(lc fx.Lifecycle, cfg config.Config, conn *gorm.DB) {
	if cfg.Database.Driver != "postgres" {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return VerifySchema(ctx, sqlDB)
		},
	})
}

package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/railzwaylabs/aquaduct/internal/config"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormprom "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lc     fx.Lifecycle
	Cfg    config.Config
	Log    *zap.Logger
	Tracer trace.TracerProvider `optional:"true"`
}

func New(p Params) (*gorm.DB, error) {
	conn, err := Open(p.Cfg.Database)
	if err != nil {
		return nil, err
	}

	if p.Tracer != nil {
		if err := conn.Use(otelgorm.NewPlugin(
			otelgorm.WithTracerProvider(p.Tracer),
			otelgorm.WithoutQueryVariables(),
		)); err != nil {
			return nil, fmt.Errorf("register otelgorm: %w", err)
		}
	}

	if err := conn.Use(gormprom.New(gormprom.Config{
		DBName:          p.Cfg.AppName,
		RefreshInterval: 15,
		StartServer:     false,
	})); err != nil {
		p.Log.Warn("gorm prometheus plugin not registered", zap.Error(err))
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if p.Cfg.Database.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(p.Cfg.Database.MaxOpenConns)
	}
	if p.Cfg.Database.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(p.Cfg.Database.MaxIdleConns)
	}
	if p.Cfg.Database.ConnMaxLife > 0 {
		sqlDB.SetConnMaxLifetime(p.Cfg.Database.ConnMaxLife)
	}

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sqlDB.PingContext(ctx)
		},
		OnStop: func(context.Context) error {
			return sqlDB.Close()
		},
	})

	p.Log.Info("database configured", zap.String("driver", p.Cfg.Database.Driver))
	return conn, nil
}

// Open selects the gorm dialector from the configured driver name.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "postgres", "postgresql", "":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Warn),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return conn, nil
}

package observability

import (
	"strings"

	"github.com/railzwaylabs/aquaduct/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. Development mode switches to the console encoder.
func NewLogger(cfg config.Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(cfg.Observability.LogLevel)))); err != nil {
		level.SetLevel(zapcore.InfoLevel)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = level
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(
		zap.String("service", cfg.Observability.ServiceName),
		zap.String("version", cfg.AppVersion),
	), nil
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("observability",
	fx.Provide(
		NewLogger,
		NewRegistry,
		func(reg *prometheus.Registry) prometheus.Registerer { return reg },
		NewMetrics,
		NewTracerProvider,
	),
	fx.Invoke(func(lc fx.Lifecycle, log *zap.Logger) {
		lc.Append(fx.StopHook(func() { _ = log.Sync() }))
	}),
)

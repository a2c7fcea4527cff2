package rate

import (
	"github.com/railzwaylabs/aquaduct/internal/rate/repository"
	"github.com/railzwaylabs/aquaduct/internal/rate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(service.ProvideResolver),
)

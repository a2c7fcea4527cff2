package consumer

import (
	"github.com/railzwaylabs/aquaduct/internal/consumer/repository"
	"github.com/railzwaylabs/aquaduct/internal/consumer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("consumer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)

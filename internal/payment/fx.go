package payment

import (
	"github.com/railzwaylabs/aquaduct/internal/payment/repository"
	"github.com/railzwaylabs/aquaduct/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)

package notification

import (
	"github.com/railzwaylabs/aquaduct/internal/config"
	notificationdomain "github.com/railzwaylabs/aquaduct/internal/notification/domain"
	"github.com/railzwaylabs/aquaduct/internal/notification/provider/email"
	"github.com/railzwaylabs/aquaduct/internal/notification/provider/noop"
	"github.com/railzwaylabs/aquaduct/internal/notification/provider/sms"
	"github.com/railzwaylabs/aquaduct/internal/notification/provider/webpush"
	"github.com/railzwaylabs/aquaduct/internal/notification/repository"
	"github.com/railzwaylabs/aquaduct/internal/notification/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(
		repository.Provide,
		service.NewComposer,
		service.NewDispatcher,
		service.NewSubscriptionService,
		service.NewDeliveryLogService,
		providePushSender,
		provideSMSSender,
		provideEmailSender,
	),
)

func providePushSender(cfg config.Config, log *zap.Logger) notificationdomain.PushSender {
	if !cfg.Push.Enabled {
		log.Info("push channel disabled")
		return noop.Push{}
	}
	return webpush.NewSender(cfg.Push)
}

func provideSMSSender(cfg config.Config, log *zap.Logger) notificationdomain.SMSSender {
	if !cfg.SMS.Enabled {
		log.Info("sms channel disabled")
		return noop.SMS{}
	}
	return sms.NewSender(cfg.SMS)
}

func provideEmailSender(cfg config.Config, log *zap.Logger) notificationdomain.EmailSender {
	if !cfg.Email.Enabled {
		log.Info("email channel disabled")
		return noop.Email{}
	}
	return email.NewSender(cfg.Email)
}

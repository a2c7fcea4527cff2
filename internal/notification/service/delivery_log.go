package service

import (
	"context"
	"time"

	notificationdomain "github.com/railzwaylabs/aquaduct/internal/notification/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type DeliveryLogService struct {
	db   *gorm.DB
	log  *zap.Logger
	repo notificationdomain.Repository
}

func NewDeliveryLogService(db *gorm.DB, log *zap.Logger, repo notificationdomain.Repository) notificationdomain.DeliveryLogService {
	return &DeliveryLogService{db: db, log: log.Named("delivery_log.service"), repo: repo}
}

// ArchiveBefore flags SMS and email log rows sent before cutoff as archived.
func (s *DeliveryLogService) ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.repo.ArchiveDeliveryLogs(ctx, s.db, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	s.log.Info("delivery logs archived", zap.Time("cutoff", cutoff), zap.Int64("rows", n))
	return n, nil
}

package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/railzwaylabs/aquaduct/internal/audit/domain"
	"github.com/railzwaylabs/aquaduct/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Record appends an audit row using db (usually the caller's transaction).
// The insert runs in a nested transaction so a failed audit write rolls back to a
// savepoint instead of aborting the caller's transaction.
func (s *Service) Record(ctx context.Context, db *gorm.DB, entry auditdomain.Entry) {
	if db == nil {
		db = s.db
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.clock.Now(ctx)
	}
	if entry.Actor == "" {
		entry.Actor = auditdomain.SystemActor
	}

	contextMap := make(datatypes.JSONMap, len(entry.Context))
	for k, v := range entry.Context {
		contextMap[k] = v
	}

	row := &auditdomain.AuditLog{
		ID:          s.genID.Generate(),
		Action:      entry.Action,
		PerformedBy: entry.Actor,
		Details:     entry.Details(),
		Context:     contextMap,
		CreatedAt:   entry.Timestamp.UTC(),
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Insert(ctx, tx, row)
	})
	if err != nil {
		s.log.Warn("audit write failed",
			zap.String("action", entry.Action),
			zap.String("actor", entry.Actor),
			zap.Error(err),
		)
	}
}

func (s *Service) Archive(ctx context.Context, cutoff time.Time) (int64, error) {
	moved, err := s.repo.Archive(ctx, s.db, cutoff.UTC(), s.clock.Now(ctx))
	if err != nil {
		return 0, err
	}
	s.log.Info("audit trails archived", zap.Time("cutoff", cutoff), zap.Int64("moved", moved))
	return moved, nil
}

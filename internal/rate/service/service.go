package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/railzwaylabs/aquaduct/internal/audit/domain"
	"github.com/railzwaylabs/aquaduct/internal/clock"
	consumerdomain "github.com/railzwaylabs/aquaduct/internal/consumer/domain"
	ratedomain "github.com/railzwaylabs/aquaduct/internal/rate/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  ratedomain.Repository
	Audit auditdomain.Service
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  ratedomain.Repository
	audit auditdomain.Service
}

func NewService(p ServiceParam) ratedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("rate.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		audit: p.Audit,
	}
}

// ProvideResolver exposes the lookup half of the service to the billing pipeline.
func ProvideResolver(svc ratedomain.Service) ratedomain.Resolver {
	return svc
}

func (s *Service) Resolve(ctx context.Context, db *gorm.DB, accountType string, asOf time.Time) (*ratedomain.Rate, error) {
	if db == nil {
		db = s.db
	}
	normalized := string(consumerdomain.NormalizeAccountType(accountType))
	if normalized == "" {
		return nil, ratedomain.ErrInvalidAccountType
	}

	rate, err := s.repo.FindLatestEffective(ctx, db, normalized, asOf.UTC())
	if err != nil {
		return nil, fmt.Errorf("resolve rate: %w", err)
	}
	if rate == nil {
		s.log.Warn("no rate configured",
			zap.String("account_type", normalized),
			zap.Time("as_of", asOf),
		)
		return nil, ratedomain.ErrRateNotFound
	}
	return rate, nil
}

func (s *Service) Create(ctx context.Context, req ratedomain.CreateRequest) (*ratedomain.Rate, error) {
	accountType := string(consumerdomain.NormalizeAccountType(req.AccountType))
	if accountType == "" {
		return nil, ratedomain.ErrInvalidAccountType
	}
	if !req.RatePerUnit.IsPositive() {
		return nil, ratedomain.ErrInvalidRate
	}
	if req.PenaltyAmount.IsNegative() {
		return nil, ratedomain.ErrInvalidPenalty
	}
	if req.EffectiveDate.IsZero() {
		return nil, ratedomain.ErrInvalidEffective
	}

	now := s.clock.Now(ctx)
	rate := &ratedomain.Rate{
		ID:            s.genID.Generate(),
		AccountType:   accountType,
		RatePerUnit:   req.RatePerUnit.Round(2),
		PenaltyAmount: req.PenaltyAmount.Round(2),
		EffectiveDate: req.EffectiveDate.UTC(),
		CreatedBy:     req.Actor,
		CreatedAt:     now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, rate); err != nil {
			return err
		}
		s.audit.Record(ctx, tx, auditdomain.Entry{
			Action: "rate.create",
			Actor:  req.Actor,
			Context: map[string]string{
				"rate_id":        rate.ID.String(),
				"account_type":   accountType,
				"rate_per_unit":  rate.RatePerUnit.StringFixed(2),
				"penalty_amount": rate.PenaltyAmount.StringFixed(2),
				"effective_date": rate.EffectiveDate.Format(time.DateOnly),
			},
			Timestamp: now,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create rate: %w", err)
	}
	return rate, nil
}

func (s *Service) List(ctx context.Context, accountType string) ([]*ratedomain.Rate, error) {
	filter := ""
	if accountType != "" {
		filter = string(consumerdomain.NormalizeAccountType(accountType))
	}
	return s.repo.List(ctx, s.db, filter)
}

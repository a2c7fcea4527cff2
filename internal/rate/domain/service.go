package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateRequest struct {
	AccountType   string
	RatePerUnit   decimal.Decimal
	PenaltyAmount decimal.Decimal
	EffectiveDate time.Time
	Actor         string
}

// Resolver looks up the applicable rate. db may be a transaction handle.
type Resolver interface {
	Resolve(ctx context.Context, db *gorm.DB, accountType string, asOf time.Time) (*Rate, error)
}

type Service interface {
	Resolver
	Create(ctx context.Context, req CreateRequest) (*Rate, error)
	List(ctx context.Context, accountType string) ([]*Rate, error)
}

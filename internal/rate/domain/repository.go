package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rate *Rate) error
	// FindLatestEffective returns nil when no rate of accountType is effective at asOf.
	FindLatestEffective(ctx context.Context, db *gorm.DB, accountType string, asOf time.Time) (*Rate, error)
	List(ctx context.Context, db *gorm.DB, accountType string) ([]*Rate, error)
}

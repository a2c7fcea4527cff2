package repository

import (
	"context"
	"time"

	ratedomain "github.com/railzwaylabs/aquaduct/internal/rate/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() ratedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rate *ratedomain.Rate) error {
	return db.WithContext(ctx).Create(rate).Error
}

func (r *repo) FindLatestEffective(ctx context.Context, db *gorm.DB, accountType string, asOf time.Time) (*ratedomain.Rate, error) {
	var items []ratedomain.Rate
	err := db.WithContext(ctx).
		Where("account_type = ? AND effective_date <= ?", accountType, asOf).
		Order("effective_date DESC").
		Order("created_at DESC").
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, accountType string) ([]*ratedomain.Rate, error) {
	query := db.WithContext(ctx).Model(&ratedomain.Rate{})
	if accountType != "" {
		query = query.Where("account_type = ?", accountType)
	}
	var items []*ratedomain.Rate
	if err := query.Order("account_type ASC").Order("effective_date DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

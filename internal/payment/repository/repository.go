package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/railzwaylabs/aquaduct/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() paymentdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *paymentdomain.Payment) error {
	return db.WithContext(ctx).Create(p).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*paymentdomain.Payment, error) {
	var p paymentdomain.Payment
	err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *repo) ListByBilling(ctx context.Context, db *gorm.DB, billingID snowflake.ID) ([]paymentdomain.Payment, error) {
	var items []paymentdomain.Payment
	err := db.WithContext(ctx).Where("billing_id = ?", billingID).Order("created_at ASC").Find(&items).Error
	return items, err
}

func (r *repo) SetVerified(ctx context.Context, db *gorm.DB, id snowflake.ID, verified bool, actor *string, at time.Time) error {
	updates := map[string]any{
		"is_verified": verified,
		"verified_by": actor,
		"verified_at": nil,
		"updated_at":  at,
	}
	if verified {
		updates["verified_at"] = at
	}
	return db.WithContext(ctx).Model(&paymentdomain.Payment{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&paymentdomain.Payment{}).Error
}

func (r *repo) DeleteForBilling(ctx context.Context, db *gorm.DB, billingID snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Where("billing_id = ?", billingID).Delete(&paymentdomain.Payment{})
	return res.RowsAffected, res.Error
}

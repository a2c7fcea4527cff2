package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/railzwaylabs/aquaduct/internal/billing/domain"
	consumerdomain "github.com/railzwaylabs/aquaduct/internal/consumer/domain"
	"github.com/railzwaylabs/aquaduct/pkg/db/option"
	"github.com/railzwaylabs/aquaduct/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() billingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, b *billingdomain.Billing) error {
	return db.WithContext(ctx).Create(b).Error
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, b *billingdomain.Billing) error {
	return db.WithContext(ctx).Save(b).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*billingdomain.Billing, error) {
	var b billingdomain.Billing
	err := db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (r *repo) FindLatestForConsumer(ctx context.Context, db *gorm.DB, consumerID snowflake.ID) (*billingdomain.Billing, error) {
	var items []billingdomain.Billing
	err := db.WithContext(ctx).
		Where("consumer_id = ?", consumerID).
		Order("billing_date DESC").
		Order("id DESC").
		Limit(1).
		Find(&items).Error
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter billingdomain.ListBillingFilter, page pagination.Pagination) ([]*billingdomain.Billing, error) {
	query := db.WithContext(ctx).Model(&billingdomain.Billing{})
	if filter.ConsumerID != nil {
		query = query.Where("consumer_id = ?", *filter.ConsumerID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	query = option.ApplyPagination(page).Apply(query)

	var items []*billingdomain.Billing
	if err := query.Order("created_at desc, id desc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListBillNos(ctx context.Context, db *gorm.DB, consumerID snowflake.ID) ([]string, error) {
	var billNos []string
	err := db.WithContext(ctx).Model(&billingdomain.Billing{}).
		Where("consumer_id = ?", consumerID).
		Pluck("bill_no", &billNos).Error
	return billNos, err
}

func (r *repo) HasOpenBilling(ctx context.Context, db *gorm.DB, consumerID snowflake.ID, from, to, now time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&billingdomain.Billing{}).
		Where("consumer_id = ? AND billing_date >= ? AND billing_date < ? AND due_date >= ?", consumerID, from, to, now).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) ListEligibleConsumers(ctx context.Context, db *gorm.DB, from, to, now time.Time) ([]consumerdomain.Consumer, error) {
	open := db.WithContext(ctx).Model(&billingdomain.Billing{}).
		Select("1").
		Where("billings.consumer_id = consumers.id AND billings.billing_date >= ? AND billings.billing_date < ? AND billings.due_date >= ?", from, to, now)

	var items []consumerdomain.Consumer
	err := db.WithContext(ctx).Model(&consumerdomain.Consumer{}).
		Where("is_disconnected = ?", false).
		Where("NOT EXISTS (?)", open).
		Order("last_name ASC, first_name ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) ListUnpaidPastDue(ctx context.Context, db *gorm.DB, now time.Time, after *billingdomain.PastDueCursor, limit int) ([]*billingdomain.Billing, error) {
	query := db.WithContext(ctx).
		Where("status <> ? AND due_date < ?", billingdomain.BillingStatusPaid, now)
	if after != nil {
		query = query.Where("(due_date > ?) OR (due_date = ? AND id > ?)", after.DueDate, after.DueDate, after.ID)
	}
	query = query.Order("due_date ASC").Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var items []*billingdomain.Billing
	err := query.Find(&items).Error
	return items, err
}

func (r *repo) UpdatePenalty(ctx context.Context, db *gorm.DB, id snowflake.ID, penalty, total decimal.Decimal, at time.Time) error {
	return db.WithContext(ctx).Model(&billingdomain.Billing{}).
		Where("id = ?", id).
		Updates(map[string]any{"penalty": penalty, "total": total, "updated_at": at}).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status billingdomain.BillingStatus, at time.Time) error {
	return db.WithContext(ctx).Model(&billingdomain.Billing{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"is_paid":    status == billingdomain.BillingStatusPaid,
			"updated_at": at,
		}).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&billingdomain.Billing{}).Error
}

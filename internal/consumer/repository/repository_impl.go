package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	consumerdomain "github.com/railzwaylabs/aquaduct/internal/consumer/domain"
	"github.com/railzwaylabs/aquaduct/pkg/db/option"
	"github.com/railzwaylabs/aquaduct/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() consumerdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, c *consumerdomain.Consumer) error {
	return db.WithContext(ctx).Create(c).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*consumerdomain.Consumer, error) {
	var c consumerdomain.Consumer
	err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *repo) FindByAccountNo(ctx context.Context, db *gorm.DB, accountNo string) (*consumerdomain.Consumer, error) {
	var c consumerdomain.Consumer
	err := db.WithContext(ctx).Where("account_no = ?", accountNo).Limit(1).Find(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter consumerdomain.ListConsumerFilter, page pagination.Pagination) ([]*consumerdomain.Consumer, error) {
	query := db.WithContext(ctx).Model(&consumerdomain.Consumer{})

	if filter.AccountType != "" {
		query = query.Where("account_type = ?", filter.AccountType)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR account_no LIKE ?", like, like, like)
	}
	if filter.IsDisconnected != nil {
		query = query.Where("is_disconnected = ?", *filter.IsDisconnected)
	}

	query = option.ApplyPagination(page).Apply(query)

	var items []*consumerdomain.Consumer
	if err := query.Order("created_at desc, id desc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SetDisconnected(ctx context.Context, db *gorm.DB, id snowflake.ID, disconnected bool, at time.Time) error {
	return db.WithContext(ctx).Model(&consumerdomain.Consumer{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_disconnected": disconnected, "updated_at": at}).Error
}

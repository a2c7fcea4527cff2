package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/aquaduct/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListConsumerFilter struct {
	AccountType    AccountType
	Search         string
	IsDisconnected *bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, consumer *Consumer) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Consumer, error)
	FindByAccountNo(ctx context.Context, db *gorm.DB, accountNo string) (*Consumer, error)
	List(ctx context.Context, db *gorm.DB, filter ListConsumerFilter, page pagination.Pagination) ([]*Consumer, error)
	SetDisconnected(ctx context.Context, db *gorm.DB, id snowflake.ID, disconnected bool, at time.Time) error
}

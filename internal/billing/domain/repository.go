package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	consumerdomain "github.com/railzwaylabs/aquaduct/internal/consumer/domain"
	"github.com/railzwaylabs/aquaduct/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ListBillingFilter struct {
	ConsumerID *snowflake.ID
	Status     BillingStatus
}

// PastDueCursor is the (due_date, id) position a past-due scan resumes after.
type PastDueCursor struct {
	DueDate time.Time
	ID      snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, b *Billing) error
	Save(ctx context.Context, db *gorm.DB, b *Billing) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Billing, error)
	FindLatestForConsumer(ctx context.Context, db *gorm.DB, consumerID snowflake.ID) (*Billing, error)
	List(ctx context.Context, db *gorm.DB, filter ListBillingFilter, page pagination.Pagination) ([]*Billing, error)
	ListBillNos(ctx context.Context, db *gorm.DB, consumerID snowflake.ID) ([]string, error)
	// HasOpenBilling reports a billing dated in [from, to) whose due date is not before now.
	HasOpenBilling(ctx context.Context, db *gorm.DB, consumerID snowflake.ID, from, to, now time.Time) (bool, error)
	ListEligibleConsumers(ctx context.Context, db *gorm.DB, from, to, now time.Time) ([]consumerdomain.Consumer, error)
	// ListUnpaidPastDue pages unpaid past-due billings ordered by (due_date, id), starting after the cursor when set.
	ListUnpaidPastDue(ctx context.Context, db *gorm.DB, now time.Time, after *PastDueCursor, limit int) ([]*Billing, error)
	UpdatePenalty(ctx context.Context, db *gorm.DB, id snowflake.ID, penalty, total decimal.Decimal, at time.Time) error
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status BillingStatus, at time.Time) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}

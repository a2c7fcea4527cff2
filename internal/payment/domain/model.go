package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidID          = errors.New("invalid_id")
	ErrPaymentNotFound    = errors.New("payment_not_found")
	ErrInvalidAmount      = errors.New("invalid_amount_paid")
	ErrInvalidMethod      = errors.New("invalid_payment_method")
	ErrBillingAlreadyPaid = errors.New("billing_already_paid")
)

type Method string

const (
	MethodCash         Method = "cash"
	MethodBankTransfer Method = "bank_transfer"
	MethodEWallet      Method = "e_wallet"
	MethodCheck        Method = "check"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodEWallet, MethodCheck:
		return true
	}
	return false
}

type Payment struct {
	ID            snowflake.ID    `json:"id" gorm:"primaryKey"`
	BillingID     snowflake.ID    `json:"billing_id" gorm:"not null;index"`
	ConsumerID    snowflake.ID    `json:"consumer_id" gorm:"not null;index"`
	AmountPaid    decimal.Decimal `json:"amount_paid" gorm:"type:numeric(12,2);not null"`
	Method        Method          `json:"method" gorm:"type:text;not null"`
	TransactionID string          `json:"transaction_id" gorm:"type:text"`
	ReceiptPath   string          `json:"receipt_path" gorm:"type:text"`
	IsVerified    bool            `json:"is_verified" gorm:"not null;default:false"`
	VerifiedBy    *string         `json:"verified_by,omitempty" gorm:"type:text"`
	VerifiedAt    *time.Time      `json:"verified_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time       `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, p *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	ListByBilling(ctx context.Context, db *gorm.DB, billingID snowflake.ID) ([]Payment, error)
	SetVerified(ctx context.Context, db *gorm.DB, id snowflake.ID, verified bool, actor *string, at time.Time) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	DeleteForBilling(ctx context.Context, db *gorm.DB, billingID snowflake.ID) (int64, error)
}

type SubmitRequest struct {
	BillingID     string
	AmountPaid    decimal.Decimal
	Method        string
	TransactionID string
	ReceiptPath   string
	Actor         string
}

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*Payment, error)
	Verify(ctx context.Context, id, actor string) (*Payment, error)
	Unverify(ctx context.Context, id, actor string) (*Payment, error)
	Delete(ctx context.Context, id, actor string) error
	ListByBilling(ctx context.Context, billingID string) ([]Payment, error)
}

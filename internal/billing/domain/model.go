package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidID             = errors.New("invalid_id")
	ErrBillingNotFound       = errors.New("billing_not_found")
	ErrNegativeUsage         = errors.New("present reading must be >= previous reading")
	ErrInvalidReading        = errors.New("invalid_meter_reading")
	ErrInvalidAdditionalFees = errors.New("invalid_additional_fees")
	ErrInvalidBillingDate    = errors.New("invalid_billing_date")
	ErrConsumerNotEligible   = errors.New("consumer_not_eligible")
	ErrConsumerDisconnected  = errors.New("consumer_disconnected")
	ErrConsumerBusy          = errors.New("consumer_busy")
	ErrDuplicateBill         = errors.New("duplicate_bill_no")
	ErrBillingNotOverdue     = errors.New("billing_not_overdue")
	ErrNotifyThrottled       = errors.New("notify_throttled")
)

type BillingStatus string

const (
	BillingStatusUnpaid  BillingStatus = "Unpaid"
	BillingStatusPending BillingStatus = "Pending"
	BillingStatusPaid    BillingStatus = "Paid"
)

// Billing is one meter-reading invoice. Total is always AmountDue + Penalty + AdditionalFees.
type Billing struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	BillNo          string          `json:"bill_no" gorm:"type:text;not null;uniqueIndex:ux_billings_consumer_bill_no,priority:2"`
	ConsumerID      snowflake.ID    `json:"consumer_id" gorm:"not null;uniqueIndex:ux_billings_consumer_bill_no,priority:1"`
	BillingDate     time.Time       `json:"billing_date" gorm:"not null;index"`
	DueDate         time.Time       `json:"due_date" gorm:"not null"`
	PreviousReading decimal.Decimal `json:"previous_reading" gorm:"type:numeric(12,2);not null"`
	PresentReading  decimal.Decimal `json:"present_reading" gorm:"type:numeric(12,2);not null"`
	Usage           decimal.Decimal `json:"usage" gorm:"type:numeric(12,2);not null"`
	ChargeableUsage decimal.Decimal `json:"chargeable_usage" gorm:"type:numeric(12,2);not null"`
	RatePerUnit     decimal.Decimal `json:"rate_per_unit" gorm:"type:numeric(12,2);not null"`
	AmountDue       decimal.Decimal `json:"amount_due" gorm:"type:numeric(12,2);not null"`
	Penalty         decimal.Decimal `json:"penalty" gorm:"type:numeric(12,2);not null"`
	AdditionalFees  decimal.Decimal `json:"additional_fees" gorm:"type:numeric(12,2);not null"`
	Total           decimal.Decimal `json:"total" gorm:"type:numeric(12,2);not null"`
	Remark          string          `json:"remark" gorm:"type:text"`
	Status          BillingStatus   `json:"status" gorm:"type:text;not null;index"`
	IsPaid          bool            `json:"is_paid" gorm:"not null;default:false"`
	CreatedBy       string          `json:"created_by" gorm:"type:text"`
	CreatedAt       time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"not null"`
}

func (Billing) TableName() string { return "billings" }

func (b Billing) IsOverdue(now time.Time) bool {
	return now.After(b.DueDate) && b.Status != BillingStatusPaid
}

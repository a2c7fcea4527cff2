package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrRateNotFound       = errors.New("rate_not_found")
	ErrInvalidAccountType = errors.New("invalid_account_type")
	ErrInvalidRate        = errors.New("invalid_rate_per_unit")
	ErrInvalidPenalty     = errors.New("invalid_penalty_amount")
	ErrInvalidEffective   = errors.New("invalid_effective_date")
)

// Rate is the per-unit tariff for an account type starting at EffectiveDate.
type Rate struct {
	ID            snowflake.ID    `json:"id" gorm:"primaryKey"`
	AccountType   string          `json:"account_type" gorm:"type:text;not null;index:idx_rates_type_effective,priority:1"`
	RatePerUnit   decimal.Decimal `json:"rate_per_unit" gorm:"type:numeric(12,2);not null"`
	PenaltyAmount decimal.Decimal `json:"penalty_amount" gorm:"type:numeric(12,2);not null"`
	EffectiveDate time.Time       `json:"effective_date" gorm:"not null;index:idx_rates_type_effective,priority:2"`
	CreatedBy     string          `json:"created_by" gorm:"type:text"`
	CreatedAt     time.Time       `json:"created_at" gorm:"not null"`
}

func (Rate) TableName() string { return "rates" }

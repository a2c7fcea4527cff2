package domain

import (
	"time"

	"github.com/railzwaylabs/aquaduct/internal/config"
	"github.com/shopspring/decimal"
)

const MinimumChargeRemark = "Minimum charge applied"

// Calculator derives every monetary field of a billing from readings and a rate.
type Calculator struct {
	MinimumUsage    decimal.Decimal
	DueDays         int
	FallbackPenalty decimal.Decimal
}

func NewCalculator(cfg config.BillingConfig) Calculator {
	c := Calculator{
		MinimumUsage:    decimal.NewFromFloat(cfg.MinimumUsage),
		DueDays:         cfg.DueDays,
		FallbackPenalty: decimal.NewFromFloat(cfg.FallbackPenalty),
	}
	if c.DueDays <= 0 {
		c.DueDays = 20
	}
	return c
}

type Input struct {
	PreviousReading decimal.Decimal
	PresentReading  decimal.Decimal
	RatePerUnit     decimal.Decimal
	RatePenalty     decimal.Decimal
	AdditionalFees  decimal.Decimal
	BillingDate     time.Time
	DueDate         time.Time
	Status          BillingStatus
	Now             time.Time
}

type Calculation struct {
	Usage           decimal.Decimal
	ChargeableUsage decimal.Decimal
	AmountDue       decimal.Decimal
	Penalty         decimal.Decimal
	AdditionalFees  decimal.Decimal
	Total           decimal.Decimal
	DueDate         time.Time
	Remark          string
}

func (c Calculator) Compute(in Input) (Calculation, error) {
	if in.PreviousReading.IsNegative() || in.PresentReading.IsNegative() {
		return Calculation{}, ErrInvalidReading
	}
	if in.AdditionalFees.IsNegative() {
		return Calculation{}, ErrInvalidAdditionalFees
	}
	if in.BillingDate.IsZero() {
		return Calculation{}, ErrInvalidBillingDate
	}

	usage := in.PresentReading.Sub(in.PreviousReading)
	if usage.IsNegative() {
		return Calculation{}, ErrNegativeUsage
	}

	out := Calculation{
		Usage:           usage.Round(2),
		ChargeableUsage: usage.Round(2),
		AdditionalFees:  in.AdditionalFees.Round(2),
		DueDate:         c.DueDateFor(in.BillingDate, in.DueDate),
	}
	if usage.LessThan(c.MinimumUsage) {
		out.ChargeableUsage = c.MinimumUsage
		out.Remark = MinimumChargeRemark
	}

	out.AmountDue = in.RatePerUnit.Mul(out.ChargeableUsage).Round(2)
	out.Penalty = c.Penalty(out.DueDate, in.Status, in.RatePenalty, in.Now)
	out.Total = Total(out.AmountDue, out.Penalty, out.AdditionalFees)
	return out, nil
}

// DueDateFor defaults to billingDate + DueDays when dueDate is unset or precedes billingDate.
func (c Calculator) DueDateFor(billingDate, dueDate time.Time) time.Time {
	if dueDate.IsZero() || dueDate.Before(billingDate) {
		return billingDate.AddDate(0, 0, c.DueDays)
	}
	return dueDate
}

func (c Calculator) Penalty(dueDate time.Time, status BillingStatus, ratePenalty decimal.Decimal, now time.Time) decimal.Decimal {
	if status == BillingStatusPaid || !now.After(dueDate) {
		return decimal.Zero
	}
	if ratePenalty.IsPositive() {
		return ratePenalty.Round(2)
	}
	return c.FallbackPenalty.Round(2)
}

// Refresh recomputes the time-varying penalty of b and reports whether penalty or total changed.
func (c Calculator) Refresh(b *Billing, ratePenalty decimal.Decimal, now time.Time) bool {
	penalty := c.Penalty(b.DueDate, b.Status, ratePenalty, now)
	total := Total(b.AmountDue, penalty, b.AdditionalFees)
	if penalty.Equal(b.Penalty) && total.Equal(b.Total) {
		return false
	}
	b.Penalty = penalty
	b.Total = total
	return true
}

func Total(amountDue, penalty, additionalFees decimal.Decimal) decimal.Decimal {
	return amountDue.Add(penalty).Add(additionalFees).Round(2)
}

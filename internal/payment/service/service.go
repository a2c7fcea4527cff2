package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/railzwaylabs/aquaduct/internal/audit/domain"
	billingdomain "github.com/railzwaylabs/aquaduct/internal/billing/domain"
	"github.com/railzwaylabs/aquaduct/internal/clock"
	paymentdomain "github.com/railzwaylabs/aquaduct/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     paymentdomain.Repository
	Billings billingdomain.Repository
	Audit    auditdomain.Service
}

// Service records payments and flips the status of the paid billing. Amounts are never recomputed here.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     paymentdomain.Repository
	billings billingdomain.Repository
	audit    auditdomain.Service
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		billings: p.Billings,
		audit:    p.Audit,
	}
}

func (s *Service) Submit(ctx context.Context, req paymentdomain.SubmitRequest) (*paymentdomain.Payment, error) {
	billingID, err := parseID(req.BillingID)
	if err != nil {
		return nil, paymentdomain.ErrInvalidID
	}
	if !req.AmountPaid.IsPositive() {
		return nil, paymentdomain.ErrInvalidAmount
	}
	method := paymentdomain.Method(strings.ToLower(strings.TrimSpace(req.Method)))
	if method == "" {
		method = paymentdomain.MethodCash
	}
	if !method.Valid() {
		return nil, paymentdomain.ErrInvalidMethod
	}

	now := s.clock.Now(ctx)
	var payment *paymentdomain.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		billing, err := s.billings.FindByID(ctx, tx, billingID)
		if err != nil {
			return err
		}
		if billing == nil {
			return billingdomain.ErrBillingNotFound
		}
		if billing.Status == billingdomain.BillingStatusPaid {
			return paymentdomain.ErrBillingAlreadyPaid
		}

		payment = &paymentdomain.Payment{
			ID:            s.genID.Generate(),
			BillingID:     billingID,
			ConsumerID:    billing.ConsumerID,
			AmountPaid:    req.AmountPaid.Round(2),
			Method:        method,
			TransactionID: strings.TrimSpace(req.TransactionID),
			ReceiptPath:   strings.TrimSpace(req.ReceiptPath),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.Insert(ctx, tx, payment); err != nil {
			return err
		}
		if err := s.billings.UpdateStatus(ctx, tx, billingID, billingdomain.BillingStatusPending, now); err != nil {
			return err
		}
		s.audit.Record(ctx, tx, auditdomain.Entry{
			Action: "payment.submit",
			Actor:  req.Actor,
			Context: map[string]string{
				"payment_id":  payment.ID.String(),
				"billing_id":  billingID.String(),
				"bill_no":     billing.BillNo,
				"amount_paid": payment.AmountPaid.StringFixed(2),
				"method":      string(method),
			},
			Timestamp: now,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("submit payment: %w", err)
	}
	return payment, nil
}

func (s *Service) Verify(ctx context.Context, id, actor string) (*paymentdomain.Payment, error) {
	return s.setVerified(ctx, id, actor, true)
}

func (s *Service) Unverify(ctx context.Context, id, actor string) (*paymentdomain.Payment, error) {
	return s.setVerified(ctx, id, actor, false)
}

func (s *Service) setVerified(ctx context.Context, id, actor string, verified bool) (*paymentdomain.Payment, error) {
	paymentID, err := parseID(id)
	if err != nil {
		return nil, paymentdomain.ErrInvalidID
	}

	now := s.clock.Now(ctx)
	status := billingdomain.BillingStatusPending
	action := "payment.unverify"
	if verified {
		status = billingdomain.BillingStatusPaid
		action = "payment.verify"
	}

	var payment *paymentdomain.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = s.repo.FindByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return paymentdomain.ErrPaymentNotFound
		}

		var verifiedBy *string
		if verified {
			by := actor
			verifiedBy = &by
		}
		if err := s.repo.SetVerified(ctx, tx, paymentID, verified, verifiedBy, now); err != nil {
			return err
		}
		if !verified {
			if status, err = s.settledStatus(ctx, tx, payment.BillingID); err != nil {
				return err
			}
		}
		if err := s.billings.UpdateStatus(ctx, tx, payment.BillingID, status, now); err != nil {
			return err
		}

		payment.IsVerified = verified
		payment.VerifiedBy = verifiedBy
		payment.VerifiedAt = nil
		if verified {
			at := now
			payment.VerifiedAt = &at
		}
		payment.UpdatedAt = now

		s.audit.Record(ctx, tx, auditdomain.Entry{
			Action: action,
			Actor:  actor,
			Context: map[string]string{
				"payment_id":     paymentID.String(),
				"billing_id":     payment.BillingID.String(),
				"billing_status": string(status),
			},
			Timestamp: now,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	return payment, nil
}

// Delete removes the payment. Its billing reverts to Unpaid when no other payment is left.
func (s *Service) Delete(ctx context.Context, id, actor string) error {
	paymentID, err := parseID(id)
	if err != nil {
		return paymentdomain.ErrInvalidID
	}
	now := s.clock.Now(ctx)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.repo.FindByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return paymentdomain.ErrPaymentNotFound
		}
		if err := s.repo.Delete(ctx, tx, paymentID); err != nil {
			return err
		}
		status, err := s.settledStatus(ctx, tx, payment.BillingID)
		if err != nil {
			return err
		}
		if err := s.billings.UpdateStatus(ctx, tx, payment.BillingID, status, now); err != nil {
			return err
		}
		s.audit.Record(ctx, tx, auditdomain.Entry{
			Action: "payment.delete",
			Actor:  actor,
			Context: map[string]string{
				"payment_id":     paymentID.String(),
				"billing_id":     payment.BillingID.String(),
				"billing_status": string(status),
			},
			Timestamp: now,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	return nil
}

// settledStatus derives the billing status from the payments still attached to it:
// any verified payment keeps it Paid, an unverified one leaves it Pending.
func (s *Service) settledStatus(ctx context.Context, tx *gorm.DB, billingID snowflake.ID) (billingdomain.BillingStatus, error) {
	remaining, err := s.repo.ListByBilling(ctx, tx, billingID)
	if err != nil {
		return "", err
	}
	status := billingdomain.BillingStatusUnpaid
	for _, p := range remaining {
		if p.IsVerified {
			return billingdomain.BillingStatusPaid, nil
		}
		status = billingdomain.BillingStatusPending
	}
	return status, nil
}

func (s *Service) ListByBilling(ctx context.Context, billingID string) ([]paymentdomain.Payment, error) {
	id, err := parseID(billingID)
	if err != nil {
		return nil, paymentdomain.ErrInvalidID
	}
	return s.repo.ListByBilling(ctx, s.db, id)
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}


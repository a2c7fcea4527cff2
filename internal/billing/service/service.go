package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/railzwaylabs/aquaduct/internal/audit/domain"
	billingdomain "github.com/railzwaylabs/aquaduct/internal/billing/domain"
	"github.com/railzwaylabs/aquaduct/internal/clock"
	"github.com/railzwaylabs/aquaduct/internal/config"
	consumerdomain "github.com/railzwaylabs/aquaduct/internal/consumer/domain"
	notificationdomain "github.com/railzwaylabs/aquaduct/internal/notification/domain"
	"github.com/railzwaylabs/aquaduct/internal/observability"
	paymentdomain "github.com/railzwaylabs/aquaduct/internal/payment/domain"
	ratedomain "github.com/railzwaylabs/aquaduct/internal/rate/domain"
	"github.com/railzwaylabs/aquaduct/internal/redis"
	"github.com/railzwaylabs/aquaduct/pkg/db"
	"github.com/railzwaylabs/aquaduct/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultCreateLockTTL  = 30 * time.Second
	defaultNotifyThrottle = 5 * time.Minute
	penaltyRefreshBatch   = 500
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Cfg           config.Config
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          billingdomain.Repository
	Consumers     consumerdomain.Repository
	Rates         ratedomain.Resolver
	Payments      paymentdomain.Repository
	Notifications notificationdomain.Repository
	Composer      notificationdomain.Composer
	Dispatcher    notificationdomain.Dispatcher
	Audit         auditdomain.Service
	Locker        *redis.Locker          `optional:"true"`
	Metrics       *observability.Metrics `optional:"true"`
	Tracer        trace.TracerProvider   `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	calc          billingdomain.Calculator
	repo          billingdomain.Repository
	consumers     consumerdomain.Repository
	rates         ratedomain.Resolver
	payments      paymentdomain.Repository
	notifications notificationdomain.Repository
	composer      notificationdomain.Composer
	dispatcher    notificationdomain.Dispatcher
	audit         auditdomain.Service
	locker        *redis.Locker
	metrics       *observability.Metrics
	tracer        trace.Tracer

	createLockTTL  time.Duration
	notifyThrottle time.Duration
	refreshBatch   int
}

func NewService(p Params) billingdomain.Service {
	tp := p.Tracer
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	s := &Service{
		db:             p.DB,
		log:            p.Log.Named("billing.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		calc:           billingdomain.NewCalculator(p.Cfg.Billing),
		repo:           p.Repo,
		consumers:      p.Consumers,
		rates:          p.Rates,
		payments:       p.Payments,
		notifications:  p.Notifications,
		composer:       p.Composer,
		dispatcher:     p.Dispatcher,
		audit:          p.Audit,
		locker:         p.Locker,
		metrics:        p.Metrics,
		tracer:         tp.Tracer("aquaduct/billing"),
		createLockTTL:  p.Cfg.Billing.CreateLockTTL,
		notifyThrottle: p.Cfg.Billing.NotifyThrottle,
		refreshBatch:   penaltyRefreshBatch,
	}
	if s.createLockTTL <= 0 {
		s.createLockTTL = defaultCreateLockTTL
	}
	if s.notifyThrottle <= 0 {
		s.notifyThrottle = defaultNotifyThrottle
	}
	return s
}

// Create computes and persists a billing together with its in-app notification,
// bill-notification tracking row and audit entry, then dispatches the advisory channels.
// The returned error only reflects the transactional part.
func (s *Service) Create(ctx context.Context, req billingdomain.CreateRequest) (_ *billingdomain.Billing, _ *notificationdomain.DeliveryReport, err error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "billing.create")
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.metrics.ObserveBillingCreate(result, time.Since(started))
		span.End()
	}()

	consumerID, err := parseID(req.ConsumerID)
	if err != nil {
		return nil, nil, consumerdomain.ErrInvalidID
	}
	span.SetAttributes(attribute.String("consumer_id", consumerID.String()))

	now := s.clock.Now(ctx)
	billingDate := req.BillingDate
	if billingDate.IsZero() {
		billingDate = now
	}
	billingDate = billingDate.UTC()

	release, err := s.locker.Acquire(ctx, "billing:create:"+consumerID.String(), s.createLockTTL)
	if err != nil {
		if errors.Is(err, redis.ErrLockHeld) {
			return nil, nil, billingdomain.ErrConsumerBusy
		}
		return nil, nil, fmt.Errorf("acquire billing lock: %w", err)
	}
	defer release(context.WithoutCancel(ctx))

	var (
		billing  *billingdomain.Billing
		consumer *consumerdomain.Consumer
		tracking *notificationdomain.BillNotification
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		consumer, err = s.consumers.FindByID(ctx, tx, consumerID)
		if err != nil {
			return err
		}
		if consumer == nil {
			return consumerdomain.ErrConsumerNotFound
		}
		if consumer.IsDisconnected {
			return billingdomain.ErrConsumerDisconnected
		}

		from, to := monthBounds(now)
		open, err := s.repo.HasOpenBilling(ctx, tx, consumerID, from, to, now)
		if err != nil {
			return err
		}
		if open {
			return billingdomain.ErrConsumerNotEligible
		}

		rate, err := s.rates.Resolve(ctx, tx, string(consumer.AccountType), billingDate)
		if err != nil {
			return err
		}

		previous := decimal.Zero
		if req.PreviousReading != nil {
			previous = *req.PreviousReading
		} else {
			latest, err := s.repo.FindLatestForConsumer(ctx, tx, consumerID)
			if err != nil {
				return err
			}
			if latest != nil {
				previous = latest.PresentReading
			}
		}

		calc, err := s.calc.Compute(billingdomain.Input{
			PreviousReading: previous,
			PresentReading:  req.PresentReading,
			RatePerUnit:     rate.RatePerUnit,
			RatePenalty:     rate.PenaltyAmount,
			AdditionalFees:  req.AdditionalFees,
			BillingDate:     billingDate,
			DueDate:         req.DueDate.UTC(),
			Status:          billingdomain.BillingStatusUnpaid,
			Now:             now,
		})
		if err != nil {
			return err
		}

		billNos, err := s.repo.ListBillNos(ctx, tx, consumerID)
		if err != nil {
			return err
		}

		billing = &billingdomain.Billing{
			ID:              s.genID.Generate(),
			BillNo:          billingdomain.NextBillNo(billNos),
			ConsumerID:      consumerID,
			BillingDate:     billingDate,
			PreviousReading: previous.Round(2),
			PresentReading:  req.PresentReading.Round(2),
			RatePerUnit:     rate.RatePerUnit,
			Status:          billingdomain.BillingStatusUnpaid,
			CreatedBy:       req.Actor,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		applyCalculation(billing, calc)

		if err := s.repo.Insert(ctx, tx, billing); err != nil {
			if db.IsUniqueViolation(err) {
				return billingdomain.ErrDuplicateBill
			}
			return err
		}

		tracking, err = s.writeNotificationIntent(ctx, tx, notificationdomain.KindBillCreated, billing, consumer, now)
		if err != nil {
			return err
		}

		s.audit.Record(ctx, tx, auditdomain.Entry{
			Action: "billing.create",
			Actor:  req.Actor,
			Context: map[string]string{
				"billing_id":  billing.ID.String(),
				"bill_no":     billing.BillNo,
				"consumer_id": consumerID.String(),
				"usage":       billing.Usage.StringFixed(2),
				"total":       billing.Total.StringFixed(2),
			},
			Timestamp: now,
		})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create billing: %w", err)
	}

	s.log.Info("billing created",
		zap.String("billing_id", billing.ID.String()),
		zap.String("bill_no", billing.BillNo),
		zap.String("consumer_id", consumerID.String()),
		zap.String("total", billing.Total.StringFixed(2)),
	)

	report := s.dispatcher.Dispatch(ctx, dispatchRequest(notificationdomain.KindBillCreated, billing, consumer, tracking, req.Actor))
	return billing, &report, nil
}

// Update re-resolves the rate as of the billing date and recomputes every component.
func (s *Service) Update(ctx context.Context, id string, req billingdomain.UpdateRequest) (*billingdomain.Billing, error) {
	billingID, err := parseID(id)
	if err != nil {
		return nil, billingdomain.ErrInvalidID
	}
	now := s.clock.Now(ctx)

	var billing *billingdomain.Billing
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		billing, err = s.repo.FindByID(ctx, tx, billingID)
		if err != nil {
			return err
		}
		if billing == nil {
			return billingdomain.ErrBillingNotFound
		}
		consumer, err := s.consumers.FindByID(ctx, tx, billing.ConsumerID)
		if err != nil {
			return err
		}
		if consumer == nil {
			return consumerdomain.ErrConsumerNotFound
		}

		if req.BillingDate != nil {
			billing.BillingDate = req.BillingDate.UTC()
		}
		if req.DueDate != nil {
			billing.DueDate = req.DueDate.UTC()
		}
		if req.PreviousReading != nil {
			billing.PreviousReading = req.PreviousReading.Round(2)
		}
		if req.PresentReading != nil {
			billing.PresentReading = req.PresentReading.Round(2)
		}
		if req.AdditionalFees != nil {
			billing.AdditionalFees = *req.AdditionalFees
		}

		rate, err := s.rates.Resolve(ctx, tx, string(consumer.AccountType), billing.BillingDate)
		if err != nil {
			return err
		}
		calc, err := s.calc.Compute(billingdomain.Input{
			PreviousReading: billing.PreviousReading,
			PresentReading:  billing.PresentReading,
			RatePerUnit:     rate.RatePerUnit,
			RatePenalty:     rate.PenaltyAmount,
			AdditionalFees:  billing.AdditionalFees,
			BillingDate:     billing.BillingDate,
			DueDate:         billing.DueDate,
			Status:          billing.Status,
			Now:             now,
		})
		if err != nil {
			return err
		}
		billing.RatePerUnit = rate.RatePerUnit
		billing.UpdatedAt = now
		applyCalculation(billing, calc)

		if err := s.repo.Save(ctx, tx, billing); err != nil {
			return err
		}
		s.audit.Record(ctx, tx, auditdomain.Entry{
			Action: "billing.update",
			Actor:  req.Actor,
			Context: map[string]string{
				"billing_id": billing.ID.String(),
				"bill_no":    billing.BillNo,
				"total":      billing.Total.StringFixed(2),
			},
			Timestamp: now,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update billing: %w", err)
	}
	return billing, nil
}

func (s *Service) Get(ctx context.Context, id string) (*billingdomain.Billing, error) {
	billingID, err := parseID(id)
	if err != nil {
		return nil, billingdomain.ErrInvalidID
	}
	billing, err := s.repo.FindByID(ctx, s.db, billingID)
	if err != nil {
		return nil, err
	}
	if billing == nil {
		return nil, billingdomain.ErrBillingNotFound
	}
	if _, err := s.refresh(ctx, s.db, []*billingdomain.Billing{billing}); err != nil {
		return nil, err
	}
	return billing, nil
}

// List recomputes penalties of the returned unpaid billings and persists changes.
// Concurrent readers may both write; the last one wins.
func (s *Service) List(ctx context.Context, req billingdomain.ListRequest) (billingdomain.ListResponse, error) {
	if _, err := pagination.DecodeCursor(req.PageToken); err != nil {
		return billingdomain.ListResponse{}, err
	}

	pageSize := pagination.ClampPageSize(int(req.PageSize))
	var filter billingdomain.ListBillingFilter
	if strings.TrimSpace(req.ConsumerID) != "" {
		consumerID, err := parseID(req.ConsumerID)
		if err != nil {
			return billingdomain.ListResponse{}, consumerdomain.ErrInvalidID
		}
		filter.ConsumerID = &consumerID
	}
	if status := strings.TrimSpace(req.Status); status != "" {
		filter.Status = billingdomain.BillingStatus(status)
	}

	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return billingdomain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(b *billingdomain.Billing) string {
		return pagination.TokenFor(b.ID.String(), b.CreatedAt)
	})
	if len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	if _, err := s.refresh(ctx, s.db, items); err != nil {
		return billingdomain.ListResponse{}, err
	}

	resp := billingdomain.ListResponse{Billings: items}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// Delete removes a billing with its payments and notification tracking rows.
func (s *Service) Delete(ctx context.Context, id, actor string) error {
	billingID, err := parseID(id)
	if err != nil {
		return billingdomain.ErrInvalidID
	}
	now := s.clock.Now(ctx)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		billing, err := s.repo.FindByID(ctx, tx, billingID)
		if err != nil {
			return err
		}
		if billing == nil {
			return billingdomain.ErrBillingNotFound
		}
		removed, err := s.payments.DeleteForBilling(ctx, tx, billingID)
		if err != nil {
			return err
		}
		if err := s.notifications.DeleteForBilling(ctx, tx, billingID); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, tx, billingID); err != nil {
			return err
		}
		s.audit.Record(ctx, tx, auditdomain.Entry{
			Action: "billing.delete",
			Actor:  actor,
			Context: map[string]string{
				"billing_id":       billingID.String(),
				"bill_no":          billing.BillNo,
				"consumer_id":      billing.ConsumerID.String(),
				"payments_removed": fmt.Sprintf("%d", removed),
			},
			Timestamp: now,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete billing: %w", err)
	}
	return nil
}

// Notify re-sends the overdue notice of an unpaid past-due billing.
func (s *Service) Notify(ctx context.Context, id, actor string) (*billingdomain.Billing, *notificationdomain.DeliveryReport, error) {
	billingID, err := parseID(id)
	if err != nil {
		return nil, nil, billingdomain.ErrInvalidID
	}
	now := s.clock.Now(ctx)

	current, err := s.repo.FindByID(ctx, s.db, billingID)
	if err != nil {
		return nil, nil, err
	}
	if current == nil {
		return nil, nil, billingdomain.ErrBillingNotFound
	}
	if !current.IsOverdue(now) {
		return nil, nil, billingdomain.ErrBillingNotOverdue
	}

	allowed, err := s.locker.Throttle(ctx, "billing:notify:"+billingID.String(), s.notifyThrottle)
	if err != nil {
		return nil, nil, fmt.Errorf("notify throttle: %w", err)
	}
	if !allowed {
		return nil, nil, billingdomain.ErrNotifyThrottled
	}

	var (
		billing  *billingdomain.Billing
		consumer *consumerdomain.Consumer
		tracking *notificationdomain.BillNotification
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		billing, err = s.repo.FindByID(ctx, tx, billingID)
		if err != nil {
			return err
		}
		if billing == nil {
			return billingdomain.ErrBillingNotFound
		}
		if !billing.IsOverdue(now) {
			return billingdomain.ErrBillingNotOverdue
		}
		if _, err := s.refresh(ctx, tx, []*billingdomain.Billing{billing}); err != nil {
			return err
		}

		consumer, err = s.consumers.FindByID(ctx, tx, billing.ConsumerID)
		if err != nil {
			return err
		}
		if consumer == nil {
			return consumerdomain.ErrConsumerNotFound
		}

		if _, err := s.writeNotificationIntent(ctx, tx, notificationdomain.KindBillOverdue, billing, consumer, now); err != nil {
			return err
		}
		tracking, err = s.notifications.FindBillNotification(ctx, tx, billingID)
		if err != nil {
			return err
		}

		s.audit.Record(ctx, tx, auditdomain.Entry{
			Action: "billing.notify",
			Actor:  actor,
			Context: map[string]string{
				"billing_id": billingID.String(),
				"bill_no":    billing.BillNo,
				"penalty":    billing.Penalty.StringFixed(2),
				"total":      billing.Total.StringFixed(2),
			},
			Timestamp: now,
		})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("notify billing: %w", err)
	}

	report := s.dispatcher.Dispatch(ctx, dispatchRequest(notificationdomain.KindBillOverdue, billing, consumer, tracking, actor))
	return billing, &report, nil
}

// ListEligibleConsumers returns connected consumers without an open billing this month.
func (s *Service) ListEligibleConsumers(ctx context.Context) ([]consumerdomain.Consumer, error) {
	now := s.clock.Now(ctx)
	from, to := monthBounds(now)
	return s.repo.ListEligibleConsumers(ctx, s.db, from, to, now)
}

// RefreshPenalties walks every unpaid past-due billing in (due_date, id) order,
// one batch at a time, until a batch comes back short.
func (s *Service) RefreshPenalties(ctx context.Context) (int, error) {
	now := s.clock.Now(ctx)
	var (
		after   *billingdomain.PastDueCursor
		scanned int
		changed int
	)
	for {
		items, err := s.repo.ListUnpaidPastDue(ctx, s.db, now, after, s.refreshBatch)
		if err != nil {
			return changed, err
		}
		n, err := s.refresh(ctx, s.db, items)
		changed += n
		if err != nil {
			return changed, err
		}
		scanned += len(items)
		if s.refreshBatch <= 0 || len(items) < s.refreshBatch {
			break
		}
		last := items[len(items)-1]
		after = &billingdomain.PastDueCursor{DueDate: last.DueDate, ID: last.ID}
	}
	s.log.Info("penalties refreshed", zap.Int("scanned", scanned), zap.Int("changed", changed))
	return changed, nil
}

// refresh recomputes the time-varying penalty of items in place and persists the ones that changed.
func (s *Service) refresh(ctx context.Context, tx *gorm.DB, items []*billingdomain.Billing) (int, error) {
	now := s.clock.Now(ctx)
	penalties := make(map[string]decimal.Decimal)
	changed := 0
	for _, b := range items {
		if b.Status == billingdomain.BillingStatusPaid && b.Penalty.IsZero() {
			continue
		}
		key := b.ConsumerID.String() + "|" + b.BillingDate.Format(time.DateOnly)
		ratePenalty, ok := penalties[key]
		if !ok {
			var err error
			ratePenalty, err = s.ratePenaltyFor(ctx, tx, b)
			if err != nil {
				return changed, fmt.Errorf("resolve rate penalty: %w", err)
			}
			penalties[key] = ratePenalty
		}
		if !s.calc.Refresh(b, ratePenalty, now) {
			continue
		}
		b.UpdatedAt = now
		if err := s.repo.UpdatePenalty(ctx, tx, b.ID, b.Penalty, b.Total, now); err != nil {
			return changed, fmt.Errorf("persist penalty: %w", err)
		}
		changed++
	}
	s.metrics.AddPenaltyRefresh(changed)
	return changed, nil
}

// ratePenaltyFor returns the configured penalty of the rate in force at the billing date.
// A missing consumer or rate yields zero so the calculator falls back to the default penalty.
func (s *Service) ratePenaltyFor(ctx context.Context, tx *gorm.DB, b *billingdomain.Billing) (decimal.Decimal, error) {
	consumer, err := s.consumers.FindByID(ctx, tx, b.ConsumerID)
	if err != nil {
		return decimal.Zero, err
	}
	if consumer == nil {
		return decimal.Zero, nil
	}
	rate, err := s.rates.Resolve(ctx, tx, string(consumer.AccountType), b.BillingDate)
	if errors.Is(err, ratedomain.ErrRateNotFound) || errors.Is(err, ratedomain.ErrInvalidAccountType) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return rate.PenaltyAmount, nil
}

func (s *Service) writeNotificationIntent(ctx context.Context, tx *gorm.DB, kind notificationdomain.Kind, billing *billingdomain.Billing, consumer *consumerdomain.Consumer, now time.Time) (*notificationdomain.BillNotification, error) {
	title, message, err := s.composer.InApp(dispatchRequest(kind, billing, consumer, nil, ""))
	if err != nil {
		return nil, fmt.Errorf("compose in-app notification: %w", err)
	}
	billingID := billing.ID
	if err := s.notifications.InsertNotification(ctx, tx, &notificationdomain.Notification{
		ID:         s.genID.Generate(),
		UserID:     consumer.UserID,
		ConsumerID: consumer.ID,
		BillingID:  &billingID,
		Title:      title,
		Message:    message,
		CreatedAt:  now,
	}); err != nil {
		return nil, err
	}

	if kind != notificationdomain.KindBillCreated || !consumer.HasLinkedUser() {
		return nil, nil
	}
	tracking := &notificationdomain.BillNotification{
		ID:        s.genID.Generate(),
		BillingID: billing.ID,
		UserID:    *consumer.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.notifications.InsertBillNotification(ctx, tx, tracking); err != nil {
		return nil, err
	}
	return tracking, nil
}

func applyCalculation(b *billingdomain.Billing, calc billingdomain.Calculation) {
	b.Usage = calc.Usage
	b.ChargeableUsage = calc.ChargeableUsage
	b.AmountDue = calc.AmountDue
	b.Penalty = calc.Penalty
	b.AdditionalFees = calc.AdditionalFees
	b.Total = calc.Total
	b.DueDate = calc.DueDate
	b.Remark = calc.Remark
}

func dispatchRequest(kind notificationdomain.Kind, b *billingdomain.Billing, c *consumerdomain.Consumer, tracking *notificationdomain.BillNotification, actor string) notificationdomain.DispatchRequest {
	req := notificationdomain.DispatchRequest{
		Kind:         kind,
		Actor:        actor,
		BillingID:    b.ID,
		BillNo:       b.BillNo,
		BillingDate:  b.BillingDate,
		DueDate:      b.DueDate,
		AmountDue:    b.AmountDue,
		Penalty:      b.Penalty,
		Total:        b.Total,
		ConsumerID:   c.ID,
		ConsumerName: c.FullName(),
		AccountNo:    c.AccountNo,
		Phone:        c.Phone,
		Email:        c.Email,
	}
	if c.HasLinkedUser() {
		userID := *c.UserID
		req.UserID = &userID
	}
	if tracking != nil {
		trackingID := tracking.ID
		req.BillNotificationID = &trackingID
	}
	return req
}

func monthBounds(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/railzwaylabs/aquaduct/internal/audit/domain"
	"github.com/railzwaylabs/aquaduct/internal/clock"
	"github.com/railzwaylabs/aquaduct/internal/config"
	notificationdomain "github.com/railzwaylabs/aquaduct/internal/notification/domain"
	"github.com/railzwaylabs/aquaduct/internal/observability"
	"github.com/railzwaylabs/aquaduct/internal/security/vault"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultDispatchTimeout = 30 * time.Second
	outcomePersistTimeout  = 10 * time.Second
	defaultPushConcurrency = 4
	dispatchTracerName     = "aquaduct/notification"
)

type DispatcherParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Cfg      config.Config
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     notificationdomain.Repository
	Audit    auditdomain.Service
	Vault    vault.Provider
	Composer notificationdomain.Composer
	Push     notificationdomain.PushSender
	SMS      notificationdomain.SMSSender
	Email    notificationdomain.EmailSender
	Metrics  *observability.Metrics `optional:"true"`
	Tracer   trace.TracerProvider   `optional:"true"`
}

// Dispatcher fans a committed billing out to push, SMS and email. Every channel is
// best effort: failures are logged and recorded, never returned.
type Dispatcher struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     notificationdomain.Repository
	audit    auditdomain.Service
	vault    vault.Provider
	composer notificationdomain.Composer
	push     notificationdomain.PushSender
	sms      notificationdomain.SMSSender
	email    notificationdomain.EmailSender
	metrics  *observability.Metrics
	tracer   trace.Tracer

	timeout         time.Duration
	pushConcurrency int
}

func NewDispatcher(p DispatcherParams) notificationdomain.Dispatcher {
	tp := p.Tracer
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	d := &Dispatcher{
		db:              p.DB,
		log:             p.Log.Named("notification.dispatcher"),
		genID:           p.GenID,
		clock:           p.Clock,
		repo:            p.Repo,
		audit:           p.Audit,
		vault:           p.Vault,
		composer:        p.Composer,
		push:            p.Push,
		sms:             p.SMS,
		email:           p.Email,
		metrics:         p.Metrics,
		tracer:          tp.Tracer(dispatchTracerName),
		timeout:         p.Cfg.Dispatch.Timeout,
		pushConcurrency: p.Cfg.Dispatch.PushConcurrency,
	}
	if d.timeout <= 0 {
		d.timeout = defaultDispatchTimeout
	}
	if d.pushConcurrency <= 0 {
		d.pushConcurrency = defaultPushConcurrency
	}
	return d
}

// Dispatch must only be called after the billing transaction committed. It detaches from
// the caller's cancellation so a dropped client does not abort delivery. Every channel and
// the outcome transaction get their own deadline; a hung channel only spends its own.
func (d *Dispatcher) Dispatch(ctx context.Context, req notificationdomain.DispatchRequest) notificationdomain.DeliveryReport {
	ctx = context.WithoutCancel(ctx)

	report := notificationdomain.DeliveryReport{
		DispatchID: ulid.Make().String(),
		InApp: notificationdomain.ChannelOutcome{
			Channel:   notificationdomain.ChannelInApp,
			Attempted: true,
			Delivered: true,
		},
	}

	ctx, span := d.tracer.Start(ctx, "notification.dispatch", trace.WithAttributes(
		attribute.String("dispatch_id", report.DispatchID),
		attribute.String("billing_id", req.BillingID.String()),
		attribute.String("kind", string(req.Kind)),
	))
	defer span.End()

	log := d.log.With(
		zap.String("dispatch_id", report.DispatchID),
		zap.String("billing_id", req.BillingID.String()),
		zap.String("kind", string(req.Kind)),
	)
	now := d.clock.Now(ctx)

	withBudget(ctx, d.timeout, func(ctx context.Context) {
		report.Push = d.sendPush(ctx, log, req)
	})

	var smsRow *notificationdomain.SmsLog
	withBudget(ctx, d.timeout, func(ctx context.Context) {
		report.SMS, smsRow = d.sendSMS(ctx, log, req, report.DispatchID, now)
	})

	var emailRow *notificationdomain.EmailLog
	withBudget(ctx, d.timeout, func(ctx context.Context) {
		report.Email, emailRow = d.sendEmail(ctx, log, req, report.DispatchID, now)
	})

	for _, outcome := range report.Outcomes() {
		if outcome.Attempted {
			d.metrics.ObserveDelivery(string(outcome.Channel), outcome.Delivered)
		}
	}

	// Second transaction. A failure here leaves the billing valid with its outcomes unrecorded.
	persistCtx, cancel := context.WithTimeout(ctx, outcomePersistTimeout)
	defer cancel()
	err := d.persistOutcome(persistCtx, req, report, smsRow, emailRow, now)
	if err != nil {
		span.RecordError(err)
		log.Error("persist dispatch outcome failed", zap.Error(err))
	}

	report.Messages = summarize(report)
	log.Info("notification dispatched",
		zap.Bool("push", report.Push.Delivered),
		zap.Bool("sms", report.SMS.Delivered),
		zap.Bool("email", report.Email.Delivered),
	)
	return report
}

// withBudget runs fn under its own deadline derived from parent.
func withBudget(parent context.Context, budget time.Duration, fn func(context.Context)) {
	ctx, cancel := context.WithTimeout(parent, budget)
	defer cancel()
	fn(ctx)
}

func (d *Dispatcher) persistOutcome(
	ctx context.Context,
	req notificationdomain.DispatchRequest,
	report notificationdomain.DeliveryReport,
	smsRow *notificationdomain.SmsLog,
	emailRow *notificationdomain.EmailLog,
	now time.Time,
) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if report.Push.Delivered && req.BillNotificationID != nil {
			if err := d.repo.MarkBillNotified(ctx, tx, *req.BillNotificationID, now); err != nil {
				return fmt.Errorf("mark bill notified: %w", err)
			}
		}
		if smsRow != nil {
			if err := d.repo.InsertSmsLog(ctx, tx, smsRow); err != nil {
				return fmt.Errorf("insert sms log: %w", err)
			}
		}
		if emailRow != nil {
			if err := d.repo.InsertEmailLog(ctx, tx, emailRow); err != nil {
				return fmt.Errorf("insert email log: %w", err)
			}
		}
		for _, outcome := range []notificationdomain.ChannelOutcome{report.Push, report.SMS, report.Email} {
			if !outcome.Attempted {
				continue
			}
			d.audit.Record(ctx, tx, outcomeEntry(req, report.DispatchID, outcome, now))
		}
		return nil
	})
}

func (d *Dispatcher) sendPush(ctx context.Context, log *zap.Logger, req notificationdomain.DispatchRequest) (out notificationdomain.ChannelOutcome) {
	out.Channel = notificationdomain.ChannelPush
	defer func() {
		if r := recover(); r != nil {
			d.channelPanicked(log, &out, r)
		}
	}()

	if req.UserID == nil {
		return out
	}
	subs, err := d.repo.ListSubscriptionsByUser(ctx, d.db, *req.UserID)
	if err != nil {
		out.Attempted = true
		out.Error = err.Error()
		log.Warn("load push subscriptions failed", zap.Error(err))
		return out
	}
	if len(subs) == 0 {
		return out
	}

	payload, err := d.composer.Push(req)
	if err != nil {
		out.Attempted = true
		out.Error = err.Error()
		return out
	}

	results := make([]bool, len(subs))
	var g errgroup.Group
	g.SetLimit(d.pushConcurrency)
	for i, sub := range subs {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Error("push delivery panicked", zap.String("subscription_id", sub.ID.String()), zap.Any("panic", r))
				}
			}()
			auth, err := d.vault.Decrypt(sub.AuthSecret, []byte(sub.Endpoint))
			if err != nil {
				log.Warn("decrypt push secret failed", zap.String("subscription_id", sub.ID.String()), zap.Error(err))
				return nil
			}
			target := notificationdomain.PushTarget{Endpoint: sub.Endpoint, P256dh: sub.P256dh, Auth: string(auth)}
			if err := d.push.Send(ctx, target, payload); err != nil {
				log.Warn("push delivery failed", zap.String("subscription_id", sub.ID.String()), zap.Error(err))
				return nil
			}
			results[i] = true
			return nil
		})
	}
	_ = g.Wait()

	out.Attempted = true
	out.Attempts = len(results)
	for _, ok := range results {
		if ok {
			out.Succeeded++
		}
	}
	out.Delivered = anySucceeded(results)
	if !out.Delivered {
		out.Error = fmt.Sprintf("all %d push deliveries failed", len(results))
	}
	return out
}

func (d *Dispatcher) sendSMS(ctx context.Context, log *zap.Logger, req notificationdomain.DispatchRequest, dispatchID string, now time.Time) (out notificationdomain.ChannelOutcome, row *notificationdomain.SmsLog) {
	out.Channel = notificationdomain.ChannelSMS
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		return out, nil
	}

	out.Attempted = true
	out.Attempts = 1
	billingID := req.BillingID
	row = &notificationdomain.SmsLog{
		ID:         d.genID.Generate(),
		DispatchID: dispatchID,
		BillingID:  &billingID,
		Recipient:  phone,
		SentAt:     now,
	}
	var response string
	defer func() {
		if r := recover(); r != nil {
			d.channelPanicked(log, &out, r)
		}
		if response == "" {
			response = out.Error
		}
		row.Success = out.Delivered
		row.Response = response
	}()

	message, err := d.composer.SMS(req)
	if err != nil {
		out.Error = err.Error()
		return out, row
	}
	row.Message = message

	result, err := d.sms.Send(ctx, phone, message)
	response = result.Response
	switch {
	case err != nil:
		out.Error = err.Error()
		if response == "" {
			response = err.Error()
		}
	case !result.Success:
		out.Error = firstNonEmpty(result.Response, "gateway rejected message")
	default:
		out.Delivered = true
		out.Succeeded = 1
	}
	if !out.Delivered {
		log.Warn("sms delivery failed", zap.String("recipient", phone), zap.String("reason", out.Error))
	}
	return out, row
}

func (d *Dispatcher) sendEmail(ctx context.Context, log *zap.Logger, req notificationdomain.DispatchRequest, dispatchID string, now time.Time) (out notificationdomain.ChannelOutcome, row *notificationdomain.EmailLog) {
	out.Channel = notificationdomain.ChannelEmail
	address := strings.TrimSpace(req.Email)
	if address == "" {
		return out, nil
	}

	out.Attempted = true
	out.Attempts = 1
	billingID := req.BillingID
	row = &notificationdomain.EmailLog{
		ID:         d.genID.Generate(),
		DispatchID: dispatchID,
		BillingID:  &billingID,
		Recipient:  address,
		SentAt:     now,
	}
	defer func() {
		if r := recover(); r != nil {
			d.channelPanicked(log, &out, r)
		}
		row.Success = out.Delivered
		if out.Delivered {
			row.Response = "sent"
		} else {
			row.Response = out.Error
		}
	}()

	subject, body, err := d.composer.Email(req)
	if err != nil {
		out.Error = err.Error()
		return out, row
	}
	row.Subject = subject
	row.Body = body

	if err := d.email.Send(ctx, address, subject, body); err != nil {
		out.Error = err.Error()
		log.Warn("email delivery failed", zap.String("recipient", address), zap.Error(err))
		return out, row
	}
	out.Delivered = true
	out.Succeeded = 1
	return out, row
}

// channelPanicked turns a recovered panic into a failed outcome for that channel only.
func (d *Dispatcher) channelPanicked(log *zap.Logger, out *notificationdomain.ChannelOutcome, r any) {
	out.Attempted = true
	out.Delivered = false
	out.Error = fmt.Sprintf("panic: %v", r)
	log.Error("notification channel panicked",
		zap.String("channel", string(out.Channel)),
		zap.Any("panic", r),
		zap.StackSkip("stack", 1),
	)
}

func anySucceeded(results []bool) bool {
	for _, ok := range results {
		if ok {
			return true
		}
	}
	return false
}

func outcomeEntry(req notificationdomain.DispatchRequest, dispatchID string, outcome notificationdomain.ChannelOutcome, now time.Time) auditdomain.Entry {
	result := "delivered"
	if !outcome.Delivered {
		result = "failed"
	}
	ctx := map[string]string{
		"billing_id":  req.BillingID.String(),
		"bill_no":     req.BillNo,
		"dispatch_id": dispatchID,
		"kind":        string(req.Kind),
	}
	if outcome.Error != "" {
		ctx["error"] = outcome.Error
	}
	if outcome.Channel == notificationdomain.ChannelPush {
		ctx["succeeded"] = fmt.Sprintf("%d/%d", outcome.Succeeded, outcome.Attempts)
	}
	return auditdomain.Entry{
		Action:    fmt.Sprintf("notification.%s.%s", outcome.Channel, result),
		Actor:     req.Actor,
		Context:   ctx,
		Timestamp: now,
	}
}

func summarize(report notificationdomain.DeliveryReport) []string {
	var msgs []string
	if report.Push.Attempted {
		if report.Push.Delivered {
			msgs = append(msgs, fmt.Sprintf("Push delivered to %d of %d devices", report.Push.Succeeded, report.Push.Attempts))
		} else {
			msgs = append(msgs, "Push failed: "+report.Push.Error)
		}
	}
	if report.SMS.Attempted {
		if report.SMS.Delivered {
			msgs = append(msgs, "SMS sent")
		} else {
			msgs = append(msgs, "SMS failed: "+report.SMS.Error)
		}
	}
	if report.Email.Attempted {
		if report.Email.Delivered {
			msgs = append(msgs, "Email sent")
		} else {
			msgs = append(msgs, "Email failed: "+report.Email.Error)
		}
	}
	return msgs
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

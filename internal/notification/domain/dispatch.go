package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Kind string

const (
	KindBillCreated Kind = "bill_created"
	KindBillOverdue Kind = "bill_overdue"
)

type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// DispatchRequest carries a committed billing and its consumer's contact channels.
type DispatchRequest struct {
	Kind               Kind
	Actor              string
	BillingID          snowflake.ID
	BillNo             string
	BillingDate        time.Time
	DueDate            time.Time
	AmountDue          decimal.Decimal
	Penalty            decimal.Decimal
	Total              decimal.Decimal
	ConsumerID         snowflake.ID
	ConsumerName       string
	AccountNo          string
	Phone              string
	Email              string
	UserID             *snowflake.ID
	BillNotificationID *snowflake.ID
}

type ChannelOutcome struct {
	Channel   Channel `json:"channel"`
	Attempted bool    `json:"attempted"`
	Delivered bool    `json:"delivered"`
	Attempts  int     `json:"attempts,omitempty"`
	Succeeded int     `json:"succeeded,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// DeliveryReport records the independent outcome of every channel of one dispatch.
type DeliveryReport struct {
	DispatchID string         `json:"dispatch_id"`
	InApp      ChannelOutcome `json:"in_app"`
	Push       ChannelOutcome `json:"push"`
	SMS        ChannelOutcome `json:"sms"`
	Email      ChannelOutcome `json:"email"`
	Messages   []string       `json:"messages,omitempty"`
}

func (r DeliveryReport) Outcomes() []ChannelOutcome {
	return []ChannelOutcome{r.InApp, r.Push, r.SMS, r.Email}
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) DeliveryReport
}

// Composer renders the fixed in-app, push, SMS and email templates.
type Composer interface {
	InApp(req DispatchRequest) (title, message string, err error)
	Push(req DispatchRequest) (PushPayload, error)
	SMS(req DispatchRequest) (string, error)
	Email(req DispatchRequest) (subject, htmlBody string, err error)
}

type Repository interface {
	InsertNotification(ctx context.Context, db *gorm.DB, n *Notification) error
	InsertBillNotification(ctx context.Context, db *gorm.DB, bn *BillNotification) error
	FindBillNotification(ctx context.Context, db *gorm.DB, billingID snowflake.ID) (*BillNotification, error)
	MarkBillNotified(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	DeleteForBilling(ctx context.Context, db *gorm.DB, billingID snowflake.ID) error

	ListSubscriptionsByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]PushSubscription, error)
	UpsertSubscription(ctx context.Context, db *gorm.DB, sub *PushSubscription) error
	DeleteSubscriptionByEndpoint(ctx context.Context, db *gorm.DB, endpoint string) (int64, error)

	InsertSmsLog(ctx context.Context, db *gorm.DB, row *SmsLog) error
	InsertEmailLog(ctx context.Context, db *gorm.DB, row *EmailLog) error
	ArchiveDeliveryLogs(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
}

type RegisterSubscriptionRequest struct {
	UserID    string
	Endpoint  string
	P256dh    string
	Auth      string
	UserAgent string
	Actor     string
}

type SubscriptionService interface {
	Register(ctx context.Context, req RegisterSubscriptionRequest) (*PushSubscription, error)
	Unregister(ctx context.Context, endpoint, actor string) error
}

type DeliveryLogService interface {
	ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

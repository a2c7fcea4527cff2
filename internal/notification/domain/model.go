package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidSubscription = errors.New("invalid_push_subscription")
	ErrSubscriptionMissing = errors.New("push_subscription_not_found")
	ErrChannelDisabled     = errors.New("channel disabled")
)

// Notification is the in-app message. It is written in the same transaction as the billing.
type Notification struct {
	ID         snowflake.ID  `json:"id" gorm:"primaryKey"`
	UserID     *snowflake.ID `json:"user_id,omitempty" gorm:"index"`
	ConsumerID snowflake.ID  `json:"consumer_id" gorm:"not null;index"`
	BillingID  *snowflake.ID `json:"billing_id,omitempty" gorm:"index"`
	Title      string        `json:"title" gorm:"type:text;not null"`
	Message    string        `json:"message" gorm:"type:text;not null"`
	IsRead     bool          `json:"is_read" gorm:"not null;default:false"`
	CreatedAt  time.Time     `json:"created_at" gorm:"not null"`
}

func (Notification) TableName() string { return "notifications" }

// BillNotification tracks whether at least one push for a billing reached the linked user.
type BillNotification struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	BillingID  snowflake.ID `json:"billing_id" gorm:"not null;index"`
	UserID     snowflake.ID `json:"user_id" gorm:"not null;index"`
	IsNotified bool         `json:"is_notified" gorm:"not null;default:false"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null"`
}

func (BillNotification) TableName() string { return "bill_notifications" }

type PushSubscription struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID     snowflake.ID `json:"user_id" gorm:"not null;index"`
	Endpoint   string       `json:"endpoint" gorm:"type:text;not null;uniqueIndex"`
	P256dh     string       `json:"p256dh" gorm:"type:text;not null"`
	AuthSecret []byte       `json:"-" gorm:"not null"`
	UserAgent  string       `json:"user_agent" gorm:"type:text"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null"`
}

func (PushSubscription) TableName() string { return "push_subscriptions" }

type SmsLog struct {
	ID         snowflake.ID  `json:"id" gorm:"primaryKey"`
	DispatchID string        `json:"dispatch_id" gorm:"type:text;not null;index"`
	BillingID  *snowflake.ID `json:"billing_id,omitempty" gorm:"index"`
	Recipient  string        `json:"recipient" gorm:"type:text;not null"`
	Message    string        `json:"message" gorm:"type:text;not null"`
	Success    bool          `json:"success" gorm:"not null"`
	Response   string        `json:"response" gorm:"type:text"`
	SentAt     time.Time     `json:"sent_at" gorm:"not null;index"`
	IsArchived bool          `json:"is_archived" gorm:"not null;default:false"`
}

func (SmsLog) TableName() string { return "sms_logs" }

type EmailLog struct {
	ID         snowflake.ID  `json:"id" gorm:"primaryKey"`
	DispatchID string        `json:"dispatch_id" gorm:"type:text;not null;index"`
	BillingID  *snowflake.ID `json:"billing_id,omitempty" gorm:"index"`
	Recipient  string        `json:"recipient" gorm:"type:text;not null"`
	Subject    string        `json:"subject" gorm:"type:text;not null"`
	Body       string        `json:"body" gorm:"type:text;not null"`
	Success    bool          `json:"success" gorm:"not null"`
	Response   string        `json:"response" gorm:"type:text"`
	SentAt     time.Time     `json:"sent_at" gorm:"not null;index"`
	IsArchived bool          `json:"is_archived" gorm:"not null;default:false"`
}

func (EmailLog) TableName() string { return "email_logs" }

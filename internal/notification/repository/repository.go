package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	notificationdomain "github.com/railzwaylabs/aquaduct/internal/notification/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() notificationdomain.Repository {
	return &repo{}
}

func (r *repo) InsertNotification(ctx context.Context, db *gorm.DB, n *notificationdomain.Notification) error {
	return db.WithContext(ctx).Create(n).Error
}

func (r *repo) InsertBillNotification(ctx context.Context, db *gorm.DB, bn *notificationdomain.BillNotification) error {
	return db.WithContext(ctx).Create(bn).Error
}

func (r *repo) FindBillNotification(ctx context.Context, db *gorm.DB, billingID snowflake.ID) (*notificationdomain.BillNotification, error) {
	var bn notificationdomain.BillNotification
	err := db.WithContext(ctx).Where("billing_id = ?", billingID).Order("created_at DESC").First(&bn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bn, nil
}

func (r *repo) MarkBillNotified(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Model(&notificationdomain.BillNotification{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_notified": true, "updated_at": at}).Error
}

func (r *repo) DeleteForBilling(ctx context.Context, db *gorm.DB, billingID snowflake.ID) error {
	if err := db.WithContext(ctx).Where("billing_id = ?", billingID).Delete(&notificationdomain.BillNotification{}).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Where("billing_id = ?", billingID).Delete(&notificationdomain.Notification{}).Error
}

func (r *repo) ListSubscriptionsByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]notificationdomain.PushSubscription, error) {
	var subs []notificationdomain.PushSubscription
	err := db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&subs).Error
	return subs, err
}

// UpsertSubscription re-binds an endpoint to the latest user and keys.
func (r *repo) UpsertSubscription(ctx context.Context, db *gorm.DB, sub *notificationdomain.PushSubscription) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth_secret", "user_agent"}),
	}).Create(sub).Error
}

func (r *repo) DeleteSubscriptionByEndpoint(ctx context.Context, db *gorm.DB, endpoint string) (int64, error) {
	res := db.WithContext(ctx).Where("endpoint = ?", endpoint).Delete(&notificationdomain.PushSubscription{})
	return res.RowsAffected, res.Error
}

func (r *repo) InsertSmsLog(ctx context.Context, db *gorm.DB, row *notificationdomain.SmsLog) error {
	return db.WithContext(ctx).Create(row).Error
}

func (r *repo) InsertEmailLog(ctx context.Context, db *gorm.DB, row *notificationdomain.EmailLog) error {
	return db.WithContext(ctx).Create(row).Error
}

func (r *repo) ArchiveDeliveryLogs(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&notificationdomain.SmsLog{}).
			Where("sent_at < ? AND is_archived = ?", cutoff, false).
			Update("is_archived", true)
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected

		res = tx.Model(&notificationdomain.EmailLog{}).
			Where("sent_at < ? AND is_archived = ?", cutoff, false).
			Update("is_archived", true)
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected
		return nil
	})
	return total, err
}

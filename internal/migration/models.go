package migration

import (
	auditdomain "github.com/railzwaylabs/aquaduct/internal/audit/domain"
	billingdomain "github.com/railzwaylabs/aquaduct/internal/billing/domain"
	consumerdomain "github.com/railzwaylabs/aquaduct/internal/consumer/domain"
	notificationdomain "github.com/railzwaylabs/aquaduct/internal/notification/domain"
	paymentdomain "github.com/railzwaylabs/aquaduct/internal/payment/domain"
	ratedomain "github.com/railzwaylabs/aquaduct/internal/rate/domain"
)

// Models lists every persisted type, parents first.
func Models() []any {
	return []any{
		&consumerdomain.Consumer{},
		&ratedomain.Rate{},
		&billingdomain.Billing{},
		&paymentdomain.Payment{},
		&notificationdomain.Notification{},
		&notificationdomain.BillNotification{},
		&notificationdomain.PushSubscription{},
		&notificationdomain.SmsLog{},
		&notificationdomain.EmailLog{},
		&auditdomain.AuditLog{},
		&auditdomain.AuditLogArchive{},
	}
}

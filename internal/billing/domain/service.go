package domain

import (
	"context"
	"time"

	consumerdomain "github.com/railzwaylabs/aquaduct/internal/consumer/domain"
	notificationdomain "github.com/railzwaylabs/aquaduct/internal/notification/domain"
	"github.com/railzwaylabs/aquaduct/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

type CreateRequest struct {
	ConsumerID  string
	BillingDate time.Time
	DueDate     time.Time
	// PreviousReading defaults to the present reading of the consumer's latest billing.
	PreviousReading *decimal.Decimal
	PresentReading  decimal.Decimal
	AdditionalFees  decimal.Decimal
	Actor           string
}

type UpdateRequest struct {
	BillingDate     *time.Time
	DueDate         *time.Time
	PreviousReading *decimal.Decimal
	PresentReading  *decimal.Decimal
	AdditionalFees  *decimal.Decimal
	Actor           string
}

type ListRequest struct {
	ConsumerID string
	Status     string
	PageToken  string
	PageSize   int32
}

type ListResponse struct {
	Billings []*Billing          `json:"billings"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Billing, *notificationdomain.DeliveryReport, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Billing, error)
	Get(ctx context.Context, id string) (*Billing, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Delete(ctx context.Context, id, actor string) error
	Notify(ctx context.Context, id, actor string) (*Billing, *notificationdomain.DeliveryReport, error)
	ListEligibleConsumers(ctx context.Context) ([]consumerdomain.Consumer, error)
	// RefreshPenalties recomputes penalties of every unpaid past-due billing and returns how many changed.
	RefreshPenalties(ctx context.Context) (int, error)
}

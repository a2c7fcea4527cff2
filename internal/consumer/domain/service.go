package domain

import (
	"context"

	"github.com/railzwaylabs/aquaduct/pkg/db/pagination"
)

type CreateRequest struct {
	AccountNo   string
	FirstName   string
	LastName    string
	Address     string
	AccountType string
	Email       string
	Phone       string
	UserID      string
	Actor       string
}

type ListRequest struct {
	AccountType string
	Search      string
	PageToken   string
	PageSize    int32
}

type ListResponse struct {
	Consumers []*Consumer         `json:"consumers"`
	PageInfo  pagination.PageInfo `json:"page_info"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Consumer, error)
	Get(ctx context.Context, id string) (*Consumer, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	SetDisconnected(ctx context.Context, id string, disconnected bool, actor string) (*Consumer, error)
}

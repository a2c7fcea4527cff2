package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/railzwaylabs/aquaduct/internal/audit/domain"
	"github.com/railzwaylabs/aquaduct/internal/clock"
	consumerdomain "github.com/railzwaylabs/aquaduct/internal/consumer/domain"
	"github.com/railzwaylabs/aquaduct/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  consumerdomain.Repository
	Audit auditdomain.Service
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  consumerdomain.Repository
	audit auditdomain.Service
}

func NewService(p Params) consumerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("consumer.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		audit: p.Audit,
	}
}

func (s *Service) Create(ctx context.Context, req consumerdomain.CreateRequest) (*consumerdomain.Consumer, error) {
	accountNo := strings.TrimSpace(req.AccountNo)
	if accountNo == "" {
		return nil, consumerdomain.ErrInvalidAccountNo
	}
	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)
	if firstName == "" || lastName == "" {
		return nil, consumerdomain.ErrInvalidName
	}
	accountType := consumerdomain.NormalizeAccountType(req.AccountType)
	if accountType == "" {
		return nil, consumerdomain.ErrInvalidAccountType
	}

	var userID *snowflake.ID
	if raw := strings.TrimSpace(req.UserID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return nil, consumerdomain.ErrInvalidID
		}
		userID = &id
	}

	now := s.clock.Now(ctx)
	consumer := &consumerdomain.Consumer{
		ID:          s.genID.Generate(),
		AccountNo:   accountNo,
		FirstName:   firstName,
		LastName:    lastName,
		Address:     strings.TrimSpace(req.Address),
		AccountType: accountType,
		Email:       strings.TrimSpace(req.Email),
		Phone:       strings.TrimSpace(req.Phone),
		UserID:      userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByAccountNo(ctx, tx, accountNo)
		if err != nil {
			return err
		}
		if existing != nil {
			return consumerdomain.ErrDuplicateAccountNo
		}
		if err := s.repo.Insert(ctx, tx, consumer); err != nil {
			return err
		}
		s.audit.Record(ctx, tx, auditdomain.Entry{
			Action: "consumer.create",
			Actor:  req.Actor,
			Context: map[string]string{
				"consumer_id": consumer.ID.String(),
				"account_no":  consumer.AccountNo,
			},
			Timestamp: now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return consumer, nil
}

func (s *Service) Get(ctx context.Context, id string) (*consumerdomain.Consumer, error) {
	consumerID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, consumerdomain.ErrInvalidID
	}
	item, err := s.repo.FindByID(ctx, s.db, consumerID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, consumerdomain.ErrConsumerNotFound
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, req consumerdomain.ListRequest) (consumerdomain.ListResponse, error) {
	if _, err := pagination.DecodeCursor(req.PageToken); err != nil {
		return consumerdomain.ListResponse{}, err
	}

	pageSize := pagination.ClampPageSize(int(req.PageSize))
	filter := consumerdomain.ListConsumerFilter{Search: req.Search}
	if strings.TrimSpace(req.AccountType) != "" {
		filter.AccountType = consumerdomain.NormalizeAccountType(req.AccountType)
	}

	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return consumerdomain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(c *consumerdomain.Consumer) string {
		return pagination.TokenFor(c.ID.String(), c.CreatedAt)
	})
	if len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	resp := consumerdomain.ListResponse{Consumers: items}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// SetDisconnected flips the service connection flag. Disconnected consumers drop out
// of the eligible list but keep their billing history.
func (s *Service) SetDisconnected(ctx context.Context, id string, disconnected bool, actor string) (*consumerdomain.Consumer, error) {
	consumerID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, consumerdomain.ErrInvalidID
	}

	now := s.clock.Now(ctx)
	var updated *consumerdomain.Consumer
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByID(ctx, tx, consumerID)
		if err != nil {
			return err
		}
		if item == nil {
			return consumerdomain.ErrConsumerNotFound
		}
		if err := s.repo.SetDisconnected(ctx, tx, consumerID, disconnected, now); err != nil {
			return err
		}
		item.IsDisconnected = disconnected
		item.UpdatedAt = now

		action := "consumer.reconnect"
		if disconnected {
			action = "consumer.disconnect"
		}
		s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:    action,
			Actor:     actor,
			Context:   map[string]string{"consumer_id": consumerID.String()},
			Timestamp: now,
		})
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/railzwaylabs/aquaduct/internal/audit/domain"
	"github.com/railzwaylabs/aquaduct/internal/clock"
	notificationdomain "github.com/railzwaylabs/aquaduct/internal/notification/domain"
	"github.com/railzwaylabs/aquaduct/internal/security/vault"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SubscriptionParams struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  notificationdomain.Repository
	Audit auditdomain.Service
	Vault vault.Provider
}

type SubscriptionService struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  notificationdomain.Repository
	audit auditdomain.Service
	vault vault.Provider
}

func NewSubscriptionService(p SubscriptionParams) notificationdomain.SubscriptionService {
	return &SubscriptionService{
		db:    p.DB,
		log:   p.Log.Named("push_subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		audit: p.Audit,
		vault: p.Vault,
	}
}

func (s *SubscriptionService) Register(ctx context.Context, req notificationdomain.RegisterSubscriptionRequest) (*notificationdomain.PushSubscription, error) {
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil || userID == 0 {
		return nil, notificationdomain.ErrInvalidID
	}
	endpoint := strings.TrimSpace(req.Endpoint)
	if u, err := url.Parse(endpoint); err != nil || u.Scheme != "https" || u.Host == "" {
		return nil, notificationdomain.ErrInvalidSubscription
	}
	if strings.TrimSpace(req.P256dh) == "" || strings.TrimSpace(req.Auth) == "" {
		return nil, notificationdomain.ErrInvalidSubscription
	}

	secret, err := s.vault.Encrypt([]byte(req.Auth), []byte(endpoint))
	if err != nil {
		return nil, fmt.Errorf("encrypt push secret: %w", err)
	}

	now := s.clock.Now(ctx)
	sub := &notificationdomain.PushSubscription{
		ID:         s.genID.Generate(),
		UserID:     userID,
		Endpoint:   endpoint,
		P256dh:     strings.TrimSpace(req.P256dh),
		AuthSecret: secret,
		UserAgent:  req.UserAgent,
		CreatedAt:  now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpsertSubscription(ctx, tx, sub); err != nil {
			return err
		}
		s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:    "push_subscription.register",
			Actor:     req.Actor,
			Context:   map[string]string{"user_id": userID.String()},
			Timestamp: now,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("register push subscription: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionService) Unregister(ctx context.Context, endpoint, actor string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return notificationdomain.ErrInvalidSubscription
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		removed, err := s.repo.DeleteSubscriptionByEndpoint(ctx, tx, endpoint)
		if err != nil {
			return err
		}
		if removed == 0 {
			return notificationdomain.ErrSubscriptionMissing
		}
		s.audit.Record(ctx, tx, auditdomain.Entry{
			Action: "push_subscription.unregister",
			Actor:  actor,
			Context: map[string]string{
				"endpoint_host": hostOf(endpoint),
			},
		})
		return nil
	})
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return u.Host
}

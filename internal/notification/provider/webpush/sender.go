package webpush

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	webpushgo "github.com/SherClockHolmes/webpush-go"
	"github.com/railzwaylabs/aquaduct/internal/config"
	notificationdomain "github.com/railzwaylabs/aquaduct/internal/notification/domain"
)

const defaultTTL = 60 * 60 * 24

// Sender delivers VAPID-signed web push messages.
type Sender struct {
	client     *http.Client
	subscriber string
	publicKey  string
	privateKey string
	ttl        int
}

func NewSender(cfg config.PushConfig) *Sender {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Sender{
		client:     &http.Client{Timeout: 10 * time.Second},
		subscriber: cfg.Subject,
		publicKey:  cfg.VAPIDPublicKey,
		privateKey: cfg.VAPIDPrivateKey,
		ttl:        ttl,
	}
}

func (s *Sender) Send(ctx context.Context, target notificationdomain.PushTarget, payload notificationdomain.PushPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := webpushgo.SendNotificationWithContext(ctx, body, &webpushgo.Subscription{
		Endpoint: target.Endpoint,
		Keys: webpushgo.Keys{
			P256dh: target.P256dh,
			Auth:   target.Auth,
		},
	}, &webpushgo.Options{
		HTTPClient:      s.client,
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             s.ttl,
		Urgency:         webpushgo.UrgencyHigh,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("push_service_error: status=%d", resp.StatusCode)
	}
	return nil
}

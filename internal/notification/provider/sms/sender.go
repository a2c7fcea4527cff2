package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/railzwaylabs/aquaduct/internal/config"
	notificationdomain "github.com/railzwaylabs/aquaduct/internal/notification/domain"
)

const maxResponseBytes = 4 << 10

// Sender posts messages to an HTTP SMS gateway that accepts
// {"apikey","number","message","sendername"} and answers with JSON.
type Sender struct {
	client     *http.Client
	endpoint   string
	apiKey     string
	senderName string
}

func NewSender(cfg config.SMSConfig) *Sender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sender{
		client:     &http.Client{Timeout: timeout},
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		senderName: cfg.SenderName,
	}
}

type gatewayRequest struct {
	APIKey     string `json:"apikey"`
	Number     string `json:"number"`
	Message    string `json:"message"`
	SenderName string `json:"sendername,omitempty"`
}

func (s *Sender) Send(ctx context.Context, phone, message string) (notificationdomain.SMSResult, error) {
	if strings.TrimSpace(s.endpoint) == "" {
		return notificationdomain.SMSResult{}, fmt.Errorf("missing_sms_endpoint")
	}

	body, err := json.Marshal(gatewayRequest{
		APIKey:     s.apiKey,
		Number:     phone,
		Message:    message,
		SenderName: s.senderName,
	})
	if err != nil {
		return notificationdomain.SMSResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return notificationdomain.SMSResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return notificationdomain.SMSResult{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return notificationdomain.SMSResult{}, err
	}
	result := notificationdomain.SMSResult{
		Success:  resp.StatusCode < 400,
		Response: strings.TrimSpace(string(raw)),
	}
	if !result.Success && result.Response == "" {
		result.Response = fmt.Sprintf("sms_gateway_error: status=%d", resp.StatusCode)
	}
	return result, nil
}

package domain

import "context"

type PushTarget struct {
	Endpoint string
	P256dh   string
	Auth     string
}

type PushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
}

// PushSender delivers one web-push message. Callers never retry.
type PushSender interface {
	Send(ctx context.Context, target PushTarget, payload PushPayload) error
}

type SMSResult struct {
	Success  bool
	Response string
}

type SMSSender interface {
	Send(ctx context.Context, phone, message string) (SMSResult, error)
}

type EmailSender interface {
	Send(ctx context.Context, address, subject, htmlBody string) error
}

package noop

import (
	"context"

	notificationdomain "github.com/railzwaylabs/aquaduct/internal/notification/domain"
)

// Push, SMS and Email stand in for channels disabled in config. Every send fails
// with ErrChannelDisabled so the outcome is still recorded.
type Push struct{}

func (Push) Send(context.Context, notificationdomain.PushTarget, notificationdomain.PushPayload) error {
	return notificationdomain.ErrChannelDisabled
}

type SMS struct{}

func (SMS) Send(context.Context, string, string) (notificationdomain.SMSResult, error) {
	return notificationdomain.SMSResult{Response: notificationdomain.ErrChannelDisabled.Error()}, notificationdomain.ErrChannelDisabled
}

type Email struct{}

func (Email) Send(context.Context, string, string, string) error {
	return notificationdomain.ErrChannelDisabled
}

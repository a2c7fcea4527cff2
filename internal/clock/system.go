package clock

import (
	"context"
	"time"
)

type SystemClock struct{}

func (SystemClock) Now(context.Context) time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant. Used by tests and replay tooling.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now(context.Context) time.Time {
	return f.At.UTC()
}

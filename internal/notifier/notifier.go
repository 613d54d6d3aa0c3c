package notifier

import (
	"context"
	"errors"
	"fmt"
)

// Channel is one alert delivery transport.
type Channel interface {
	Name() string
	Enabled() bool
	Notify(ctx context.Context, recipients []string, from, subject, body string) error
}

// Multi delivers to every enabled channel and joins their errors.
type Multi struct {
	channels []Channel
}

func NewMulti(channels ...Channel) *Multi {
	return &Multi{channels: channels}
}

func (m *Multi) Channels() []Channel {
	var out []Channel
	for _, c := range m.channels {
		if c.Enabled() {
			out = append(out, c)
		}
	}
	return out
}

func (m *Multi) Notify(ctx context.Context, recipients []string, from, subject, body string) error {
	var errs []error
	for _, c := range m.Channels() {
		if err := c.Notify(ctx, recipients, from, subject, body); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

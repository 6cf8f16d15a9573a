package publisher

import (
	"context"
	"errors"
)

var (
	ErrNotConnected  = errors.New("publisher not connected")
	ErrUnknownFormat = errors.New("unknown payload format")
)

// Publisher delivers one value to a destination. Publish returns only once
// the value was handed off or failed; callers never have two in flight.
type Publisher interface {
	Publish(ctx context.Context, destination string, value uint32) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, destination string, value uint32) error

func (f PublisherFunc) Publish(ctx context.Context, destination string, value uint32) error {
	return f(ctx, destination, value)
}

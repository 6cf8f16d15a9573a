package publisher

import (
	"context"
	"fmt"
)

type namedPublisher struct {
	name string
	pub  Publisher
}

// Fanout publishes every value to each sink in the order they were added.
// The first failing sink aborts the publish, later sinks are not tried.
type Fanout struct {
	sinks []namedPublisher
}

func NewFanout() *Fanout {
	return &Fanout{}
}

func (f *Fanout) Add(name string, pub Publisher) *Fanout {
	f.sinks = append(f.sinks, namedPublisher{name: name, pub: pub})
	return f
}

func (f *Fanout) Len() int {
	return len(f.sinks)
}

func (f *Fanout) Names() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.name
	}
	return names
}

func (f *Fanout) Publish(ctx context.Context, destination string, value uint32) error {
	for _, s := range f.sinks {
		if err := s.pub.Publish(ctx, destination, value); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

package events

import "context"

// EventPublisher is the interface for publishing assistant events.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
}

// NoOpPublisher is an EventPublisher that does nothing (COMMS disabled).
type NoOpPublisher struct{}

// Publish is a no-op.
func (p *NoOpPublisher) Publish(_ context.Context, _ *Event) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *Event) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *Event) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// Publish calls the callback.
func (p *CallbackPublisher) Publish(ctx context.Context, event *Event) error {
	return p.callback(ctx, event)
}

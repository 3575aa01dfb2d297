package events

import "context"

// EventPublisher is the interface for publishing fault events.
type EventPublisher interface {
	PublishFault(ctx context.Context, event *FaultRaisedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for in-process usage without events).
type NoOpPublisher struct{}

// PublishFault is a no-op.
func (p *NoOpPublisher) PublishFault(_ context.Context, _ *FaultRaisedEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *FaultRaisedEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *FaultRaisedEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishFault calls the callback.
func (p *CallbackPublisher) PublishFault(ctx context.Context, event *FaultRaisedEvent) error {
	return p.callback(ctx, event)
}

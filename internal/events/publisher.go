package events

import "context"

// Publisher records lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, aggregate, correlationID string, evt Event) error
}

// DirectPublisher hands events straight to a sink. It is used when no
// outbox table is available, and delivery is then best effort.
type DirectPublisher struct {
	handler DeliveryHandler
}

func NewDirectPublisher(handler DeliveryHandler) *DirectPublisher {
	if handler == nil {
		panic("events: delivery handler required")
	}
	return &DirectPublisher{handler: handler}
}

func (p *DirectPublisher) Publish(ctx context.Context, aggregate, correlationID string, evt Event) error {
	env, err := Seal(aggregate, correlationID, evt)
	if err != nil {
		return err
	}
	entry, err := env.Entry()
	if err != nil {
		return err
	}
	return p.handler.Handle(ctx, entry)
}

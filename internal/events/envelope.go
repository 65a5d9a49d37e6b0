package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is a versioned appointment lifecycle event.
type Event interface {
	EventType() string
	OccurredAt() time.Time
}

// Envelope is the wire form of an event, as stored in the outbox and handed
// to sinks.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     string          `json:"event_type"`
	Aggregate     string          `json:"aggregate"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

var (
	errMissingAggregate = errors.New("events: aggregate is required")
	errNilEvent         = errors.New("events: event required")

	eventNamespace = uuid.MustParse("5b0c6f55-3f0e-4d59-9a0e-6c1f2f6b8d21")
	clock          = time.Now
)

// AppointmentAggregate names the aggregate an appointment's events belong to.
func AppointmentAggregate(appointmentID string) string {
	return "appointment:" + appointmentID
}

// EventID derives the id of an aggregate's event of the given type. An
// appointment is booked, cancelled or completed at most once, so the pair
// identifies the event and a second publish of it maps to the same row.
func EventID(aggregate, eventType string) uuid.UUID {
	return uuid.NewSHA1(eventNamespace, []byte(aggregate+"\x00"+eventType))
}

// Seal wraps evt for aggregate. A zero OccurredAt is stamped with the
// current time.
func Seal(aggregate, correlationID string, evt Event) (Envelope, error) {
	aggregate = strings.TrimSpace(aggregate)
	if aggregate == "" {
		return Envelope{}, errMissingAggregate
	}
	if evt == nil {
		return Envelope{}, errNilEvent
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		return Envelope{}, fmt.Errorf("events: event type missing")
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal %s payload: %w", eventType, err)
	}
	occurred := evt.OccurredAt()
	if occurred.IsZero() {
		occurred = clock()
	}
	return Envelope{
		EventID:       EventID(aggregate, eventType),
		EventType:     eventType,
		Aggregate:     aggregate,
		OccurredAt:    occurred.UTC(),
		CorrelationID: strings.TrimSpace(correlationID),
		Payload:       payload,
	}, nil
}

// Entry encodes the envelope as the outbox row a sink receives.
func (e Envelope) Entry() (OutboxEntry, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return OutboxEntry{}, fmt.Errorf("events: marshal envelope: %w", err)
	}
	return OutboxEntry{
		ID:        e.EventID,
		Aggregate: e.Aggregate,
		Type:      e.EventType,
		Payload:   data,
		CreatedAt: e.OccurredAt,
	}, nil
}

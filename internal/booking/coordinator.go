package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-booking/internal/apperr"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

var coordinatorTracer = otel.Tracer("clinic.internal.booking.coordinator")

const defaultReserveTimeout = 3 * time.Second

// Coordinator performs the single conditional reserve/release write against
// a slot and resolves writes whose outcome is unknown.
type Coordinator struct {
	store   *schedule.Store
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
	timeout time.Duration
}

// NewCoordinator wires a coordinator around a slot store.
func NewCoordinator(store *schedule.Store, m *metrics.BookingMetrics, logger *logging.Logger) *Coordinator {
	if store == nil {
		panic("booking: slot store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{store: store, metrics: m, logger: logger, timeout: defaultReserveTimeout}
}

// WithTimeout bounds each conditional write.
func (c *Coordinator) WithTimeout(d time.Duration) *Coordinator {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// Reservation is the result of a successful reserve.
type Reservation struct {
	Ref    schedule.Ref  `json:"slot"`
	Slot   schedule.Slot `json:"-"`
	Holder string        `json:"holder"`
	Fee    int64         `json:"fee"`
}

// Reserve books the slot for holder. Of any number of concurrent calls with
// distinct holders exactly one succeeds; the rest get schedule.ErrSlotTaken.
// Repeating a call with the winning holder succeeds again. An empty holder
// is replaced by a fresh id, returned in the Reservation.
func (c *Coordinator) Reserve(ctx context.Context, ref schedule.Ref, holder string) (*Reservation, error) {
	if holder == "" {
		holder = uuid.NewString()
	}
	ctx, span := coordinatorTracer.Start(ctx, "booking.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("slot.doctor_id", ref.DoctorID),
		attribute.String("slot.date", ref.DateKey),
		attribute.String("slot.start_time", ref.StartTime),
		attribute.String("slot.backend", c.store.Backend().Name()),
	)

	started := time.Now()
	writeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	slot, err := c.store.Reserve(writeCtx, ref, holder)
	cancel()
	c.metrics.ObserveReserveLatency(c.store.Backend().Name(), time.Since(started).Seconds())

	if err == nil {
		c.metrics.ObserveReserve(metrics.OutcomeReserved)
		return &Reservation{Ref: ref, Slot: slot, Holder: holder, Fee: slot.Fee}, nil
	}
	if apperr.IsDomain(err) {
		c.observeDomainFailure(span, ref, holder, err)
		return nil, err
	}

	span.RecordError(err)
	return c.resolveUnknown(ctx, span, ref, holder, err)
}

func (c *Coordinator) observeDomainFailure(span trace.Span, ref schedule.Ref, holder string, err error) {
	switch {
	case errors.Is(err, apperr.ErrConflict):
		c.metrics.ObserveReserve(metrics.OutcomeConflict)
		span.SetAttributes(attribute.Bool("slot.conflict", true))
		// Expected under contention; an event, not a fault.
		c.logger.Info("slot reservation conflict",
			"doctor_id", ref.DoctorID,
			"date", ref.DateKey,
			"start_time", ref.StartTime,
			"request_id", holder,
		)
	case errors.Is(err, apperr.ErrNotFound):
		c.metrics.ObserveReserve(metrics.OutcomeNotFound)
	default:
		c.metrics.ObserveReserve(metrics.OutcomeError)
	}
}

// resolveUnknown re-reads the slot after a write that may or may not have
// applied. Only the authoritative state decides the verdict.
func (c *Coordinator) resolveUnknown(ctx context.Context, span trace.Span, ref schedule.Ref, holder string, writeErr error) (*Reservation, error) {
	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	current, err := c.store.Get(readCtx, ref)
	switch {
	case err == nil && current.Booked && current.HeldBy == holder:
		c.metrics.ObserveReserve(metrics.OutcomeReserved)
		c.logger.Warn("reserve outcome recovered by re-read",
			"doctor_id", ref.DoctorID, "date", ref.DateKey, "start_time", ref.StartTime,
			"request_id", holder, "write_error", writeErr,
		)
		return &Reservation{Ref: ref, Slot: current, Holder: holder, Fee: current.Fee}, nil
	case err == nil && current.Booked:
		c.observeDomainFailure(span, ref, holder, schedule.ErrSlotTaken)
		return nil, schedule.ErrSlotTaken
	case errors.Is(err, apperr.ErrNotFound):
		c.metrics.ObserveReserve(metrics.OutcomeNotFound)
		return nil, err
	}

	c.metrics.ObserveReserve(metrics.OutcomeUnconfirmed)
	c.logger.Error("reserve outcome unconfirmed",
		"doctor_id", ref.DoctorID,
		"date", ref.DateKey,
		"start_time", ref.StartTime,
		"request_id", holder,
		"write_error", writeErr,
		"read_error", err,
	)
	return nil, fmt.Errorf("%w: reservation of %s could not be confirmed: %v", apperr.ErrUnavailable, ref, writeErr)
}

// Release frees the slot. With a holder, only that holder's reservation is
// cleared; releasing an unbooked slot is a no-op success.
func (c *Coordinator) Release(ctx context.Context, ref schedule.Ref, holder string) (bool, error) {
	ctx, span := coordinatorTracer.Start(ctx, "booking.release")
	defer span.End()
	span.SetAttributes(
		attribute.String("slot.doctor_id", ref.DoctorID),
		attribute.String("slot.date", ref.DateKey),
		attribute.String("slot.start_time", ref.StartTime),
	)

	writeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	released, err := c.store.Release(writeCtx, ref, holder)
	if err != nil {
		if !apperr.IsDomain(err) {
			span.RecordError(err)
			c.logger.Error("slot release failed",
				"doctor_id", ref.DoctorID, "date", ref.DateKey, "start_time", ref.StartTime,
				"request_id", holder, "error", err,
			)
		}
		return false, err
	}
	c.metrics.ObserveRelease(released)
	if !released {
		c.logger.Debug("slot release was a no-op", "doctor_id", ref.DoctorID, "date", ref.DateKey, "start_time", ref.StartTime)
	}
	return released, nil
}

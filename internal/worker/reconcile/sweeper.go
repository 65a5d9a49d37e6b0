// Package reconcileworker frees slots whose reservation never became an
// active appointment.
package reconcileworker

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/clinic-booking/internal/apperr"
	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

type heldStore interface {
	ListHeld(ctx context.Context, reservedBefore time.Time, limit int) ([]schedule.HeldSlot, error)
}

type slotReleaser interface {
	Release(ctx context.Context, ref schedule.Ref, holder string) (bool, error)
}

type appointmentLookup interface {
	GetByRequestID(ctx context.Context, requestID string) (*appointments.Appointment, error)
}

// Sweeper releases slots held longer than the grace period when the holder
// has no appointment, or only a cancelled one.
type Sweeper struct {
	slots     heldStore
	releaser  slotReleaser
	lookup    appointmentLookup
	logger    *logging.Logger
	grace     time.Duration
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewSweeper(slots heldStore, releaser slotReleaser, lookup appointmentLookup, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		slots:     slots,
		releaser:  releaser,
		lookup:    lookup,
		logger:    logger,
		grace:     10 * time.Minute,
		interval:  time.Minute,
		batchSize: 100,
		now:       time.Now,
	}
}

func (s *Sweeper) WithGrace(d time.Duration) *Sweeper {
	if d > 0 {
		s.grace = d
	}
	return s
}

func (s *Sweeper) WithInterval(d time.Duration) *Sweeper {
	if d > 0 {
		s.interval = d
	}
	return s
}

func (s *Sweeper) WithBatchSize(n int) *Sweeper {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// Run sweeps on every tick until ctx is done. It returns early when the slot
// backend cannot list held slots.
func (s *Sweeper) Run(ctx context.Context) {
	if s.slots == nil || s.releaser == nil || s.lookup == nil {
		return
	}
	if _, err := s.SweepOnce(ctx); errors.Is(err, schedule.ErrHeldListingUnsupported) {
		s.logger.Warn("reconcile sweeper disabled: slot backend cannot list held slots")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.SweepOnce(ctx)
		}
	}
}

// SweepOnce processes one batch and returns how many slots were released.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.grace)
	held, err := s.slots.ListHeld(ctx, cutoff, s.batchSize)
	if err != nil {
		if !errors.Is(err, schedule.ErrHeldListingUnsupported) {
			s.logger.Error("reconcile list held slots failed", "error", err)
		}
		return 0, err
	}

	released := 0
	for _, h := range held {
		if h.Slot.HeldBy == "" {
			continue
		}
		appt, err := s.lookup.GetByRequestID(ctx, h.Slot.HeldBy)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
		case err != nil:
			s.logger.Error("reconcile appointment lookup failed", "error", err, "request_id", h.Slot.HeldBy)
			continue
		case !appt.Cancelled:
			continue
		}

		ok, err := s.releaser.Release(ctx, h.Ref, h.Slot.HeldBy)
		if err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				s.logger.Error("reconcile release failed",
					"doctor_id", h.Ref.DoctorID, "date", h.Ref.DateKey, "start_time", h.Ref.StartTime,
					"request_id", h.Slot.HeldBy, "error", err,
				)
			}
			continue
		}
		if ok {
			released++
			s.logger.Warn("released stranded reservation",
				"doctor_id", h.Ref.DoctorID,
				"date", h.Ref.DateKey,
				"start_time", h.Ref.StartTime,
				"request_id", h.Slot.HeldBy,
				"cancelled_appointment", appt != nil,
			)
		}
	}
	return released, nil
}

package schedule

import (
	"context"
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking/internal/apperr"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Store validates schedule operations and delegates them to a Backend.
type Store struct {
	backend Backend
	logger  *logging.Logger
}

// NewStore wraps a backend. A nil backend panics.
func NewStore(backend Backend, logger *logging.Logger) *Store {
	if backend == nil {
		panic("schedule: backend cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{backend: backend, logger: logger}
}

// Backend exposes the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// List returns the day's slots in insertion order. An unknown doctor or
// date yields an empty list.
func (s *Store) List(ctx context.Context, doctorID, dateKey string) ([]Slot, error) {
	if err := validateDay(doctorID, dateKey); err != nil {
		return nil, err
	}
	slots, err := s.backend.List(ctx, doctorID, dateKey)
	if err != nil {
		return nil, err
	}
	if slots == nil {
		slots = []Slot{}
	}
	return slots, nil
}

// Add appends a slot to the end of the day's list.
func (s *Store) Add(ctx context.Context, doctorID, dateKey string, slot NewSlot) (Slot, error) {
	if err := validateDay(doctorID, dateKey); err != nil {
		return Slot{}, err
	}
	if err := slot.Validate(); err != nil {
		return Slot{}, err
	}
	// Backends compare start times as strings.
	slot.StartTime, _ = NormalizeClock(slot.StartTime)
	slot.EndTime, _ = NormalizeClock(slot.EndTime)
	created, err := s.backend.Append(ctx, doctorID, dateKey, slot)
	if err != nil {
		return Slot{}, err
	}
	s.logger.Info("slot added", "doctor_id", doctorID, "date", dateKey, "slot_id", created.ID, "start_time", created.StartTime)
	return created, nil
}

// RemoveAt removes the slot at a zero-based index of List output.
func (s *Store) RemoveAt(ctx context.Context, doctorID, dateKey string, index int) (Slot, error) {
	if err := validateDay(doctorID, dateKey); err != nil {
		return Slot{}, err
	}
	if index < 0 {
		return Slot{}, ErrSlotNotFound
	}
	removed, err := s.backend.RemoveAt(ctx, doctorID, dateKey, index)
	if err != nil {
		return Slot{}, err
	}
	s.logRemoval(doctorID, dateKey, removed)
	return removed, nil
}

// RemoveByID removes the slot with the given stable id.
func (s *Store) RemoveByID(ctx context.Context, doctorID, dateKey, slotID string) (Slot, error) {
	if err := validateDay(doctorID, dateKey); err != nil {
		return Slot{}, err
	}
	if strings.TrimSpace(slotID) == "" {
		return Slot{}, apperr.Validation("slot id required")
	}
	removed, err := s.backend.RemoveByID(ctx, doctorID, dateKey, slotID)
	if err != nil {
		return Slot{}, err
	}
	s.logRemoval(doctorID, dateKey, removed)
	return removed, nil
}

func (s *Store) logRemoval(doctorID, dateKey string, removed Slot) {
	if removed.Booked {
		// The appointment referencing this slot keeps its snapshot; nothing cascades.
		s.logger.Warn("booked slot removed", "doctor_id", doctorID, "date", dateKey, "slot_id", removed.ID, "held_by", removed.HeldBy)
		return
	}
	s.logger.Info("slot removed", "doctor_id", doctorID, "date", dateKey, "slot_id", removed.ID)
}

// Get returns the slot addressed by ref.
func (s *Store) Get(ctx context.Context, ref Ref) (Slot, error) {
	ref, err := ref.Normalize()
	if err != nil {
		return Slot{}, err
	}
	return s.backend.Get(ctx, ref)
}

// Reserve marks the slot booked for holder.
func (s *Store) Reserve(ctx context.Context, ref Ref, holder string) (Slot, error) {
	ref, err := ref.Normalize()
	if err != nil {
		return Slot{}, err
	}
	if strings.TrimSpace(holder) == "" {
		return Slot{}, apperr.Validation("reservation holder required")
	}
	return s.backend.Reserve(ctx, ref, holder)
}

// Release clears the booked flag. See Backend for holder semantics.
func (s *Store) Release(ctx context.Context, ref Ref, holder string) (bool, error) {
	ref, err := ref.Normalize()
	if err != nil {
		return false, err
	}
	return s.backend.Release(ctx, ref, holder)
}

// ListHeld returns reservations made before the cutoff, or an unavailable
// error when the backend cannot enumerate them.
func (s *Store) ListHeld(ctx context.Context, reservedBefore time.Time, limit int) ([]HeldSlot, error) {
	lister, ok := s.backend.(HeldLister)
	if !ok {
		return nil, ErrHeldListingUnsupported
	}
	if limit <= 0 {
		limit = 100
	}
	return lister.ListHeld(ctx, reservedBefore, limit)
}

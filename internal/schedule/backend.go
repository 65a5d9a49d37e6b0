package schedule

import (
	"context"
	"errors"
	"time"
)

// Backend is the storage contract every slot store implements.
//
// Reserve and Release must each be a single conditional write against the
// backing store. A reserve succeeds only if the slot is unbooked, or already
// held by the same holder (a retried request). Release with a holder only
// clears a slot held by that holder; with an empty holder it clears any
// booked slot. Releasing an unbooked slot is a no-op and returns released=false.
type Backend interface {
	Name() string
	List(ctx context.Context, doctorID, dateKey string) ([]Slot, error)
	Append(ctx context.Context, doctorID, dateKey string, slot NewSlot) (Slot, error)
	RemoveAt(ctx context.Context, doctorID, dateKey string, index int) (Slot, error)
	RemoveByID(ctx context.Context, doctorID, dateKey, slotID string) (Slot, error)
	Get(ctx context.Context, ref Ref) (Slot, error)
	Reserve(ctx context.Context, ref Ref, holder string) (Slot, error)
	Release(ctx context.Context, ref Ref, holder string) (released bool, err error)
}

// HeldLister is implemented by backends that can enumerate reservations
// older than a cutoff.
type HeldLister interface {
	ListHeld(ctx context.Context, reservedBefore time.Time, limit int) ([]HeldSlot, error)
}

// ErrHeldListingUnsupported is returned by Store.ListHeld for backends
// without a HeldLister implementation.
var ErrHeldListingUnsupported = errors.New("schedule: backend cannot list held slots")

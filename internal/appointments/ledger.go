package appointments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-booking/internal/apperr"
	"github.com/wolfman30/clinic-booking/internal/identity"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// SlotReleaser frees the slot an appointment consumed.
type SlotReleaser interface {
	Release(ctx context.Context, ref schedule.Ref, holder string) (bool, error)
}

// Ledger owns appointment creation and the two terminal transitions.
type Ledger struct {
	repo     Repository
	releaser SlotReleaser
	logger   *logging.Logger
	now      func() time.Time
}

// NewLedger wires a ledger. The releaser is required for cancellation.
func NewLedger(repo Repository, releaser SlotReleaser, logger *logging.Logger) *Ledger {
	if repo == nil {
		panic("appointments: repository required")
	}
	if releaser == nil {
		panic("appointments: slot releaser required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Ledger{repo: repo, releaser: releaser, logger: logger, now: time.Now}
}

// Repository exposes the underlying store for read paths.
func (l *Ledger) Repository() Repository {
	return l.repo
}

// Create persists a new appointment. It must only be called after the slot
// was reserved with appt.RequestID as holder. A retried request id returns
// the stored appointment and existed=true.
func (l *Ledger) Create(ctx context.Context, appt Appointment) (*Appointment, bool, error) {
	if strings.TrimSpace(appt.RequestID) == "" {
		return nil, false, apperr.Validation("request id required")
	}
	if appt.DoctorID == "" || appt.PatientID == "" {
		return nil, false, apperr.Validation("doctor and patient ids required")
	}
	if err := appt.SlotRef().Validate(); err != nil {
		return nil, false, err
	}
	if appt.Amount <= 0 {
		return nil, false, apperr.Validation("amount must be positive")
	}
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = l.now().UTC()
	}
	appt.Cancelled = false
	appt.Completed = false
	appt.CancelledAt = nil
	appt.CompletedAt = nil
	appt.DoctorSnapshot.ID = appt.DoctorID
	appt.PatientSnapshot.ID = appt.PatientID
	if appt.Symptoms == nil {
		appt.Symptoms = []string{}
	}

	stored, existed, err := l.repo.Create(ctx, &appt)
	if err != nil {
		return nil, false, err
	}
	if !existed {
		l.logger.Info("appointment created",
			"appointment_id", stored.ID,
			"request_id", stored.RequestID,
			"doctor_id", stored.DoctorID,
			"date", stored.DateKey,
			"start_time", stored.StartTime,
			"priority_score", stored.PriorityScore,
		)
	}
	return stored, existed, nil
}

// Get returns an appointment visible to the caller.
func (l *Ledger) Get(ctx context.Context, id string, caller identity.Caller) (*Appointment, error) {
	appt, err := l.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(caller, appt) {
		return nil, apperr.Unauthorized("appointment %s does not belong to caller", id)
	}
	return appt, nil
}

// Cancel marks the appointment cancelled and then releases its slot. The
// patient owner, the doctor owner or an admin may cancel.
//
// Cancelling an already-cancelled appointment retries the release before
// returning ErrAlreadyCancelled, which heals a crash between the two steps.
func (l *Ledger) Cancel(ctx context.Context, id string, caller identity.Caller) (*Appointment, error) {
	appt, err := l.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(caller, appt) {
		return nil, apperr.Unauthorized("caller may not cancel appointment %s", id)
	}
	if err := l.terminalError(ctx, appt); err != nil {
		return nil, err
	}

	at := l.now().UTC()
	ok, err := l.repo.MarkCancelled(ctx, id, at)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race with another terminal transition.
		current, getErr := l.repo.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if err := l.terminalError(ctx, current); err != nil {
			return nil, err
		}
		return nil, apperr.Conflict("appointment %s changed concurrently", id)
	}
	appt.Cancelled = true
	appt.CancelledAt = &at

	l.release(ctx, appt)
	l.logger.Info("appointment cancelled", "appointment_id", id, "caller_id", caller.ID, "caller_role", caller.Role)
	return appt, nil
}

// Complete marks the appointment completed. Only the owning doctor may
// complete, and the slot stays consumed.
func (l *Ledger) Complete(ctx context.Context, id string, caller identity.Caller) (*Appointment, error) {
	appt, err := l.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Is(identity.RoleDoctor, appt.DoctorID) {
		return nil, apperr.Unauthorized("only the appointment's doctor may complete it")
	}
	if appt.Completed {
		return nil, ErrAlreadyCompleted
	}
	if appt.Cancelled {
		return nil, ErrAlreadyCancelled
	}

	at := l.now().UTC()
	ok, err := l.repo.MarkCompleted(ctx, id, at)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, getErr := l.repo.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current.Cancelled {
			return nil, ErrAlreadyCancelled
		}
		return nil, ErrAlreadyCompleted
	}
	appt.Completed = true
	appt.CompletedAt = &at
	l.logger.Info("appointment completed", "appointment_id", id, "doctor_id", caller.ID)
	return appt, nil
}

// terminalError returns the conflict for a terminal appointment, healing the
// slot first when it is cancelled.
func (l *Ledger) terminalError(ctx context.Context, appt *Appointment) error {
	switch {
	case appt.Completed:
		return ErrAlreadyCompleted
	case appt.Cancelled:
		l.release(ctx, appt)
		return ErrAlreadyCancelled
	}
	return nil
}

// release frees the appointment's slot, scoped to the reservation holder so a
// later booking of the same slot is never undone. Failures are logged; the
// reconcile sweeper picks up slots still held by cancelled appointments.
func (l *Ledger) release(ctx context.Context, appt *Appointment) {
	released, err := l.releaser.Release(ctx, appt.SlotRef(), appt.RequestID)
	if errors.Is(err, apperr.ErrNotFound) {
		l.logger.Info("cancelled appointment's slot no longer exists", "appointment_id", appt.ID)
		return
	}
	if err != nil {
		l.logger.Error("slot release after cancel failed",
			"appointment_id", appt.ID,
			"request_id", appt.RequestID,
			"doctor_id", appt.DoctorID,
			"date", appt.DateKey,
			"start_time", appt.StartTime,
			"error", err,
		)
		return
	}
	l.logger.Debug("slot release after cancel", "appointment_id", appt.ID, "released", released)
}

func canView(caller identity.Caller, appt *Appointment) bool {
	return caller.IsAdmin() ||
		caller.Is(identity.RolePatient, appt.PatientID) ||
		caller.Is(identity.RoleDoctor, appt.DoctorID)
}

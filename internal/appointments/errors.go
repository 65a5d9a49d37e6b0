package appointments

import (
	"fmt"

	"github.com/wolfman30/clinic-booking/internal/apperr"
)

var (
	// ErrAppointmentNotFound is returned when no appointment has the id.
	ErrAppointmentNotFound = fmt.Errorf("%w: appointment not found", apperr.ErrNotFound)

	// ErrAlreadyCancelled is returned for transitions out of the cancelled state.
	ErrAlreadyCancelled = fmt.Errorf("%w: appointment already cancelled", apperr.ErrConflict)

	// ErrAlreadyCompleted is returned for transitions out of the completed state.
	ErrAlreadyCompleted = fmt.Errorf("%w: appointment already completed", apperr.ErrConflict)

	// ErrSlotAlreadyBooked is returned when another active appointment holds the slot.
	ErrSlotAlreadyBooked = fmt.Errorf("%w: slot already has an active appointment", apperr.ErrConflict)
)

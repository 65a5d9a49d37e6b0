package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking/internal/apperr"
)

const (
	// DateKeyLayout is the calendar-date form used as a schedule key.
	DateKeyLayout = "2006-01-02"
	// ClockLayout is the 24h time-of-day form of slot boundaries.
	ClockLayout = "15:04"
)

var (
	// ErrSlotNotFound is returned when no slot matches the reference.
	ErrSlotNotFound = fmt.Errorf("%w: slot not found", apperr.ErrNotFound)

	// ErrSlotTaken is returned when the conditional reserve loses.
	ErrSlotTaken = fmt.Errorf("%w: slot taken", apperr.ErrConflict)

	// ErrDuplicateStart is returned when a date already has a slot at that start time.
	ErrDuplicateStart = fmt.Errorf("%w: a slot already starts at that time", apperr.ErrConflict)
)

// Slot is one bookable unit of a doctor's day. ID is stable for the slot's
// lifetime; its index in List output is not.
type Slot struct {
	ID         string     `json:"id"`
	StartTime  string     `json:"start_time"`
	EndTime    string     `json:"end_time"`
	Fee        int64      `json:"fee"`
	Booked     bool       `json:"booked"`
	HeldBy     string     `json:"-"`
	ReservedAt *time.Time `json:"-"`
}

// Ref addresses a slot the way bookings do: by doctor, date and start time.
type Ref struct {
	DoctorID  string `json:"doctor_id"`
	DateKey   string `json:"date"`
	StartTime string `json:"start_time"`
}

func (r Ref) String() string {
	return r.DoctorID + "/" + r.DateKey + "/" + r.StartTime
}

// Validate checks the reference is well formed.
func (r Ref) Validate() error {
	if err := validateDay(r.DoctorID, r.DateKey); err != nil {
		return err
	}
	if _, err := ParseClock(r.StartTime); err != nil {
		return err
	}
	return nil
}

// Normalize validates r and returns it with the start time in canonical
// HH:MM form, so "9:00" and " 09:00" address the same slot.
func (r Ref) Normalize() (Ref, error) {
	if err := validateDay(r.DoctorID, r.DateKey); err != nil {
		return Ref{}, err
	}
	start, err := NormalizeClock(r.StartTime)
	if err != nil {
		return Ref{}, err
	}
	r.StartTime = start
	return r, nil
}

// HeldSlot is a booked slot together with its address, used by the
// stranded-reservation sweeper.
type HeldSlot struct {
	Ref  Ref
	Slot Slot
}

// NewSlot is the input of Append.
type NewSlot struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Fee       int64  `json:"fee"`
}

// Validate enforces fee > 0 and start < end.
func (n NewSlot) Validate() error {
	if n.Fee <= 0 {
		return apperr.Validation("fee must be positive")
	}
	start, err := ParseClock(n.StartTime)
	if err != nil {
		return err
	}
	end, err := ParseClock(n.EndTime)
	if err != nil {
		return err
	}
	if !start.Before(end) {
		return apperr.Validation("start time %s must be before end time %s", n.StartTime, n.EndTime)
	}
	return nil
}

// ParseClock parses an HH:MM time of day.
func ParseClock(raw string) (time.Time, error) {
	t, err := time.Parse(ClockLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, apperr.Validation("invalid time %q, expected HH:MM", raw)
	}
	return t, nil
}

// NormalizeClock returns raw in canonical zero-padded HH:MM form.
func NormalizeClock(raw string) (string, error) {
	t, err := ParseClock(raw)
	if err != nil {
		return "", err
	}
	return t.Format(ClockLayout), nil
}

// NormalizeDateKey accepts a YYYY-MM-DD date or an RFC3339 timestamp and
// returns the calendar date in UTC.
func NormalizeDateKey(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(DateKeyLayout, raw); err == nil {
		return t.Format(DateKeyLayout), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC().Format(DateKeyLayout), nil
	}
	return "", apperr.Validation("invalid date %q, expected YYYY-MM-DD", raw)
}

func validateDay(doctorID, dateKey string) error {
	if strings.TrimSpace(doctorID) == "" {
		return apperr.Validation("doctor id required")
	}
	if _, err := time.Parse(DateKeyLayout, dateKey); err != nil {
		return apperr.Validation("invalid date %q, expected YYYY-MM-DD", dateKey)
	}
	return nil
}

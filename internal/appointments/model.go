package appointments

import (
	"time"

	"github.com/wolfman30/clinic-booking/internal/schedule"
)

// Status is derived from the two terminal flags.
type Status string

const (
	StatusBooked    Status = "booked"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// DoctorSnapshot is a point-in-time copy of the doctor's display data taken
// at booking. It is not the authoritative current profile.
type DoctorSnapshot struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Speciality string `json:"speciality,omitempty"`
	Degree     string `json:"degree,omitempty"`
	Address    string `json:"address,omitempty"`
	Image      string `json:"image,omitempty"`
	Fees       int64  `json:"fees,omitempty"`
}

// PatientSnapshot is a point-in-time copy of the patient's display data.
type PatientSnapshot struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Gender string `json:"gender,omitempty"`
	DOB    string `json:"dob,omitempty"`
}

// Appointment is one ledger entry. Only Cancelled and Completed (and their
// timestamps) change after creation.
type Appointment struct {
	ID              string          `json:"id"`
	RequestID       string          `json:"request_id"`
	DoctorID        string          `json:"doctor_id"`
	PatientID       string          `json:"patient_id"`
	DateKey         string          `json:"date"`
	StartTime       string          `json:"start_time"`
	EndTime         string          `json:"end_time"`
	SlotID          string          `json:"slot_id"`
	Amount          int64           `json:"amount"`
	Symptoms        []string        `json:"symptoms"`
	PriorityScore   int             `json:"priority_score"`
	PriorityLevel   string          `json:"priority_level"`
	Diagnosis       string          `json:"diagnosis"`
	Specialty       string          `json:"specialty"`
	KBVersion       string          `json:"kb_version,omitempty"`
	Cancelled       bool            `json:"cancelled"`
	Completed       bool            `json:"completed"`
	DoctorSnapshot  DoctorSnapshot  `json:"doctor_snapshot"`
	PatientSnapshot PatientSnapshot `json:"patient_snapshot"`
	CreatedAt       time.Time       `json:"created_at"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// Status reports the appointment's state.
func (a *Appointment) Status() Status {
	switch {
	case a.Cancelled:
		return StatusCancelled
	case a.Completed:
		return StatusCompleted
	default:
		return StatusBooked
	}
}

// Terminal reports whether no further transition is allowed.
func (a *Appointment) Terminal() bool {
	return a.Cancelled || a.Completed
}

// SlotRef addresses the slot this appointment consumed.
func (a *Appointment) SlotRef() schedule.Ref {
	return schedule.Ref{DoctorID: a.DoctorID, DateKey: a.DateKey, StartTime: a.StartTime}
}

func (a *Appointment) clone() *Appointment {
	out := *a
	out.Symptoms = append([]string(nil), a.Symptoms...)
	if a.CancelledAt != nil {
		t := *a.CancelledAt
		out.CancelledAt = &t
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

package events

import "time"

// Appointment lifecycle event types.
const (
	TypeAppointmentBooked    = "appointments.appointment.booked.v1"
	TypeAppointmentCancelled = "appointments.appointment.cancelled.v1"
	TypeAppointmentCompleted = "appointments.appointment.completed.v1"
)

// AppointmentBookedV1 is emitted once per appointment, after the slot was
// reserved and the ledger entry written.
type AppointmentBookedV1 struct {
	AppointmentID string    `json:"appointment_id"`
	RequestID     string    `json:"request_id"`
	DoctorID      string    `json:"doctor_id"`
	PatientID     string    `json:"patient_id"`
	Date          string    `json:"date"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	Amount        int64     `json:"amount"`
	PriorityScore int       `json:"priority_score"`
	PriorityLevel string    `json:"priority_level"`
	Diagnosis     string    `json:"diagnosis"`
	Specialty     string    `json:"specialty"`
	BookedAt      time.Time `json:"booked_at"`
}

func (AppointmentBookedV1) EventType() string {
	return TypeAppointmentBooked
}

func (e AppointmentBookedV1) OccurredAt() time.Time { return e.BookedAt }

// AppointmentCancelledV1 captures who cancelled and when.
type AppointmentCancelledV1 struct {
	AppointmentID string    `json:"appointment_id"`
	DoctorID      string    `json:"doctor_id"`
	PatientID     string    `json:"patient_id"`
	Date          string    `json:"date"`
	StartTime     string    `json:"start_time"`
	CancelledBy   string    `json:"cancelled_by"`
	CancelledRole string    `json:"cancelled_role"`
	CancelledAt   time.Time `json:"cancelled_at"`
}

func (AppointmentCancelledV1) EventType() string {
	return TypeAppointmentCancelled
}

func (e AppointmentCancelledV1) OccurredAt() time.Time { return e.CancelledAt }

type AppointmentCompletedV1 struct {
	AppointmentID string    `json:"appointment_id"`
	DoctorID      string    `json:"doctor_id"`
	PatientID     string    `json:"patient_id"`
	CompletedAt   time.Time `json:"completed_at"`
}

func (AppointmentCompletedV1) EventType() string {
	return TypeAppointmentCompleted
}

func (e AppointmentCompletedV1) OccurredAt() time.Time { return e.CompletedAt }

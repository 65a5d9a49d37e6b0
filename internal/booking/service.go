package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-booking/internal/apperr"
	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/directory"
	"github.com/wolfman30/clinic-booking/internal/events"
	"github.com/wolfman30/clinic-booking/internal/identity"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/triage"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

var serviceTracer = otel.Tracer("clinic.internal.booking.service")

// Appointment lifecycle transitions recorded in metrics.
const (
	TransitionBooked    = "booked"
	TransitionCancelled = "cancelled"
	TransitionCompleted = "completed"
)

// BookRequest is a patient's request for one slot.
type BookRequest struct {
	RequestID string   `json:"-"`
	PatientID string   `json:"patient_id,omitempty"`
	DoctorID  string   `json:"doctor_id"`
	Date      string   `json:"date"`
	StartTime string   `json:"start_time"`
	Symptoms  []string `json:"symptoms"`
}

// Service composes triage, reservation and the ledger into the booking flow.
type Service struct {
	coordinator *Coordinator
	ledger      *appointments.Ledger
	classifier  *triage.Classifier
	directory   directory.Directory
	publisher   events.Publisher
	metrics     *metrics.BookingMetrics
	logger      *logging.Logger
	now         func() time.Time
}

// NewService wires the booking flow. Directory and event publishing are
// optional and attached with the With* methods.
func NewService(coordinator *Coordinator, ledger *appointments.Ledger, classifier *triage.Classifier, logger *logging.Logger) *Service {
	if coordinator == nil {
		panic("booking: coordinator required")
	}
	if ledger == nil {
		panic("booking: ledger required")
	}
	if classifier == nil {
		panic("booking: classifier required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		coordinator: coordinator,
		ledger:      ledger,
		classifier:  classifier,
		logger:      logger,
		now:         time.Now,
	}
}

// WithDirectory sets the profile source used for booking snapshots.
func (s *Service) WithDirectory(dir directory.Directory) *Service {
	s.directory = dir
	return s
}

// WithEvents sets the lifecycle event publisher.
func (s *Service) WithEvents(pub events.Publisher) *Service {
	s.publisher = pub
	return s
}

// WithMetrics sets the metrics sink.
func (s *Service) WithMetrics(m *metrics.BookingMetrics) *Service {
	s.metrics = m
	return s
}

// Book triages the symptoms, reserves the slot and records the appointment.
// The request id doubles as the slot holder, so a retry with the same id
// returns the original appointment with existed=true.
func (s *Service) Book(ctx context.Context, caller identity.Caller, req BookRequest) (*appointments.Appointment, bool, error) {
	ctx, span := serviceTracer.Start(ctx, "booking.book")
	defer span.End()

	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.PatientID == "" && caller.Role == identity.RolePatient {
		req.PatientID = caller.ID
	}
	if !caller.IsAdmin() && !caller.Is(identity.RolePatient, req.PatientID) {
		return nil, false, apperr.Unauthorized("patients may only book for themselves")
	}
	if req.PatientID == "" || strings.TrimSpace(req.DoctorID) == "" {
		return nil, false, apperr.Validation("doctor_id and patient_id are required")
	}
	date, err := schedule.NormalizeDateKey(req.Date)
	if err != nil {
		return nil, false, err
	}
	ref, err := schedule.Ref{DoctorID: req.DoctorID, DateKey: date, StartTime: req.StartTime}.Normalize()
	if err != nil {
		return nil, false, err
	}
	span.SetAttributes(
		attribute.String("booking.request_id", req.RequestID),
		attribute.String("slot.doctor_id", ref.DoctorID),
		attribute.String("slot.date", ref.DateKey),
		attribute.String("slot.start_time", ref.StartTime),
	)

	existing, err := s.ledger.Repository().GetByRequestID(ctx, req.RequestID)
	switch {
	case err == nil:
		if existing.PatientID != req.PatientID || existing.SlotRef() != ref {
			return nil, false, apperr.Conflict("idempotency key reused for a different booking")
		}
		return existing, true, nil
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, false, err
	}

	doctor, err := s.doctorSnapshot(ctx, req.DoctorID)
	if err != nil {
		return nil, false, err
	}
	patient, err := s.patientSnapshot(ctx, req.PatientID)
	if err != nil {
		return nil, false, err
	}

	result := s.classifier.Triage(req.Symptoms)
	s.metrics.ObserveTriage(string(result.PriorityLevel))

	reservation, err := s.coordinator.Reserve(ctx, ref, req.RequestID)
	if err != nil {
		return nil, false, err
	}

	symptoms := make([]string, len(result.Symptoms))
	for i, sym := range result.Symptoms {
		symptoms[i] = string(sym)
	}
	appt, existed, err := s.ledger.Create(ctx, appointments.Appointment{
		RequestID:       req.RequestID,
		DoctorID:        ref.DoctorID,
		PatientID:       req.PatientID,
		DateKey:         ref.DateKey,
		StartTime:       ref.StartTime,
		EndTime:         reservation.Slot.EndTime,
		SlotID:          reservation.Slot.ID,
		Amount:          reservation.Fee,
		Symptoms:        symptoms,
		PriorityScore:   result.PriorityScore,
		PriorityLevel:   string(result.PriorityLevel),
		Diagnosis:       string(result.Diagnosis),
		Specialty:       result.Specialty,
		KBVersion:       result.KBVersion,
		DoctorSnapshot:  doctor,
		PatientSnapshot: patient,
	})
	if err != nil {
		return nil, false, s.compensate(ctx, ref, req.RequestID, err)
	}
	if existed {
		return appt, true, nil
	}

	s.metrics.ObserveTransition(TransitionBooked)
	s.publish(ctx, appt.ID, req.RequestID, events.AppointmentBookedV1{
		AppointmentID: appt.ID,
		RequestID:     appt.RequestID,
		DoctorID:      appt.DoctorID,
		PatientID:     appt.PatientID,
		Date:          appt.DateKey,
		StartTime:     appt.StartTime,
		EndTime:       appt.EndTime,
		Amount:        appt.Amount,
		PriorityScore: appt.PriorityScore,
		PriorityLevel: appt.PriorityLevel,
		Diagnosis:     appt.Diagnosis,
		Specialty:     appt.Specialty,
		BookedAt:      appt.CreatedAt,
	})
	return appt, false, nil
}

// compensate handles a failed ledger write after a successful reserve. A
// rejected write frees the slot again; an unconfirmed one keeps the hold so a
// retry with the same request id can finish the booking.
func (s *Service) compensate(ctx context.Context, ref schedule.Ref, requestID string, createErr error) error {
	if apperr.IsDomain(createErr) {
		if _, err := s.coordinator.Release(context.WithoutCancel(ctx), ref, requestID); err != nil {
			s.logger.Warn("release after rejected appointment failed",
				"doctor_id", ref.DoctorID, "date", ref.DateKey, "start_time", ref.StartTime,
				"request_id", requestID, "error", err,
			)
		}
		return createErr
	}

	s.metrics.ObserveStranded()
	s.logger.Error("slot reserved but appointment not recorded",
		"doctor_id", ref.DoctorID,
		"date", ref.DateKey,
		"start_time", ref.StartTime,
		"request_id", requestID,
		"error", createErr,
	)
	return fmt.Errorf("%w: appointment for %s not recorded, retry with same Idempotency-Key: %v", apperr.ErrUnavailable, ref, createErr)
}

// Cancel cancels the appointment and frees its slot.
func (s *Service) Cancel(ctx context.Context, caller identity.Caller, id string) (*appointments.Appointment, error) {
	ctx, span := serviceTracer.Start(ctx, "booking.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", id))

	appt, err := s.ledger.Cancel(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(TransitionCancelled)
	at := s.now().UTC()
	if appt.CancelledAt != nil {
		at = *appt.CancelledAt
	}
	s.publish(ctx, appt.ID, appt.RequestID, events.AppointmentCancelledV1{
		AppointmentID: appt.ID,
		DoctorID:      appt.DoctorID,
		PatientID:     appt.PatientID,
		Date:          appt.DateKey,
		StartTime:     appt.StartTime,
		CancelledBy:   caller.ID,
		CancelledRole: string(caller.Role),
		CancelledAt:   at,
	})
	return appt, nil
}

// Complete marks the appointment completed.
func (s *Service) Complete(ctx context.Context, caller identity.Caller, id string) (*appointments.Appointment, error) {
	ctx, span := serviceTracer.Start(ctx, "booking.complete")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", id))

	appt, err := s.ledger.Complete(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(TransitionCompleted)
	at := s.now().UTC()
	if appt.CompletedAt != nil {
		at = *appt.CompletedAt
	}
	s.publish(ctx, appt.ID, appt.RequestID, events.AppointmentCompletedV1{
		AppointmentID: appt.ID,
		DoctorID:      appt.DoctorID,
		PatientID:     appt.PatientID,
		CompletedAt:   at,
	})
	return appt, nil
}

// Get returns one appointment visible to the caller.
func (s *Service) Get(ctx context.Context, caller identity.Caller, id string) (*appointments.Appointment, error) {
	return s.ledger.Get(ctx, id, caller)
}

// ListForCaller returns the caller's own appointments: a patient's bookings
// newest first, a doctor's full queue, or everything for an admin.
func (s *Service) ListForCaller(ctx context.Context, caller identity.Caller) ([]*appointments.Appointment, error) {
	repo := s.ledger.Repository()
	switch caller.Role {
	case identity.RolePatient:
		return repo.ListByPatient(ctx, caller.ID)
	case identity.RoleDoctor:
		return repo.ListByDoctor(ctx, caller.ID, false)
	case identity.RoleAdmin:
		return repo.ListAll(ctx)
	}
	return nil, apperr.Unauthorized("unknown caller role %q", caller.Role)
}

// DoctorQueue returns a doctor's appointments by priority. Only active
// appointments are included unless includeAll is set.
func (s *Service) DoctorQueue(ctx context.Context, caller identity.Caller, doctorID string, includeAll bool) ([]*appointments.Appointment, error) {
	if !caller.CanManageSchedule(doctorID) {
		return nil, apperr.Unauthorized("caller may not view queue of doctor %s", doctorID)
	}
	return s.ledger.Repository().ListByDoctor(ctx, doctorID, !includeAll)
}

func (s *Service) doctorSnapshot(ctx context.Context, doctorID string) (appointments.DoctorSnapshot, error) {
	snap := appointments.DoctorSnapshot{ID: doctorID}
	if s.directory == nil {
		return snap, nil
	}
	p, err := s.directory.Doctor(ctx, doctorID)
	if errors.Is(err, directory.ErrProfileNotFound) {
		s.logger.Debug("doctor profile missing, booking with id only", "doctor_id", doctorID)
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("booking: load doctor profile: %w", err)
	}
	if !p.Available {
		return snap, apperr.NotFound("doctor not found or not available")
	}
	snap.Name = p.Name
	snap.Speciality = p.Speciality
	snap.Degree = p.Degree
	snap.Address = p.Address
	snap.Image = p.Image
	snap.Fees = p.Fees
	return snap, nil
}

func (s *Service) patientSnapshot(ctx context.Context, patientID string) (appointments.PatientSnapshot, error) {
	snap := appointments.PatientSnapshot{ID: patientID}
	if s.directory == nil {
		return snap, nil
	}
	p, err := s.directory.Patient(ctx, patientID)
	if errors.Is(err, directory.ErrProfileNotFound) {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("booking: load patient profile: %w", err)
	}
	snap.Name = p.Name
	snap.Email = p.Email
	snap.Phone = p.Phone
	snap.Gender = p.Gender
	snap.DOB = p.DOB
	return snap, nil
}

func (s *Service) publish(ctx context.Context, appointmentID, correlationID string, evt events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.AppointmentAggregate(appointmentID), correlationID, evt); err != nil {
		s.logger.Warn("appointment event not published",
			"appointment_id", appointmentID,
			"type", evt.EventType(),
			"error", err,
		)
	}
}

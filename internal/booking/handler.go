package booking

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-booking/internal/apperr"
	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/http/respond"
	"github.com/wolfman30/clinic-booking/internal/identity"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// IdempotencyKeyHeader carries the client's booking request id.
const IdempotencyKeyHeader = "Idempotency-Key"

// Handler serves appointment and slot reservation endpoints.
type Handler struct {
	service     *Service
	coordinator *Coordinator
	logger      *logging.Logger
}

// NewHandler creates a booking handler.
func NewHandler(service *Service, coordinator *Coordinator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, coordinator: coordinator, logger: logger}
}

// ListAppointmentsResponse wraps appointment listings.
type ListAppointmentsResponse struct {
	Appointments []*appointments.Appointment `json:"appointments"`
}

// Book handles POST /v1/appointments
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, "invalid JSON body")
		return
	}
	req.RequestID = r.Header.Get(IdempotencyKeyHeader)

	appt, existed, err := h.service.Book(r.Context(), caller, req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	w.Header().Set(IdempotencyKeyHeader, appt.RequestID)
	respond.JSON(w, status, appt)
}

// List handles GET /v1/appointments
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	appts, err := h.service.ListForCaller(r.Context(), caller)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, ListAppointmentsResponse{Appointments: nonNil(appts)})
}

// Get handles GET /v1/appointments/{appointmentID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	appt, err := h.service.Get(r.Context(), caller, chi.URLParam(r, "appointmentID"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, appt)
}

// Cancel handles POST /v1/appointments/{appointmentID}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	appt, err := h.service.Cancel(r.Context(), caller, chi.URLParam(r, "appointmentID"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, appt)
}

// Complete handles POST /v1/appointments/{appointmentID}/complete
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	appt, err := h.service.Complete(r.Context(), caller, chi.URLParam(r, "appointmentID"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, appt)
}

// DoctorQueue handles GET /v1/doctors/{doctorID}/appointments?all=true
func (h *Handler) DoctorQueue(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	includeAll := false
	if raw := r.URL.Query().Get("all"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respond.BadRequest(w, "all must be a boolean")
			return
		}
		includeAll = v
	}
	appts, err := h.service.DoctorQueue(r.Context(), caller, chi.URLParam(r, "doctorID"), includeAll)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, ListAppointmentsResponse{Appointments: nonNil(appts)})
}

// SlotActionRequest addresses a slot for the reserve and release endpoints.
type SlotActionRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	Holder    string `json:"holder,omitempty"`
}

// ReleaseResponse reports whether a release changed the slot.
type ReleaseResponse struct {
	Released bool `json:"released"`
}

// ReserveSlot handles POST /v1/doctors/{doctorID}/slots/reserve
func (h *Handler) ReserveSlot(w http.ResponseWriter, r *http.Request) {
	ref, holder, ok := h.slotAction(w, r)
	if !ok {
		return
	}
	res, err := h.coordinator.Reserve(r.Context(), ref, holder)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

// ReleaseSlot handles POST /v1/doctors/{doctorID}/slots/release
func (h *Handler) ReleaseSlot(w http.ResponseWriter, r *http.Request) {
	ref, holder, ok := h.slotAction(w, r)
	if !ok {
		return
	}
	released, err := h.coordinator.Release(r.Context(), ref, holder)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, ReleaseResponse{Released: released})
}

func (h *Handler) slotAction(w http.ResponseWriter, r *http.Request) (schedule.Ref, string, bool) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return schedule.Ref{}, "", false
	}
	doctorID := chi.URLParam(r, "doctorID")
	if !caller.CanManageSchedule(doctorID) {
		respond.Error(w, r, h.logger, apperr.Unauthorized("caller cannot manage schedule of doctor %s", doctorID))
		return schedule.Ref{}, "", false
	}
	var req SlotActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, "invalid JSON body")
		return schedule.Ref{}, "", false
	}
	date, err := schedule.NormalizeDateKey(req.Date)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return schedule.Ref{}, "", false
	}
	ref, err := schedule.Ref{DoctorID: doctorID, DateKey: date, StartTime: req.StartTime}.Normalize()
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return schedule.Ref{}, "", false
	}
	holder := req.Holder
	if holder == "" {
		holder = r.Header.Get(IdempotencyKeyHeader)
	}
	return ref, holder, true
}

func requireCaller(w http.ResponseWriter, r *http.Request) (identity.Caller, bool) {
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok {
		respond.Unauthorized(w, "authentication required")
	}
	return caller, ok
}

func nonNil(appts []*appointments.Appointment) []*appointments.Appointment {
	if appts == nil {
		return []*appointments.Appointment{}
	}
	return appts
}

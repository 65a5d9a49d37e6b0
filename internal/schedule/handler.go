package schedule

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-booking/internal/apperr"
	"github.com/wolfman30/clinic-booking/internal/http/respond"
	"github.com/wolfman30/clinic-booking/internal/identity"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Handler serves doctor availability endpoints.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates a schedule handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// SlotView is a slot as returned to clients, with its current index.
type SlotView struct {
	Index int `json:"index"`
	Slot
}

// ListResponse is the body of the list-slots endpoint.
type ListResponse struct {
	DoctorID string     `json:"doctor_id"`
	Date     string     `json:"date"`
	Slots    []SlotView `json:"slots"`
}

// ListSlots handles GET /v1/doctors/{doctorID}/slots?date=YYYY-MM-DD
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	date, err := NormalizeDateKey(r.URL.Query().Get("date"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	slots, err := h.store.List(r.Context(), doctorID, date)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	views := make([]SlotView, len(slots))
	for i, s := range slots {
		views[i] = SlotView{Index: i, Slot: s}
	}
	respond.JSON(w, http.StatusOK, ListResponse{DoctorID: doctorID, Date: date, Slots: views})
}

// AddSlotRequest is the body of the add-slot endpoint.
type AddSlotRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Fee       int64  `json:"fee"`
}

// AddSlot handles POST /v1/doctors/{doctorID}/slots
func (h *Handler) AddSlot(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var req AddSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, "invalid JSON body")
		return
	}
	date, err := NormalizeDateKey(req.Date)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	slot, err := h.store.Add(r.Context(), doctorID, date, NewSlot{
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Fee:       req.Fee,
	})
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, slot)
}

// RemoveSlotAt handles DELETE /v1/doctors/{doctorID}/slots/{index}?date=
//
// The index is only meaningful against the list the caller last read; a
// concurrent removal shifts it. RemoveSlotByID is the stable form.
func (h *Handler) RemoveSlotAt(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	date, err := NormalizeDateKey(r.URL.Query().Get("date"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respond.Error(w, r, h.logger, apperr.Validation("index must be an integer"))
		return
	}
	removed, err := h.store.RemoveAt(r.Context(), doctorID, date, index)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, removed)
}

// RemoveSlotByID handles DELETE /v1/doctors/{doctorID}/slots/id/{slotID}?date=
func (h *Handler) RemoveSlotByID(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	date, err := NormalizeDateKey(r.URL.Query().Get("date"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	removed, err := h.store.RemoveByID(r.Context(), doctorID, date, chi.URLParam(r, "slotID"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, removed)
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	doctorID := chi.URLParam(r, "doctorID")
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok {
		respond.Unauthorized(w, "authentication required")
		return "", false
	}
	if !caller.CanManageSchedule(doctorID) {
		respond.Error(w, r, h.logger, apperr.Unauthorized("caller cannot manage schedule of doctor %s", doctorID))
		return "", false
	}
	return doctorID, true
}

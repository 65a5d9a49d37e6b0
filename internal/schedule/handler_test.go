package schedule

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/internal/http/respond"
	"github.com/wolfman30/clinic-booking/internal/identity"
)

func newScheduleRouter(store *Store) http.Handler {
	h := NewHandler(store, nil)
	r := chi.NewRouter()
	r.Get("/doctors/{doctorID}/slots", h.ListSlots)
	r.Post("/doctors/{doctorID}/slots", h.AddSlot)
	r.Delete("/doctors/{doctorID}/slots/{index}", h.RemoveSlotAt)
	r.Delete("/doctors/{doctorID}/slots/id/{slotID}", h.RemoveSlotByID)
	return r
}

func asCaller(req *http.Request, role identity.Role, id string) *http.Request {
	return req.WithContext(identity.WithCaller(req.Context(), identity.Caller{ID: id, Role: role}))
}

func TestHandler_AddAndListSlots(t *testing.T) {
	store := NewStore(NewMemoryBackend(), nil)
	router := newScheduleRouter(store)

	body := `{"date":"2024-05-01","start_time":"09:00","end_time":"09:30","fee":50}`
	req := asCaller(httptest.NewRequest(http.MethodPost, "/doctors/doc-1/slots", strings.NewReader(body)), identity.RoleDoctor, "doc-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/doctors/doc-1/slots?date=2024-05-01", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Slots, 1)
	assert.Equal(t, 0, resp.Slots[0].Index)
	assert.Equal(t, int64(50), resp.Slots[0].Fee)
	assert.False(t, resp.Slots[0].Booked)
	assert.NotContains(t, rec.Body.String(), "held_by")
}

func TestHandler_AddSlotRejectsOtherDoctor(t *testing.T) {
	router := newScheduleRouter(NewStore(NewMemoryBackend(), nil))
	body := `{"date":"2024-05-01","start_time":"09:00","end_time":"09:30","fee":50}`

	req := asCaller(httptest.NewRequest(http.MethodPost, "/doctors/doc-1/slots", strings.NewReader(body)), identity.RoleDoctor, "doc-2")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/doctors/doc-1/slots", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_AddSlotValidationKind(t *testing.T) {
	router := newScheduleRouter(NewStore(NewMemoryBackend(), nil))
	body := `{"date":"2024-05-01","start_time":"10:00","end_time":"09:30","fee":50}`
	req := asCaller(httptest.NewRequest(http.MethodPost, "/doctors/doc-1/slots", strings.NewReader(body)), identity.RoleAdmin, "admin-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errBody respond.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "validation", errBody.Kind)
}

func TestHandler_RemoveSlotAtOutOfRange(t *testing.T) {
	store := NewStore(NewMemoryBackend(), nil)
	_, err := store.Add(context.Background(), "doc-1", "2024-05-01", NewSlot{StartTime: "09:00", EndTime: "09:30", Fee: 50})
	require.NoError(t, err)
	router := newScheduleRouter(store)

	req := asCaller(httptest.NewRequest(http.MethodDelete, "/doctors/doc-1/slots/3?date=2024-05-01", nil), identity.RoleDoctor, "doc-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = asCaller(httptest.NewRequest(http.MethodDelete, "/doctors/doc-1/slots/0?date=2024-05-01", nil), identity.RoleDoctor, "doc-1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_RemoveSlotByID(t *testing.T) {
	store := NewStore(NewMemoryBackend(), nil)
	created, err := store.Add(context.Background(), "doc-1", "2024-05-01", NewSlot{StartTime: "09:00", EndTime: "09:30", Fee: 50})
	require.NoError(t, err)
	router := newScheduleRouter(store)

	req := asCaller(httptest.NewRequest(http.MethodDelete, "/doctors/doc-1/slots/id/"+created.ID+"?date=2024-05-01", nil), identity.RoleDoctor, "doc-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	slots, err := store.List(context.Background(), "doc-1", "2024-05-01")
	require.NoError(t, err)
	assert.Empty(t, slots)
}

package booking

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/http/respond"
	"github.com/wolfman30/clinic-booking/internal/identity"
)

func newBookingRouter(f *serviceFixture) http.Handler {
	h := NewHandler(f.service, f.service.coordinator, nil)
	r := chi.NewRouter()
	r.Post("/appointments", h.Book)
	r.Get("/appointments", h.List)
	r.Get("/appointments/{appointmentID}", h.Get)
	r.Post("/appointments/{appointmentID}/cancel", h.Cancel)
	r.Post("/appointments/{appointmentID}/complete", h.Complete)
	r.Get("/doctors/{doctorID}/appointments", h.DoctorQueue)
	r.Post("/doctors/{doctorID}/slots/reserve", h.ReserveSlot)
	r.Post("/doctors/{doctorID}/slots/release", h.ReleaseSlot)
	return r
}

func do(t *testing.T, router http.Handler, method, path, body string, caller *identity.Caller, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if caller != nil {
		req = req.WithContext(identity.WithCaller(req.Context(), *caller))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const bookBody = `{"doctor_id":"doc-1","date":"2024-05-01","start_time":"09:00","symptoms":["fever"]}`

func TestHandler_BookIsIdempotentByHeader(t *testing.T) {
	f := newServiceFixture(t)
	router := newBookingRouter(f)
	pat := patient("pat-1")
	key := map[string]string{IdempotencyKeyHeader: "key-123"}

	rec := do(t, router, http.MethodPost, "/appointments", bookBody, &pat, key)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first appointments.Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, "key-123", first.RequestID)
	assert.Equal(t, "key-123", rec.Header().Get(IdempotencyKeyHeader))

	rec = do(t, router, http.MethodPost, "/appointments", bookBody, &pat, key)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var second appointments.Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, first.ID, second.ID)
}

func TestHandler_BookConflictAndAuth(t *testing.T) {
	f := newServiceFixture(t)
	router := newBookingRouter(f)

	rec := do(t, router, http.MethodPost, "/appointments", bookBody, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	pat1, pat2 := patient("pat-1"), patient("pat-2")
	rec = do(t, router, http.MethodPost, "/appointments", bookBody, &pat1, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodPost, "/appointments", bookBody, &pat2, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	var body respond.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "conflict", body.Kind)

	rec = do(t, router, http.MethodPost, "/appointments", `{"doctor_id":"doc-1","date":"May 1","start_time":"09:00"}`, &pat2, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/appointments", `{`, &pat2, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_AppointmentLifecycle(t *testing.T) {
	f := newServiceFixture(t)
	router := newBookingRouter(f)
	pat := patient("pat-1")
	doc := doctor(testDoctor)
	stranger := patient("pat-9")

	rec := do(t, router, http.MethodPost, "/appointments", bookBody, &pat, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var appt appointments.Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appt))

	rec = do(t, router, http.MethodGet, "/appointments/"+appt.ID, "", &stranger, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodGet, "/appointments/"+appt.ID, "", &doc, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/appointments/missing", "", &pat, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/doctors/doc-1/appointments", "", &doc, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var queue ListAppointmentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queue))
	assert.Len(t, queue.Appointments, 1)

	rec = do(t, router, http.MethodPost, "/appointments/"+appt.ID+"/cancel", "", &pat, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, "/appointments/"+appt.ID+"/cancel", "", &pat, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodPost, "/appointments/"+appt.ID+"/complete", "", &doc, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodGet, "/doctors/doc-1/appointments", "", &doc, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queue))
	assert.Empty(t, queue.Appointments)

	rec = do(t, router, http.MethodGet, "/doctors/doc-1/appointments?all=true", "", &doc, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queue))
	assert.Len(t, queue.Appointments, 1)

	rec = do(t, router, http.MethodGet, "/doctors/doc-1/appointments?all=maybe", "", &doc, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/appointments", "", &pat, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queue))
	assert.Len(t, queue.Appointments, 1)
	assert.True(t, queue.Appointments[0].Cancelled)
}

func TestHandler_ReserveAndReleaseSlot(t *testing.T) {
	f := newServiceFixture(t)
	router := newBookingRouter(f)
	doc := doctor(testDoctor)
	other := doctor("doc-2")
	body := `{"date":"2024-05-01","start_time":"10:00","holder":"walk-in-1"}`

	rec := do(t, router, http.MethodPost, "/doctors/doc-1/slots/reserve", body, &other, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodPost, "/doctors/doc-1/slots/reserve", body, &doc, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res Reservation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "walk-in-1", res.Holder)
	assert.Equal(t, int64(75), res.Fee)

	rec = do(t, router, http.MethodPost, "/doctors/doc-1/slots/reserve", `{"date":"2024-05-01","start_time":"10:00","holder":"walk-in-2"}`, &doc, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodPost, "/doctors/doc-1/slots/release", body, &doc, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rel ReleaseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rel))
	assert.True(t, rel.Released)

	rec = do(t, router, http.MethodPost, "/doctors/doc-1/slots/reserve", `{"date":"2024-05-01","start_time":"25:00"}`, &doc, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newOutboxStoreWithExec(mock)

	eventID := EventID("appointment:a-1", TypeAppointmentBooked)
	mock.ExpectExec("INSERT INTO outbox .* ON CONFLICT \\(id\\) DO NOTHING").
		WithArgs(eventID, "appointment:a-1", TypeAppointmentBooked, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// A second publish of the same event inserts nothing.
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(eventID, "appointment:a-1", TypeAppointmentBooked, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	for i := 0; i < 2; i++ {
		if err := store.Publish(context.Background(), AppointmentAggregate("a-1"), "req-1", AppointmentBookedV1{AppointmentID: "a-1"}); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "aggregate", "event_type", "payload", "created_at"}).
		AddRow(id, "appointment:a-1", TypeAppointmentBooked, []byte(`{"event_type":"appointments.appointment.booked.v1"}`), now)
	mock.ExpectQuery("SELECT id, aggregate, event_type").WithArgs(int32(10)).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch pending failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id {
		t.Fatalf("unexpected entries: %#v", entries)
	}
	env, err := entries[0].Envelope()
	require.NoError(t, err)
	assert.Equal(t, TypeAppointmentBooked, env.EventType)

	mock.ExpectExec("UPDATE outbox").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), id)
	if err != nil {
		t.Fatalf("mark delivered failed: %v", err)
	}
	if !ok {
		t.Fatal("expected mark delivered to report success")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

type memoryPending struct {
	entries   []OutboxEntry
	delivered map[uuid.UUID]bool
}

func (m *memoryPending) FetchPending(_ context.Context, limit int32) ([]OutboxEntry, error) {
	var out []OutboxEntry
	for _, e := range m.entries {
		if !m.delivered[e.ID] && int32(len(out)) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryPending) MarkDelivered(_ context.Context, id uuid.UUID) (bool, error) {
	if m.delivered[id] {
		return false, nil
	}
	m.delivered[id] = true
	return true, nil
}

type flakyHandler struct {
	fail    map[uuid.UUID]bool
	handled []uuid.UUID
}

func (h *flakyHandler) Handle(_ context.Context, entry OutboxEntry) error {
	if h.fail[entry.ID] {
		return errors.New("sink unavailable")
	}
	h.handled = append(h.handled, entry.ID)
	return nil
}

func TestDelivererDrainLeavesFailedEntriesPending(t *testing.T) {
	ok1, bad, ok2 := uuid.New(), uuid.New(), uuid.New()
	store := &memoryPending{
		entries:   []OutboxEntry{{ID: ok1}, {ID: bad}, {ID: ok2}},
		delivered: map[uuid.UUID]bool{},
	}
	handler := &flakyHandler{fail: map[uuid.UUID]bool{bad: true}}
	d := &Deliverer{store: store, handler: handler, logger: logging.Default(), batchSize: 10, interval: time.Second}

	assert.Equal(t, 2, d.drain(context.Background()))
	assert.False(t, store.delivered[bad])

	handler.fail = nil
	assert.Equal(t, 1, d.drain(context.Background()))
	assert.True(t, store.delivered[bad])
}

func TestDelivererStartWithoutStoreReturns(t *testing.T) {
	d := NewDeliverer(nil, NewLogHandler(nil), nil)
	done := make(chan struct{})
	go func() {
		d.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start should return immediately without a store")
	}
}

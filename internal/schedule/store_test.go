package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/internal/apperr"
)

func TestStore_AddValidation(t *testing.T) {
	store := NewStore(NewMemoryBackend(), nil)
	ctx := context.Background()

	cases := []struct {
		name    string
		doctor  string
		date    string
		slot    NewSlot
		wantErr bool
	}{
		{name: "valid", doctor: "doc-1", date: "2024-05-01", slot: NewSlot{StartTime: "09:00", EndTime: "09:30", Fee: 50}},
		{name: "zero fee", doctor: "doc-1", date: "2024-05-01", slot: NewSlot{StartTime: "10:00", EndTime: "10:30", Fee: 0}, wantErr: true},
		{name: "negative fee", doctor: "doc-1", date: "2024-05-01", slot: NewSlot{StartTime: "10:00", EndTime: "10:30", Fee: -5}, wantErr: true},
		{name: "start equals end", doctor: "doc-1", date: "2024-05-01", slot: NewSlot{StartTime: "10:00", EndTime: "10:00", Fee: 50}, wantErr: true},
		{name: "start after end", doctor: "doc-1", date: "2024-05-01", slot: NewSlot{StartTime: "11:00", EndTime: "10:00", Fee: 50}, wantErr: true},
		{name: "bad clock", doctor: "doc-1", date: "2024-05-01", slot: NewSlot{StartTime: "9am", EndTime: "10:00", Fee: 50}, wantErr: true},
		{name: "bad date", doctor: "doc-1", date: "05/01/2024", slot: NewSlot{StartTime: "10:00", EndTime: "10:30", Fee: 50}, wantErr: true},
		{name: "missing doctor", doctor: " ", date: "2024-05-01", slot: NewSlot{StartTime: "10:00", EndTime: "10:30", Fee: 50}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.Add(ctx, tc.doctor, tc.date, tc.slot)
			if tc.wantErr {
				assert.ErrorIs(t, err, apperr.ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestStore_ListUnknownIsEmptyNotNil(t *testing.T) {
	store := NewStore(NewMemoryBackend(), nil)
	slots, err := store.List(context.Background(), "doc-unknown", "2030-01-01")
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

// Removing index 2 of three slots leaves two; the stale index then points at nothing.
func TestStore_RemoveAtShiftsIndices(t *testing.T) {
	store := NewStore(NewMemoryBackend(), nil)
	ctx := context.Background()
	for _, start := range []string{"09:00", "10:00", "11:00"} {
		_, err := store.Add(ctx, "doc-1", "2024-05-01", NewSlot{StartTime: start, EndTime: start[:3] + "30", Fee: 50})
		require.NoError(t, err)
	}

	removed, err := store.RemoveAt(ctx, "doc-1", "2024-05-01", 2)
	require.NoError(t, err)
	assert.Equal(t, "11:00", removed.StartTime)

	slots, err := store.List(ctx, "doc-1", "2024-05-01")
	require.NoError(t, err)
	assert.Len(t, slots, 2)

	_, err = store.RemoveAt(ctx, "doc-1", "2024-05-01", 2)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = store.RemoveAt(ctx, "doc-1", "2024-05-01", -1)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestStore_StartTimesAreCanonical(t *testing.T) {
	store := NewStore(NewMemoryBackend(), nil)
	ctx := context.Background()

	created, err := store.Add(ctx, "doc-1", "2024-05-01", NewSlot{StartTime: "9:00", EndTime: " 9:30 ", Fee: 50})
	require.NoError(t, err)
	assert.Equal(t, "09:00", created.StartTime)
	assert.Equal(t, "09:30", created.EndTime)

	_, err = store.Add(ctx, "doc-1", "2024-05-01", NewSlot{StartTime: "09:00", EndTime: "09:45", Fee: 50})
	assert.ErrorIs(t, err, ErrDuplicateStart)

	slots, err := store.List(ctx, "doc-1", "2024-05-01")
	require.NoError(t, err)
	assert.Len(t, slots, 1)

	ref := Ref{DoctorID: "doc-1", DateKey: "2024-05-01", StartTime: " 09:00"}
	got, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	reserved, err := store.Reserve(ctx, ref, "req-1")
	require.NoError(t, err)
	assert.True(t, reserved.Booked)

	released, err := store.Release(ctx, Ref{DoctorID: "doc-1", DateKey: "2024-05-01", StartTime: "9:00"}, "req-1")
	require.NoError(t, err)
	assert.True(t, released)
}

func TestRefNormalize(t *testing.T) {
	ref, err := Ref{DoctorID: "doc-1", DateKey: "2024-05-01", StartTime: "7:05"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "07:05", ref.StartTime)

	_, err = Ref{DoctorID: "doc-1", DateKey: "2024-05-01", StartTime: "25:00"}.Normalize()
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = Ref{DoctorID: "", DateKey: "2024-05-01", StartTime: "09:00"}.Normalize()
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestStore_ReserveRequiresHolder(t *testing.T) {
	store := NewStore(NewMemoryBackend(), nil)
	_, err := store.Reserve(context.Background(), Ref{DoctorID: "doc-1", DateKey: "2024-05-01", StartTime: "09:00"}, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestStore_ListHeldUnsupported(t *testing.T) {
	store := NewStore(NewDynamoBackend(newFakeDynamo(), "doctor_slots"), nil)
	_, err := store.ListHeld(context.Background(), time.Now(), 10)
	assert.ErrorIs(t, err, ErrHeldListingUnsupported)
}

func TestNormalizeDateKey(t *testing.T) {
	got, err := NormalizeDateKey("2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", got)

	got, err = NormalizeDateKey("2024-05-01T23:30:00-02:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-02", got)

	_, err = NormalizeDateKey("")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestNewStorePanicsOnNilBackend(t *testing.T) {
	assert.Panics(t, func() { NewStore(nil, nil) })
}

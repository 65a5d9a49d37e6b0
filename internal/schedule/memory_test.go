package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/internal/apperr"
)

// backendContract runs the behaviour every Backend must share.
func backendContract(t *testing.T, newBackend func(t *testing.T) Backend) {
	ctx := context.Background()
	const doc, day = "doc-1", "2024-05-01"
	ref := Ref{DoctorID: doc, DateKey: day, StartTime: "09:00"}

	t.Run("list unknown day is empty", func(t *testing.T) {
		slots, err := newBackend(t).List(ctx, "nobody", day)
		require.NoError(t, err)
		assert.Empty(t, slots)
	})

	t.Run("append preserves insertion order", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Append(ctx, doc, day, NewSlot{StartTime: "10:00", EndTime: "10:30", Fee: 700})
		require.NoError(t, err)
		_, err = b.Append(ctx, doc, day, NewSlot{StartTime: "09:00", EndTime: "09:30", Fee: 500})
		require.NoError(t, err)

		slots, err := b.List(ctx, doc, day)
		require.NoError(t, err)
		require.Len(t, slots, 2)
		assert.Equal(t, "10:00", slots[0].StartTime)
		assert.Equal(t, "09:00", slots[1].StartTime)
		assert.NotEqual(t, slots[0].ID, slots[1].ID)
	})

	t.Run("duplicate start rejected", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Append(ctx, doc, day, NewSlot{StartTime: "09:00", EndTime: "09:30", Fee: 500})
		require.NoError(t, err)
		_, err = b.Append(ctx, doc, day, NewSlot{StartTime: "09:00", EndTime: "09:45", Fee: 900})
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("reserve then conflict then idempotent retry", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Append(ctx, doc, day, NewSlot{StartTime: "09:00", EndTime: "09:30", Fee: 500})
		require.NoError(t, err)

		slot, err := b.Reserve(ctx, ref, "req-1")
		require.NoError(t, err)
		assert.True(t, slot.Booked)
		assert.Equal(t, "req-1", slot.HeldBy)

		_, err = b.Reserve(ctx, ref, "req-2")
		assert.ErrorIs(t, err, ErrSlotTaken)

		again, err := b.Reserve(ctx, ref, "req-1")
		require.NoError(t, err)
		assert.Equal(t, slot.ID, again.ID)
	})

	t.Run("reserve missing slot", func(t *testing.T) {
		_, err := newBackend(t).Reserve(ctx, ref, "req-1")
		assert.ErrorIs(t, err, ErrSlotNotFound)
	})

	t.Run("release semantics", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Append(ctx, doc, day, NewSlot{StartTime: "09:00", EndTime: "09:30", Fee: 500})
		require.NoError(t, err)

		released, err := b.Release(ctx, ref, "")
		require.NoError(t, err)
		assert.False(t, released, "releasing an unbooked slot is a no-op")

		_, err = b.Reserve(ctx, ref, "req-1")
		require.NoError(t, err)

		released, err = b.Release(ctx, ref, "req-other")
		require.NoError(t, err)
		assert.False(t, released)

		got, err := b.Get(ctx, ref)
		require.NoError(t, err)
		assert.True(t, got.Booked)

		released, err = b.Release(ctx, ref, "req-1")
		require.NoError(t, err)
		assert.True(t, released)

		got, err = b.Get(ctx, ref)
		require.NoError(t, err)
		assert.False(t, got.Booked)
		assert.Empty(t, got.HeldBy)

		_, err = b.Reserve(ctx, ref, "req-2")
		require.NoError(t, err)
		released, err = b.Release(ctx, ref, "")
		require.NoError(t, err)
		assert.True(t, released, "an empty holder releases unconditionally")

		_, err = b.Release(ctx, Ref{DoctorID: doc, DateKey: day, StartTime: "17:00"}, "")
		assert.ErrorIs(t, err, ErrSlotNotFound)
	})

	t.Run("remove by index and id", func(t *testing.T) {
		b := newBackend(t)
		first, err := b.Append(ctx, doc, day, NewSlot{StartTime: "09:00", EndTime: "09:30", Fee: 500})
		require.NoError(t, err)
		second, err := b.Append(ctx, doc, day, NewSlot{StartTime: "10:00", EndTime: "10:30", Fee: 500})
		require.NoError(t, err)
		third, err := b.Append(ctx, doc, day, NewSlot{StartTime: "11:00", EndTime: "11:30", Fee: 500})
		require.NoError(t, err)

		removed, err := b.RemoveAt(ctx, doc, day, 1)
		require.NoError(t, err)
		assert.Equal(t, second.ID, removed.ID)

		_, err = b.RemoveAt(ctx, doc, day, 2)
		assert.ErrorIs(t, err, ErrSlotNotFound)

		removed, err = b.RemoveByID(ctx, doc, day, third.ID)
		require.NoError(t, err)
		assert.Equal(t, "11:00", removed.StartTime)

		_, err = b.RemoveByID(ctx, doc, day, third.ID)
		assert.ErrorIs(t, err, ErrSlotNotFound)

		slots, err := b.List(ctx, doc, day)
		require.NoError(t, err)
		require.Len(t, slots, 1)
		assert.Equal(t, first.ID, slots[0].ID)

		// The start time is free again after removal.
		_, err = b.Append(ctx, doc, day, NewSlot{StartTime: "10:00", EndTime: "10:30", Fee: 600})
		require.NoError(t, err)
	})

	t.Run("concurrent reserve has exactly one winner", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Append(ctx, doc, day, NewSlot{StartTime: "09:00", EndTime: "09:30", Fee: 500})
		require.NoError(t, err)

		const contenders = 16
		var wins, conflicts atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := b.Reserve(ctx, ref, "req-"+string(rune('a'+i)))
				switch {
				case err == nil:
					wins.Add(1)
				case apperr.KindOf(err) == apperr.KindConflict:
					conflicts.Add(1)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(contenders-1), conflicts.Load())
	})
}

func TestMemoryBackend_Contract(t *testing.T) {
	backendContract(t, func(*testing.T) Backend { return NewMemoryBackend() })
}

func TestMemoryBackend_ListReturnsCopies(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	_, err := b.Append(ctx, "doc-1", "2024-05-01", NewSlot{StartTime: "09:00", EndTime: "09:30", Fee: 500})
	require.NoError(t, err)

	slots, err := b.List(ctx, "doc-1", "2024-05-01")
	require.NoError(t, err)
	slots[0].Booked = true

	fresh, err := b.List(ctx, "doc-1", "2024-05-01")
	require.NoError(t, err)
	assert.False(t, fresh[0].Booked)
}

func TestMemoryBackend_ListHeldOldestFirst(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	clock := base
	b.now = func() time.Time { return clock }

	for _, start := range []string{"09:00", "10:00", "11:00"} {
		_, err := b.Append(ctx, "doc-1", "2024-05-01", NewSlot{StartTime: start, EndTime: start[:3] + "30", Fee: 500})
		require.NoError(t, err)
	}
	clock = base.Add(2 * time.Minute)
	_, err := b.Reserve(ctx, Ref{DoctorID: "doc-1", DateKey: "2024-05-01", StartTime: "10:00"}, "late")
	require.NoError(t, err)
	clock = base
	_, err = b.Reserve(ctx, Ref{DoctorID: "doc-1", DateKey: "2024-05-01", StartTime: "09:00"}, "early")
	require.NoError(t, err)
	clock = base.Add(time.Hour)
	_, err = b.Reserve(ctx, Ref{DoctorID: "doc-1", DateKey: "2024-05-01", StartTime: "11:00"}, "fresh")
	require.NoError(t, err)

	held, err := b.ListHeld(ctx, base.Add(10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, held, 2)
	assert.Equal(t, "early", held[0].Slot.HeldBy)
	assert.Equal(t, "late", held[1].Slot.HeldBy)
}

package schedule

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisBackend(client), mr
}

func TestRedisBackend_Contract(t *testing.T) {
	backendContract(t, func(t *testing.T) Backend {
		b, _ := newRedisBackend(t)
		return b
	})
}

func TestRedisBackend_KeysShareHashTag(t *testing.T) {
	b, mr := newRedisBackend(t)
	ctx := context.Background()

	created, err := b.Append(ctx, "doc-1", "2024-05-01", NewSlot{StartTime: "09:00", EndTime: "09:30", Fee: 500})
	require.NoError(t, err)

	assert.True(t, mr.Exists("schedule:{doc-1|2024-05-01}:order"))
	assert.True(t, mr.Exists("schedule:{doc-1|2024-05-01}:start"))
	assert.True(t, mr.Exists("schedule:{doc-1|2024-05-01}:slot:"+created.ID))
}

func TestRedisBackend_ReserveStoresHolderAndTimestamp(t *testing.T) {
	b, mr := newRedisBackend(t)
	ctx := context.Background()
	ref := Ref{DoctorID: "doc-1", DateKey: "2024-05-01", StartTime: "09:00"}

	created, err := b.Append(ctx, ref.DoctorID, ref.DateKey, NewSlot{StartTime: "09:00", EndTime: "09:30", Fee: 500})
	require.NoError(t, err)

	slot, err := b.Reserve(ctx, ref, "req-1")
	require.NoError(t, err)
	require.NotNil(t, slot.ReservedAt)
	assert.Equal(t, int64(500), slot.Fee)

	key := "schedule:{doc-1|2024-05-01}:slot:" + created.ID
	assert.Equal(t, "1", mr.HGet(key, "booked"))
	assert.Equal(t, "req-1", mr.HGet(key, "held_by"))
}

func TestRedisBackend_RemoveClearsStartIndex(t *testing.T) {
	b, mr := newRedisBackend(t)
	ctx := context.Background()

	created, err := b.Append(ctx, "doc-1", "2024-05-01", NewSlot{StartTime: "09:00", EndTime: "09:30", Fee: 500})
	require.NoError(t, err)
	_, err = b.RemoveAt(ctx, "doc-1", "2024-05-01", 0)
	require.NoError(t, err)

	assert.False(t, mr.Exists("schedule:{doc-1|2024-05-01}:slot:"+created.ID))
	assert.Empty(t, mr.HGet("schedule:{doc-1|2024-05-01}:start", "09:00"))

	_, err = b.RemoveAt(ctx, "doc-1", "2024-05-01", -1)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

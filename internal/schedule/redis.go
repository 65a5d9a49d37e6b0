package schedule

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Key layout per doctor day, all sharing one hash tag so scripts stay on a
// single cluster slot:
//
//	schedule:{doctor|date}:order       list of slot ids in insertion order
//	schedule:{doctor|date}:start       hash start_time -> slot id
//	schedule:{doctor|date}:slot:<id>   hash of slot fields
const (
	scriptSlotNotFound = 0
	scriptSlotTaken    = -1
)

var appendSlotScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[2], ARGV[2], ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[3], 'id', ARGV[1], 'start_time', ARGV[2], 'end_time', ARGV[3], 'fee', ARGV[4], 'booked', '0', 'held_by', '', 'reserved_at', '')
redis.call('RPUSH', KEYS[1], ARGV[1])
return 1
`)

var reserveSlotScript = redis.NewScript(`
local id = redis.call('HGET', KEYS[1], ARGV[1])
if not id then
  return 0
end
local key = ARGV[2] .. id
if redis.call('HGET', key, 'booked') == '1' then
  if redis.call('HGET', key, 'held_by') ~= ARGV[3] then
    return -1
  end
  return redis.call('HGETALL', key)
end
redis.call('HSET', key, 'booked', '1', 'held_by', ARGV[3], 'reserved_at', ARGV[4])
return redis.call('HGETALL', key)
`)

var releaseSlotScript = redis.NewScript(`
local id = redis.call('HGET', KEYS[1], ARGV[1])
if not id then
  return -1
end
local key = ARGV[2] .. id
if redis.call('HGET', key, 'booked') ~= '1' then
  return 0
end
if ARGV[3] ~= '' and redis.call('HGET', key, 'held_by') ~= ARGV[3] then
  return 0
end
redis.call('HSET', key, 'booked', '0', 'held_by', '', 'reserved_at', '')
return 1
`)

const removeSlotTail = `
local key = ARGV[2] .. id
if redis.call('EXISTS', key) == 0 then
  return 0
end
local fields = redis.call('HGETALL', key)
local start = redis.call('HGET', key, 'start_time')
redis.call('LREM', KEYS[1], 1, id)
if start then
  redis.call('HDEL', KEYS[2], start)
end
redis.call('DEL', key)
return fields
`

var removeSlotAtScript = redis.NewScript(`
local id = redis.call('LINDEX', KEYS[1], ARGV[1])
if not id then
  return 0
end
` + removeSlotTail)

var removeSlotByIDScript = redis.NewScript(`
local id = ARGV[1]
` + removeSlotTail)

// RedisBackend stores each doctor day as a list plus per-slot hashes and
// mutates them with Lua scripts, so every reserve and release is one atomic
// server-side step.
type RedisBackend struct {
	redis  *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisBackend creates a Redis-backed slot store.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	if client == nil {
		panic("schedule: redis client required")
	}
	return &RedisBackend{redis: client, prefix: "schedule", now: time.Now}
}

func (r *RedisBackend) Name() string { return "redis" }

type dayKeys struct {
	order      string
	start      string
	slotPrefix string
}

func (r *RedisBackend) keys(doctorID, dateKey string) dayKeys {
	base := fmt.Sprintf("%s:{%s|%s}", r.prefix, doctorID, dateKey)
	return dayKeys{
		order:      base + ":order",
		start:      base + ":start",
		slotPrefix: base + ":slot:",
	}
}

func (r *RedisBackend) List(ctx context.Context, doctorID, dateKey string) ([]Slot, error) {
	k := r.keys(doctorID, dateKey)
	ids, err := r.redis.LRange(ctx, k.order, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("schedule: list slot ids: %w", err)
	}
	if len(ids) == 0 {
		return []Slot{}, nil
	}
	pipe := r.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, k.slotPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("schedule: load slots: %w", err)
	}
	slots := make([]Slot, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// Removed between LRANGE and HGETALL.
			continue
		}
		slot, err := slotFromHash(fields)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func (r *RedisBackend) Append(ctx context.Context, doctorID, dateKey string, in NewSlot) (Slot, error) {
	k := r.keys(doctorID, dateKey)
	id := uuid.NewString()
	res, err := appendSlotScript.Run(ctx, r.redis,
		[]string{k.order, k.start, k.slotPrefix + id},
		id, in.StartTime, in.EndTime, strconv.FormatInt(in.Fee, 10),
	).Int()
	if err != nil {
		return Slot{}, fmt.Errorf("schedule: append slot: %w", err)
	}
	if res == 0 {
		return Slot{}, ErrDuplicateStart
	}
	return Slot{ID: id, StartTime: in.StartTime, EndTime: in.EndTime, Fee: in.Fee}, nil
}

func (r *RedisBackend) RemoveAt(ctx context.Context, doctorID, dateKey string, index int) (Slot, error) {
	if index < 0 {
		return Slot{}, ErrSlotNotFound
	}
	k := r.keys(doctorID, dateKey)
	res, err := removeSlotAtScript.Run(ctx, r.redis, []string{k.order, k.start}, strconv.Itoa(index), k.slotPrefix).Result()
	if err != nil {
		return Slot{}, fmt.Errorf("schedule: remove slot at %d: %w", index, err)
	}
	return slotFromScript(res)
}

func (r *RedisBackend) RemoveByID(ctx context.Context, doctorID, dateKey, slotID string) (Slot, error) {
	k := r.keys(doctorID, dateKey)
	res, err := removeSlotByIDScript.Run(ctx, r.redis, []string{k.order, k.start}, slotID, k.slotPrefix).Result()
	if err != nil {
		return Slot{}, fmt.Errorf("schedule: remove slot %s: %w", slotID, err)
	}
	return slotFromScript(res)
}

func (r *RedisBackend) Get(ctx context.Context, ref Ref) (Slot, error) {
	k := r.keys(ref.DoctorID, ref.DateKey)
	id, err := r.redis.HGet(ctx, k.start, ref.StartTime).Result()
	if errors.Is(err, redis.Nil) {
		return Slot{}, ErrSlotNotFound
	}
	if err != nil {
		return Slot{}, fmt.Errorf("schedule: resolve slot: %w", err)
	}
	fields, err := r.redis.HGetAll(ctx, k.slotPrefix+id).Result()
	if err != nil {
		return Slot{}, fmt.Errorf("schedule: get slot: %w", err)
	}
	if len(fields) == 0 {
		return Slot{}, ErrSlotNotFound
	}
	return slotFromHash(fields)
}

func (r *RedisBackend) Reserve(ctx context.Context, ref Ref, holder string) (Slot, error) {
	k := r.keys(ref.DoctorID, ref.DateKey)
	stamp := strconv.FormatInt(r.now().UTC().UnixMilli(), 10)
	res, err := reserveSlotScript.Run(ctx, r.redis, []string{k.start}, ref.StartTime, k.slotPrefix, holder, stamp).Result()
	if err != nil {
		return Slot{}, fmt.Errorf("schedule: reserve slot: %w", err)
	}
	if code, ok := res.(int64); ok && code == scriptSlotTaken {
		return Slot{}, ErrSlotTaken
	}
	return slotFromScript(res)
}

func (r *RedisBackend) Release(ctx context.Context, ref Ref, holder string) (bool, error) {
	k := r.keys(ref.DoctorID, ref.DateKey)
	res, err := releaseSlotScript.Run(ctx, r.redis, []string{k.start}, ref.StartTime, k.slotPrefix, holder).Int()
	if err != nil {
		return false, fmt.Errorf("schedule: release slot: %w", err)
	}
	switch res {
	case -1:
		return false, ErrSlotNotFound
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

// slotFromScript decodes a script reply that is either a status code or a
// flat HGETALL array.
func slotFromScript(res any) (Slot, error) {
	switch v := res.(type) {
	case int64:
		if v == scriptSlotNotFound {
			return Slot{}, ErrSlotNotFound
		}
		return Slot{}, fmt.Errorf("schedule: unexpected script status %d", v)
	case []any:
		if len(v)%2 != 0 {
			return Slot{}, fmt.Errorf("schedule: malformed slot reply of %d elements", len(v))
		}
		fields := make(map[string]string, len(v)/2)
		for i := 0; i < len(v); i += 2 {
			key, _ := v[i].(string)
			val, _ := v[i+1].(string)
			fields[key] = val
		}
		return slotFromHash(fields)
	default:
		return Slot{}, fmt.Errorf("schedule: unexpected script reply %T", res)
	}
}

func slotFromHash(fields map[string]string) (Slot, error) {
	fee, err := strconv.ParseInt(fields["fee"], 10, 64)
	if err != nil {
		return Slot{}, fmt.Errorf("schedule: parse fee for slot %s: %w", fields["id"], err)
	}
	slot := Slot{
		ID:        fields["id"],
		StartTime: fields["start_time"],
		EndTime:   fields["end_time"],
		Fee:       fee,
		Booked:    fields["booked"] == "1",
		HeldBy:    fields["held_by"],
	}
	if raw := fields["reserved_at"]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Slot{}, fmt.Errorf("schedule: parse reserved_at for slot %s: %w", slot.ID, err)
		}
		t := time.UnixMilli(ms).UTC()
		slot.ReservedAt = &t
	}
	return slot, nil
}

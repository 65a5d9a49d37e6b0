package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type dayKey struct {
	doctorID string
	dateKey  string
}

// MemoryBackend keeps schedules in process. All mutations of one store are
// serialized by a single mutex, which makes Reserve trivially atomic.
type MemoryBackend struct {
	mu    sync.Mutex
	days  map[dayKey][]Slot
	now   func() time.Time
	newID func() string
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		days:  make(map[dayKey][]Slot),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) List(_ context.Context, doctorID, dateKey string) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slots := m.days[dayKey{doctorID, dateKey}]
	out := make([]Slot, len(slots))
	for i, slot := range slots {
		out[i] = copySlot(slot)
	}
	return out, nil
}

func (m *MemoryBackend) Append(_ context.Context, doctorID, dateKey string, in NewSlot) (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dayKey{doctorID, dateKey}
	for _, existing := range m.days[key] {
		if existing.StartTime == in.StartTime {
			return Slot{}, ErrDuplicateStart
		}
	}
	slot := Slot{
		ID:        m.newID(),
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		Fee:       in.Fee,
	}
	m.days[key] = append(m.days[key], slot)
	return slot, nil
}

func (m *MemoryBackend) RemoveAt(_ context.Context, doctorID, dateKey string, index int) (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dayKey{doctorID, dateKey}
	slots := m.days[key]
	if index < 0 || index >= len(slots) {
		return Slot{}, ErrSlotNotFound
	}
	return m.removeLocked(key, index), nil
}

func (m *MemoryBackend) RemoveByID(_ context.Context, doctorID, dateKey, slotID string) (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dayKey{doctorID, dateKey}
	for i, slot := range m.days[key] {
		if slot.ID == slotID {
			return m.removeLocked(key, i), nil
		}
	}
	return Slot{}, ErrSlotNotFound
}

func (m *MemoryBackend) removeLocked(key dayKey, index int) Slot {
	slots := m.days[key]
	removed := slots[index]
	rest := make([]Slot, 0, len(slots)-1)
	rest = append(rest, slots[:index]...)
	rest = append(rest, slots[index+1:]...)
	if len(rest) == 0 {
		delete(m.days, key)
	} else {
		m.days[key] = rest
	}
	return removed
}

func (m *MemoryBackend) Get(_ context.Context, ref Ref) (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexLocked(ref)
	if idx < 0 {
		return Slot{}, ErrSlotNotFound
	}
	return copySlot(m.days[dayKey{ref.DoctorID, ref.DateKey}][idx]), nil
}

func (m *MemoryBackend) Reserve(_ context.Context, ref Ref, holder string) (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexLocked(ref)
	if idx < 0 {
		return Slot{}, ErrSlotNotFound
	}
	slot := &m.days[dayKey{ref.DoctorID, ref.DateKey}][idx]
	if slot.Booked {
		if slot.HeldBy == holder {
			return copySlot(*slot), nil
		}
		return Slot{}, ErrSlotTaken
	}
	now := m.now().UTC()
	slot.Booked = true
	slot.HeldBy = holder
	slot.ReservedAt = &now
	return copySlot(*slot), nil
}

func (m *MemoryBackend) Release(_ context.Context, ref Ref, holder string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexLocked(ref)
	if idx < 0 {
		return false, ErrSlotNotFound
	}
	slot := &m.days[dayKey{ref.DoctorID, ref.DateKey}][idx]
	if !slot.Booked || (holder != "" && slot.HeldBy != holder) {
		return false, nil
	}
	slot.Booked = false
	slot.HeldBy = ""
	slot.ReservedAt = nil
	return true, nil
}

// ListHeld returns booked slots reserved before the cutoff, oldest first.
func (m *MemoryBackend) ListHeld(_ context.Context, reservedBefore time.Time, limit int) ([]HeldSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var held []HeldSlot
	for key, slots := range m.days {
		for _, slot := range slots {
			if !slot.Booked || slot.ReservedAt == nil || !slot.ReservedAt.Before(reservedBefore) {
				continue
			}
			held = append(held, HeldSlot{
				Ref:  Ref{DoctorID: key.doctorID, DateKey: key.dateKey, StartTime: slot.StartTime},
				Slot: copySlot(slot),
			})
		}
	}
	sort.Slice(held, func(i, j int) bool {
		return held[i].Slot.ReservedAt.Before(*held[j].Slot.ReservedAt)
	})
	if limit > 0 && len(held) > limit {
		held = held[:limit]
	}
	return held, nil
}

func (m *MemoryBackend) indexLocked(ref Ref) int {
	for i, slot := range m.days[dayKey{ref.DoctorID, ref.DateKey}] {
		if slot.StartTime == ref.StartTime {
			return i
		}
	}
	return -1
}

func copySlot(s Slot) Slot {
	if s.ReservedAt != nil {
		t := *s.ReservedAt
		s.ReservedAt = &t
	}
	return s
}

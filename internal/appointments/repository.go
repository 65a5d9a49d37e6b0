package appointments

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines appointment persistence.
type Repository interface {
	// Create inserts appt unless an appointment with the same RequestID
	// exists, in which case that one is returned with existed=true.
	Create(ctx context.Context, appt *Appointment) (stored *Appointment, existed bool, err error)
	Get(ctx context.Context, id string) (*Appointment, error)
	GetByRequestID(ctx context.Context, requestID string) (*Appointment, error)
	// MarkCancelled and MarkCompleted only apply to non-terminal rows and
	// report whether this call performed the transition.
	MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id string, at time.Time) (bool, error)
	ListByPatient(ctx context.Context, patientID string) ([]*Appointment, error)
	ListByDoctor(ctx context.Context, doctorID string, activeOnly bool) ([]*Appointment, error)
	ListAll(ctx context.Context) ([]*Appointment, error)
}

// InMemoryRepository keeps appointments in process.
type InMemoryRepository struct {
	mu        sync.RWMutex
	byID      map[string]*Appointment
	byRequest map[string]string
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID:      make(map[string]*Appointment),
		byRequest: make(map[string]string),
	}
}

func (r *InMemoryRepository) Create(_ context.Context, appt *Appointment) (*Appointment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byRequest[appt.RequestID]; ok {
		return r.byID[id].clone(), true, nil
	}
	for _, existing := range r.byID {
		if !existing.Cancelled &&
			existing.DoctorID == appt.DoctorID &&
			existing.DateKey == appt.DateKey &&
			existing.StartTime == appt.StartTime {
			return nil, false, ErrSlotAlreadyBooked
		}
	}
	stored := appt.clone()
	r.byID[stored.ID] = stored
	r.byRequest[stored.RequestID] = stored.ID
	return stored.clone(), false, nil
}

func (r *InMemoryRepository) Get(_ context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	appt, ok := r.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return appt.clone(), nil
}

func (r *InMemoryRepository) GetByRequestID(_ context.Context, requestID string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byRequest[requestID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return r.byID[id].clone(), nil
}

func (r *InMemoryRepository) MarkCancelled(_ context.Context, id string, at time.Time) (bool, error) {
	return r.transition(id, func(a *Appointment) {
		a.Cancelled = true
		a.CancelledAt = &at
	})
}

func (r *InMemoryRepository) MarkCompleted(_ context.Context, id string, at time.Time) (bool, error) {
	return r.transition(id, func(a *Appointment) {
		a.Completed = true
		a.CompletedAt = &at
	})
}

func (r *InMemoryRepository) transition(id string, apply func(*Appointment)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.byID[id]
	if !ok {
		return false, ErrAppointmentNotFound
	}
	if appt.Terminal() {
		return false, nil
	}
	apply(appt)
	return true, nil
}

func (r *InMemoryRepository) ListByPatient(_ context.Context, patientID string) ([]*Appointment, error) {
	out := r.filter(func(a *Appointment) bool { return a.PatientID == patientID })
	sortNewestFirst(out)
	return out, nil
}

func (r *InMemoryRepository) ListByDoctor(_ context.Context, doctorID string, activeOnly bool) ([]*Appointment, error) {
	out := r.filter(func(a *Appointment) bool {
		return a.DoctorID == doctorID && (!activeOnly || !a.Terminal())
	})
	SortQueue(out)
	return out, nil
}

func (r *InMemoryRepository) ListAll(_ context.Context) ([]*Appointment, error) {
	out := r.filter(func(*Appointment) bool { return true })
	sortNewestFirst(out)
	return out, nil
}

func (r *InMemoryRepository) filter(keep func(*Appointment) bool) []*Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*Appointment{}
	for _, appt := range r.byID {
		if keep(appt) {
			out = append(out, appt.clone())
		}
	}
	return out
}

// SortQueue orders a doctor's queue: highest priority first, then oldest.
func SortQueue(appts []*Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if appts[i].PriorityScore != appts[j].PriorityScore {
			return appts[i].PriorityScore > appts[j].PriorityScore
		}
		if !appts[i].CreatedAt.Equal(appts[j].CreatedAt) {
			return appts[i].CreatedAt.Before(appts[j].CreatedAt)
		}
		return appts[i].ID < appts[j].ID
	})
}

func sortNewestFirst(appts []*Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if !appts[i].CreatedAt.Equal(appts[j].CreatedAt) {
			return appts[i].CreatedAt.After(appts[j].CreatedAt)
		}
		return appts[i].ID < appts[j].ID
	})
}

package directory

import (
	"context"
	"errors"
	"sync"
)

// ErrProfileNotFound is returned when the directory has no profile for an id.
var ErrProfileNotFound = errors.New("directory: profile not found")

// DoctorProfile is the display data the profile service maintains for a doctor.
type DoctorProfile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Speciality string `json:"speciality"`
	Degree     string `json:"degree,omitempty"`
	Address    string `json:"address,omitempty"`
	Image      string `json:"image,omitempty"`
	Fees       int64  `json:"fees,omitempty"`
	Available  bool   `json:"available"`
}

// PatientProfile is the display data the profile service maintains for a patient.
type PatientProfile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Gender string `json:"gender,omitempty"`
	DOB    string `json:"dob,omitempty"`
}

// Directory is a read-only view of profiles owned by an external service.
type Directory interface {
	Doctor(ctx context.Context, id string) (*DoctorProfile, error)
	Patient(ctx context.Context, id string) (*PatientProfile, error)
}

// MemoryDirectory holds profiles in process.
type MemoryDirectory struct {
	mu       sync.RWMutex
	doctors  map[string]DoctorProfile
	patients map[string]PatientProfile
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		doctors:  make(map[string]DoctorProfile),
		patients: make(map[string]PatientProfile),
	}
}

// PutDoctor stores or replaces a doctor profile.
func (m *MemoryDirectory) PutDoctor(_ context.Context, p DoctorProfile) error {
	m.mu.Lock()
	m.doctors[p.ID] = p
	m.mu.Unlock()
	return nil
}

// PutPatient stores or replaces a patient profile.
func (m *MemoryDirectory) PutPatient(_ context.Context, p PatientProfile) error {
	m.mu.Lock()
	m.patients[p.ID] = p
	m.mu.Unlock()
	return nil
}

func (m *MemoryDirectory) Doctor(_ context.Context, id string) (*DoctorProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.doctors[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

func (m *MemoryDirectory) Patient(_ context.Context, id string) (*PatientProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

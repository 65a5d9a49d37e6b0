package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/wolfman30/clinic-booking/internal/directory"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// SeedFile is the fixture format: profiles for the directory plus the
// slots to publish for each doctor and date.
type SeedFile struct {
	Doctors  []directory.DoctorProfile  `json:"doctors"`
	Patients []directory.PatientProfile `json:"patients"`
	Slots    []SeedDay                  `json:"slots"`
}

// SeedDay lists the slots of one doctor on one date.
type SeedDay struct {
	DoctorID string             `json:"doctor_id"`
	Date     string             `json:"date"`
	Slots    []schedule.NewSlot `json:"slots"`
}

type profileWriter interface {
	PutDoctor(ctx context.Context, p directory.DoctorProfile) error
	PutPatient(ctx context.Context, p directory.PatientProfile) error
}

// SeedResult counts what a run wrote.
type SeedResult struct {
	Doctors  int
	Patients int
	Slots    int
	Skipped  int
}

func parseSeedFile(r io.Reader) (*SeedFile, error) {
	var f SeedFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("seed: decode: %w", err)
	}
	return &f, nil
}

// seed writes profiles and slots. Slots whose start time already exists on
// that day are skipped so the fixture can be applied repeatedly.
func seed(ctx context.Context, f *SeedFile, store *schedule.Store, profiles profileWriter, logger *logging.Logger) (SeedResult, error) {
	var res SeedResult
	if profiles != nil {
		for _, d := range f.Doctors {
			if err := profiles.PutDoctor(ctx, d); err != nil {
				return res, fmt.Errorf("seed: doctor %s: %w", d.ID, err)
			}
			res.Doctors++
		}
		for _, p := range f.Patients {
			if err := profiles.PutPatient(ctx, p); err != nil {
				return res, fmt.Errorf("seed: patient %s: %w", p.ID, err)
			}
			res.Patients++
		}
	} else if len(f.Doctors)+len(f.Patients) > 0 {
		logger.Warn("no profile store configured; skipping profiles")
	}

	for _, day := range f.Slots {
		date, err := schedule.NormalizeDateKey(day.Date)
		if err != nil {
			return res, fmt.Errorf("seed: %s: %w", day.DoctorID, err)
		}
		existing, err := store.List(ctx, day.DoctorID, date)
		if err != nil {
			return res, err
		}
		taken := make(map[string]bool, len(existing))
		for _, s := range existing {
			taken[s.StartTime] = true
		}
		for _, ns := range day.Slots {
			// Invalid times fall through to Add, which reports them.
			start, _ := schedule.NormalizeClock(ns.StartTime)
			if taken[start] {
				res.Skipped++
				continue
			}
			if _, err := store.Add(ctx, day.DoctorID, date, ns); err != nil {
				if errors.Is(err, schedule.ErrDuplicateStart) {
					res.Skipped++
					continue
				}
				return res, fmt.Errorf("seed: %s %s %s: %w", day.DoctorID, date, ns.StartTime, err)
			}
			taken[start] = true
			res.Slots++
		}
	}
	return res, nil
}

package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments in the appointments table.
type PostgresRepository struct {
	db rowQuerier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithExec(db rowQuerier) *PostgresRepository {
	if db == nil {
		panic("appointments: exec required")
	}
	return &PostgresRepository{db: db}
}

const appointmentColumns = `id::text, request_id, doctor_id, patient_id, date_key, start_time, end_time,
	slot_id, amount, symptoms, priority_score, priority_level, diagnosis, specialty, kb_version,
	cancelled, completed, doctor_snapshot, patient_snapshot, created_at, cancelled_at, completed_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		appt                 Appointment
		doctorSnap, userSnap []byte
		cancelledAt          pgtype.Timestamptz
		completedAt          pgtype.Timestamptz
	)
	if err := row.Scan(
		&appt.ID,
		&appt.RequestID,
		&appt.DoctorID,
		&appt.PatientID,
		&appt.DateKey,
		&appt.StartTime,
		&appt.EndTime,
		&appt.SlotID,
		&appt.Amount,
		&appt.Symptoms,
		&appt.PriorityScore,
		&appt.PriorityLevel,
		&appt.Diagnosis,
		&appt.Specialty,
		&appt.KBVersion,
		&appt.Cancelled,
		&appt.Completed,
		&doctorSnap,
		&userSnap,
		&appt.CreatedAt,
		&cancelledAt,
		&completedAt,
	); err != nil {
		return nil, err
	}
	if len(doctorSnap) > 0 {
		if err := json.Unmarshal(doctorSnap, &appt.DoctorSnapshot); err != nil {
			return nil, fmt.Errorf("appointments: decode doctor snapshot: %w", err)
		}
	}
	if len(userSnap) > 0 {
		if err := json.Unmarshal(userSnap, &appt.PatientSnapshot); err != nil {
			return nil, fmt.Errorf("appointments: decode patient snapshot: %w", err)
		}
	}
	if appt.Symptoms == nil {
		appt.Symptoms = []string{}
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time.UTC()
		appt.CancelledAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		appt.CompletedAt = &t
	}
	return &appt, nil
}

// Create inserts the appointment. The request_id unique key makes retries
// return the original row; the partial unique index on active slot
// references rejects a second live appointment for the same slot.
func (r *PostgresRepository) Create(ctx context.Context, appt *Appointment) (*Appointment, bool, error) {
	doctorSnap, err := json.Marshal(appt.DoctorSnapshot)
	if err != nil {
		return nil, false, fmt.Errorf("appointments: encode doctor snapshot: %w", err)
	}
	userSnap, err := json.Marshal(appt.PatientSnapshot)
	if err != nil {
		return nil, false, fmt.Errorf("appointments: encode patient snapshot: %w", err)
	}
	symptoms := appt.Symptoms
	if symptoms == nil {
		symptoms = []string{}
	}
	query := `
		INSERT INTO appointments (
			id, request_id, doctor_id, patient_id, date_key, start_time, end_time,
			slot_id, amount, symptoms, priority_score, priority_level, diagnosis, specialty, kb_version,
			doctor_snapshot, patient_snapshot, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (request_id) DO NOTHING
	`
	ct, err := r.db.Exec(ctx, query,
		appt.ID,
		appt.RequestID,
		appt.DoctorID,
		appt.PatientID,
		appt.DateKey,
		appt.StartTime,
		appt.EndTime,
		appt.SlotID,
		appt.Amount,
		symptoms,
		appt.PriorityScore,
		appt.PriorityLevel,
		appt.Diagnosis,
		appt.Specialty,
		appt.KBVersion,
		doctorSnap,
		userSnap,
		appt.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, false, ErrSlotAlreadyBooked
		}
		return nil, false, fmt.Errorf("appointments: insert failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		existing, err := r.GetByRequestID(ctx, appt.RequestID)
		if err != nil {
			return nil, false, err
		}
		return existing, true, nil
	}
	return appt.clone(), false, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	return r.getOne(ctx, "id::text = $1", id)
}

func (r *PostgresRepository) GetByRequestID(ctx context.Context, requestID string) (*Appointment, error) {
	return r.getOne(ctx, "request_id = $1", requestID)
}

func (r *PostgresRepository) getOne(ctx context.Context, where string, arg string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE ` + where
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("appointments: select failed: %w", err)
	}
	return appt, nil
}

func (r *PostgresRepository) MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE appointments
		SET cancelled = true, cancelled_at = $2
		WHERE id::text = $1 AND NOT cancelled AND NOT completed
	`
	return r.transition(ctx, query, id, at)
}

func (r *PostgresRepository) MarkCompleted(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE appointments
		SET completed = true, completed_at = $2
		WHERE id::text = $1 AND NOT cancelled AND NOT completed
	`
	return r.transition(ctx, query, id, at)
}

func (r *PostgresRepository) transition(ctx context.Context, query, id string, at time.Time) (bool, error) {
	ct, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("appointments: update failed: %w", err)
	}
	if ct.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *PostgresRepository) ListByPatient(ctx context.Context, patientID string) ([]*Appointment, error) {
	return r.list(ctx, `WHERE patient_id = $1 ORDER BY created_at DESC, id`, patientID)
}

func (r *PostgresRepository) ListByDoctor(ctx context.Context, doctorID string, activeOnly bool) ([]*Appointment, error) {
	where := `WHERE doctor_id = $1`
	if activeOnly {
		where += ` AND NOT cancelled AND NOT completed`
	}
	return r.list(ctx, where+` ORDER BY priority_score DESC, created_at ASC, id`, doctorID)
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]*Appointment, error) {
	return r.list(ctx, `ORDER BY created_at DESC, id`)
}

func (r *PostgresRepository) list(ctx context.Context, tail string, args ...any) ([]*Appointment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+appointmentColumns+` FROM appointments `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list failed: %w", err)
	}
	defer rows.Close()

	out := []*Appointment{}
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan failed: %w", err)
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

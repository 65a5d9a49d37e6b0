package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
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

const pgUniqueViolation = "23505"

// PostgresBackend stores slots one row each. Ordering within a day follows
// the seq column; reserve and release are single conditional UPDATEs.
type PostgresBackend struct {
	db    rowQuerier
	table string
}

// NewPostgresBackend creates a backend on the given table (default doctor_slots).
func NewPostgresBackend(pool *pgxpool.Pool, table string) *PostgresBackend {
	if pool == nil {
		panic("schedule: pgx pool required")
	}
	return newPostgresBackendWithExec(pool, table)
}

func newPostgresBackendWithExec(db rowQuerier, table string) *PostgresBackend {
	if db == nil {
		panic("schedule: exec required")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		table = "doctor_slots"
	}
	return &PostgresBackend{db: db, table: pgx.Identifier{table}.Sanitize()}
}

func (p *PostgresBackend) Name() string { return "postgres" }

const slotColumns = "id::text, start_time, end_time, fee, booked, held_by, reserved_at"

func scanSlot(row pgx.Row) (Slot, error) {
	var (
		slot       Slot
		reservedAt pgtype.Timestamptz
	)
	if err := row.Scan(&slot.ID, &slot.StartTime, &slot.EndTime, &slot.Fee, &slot.Booked, &slot.HeldBy, &reservedAt); err != nil {
		return Slot{}, err
	}
	if reservedAt.Valid {
		t := reservedAt.Time.UTC()
		slot.ReservedAt = &t
	}
	return slot, nil
}

func (p *PostgresBackend) List(ctx context.Context, doctorID, dateKey string) ([]Slot, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE doctor_id = $1 AND date_key = $2
		ORDER BY seq
	`, slotColumns, p.table)
	rows, err := p.db.Query(ctx, query, doctorID, dateKey)
	if err != nil {
		return nil, fmt.Errorf("schedule: list slots: %w", err)
	}
	defer rows.Close()

	slots := []Slot{}
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("schedule: scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

func (p *PostgresBackend) Append(ctx context.Context, doctorID, dateKey string, in NewSlot) (Slot, error) {
	id := uuid.NewString()
	query := fmt.Sprintf(`
		INSERT INTO %s (id, doctor_id, date_key, start_time, end_time, fee)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (doctor_id, date_key, start_time) DO NOTHING
	`, p.table)
	ct, err := p.db.Exec(ctx, query, id, doctorID, dateKey, in.StartTime, in.EndTime, in.Fee)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Slot{}, ErrDuplicateStart
		}
		return Slot{}, fmt.Errorf("schedule: insert slot: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return Slot{}, ErrDuplicateStart
	}
	return Slot{ID: id, StartTime: in.StartTime, EndTime: in.EndTime, Fee: in.Fee}, nil
}

func (p *PostgresBackend) RemoveAt(ctx context.Context, doctorID, dateKey string, index int) (Slot, error) {
	query := fmt.Sprintf(`
		DELETE FROM %[1]s
		WHERE id = (
			SELECT id FROM %[1]s
			WHERE doctor_id = $1 AND date_key = $2
			ORDER BY seq
			OFFSET $3 LIMIT 1
		)
		RETURNING %[2]s
	`, p.table, slotColumns)
	slot, err := scanSlot(p.db.QueryRow(ctx, query, doctorID, dateKey, index))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Slot{}, ErrSlotNotFound
		}
		return Slot{}, fmt.Errorf("schedule: remove slot at %d: %w", index, err)
	}
	return slot, nil
}

func (p *PostgresBackend) RemoveByID(ctx context.Context, doctorID, dateKey, slotID string) (Slot, error) {
	if _, err := uuid.Parse(slotID); err != nil {
		return Slot{}, ErrSlotNotFound
	}
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE doctor_id = $1 AND date_key = $2 AND id = $3
		RETURNING %s
	`, p.table, slotColumns)
	slot, err := scanSlot(p.db.QueryRow(ctx, query, doctorID, dateKey, slotID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Slot{}, ErrSlotNotFound
		}
		return Slot{}, fmt.Errorf("schedule: remove slot %s: %w", slotID, err)
	}
	return slot, nil
}

func (p *PostgresBackend) Get(ctx context.Context, ref Ref) (Slot, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE doctor_id = $1 AND date_key = $2 AND start_time = $3
	`, slotColumns, p.table)
	slot, err := scanSlot(p.db.QueryRow(ctx, query, ref.DoctorID, ref.DateKey, ref.StartTime))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Slot{}, ErrSlotNotFound
		}
		return Slot{}, fmt.Errorf("schedule: get slot: %w", err)
	}
	return slot, nil
}

func (p *PostgresBackend) Reserve(ctx context.Context, ref Ref, holder string) (Slot, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET booked = true,
		    held_by = $4,
		    reserved_at = CASE WHEN booked THEN reserved_at ELSE now() END
		WHERE doctor_id = $1 AND date_key = $2 AND start_time = $3
		  AND (booked = false OR held_by = $4)
		RETURNING %s
	`, p.table, slotColumns)
	slot, err := scanSlot(p.db.QueryRow(ctx, query, ref.DoctorID, ref.DateKey, ref.StartTime, holder))
	if err == nil {
		return slot, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Slot{}, fmt.Errorf("schedule: reserve slot: %w", err)
	}
	// No row matched: either the slot is missing or someone else holds it.
	if _, getErr := p.Get(ctx, ref); getErr != nil {
		return Slot{}, getErr
	}
	return Slot{}, ErrSlotTaken
}

func (p *PostgresBackend) Release(ctx context.Context, ref Ref, holder string) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET booked = false, held_by = '', reserved_at = NULL
		WHERE doctor_id = $1 AND date_key = $2 AND start_time = $3
		  AND booked = true
		  AND ($4 = '' OR held_by = $4)
	`, p.table)
	ct, err := p.db.Exec(ctx, query, ref.DoctorID, ref.DateKey, ref.StartTime, holder)
	if err != nil {
		return false, fmt.Errorf("schedule: release slot: %w", err)
	}
	if ct.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := p.Get(ctx, ref); err != nil {
		return false, err
	}
	return false, nil
}

// ListHeld returns booked slots whose reservation predates the cutoff.
func (p *PostgresBackend) ListHeld(ctx context.Context, reservedBefore time.Time, limit int) ([]HeldSlot, error) {
	query := fmt.Sprintf(`
		SELECT doctor_id, date_key, %s
		FROM %s
		WHERE booked = true AND reserved_at < $1
		ORDER BY reserved_at
		LIMIT $2
	`, slotColumns, p.table)
	rows, err := p.db.Query(ctx, query, reservedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("schedule: list held: %w", err)
	}
	defer rows.Close()

	var held []HeldSlot
	for rows.Next() {
		var (
			h          HeldSlot
			reservedAt pgtype.Timestamptz
		)
		if err := rows.Scan(&h.Ref.DoctorID, &h.Ref.DateKey,
			&h.Slot.ID, &h.Slot.StartTime, &h.Slot.EndTime, &h.Slot.Fee, &h.Slot.Booked, &h.Slot.HeldBy, &reservedAt); err != nil {
			return nil, fmt.Errorf("schedule: scan held slot: %w", err)
		}
		h.Ref.StartTime = h.Slot.StartTime
		if reservedAt.Valid {
			t := reservedAt.Time.UTC()
			h.Slot.ReservedAt = &t
		}
		held = append(held, h)
	}
	return held, rows.Err()
}

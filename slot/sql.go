package slot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Slot, error) {
	var s Slot
	err := r.db.GetContext(ctx, &s, getByIDQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Slot{}, ErrNotFound
	}
	return s, err
}

const getByIDQuery = `SELECT * FROM slots WHERE id = $1`

// Reserve flips reserved from false to true in a single conditional update. Of any number of
// concurrent callers on the same slot exactly one gets the row back; the others see
// ErrAlreadyReserved.
func (r *Repository) Reserve(ctx context.Context, id uuid.UUID) (Slot, error) {
	var s Slot
	err := r.db.GetContext(ctx, &s, reserveQuery, id)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Slot{}, err
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, slotExistsQuery, id); err != nil {
		return Slot{}, err
	}
	if !exists {
		return Slot{}, ErrNotFound
	}
	return Slot{}, ErrAlreadyReserved
}

const reserveQuery = `
UPDATE slots SET reserved = true, reserved_at = now()
WHERE id = $1 AND reserved = false
RETURNING *
`

const slotExistsQuery = `SELECT EXISTS (SELECT 1 FROM slots WHERE id = $1)`

// Release puts a slot back into the available pool.
func (r *Repository) Release(ctx context.Context, id uuid.UUID) error {
	return r.execOne(ctx, releaseQuery, id)
}

const releaseQuery = `UPDATE slots SET reserved = false, reserved_at = NULL, confirmed_at = NULL WHERE id = $1`

// Confirm marks a reserved slot as permanently taken by an accepted booking.
func (r *Repository) Confirm(ctx context.Context, id uuid.UUID) error {
	return r.execOne(ctx, confirmQuery, id)
}

const confirmQuery = `UPDATE slots SET reserved = true, confirmed_at = now() WHERE id = $1`

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.execOne(ctx, deleteQuery, id)
}

const deleteQuery = `DELETE FROM slots WHERE id = $1`

func (r *Repository) execOne(ctx context.Context, query string, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateReserved inserts a slot that is reserved from the start, so nobody can race for it.
// A slot already occupying the same window coordinates yields ErrAlreadyReserved.
func (r *Repository) CreateReserved(ctx context.Context, s *Slot) error {
	if err := s.Window().Validate(); err != nil {
		return err
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	err := r.db.GetContext(ctx, s, createReservedQuery,
		s.ID, s.StationID, s.ChargerIndex, s.UnitIndex, s.ChargerType, s.StartTime, s.EndTime)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrAlreadyReserved
	}
	return err
}

const createReservedQuery = `
INSERT INTO slots (id, station_id, charger_index, unit_index, charger_type, start_time, end_time, reserved, reserved_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, true, now(), now())
RETURNING *
`

// DeleteFuture purges slots of a station that start at or after from. Slots that already started
// are never touched.
func (r *Repository) DeleteFuture(ctx context.Context, stationID uuid.UUID, from time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, deleteFutureQuery, stationID, from)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

const deleteFutureQuery = `DELETE FROM slots WHERE station_id = $1 AND start_time >= $2`

const insertColumns = 9

// InsertBatch writes all slots in one multi-row statement. Rows colliding with an existing
// (station, charger, unit, start) are dropped by the unique constraint.
func (r *Repository) InsertBatch(ctx context.Context, slots []Slot) (int, error) {
	if len(slots) == 0 {
		return 0, nil
	}

	var b strings.Builder
	b.WriteString(insertBatchPrefix)
	args := make([]any, 0, len(slots)*insertColumns)
	for i, s := range slots {
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * insertColumns
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8, n+9)
		args = append(args, s.ID, s.StationID, s.ChargerIndex, s.UnitIndex, s.ChargerType,
			s.StartTime, s.EndTime, s.Reserved, s.CreatedAt)
	}
	b.WriteString(insertBatchSuffix)

	res, err := r.db.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

const insertBatchPrefix = `INSERT INTO slots (id, station_id, charger_index, unit_index, charger_type, start_time, end_time, reserved, created_at) VALUES `

const insertBatchSuffix = ` ON CONFLICT (station_id, charger_index, unit_index, start_time) DO NOTHING`

// List returns the slots matching f in start, charger, unit order, at most ListLimit of them.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Slot, error) {
	slots := []Slot{}
	err := r.db.SelectContext(ctx, &slots, listQuery, f.StationID, f.From, f.To, f.OnlyFree, ListLimit)
	return slots, err
}

const listQuery = `
SELECT * FROM slots
WHERE station_id = $1
  AND start_time >= $2
  AND start_time < $3
  AND (NOT $4::boolean OR reserved = false)
ORDER BY start_time ASC, charger_index ASC, unit_index ASC
LIMIT $5
`

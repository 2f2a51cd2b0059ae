package booking

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ListLimit caps the number of bookings a single listing returns.
const ListLimit = 500

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// GetByID fetches a single booking by its ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Booking, error) {
	var b Booking
	err := r.db.GetContext(ctx, &b, getByIDQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, ErrNotFound
	}
	return b, err
}

const getByIDQuery = `SELECT * FROM bookings WHERE id = $1`

// Create inserts a new booking. ID and timestamps are filled in when empty.
func (r *Repository) Create(ctx context.Context, b *Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = StatusPending
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	return r.db.GetContext(ctx, b, createQuery,
		b.ID, b.SlotID, b.StationID, b.UserID, b.OwnerID, b.Status, b.Metadata, b.CreatedAt, b.UpdatedAt)
}

const createQuery = `
INSERT INTO bookings (id, slot_id, station_id, user_id, owner_id, status, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING *
`

// Transition moves a pending booking to status to and stamps the decision time. The update is
// conditional on the booking still being pending, so of two concurrent decisions one wins and the
// other gets ErrInvalidState.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, to Status) (Booking, error) {
	var b Booking
	err := r.db.GetContext(ctx, &b, transitionQuery, id, to)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, r.missOrState(ctx, id)
	}
	return b, err
}

const transitionQuery = `
UPDATE bookings SET status = $2, decided_at = now(), updated_at = now()
WHERE id = $1 AND status = 'pending'
RETURNING *
`

// DeleteIfPending removes a booking that is still pending and returns what was removed.
func (r *Repository) DeleteIfPending(ctx context.Context, id uuid.UUID) (Booking, error) {
	var b Booking
	err := r.db.GetContext(ctx, &b, deleteIfPendingQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, r.missOrState(ctx, id)
	}
	return b, err
}

const deleteIfPendingQuery = `DELETE FROM bookings WHERE id = $1 AND status = 'pending' RETURNING *`

func (r *Repository) missOrState(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, existsQuery, id); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidState
}

const existsQuery = `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`

// ListByUser returns the bookings a user made, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Booking, error) {
	bookings := []Booking{}
	err := r.db.SelectContext(ctx, &bookings, listByUserQuery, userID, ListLimit)
	return bookings, err
}

const listByUserQuery = `SELECT * FROM bookings WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

// ListByOwner returns the bookings made against an owner's stations, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]Booking, error) {
	bookings := []Booking{}
	err := r.db.SelectContext(ctx, &bookings, listByOwnerQuery, ownerID, ListLimit)
	return bookings, err
}

const listByOwnerQuery = `SELECT * FROM bookings WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2`

package station

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("station not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		db: db,
	}
}

// GetStation resolves the owner and charger list of a station.
func (r *Repository) GetStation(ctx context.Context, id uuid.UUID) (Station, error) {
	var station Station
	err := r.db.GetContext(ctx, &station, getStation, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Station{}, ErrNotFound
	}
	return station, err
}

const getStation = `SELECT * FROM stations WHERE id = $1`

func (r *Repository) CreateStation(ctx context.Context, s *Station) error {
	for _, c := range s.Chargers {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	return r.db.GetContext(ctx, s, createStation,
		s.ID, s.OwnerID, s.Name, s.Address, s.Location, s.Chargers, s.Status, s.CreatedAt)
}

const createStation = `
INSERT INTO stations (id, owner_id, name, address, location, chargers, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING *
`

// DeleteStation removes a station. Its slots go with it; bookings keep their record.
func (r *Repository) DeleteStation(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, deleteStation, id)
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

const deleteStation = `DELETE FROM stations WHERE id = $1`

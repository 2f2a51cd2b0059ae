// Package slot generates and stores bookable time windows, one row per physical charger unit.
package slot

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("slot not found")
	ErrAlreadyReserved = errors.New("slot already reserved")
	ErrInvalidWindow   = errors.New("invalid time window")
	ErrInvalidConfig   = errors.New("invalid generation config")
)

// Slot is one bookable window [Start, End) on one charger unit of a station.
type Slot struct {
	ID           uuid.UUID    `db:"id"`
	StationID    uuid.UUID    `db:"station_id"`
	ChargerIndex int          `db:"charger_index"`
	UnitIndex    int          `db:"unit_index"`
	ChargerType  string       `db:"charger_type"`
	StartTime    time.Time    `db:"start_time"`
	EndTime      time.Time    `db:"end_time"`
	Reserved     bool         `db:"reserved"`
	ReservedAt   sql.NullTime `db:"reserved_at"`
	ConfirmedAt  sql.NullTime `db:"confirmed_at"`
	CreatedAt    time.Time    `db:"created_at"`
}

func (s Slot) Window() Window {
	return Window{Start: s.StartTime, End: s.EndTime}
}

// Key identifies the generation coordinates of a slot. At most one slot exists per key.
type Key struct {
	StationID    uuid.UUID
	ChargerIndex int
	UnitIndex    int
	Start        time.Time
}

func (s Slot) Key() Key {
	return Key{
		StationID:    s.StationID,
		ChargerIndex: s.ChargerIndex,
		UnitIndex:    s.UnitIndex,
		Start:        s.StartTime.UTC(),
	}
}

// Window is a half open interval, End exclusive.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidWindow)
	}
	if !w.Start.Before(w.End) {
		return fmt.Errorf("%w: start must be before end", ErrInvalidWindow)
	}
	return nil
}

// ListFilter selects slots of one station whose start falls in [From, To).
type ListFilter struct {
	StationID uuid.UUID
	From      time.Time
	To        time.Time
	OnlyFree  bool
}

// ListLimit caps the number of slots a single listing returns.
const ListLimit = 1000

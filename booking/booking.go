package booking

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("booking not found")
	ErrForbidden     = errors.New("not authorized to modify this booking")
	ErrInvalidState  = errors.New("booking is not in a state that allows this change")
	ErrInvalidAction = errors.New("action must be accept or reject")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// CanBecome reports whether a booking in status s may move to next. Only pending bookings move;
// accepted, rejected and cancelled are terminal.
func (s Status) CanBecome(next Status) bool {
	if s != StatusPending {
		return false
	}
	switch next {
	case StatusAccepted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

type Action string

const (
	Accept Action = "accept"
	Reject Action = "reject"
)

func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case Accept:
		return Accept, nil
	case Reject:
		return Reject, nil
	}
	return "", ErrInvalidAction
}

// Target is the status a booking ends up in after the action.
func (a Action) Target() Status {
	if a == Accept {
		return StatusAccepted
	}
	return StatusRejected
}

// Metadata is stored as jsonb next to the booking. The engine fills the charger fields; Start and
// End are only set for bookings that have no backing slot.
type Metadata struct {
	ChargerType  string         `json:"chargerType,omitempty"`
	ChargerIndex *int           `json:"chargerIndex,omitempty"`
	UnitIndex    *int           `json:"unitIndex,omitempty"`
	PricePerKWh  *float64       `json:"pricePerKwh,omitempty"`
	Start        *time.Time     `json:"start,omitempty"`
	End          *time.Time     `json:"end,omitempty"`
	DemoCreated  bool           `json:"demoCreated,omitempty"`
	External     bool           `json:"external,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

func (m *Metadata) Scan(i any) error {
	switch t := i.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		return json.Unmarshal(t, m)
	case string:
		return json.Unmarshal([]byte(t), m)
	}
	return fmt.Errorf("booking: cannot scan %T into Metadata", i)
}

func (m Metadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type Booking struct {
	ID        uuid.UUID      `db:"id"`
	SlotID    uuid.NullUUID  `db:"slot_id"`
	StationID uuid.NullUUID  `db:"station_id"`
	UserID    string         `db:"user_id"`
	OwnerID   sql.NullString `db:"owner_id"`
	Status    Status         `db:"status"`
	Metadata  Metadata       `db:"metadata"`
	DecidedAt sql.NullTime   `db:"decided_at"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// OwnedBy reports whether ownerID is the owner recorded at creation. Bookings without a station
// have no owner and are owned by nobody.
func (b Booking) OwnedBy(ownerID string) bool {
	return b.OwnerID.Valid && ownerID != "" && b.OwnerID.String == ownerID
}

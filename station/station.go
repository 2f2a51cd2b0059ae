package station

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

var (
	ErrInvalidChargerIndex = errors.New("charger index out of range")
	ErrInvalidCharger      = errors.New("invalid charger configuration")
)

type Status int

const (
	Draft Status = iota
	Published
	Suspended
)

func (s Status) String() string {
	return [...]string{"draft", "published", "suspended"}[s]
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return s.Scan(v)
}

func (s *Status) Scan(i any) error {
	var v string
	switch t := i.(type) {
	case string:
		v = t
	case []byte:
		v = string(t)
	default:
		return fmt.Errorf("station: cannot scan %T into Status", i)
	}
	switch v {
	case "draft":
		*s = Draft
	case "published":
		*s = Published
	case "suspended":
		*s = Suspended
	default:
		return fmt.Errorf("station: unknown status %q", v)
	}
	return nil
}

func (s Status) Value() (driver.Value, error) {
	return s.String(), nil
}

type ChargerType string

const (
	AC ChargerType = "AC"
	DC ChargerType = "DC"
)

// Charger is one charger configuration at a station. Count is the number of physical units of
// this type; each unit gets its own slots.
type Charger struct {
	Type        ChargerType `json:"type"`
	PowerKW     float64     `json:"powerKw"`
	PricePerKWh float64     `json:"pricePerKwh"`
	Count       int         `json:"count"`
}

func (c Charger) Validate() error {
	if c.Type != AC && c.Type != DC {
		return fmt.Errorf("%w: type must be AC or DC, got %q", ErrInvalidCharger, c.Type)
	}
	if c.Count < 1 {
		return fmt.Errorf("%w: count must be at least 1", ErrInvalidCharger)
	}
	return nil
}

// Chargers is stored as a jsonb array, ordered. A charger is identified by its index.
type Chargers []Charger

func (c *Chargers) Scan(i any) error {
	switch t := i.(type) {
	case nil:
		*c = nil
		return nil
	case []byte:
		return json.Unmarshal(t, c)
	case string:
		return json.Unmarshal([]byte(t), c)
	}
	return fmt.Errorf("station: cannot scan %T into Chargers", i)
}

func (c Chargers) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type Station struct {
	ID        uuid.UUID    `db:"id"`
	OwnerID   string       `db:"owner_id"`
	Name      string       `db:"name"`
	Address   string       `db:"address"`
	Location  pgtype.Point `db:"location"`
	Chargers  Chargers     `db:"chargers"`
	Status    Status       `db:"status"`
	CreatedAt time.Time    `db:"created_at"`
}

// Charger returns the charger configuration at index i.
func (s Station) Charger(i int) (Charger, error) {
	if i < 0 || i >= len(s.Chargers) {
		return Charger{}, ErrInvalidChargerIndex
	}
	return s.Chargers[i], nil
}

// NewLocation builds a point with the latitude in X and the longitude in Y.
func NewLocation(lat, lng float64) pgtype.Point {
	return pgtype.Point{P: pgtype.Vec2{X: lat, Y: lng}, Valid: true}
}

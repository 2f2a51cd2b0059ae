package reservation

import (
	"github.com/google/uuid"

	"github.com/semanticallynull/chargeslot-backend/slot"
)

// Request is one of ExistingSlot, NewSlotFromWindow or Unbacked.
type Request interface {
	kind() string
}

// ExistingSlot reserves a slot produced by the generator.
type ExistingSlot struct {
	SlotID uuid.UUID
	Meta   map[string]any
}

// NewSlotFromWindow materializes a reserved slot for an arbitrary window on a station charger,
// then books it.
type NewSlotFromWindow struct {
	StationID    uuid.UUID
	ChargerIndex int
	Window       slot.Window
	Meta         map[string]any
}

// Unbacked records a booking with no station and no slot, for stations this system does not
// manage.
type Unbacked struct {
	Window slot.Window
	Meta   map[string]any
}

func (ExistingSlot) kind() string      { return "existing" }
func (NewSlotFromWindow) kind() string { return "window" }
func (Unbacked) kind() string          { return "unbacked" }

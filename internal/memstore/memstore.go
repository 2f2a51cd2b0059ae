// Package memstore keeps stations, slots and bookings in process memory. It honours the same
// constraints as the Postgres schema and is used for local development and handler tests.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/chargeslot-backend/booking"
	"github.com/semanticallynull/chargeslot-backend/slot"
	"github.com/semanticallynull/chargeslot-backend/station"
)

// ErrSlotBooked mirrors the partial unique index allowing one live booking per slot.
var ErrSlotBooked = errors.New("slot already has an active booking")

type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	stations map[uuid.UUID]station.Station
	slots    map[uuid.UUID]slot.Slot
	keys     map[slot.Key]uuid.UUID
	bookings map[uuid.UUID]booking.Booking
}

func New() *Store {
	return &Store{
		now:      time.Now,
		stations: make(map[uuid.UUID]station.Station),
		slots:    make(map[uuid.UUID]slot.Slot),
		keys:     make(map[slot.Key]uuid.UUID),
		bookings: make(map[uuid.UUID]booking.Booking),
	}
}

// Stations, Slots and Bookings are views over one store sharing a single lock.
type (
	Stations Store
	Slots    Store
	Bookings Store
)

func (s *Store) Stations() *Stations { return (*Stations)(s) }
func (s *Store) Slots() *Slots       { return (*Slots)(s) }
func (s *Store) Bookings() *Bookings { return (*Bookings)(s) }

func (s *Stations) GetStation(_ context.Context, id uuid.UUID) (station.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stations[id]
	if !ok {
		return station.Station{}, station.ErrNotFound
	}
	return cloneStation(st), nil
}

func (s *Stations) CreateStation(_ context.Context, st *station.Station) error {
	for _, c := range st.Chargers {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = s.now().UTC()
	}
	s.stations[st.ID] = cloneStation(*st)
	return nil
}

// DeleteStation drops the station with its slots. Bookings survive with their references cleared.
func (s *Stations) DeleteStation(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stations[id]; !ok {
		return station.ErrNotFound
	}
	delete(s.stations, id)
	for sid, sl := range s.slots {
		if sl.StationID == id {
			(*Store)(s).deleteSlotLocked(sid)
		}
	}
	for bid, b := range s.bookings {
		if b.StationID.Valid && b.StationID.UUID == id {
			b.StationID = uuid.NullUUID{}
			s.bookings[bid] = b
		}
	}
	return nil
}

func cloneStation(st station.Station) station.Station {
	st.Chargers = append(station.Chargers(nil), st.Chargers...)
	return st
}

func (s *Slots) GetByID(_ context.Context, id uuid.UUID) (slot.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[id]
	if !ok {
		return slot.Slot{}, slot.ErrNotFound
	}
	return sl, nil
}

func (s *Slots) Reserve(_ context.Context, id uuid.UUID) (slot.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[id]
	if !ok {
		return slot.Slot{}, slot.ErrNotFound
	}
	if sl.Reserved {
		return slot.Slot{}, slot.ErrAlreadyReserved
	}
	sl.Reserved = true
	sl.ReservedAt.Time, sl.ReservedAt.Valid = s.now().UTC(), true
	s.slots[id] = sl
	return sl, nil
}

func (s *Slots) Release(_ context.Context, id uuid.UUID) error {
	return s.update(id, func(sl *slot.Slot) {
		sl.Reserved = false
		sl.ReservedAt.Valid = false
		sl.ConfirmedAt.Valid = false
	})
}

func (s *Slots) Confirm(_ context.Context, id uuid.UUID) error {
	now := s.now().UTC()
	return s.update(id, func(sl *slot.Slot) {
		sl.Reserved = true
		sl.ConfirmedAt.Time, sl.ConfirmedAt.Valid = now, true
	})
}

func (s *Slots) update(id uuid.UUID, fn func(*slot.Slot)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[id]
	if !ok {
		return slot.ErrNotFound
	}
	fn(&sl)
	s.slots[id] = sl
	return nil
}

func (s *Slots) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slots[id]; !ok {
		return slot.ErrNotFound
	}
	(*Store)(s).deleteSlotLocked(id)
	return nil
}

// deleteSlotLocked removes a slot and clears the reference of any booking pointing at it.
func (s *Store) deleteSlotLocked(id uuid.UUID) {
	sl := s.slots[id]
	delete(s.keys, sl.Key())
	delete(s.slots, id)
	for bid, b := range s.bookings {
		if b.SlotID.Valid && b.SlotID.UUID == id {
			b.SlotID = uuid.NullUUID{}
			s.bookings[bid] = b
		}
	}
}

func (s *Slots) CreateReserved(_ context.Context, sl *slot.Slot) error {
	if err := sl.Window().Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.keys[sl.Key()]; taken {
		return slot.ErrAlreadyReserved
	}
	if sl.ID == uuid.Nil {
		sl.ID = uuid.New()
	}
	now := s.now().UTC()
	sl.Reserved = true
	sl.ReservedAt.Time, sl.ReservedAt.Valid = now, true
	sl.CreatedAt = now
	s.slots[sl.ID] = *sl
	s.keys[sl.Key()] = sl.ID
	return nil
}

func (s *Slots) DeleteFuture(_ context.Context, stationID uuid.UUID, from time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sl := range s.slots {
		if sl.StationID == stationID && !sl.StartTime.Before(from) {
			(*Store)(s).deleteSlotLocked(id)
			n++
		}
	}
	return n, nil
}

// InsertBatch copies the slots in, skipping any whose key is already taken.
func (s *Slots) InsertBatch(_ context.Context, slots []slot.Slot) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sl := range slots {
		if _, taken := s.keys[sl.Key()]; taken {
			continue
		}
		if sl.ID == uuid.Nil {
			sl.ID = uuid.New()
		}
		s.slots[sl.ID] = sl
		s.keys[sl.Key()] = sl.ID
		n++
	}
	return n, nil
}

func (s *Slots) List(_ context.Context, f slot.ListFilter) ([]slot.Slot, error) {
	s.mu.Lock()
	out := []slot.Slot{}
	for _, sl := range s.slots {
		if sl.StationID != f.StationID || sl.StartTime.Before(f.From) || !sl.StartTime.Before(f.To) {
			continue
		}
		if f.OnlyFree && sl.Reserved {
			continue
		}
		out = append(out, sl)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		if a.ChargerIndex != b.ChargerIndex {
			return a.ChargerIndex < b.ChargerIndex
		}
		return a.UnitIndex < b.UnitIndex
	})
	if len(out) > slot.ListLimit {
		out = out[:slot.ListLimit]
	}
	return out, nil
}

func (s *Bookings) GetByID(_ context.Context, id uuid.UUID) (booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return booking.Booking{}, booking.ErrNotFound
	}
	return b, nil
}

func (s *Bookings) Create(_ context.Context, b *booking.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.SlotID.Valid {
		for _, other := range s.bookings {
			if other.SlotID == b.SlotID && live(other.Status) {
				return ErrSlotBooked
			}
		}
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = booking.StatusPending
	}
	now := s.now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	s.bookings[b.ID] = *b
	return nil
}

func live(s booking.Status) bool {
	return s == booking.StatusPending || s == booking.StatusAccepted
}

func (s *Bookings) Transition(_ context.Context, id uuid.UUID, to booking.Status) (booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return booking.Booking{}, booking.ErrNotFound
	}
	if b.Status != booking.StatusPending {
		return booking.Booking{}, booking.ErrInvalidState
	}
	now := s.now().UTC()
	b.Status = to
	b.DecidedAt.Time, b.DecidedAt.Valid = now, true
	b.UpdatedAt = now
	s.bookings[id] = b
	return b, nil
}

func (s *Bookings) DeleteIfPending(_ context.Context, id uuid.UUID) (booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return booking.Booking{}, booking.ErrNotFound
	}
	if b.Status != booking.StatusPending {
		return booking.Booking{}, booking.ErrInvalidState
	}
	delete(s.bookings, id)
	return b, nil
}

func (s *Bookings) ListByUser(_ context.Context, userID string) ([]booking.Booking, error) {
	return s.list(func(b booking.Booking) bool { return b.UserID == userID }), nil
}

func (s *Bookings) ListByOwner(_ context.Context, ownerID string) ([]booking.Booking, error) {
	return s.list(func(b booking.Booking) bool { return b.OwnedBy(ownerID) }), nil
}

func (s *Bookings) list(match func(booking.Booking) bool) []booking.Booking {
	s.mu.Lock()
	out := []booking.Booking{}
	for _, b := range s.bookings {
		if match(b) {
			out = append(out, b)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if len(out) > booking.ListLimit {
		out = out[:booking.ListLimit]
	}
	return out
}

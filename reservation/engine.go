// Package reservation turns a user's request into a reserved slot plus a pending booking. Slot and
// booking live in separate stores without a shared transaction, so every partial failure is
// undone by a compensating write on the slot.
package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/semanticallynull/chargeslot-backend/booking"
	"github.com/semanticallynull/chargeslot-backend/internal/o11y"
	"github.com/semanticallynull/chargeslot-backend/notify"
	"github.com/semanticallynull/chargeslot-backend/slot"
	"github.com/semanticallynull/chargeslot-backend/station"
)

// SlotStore must implement Reserve as a compare-and-set on the reserved flag.
type SlotStore interface {
	Reserve(ctx context.Context, id uuid.UUID) (slot.Slot, error)
	Release(ctx context.Context, id uuid.UUID) error
	CreateReserved(ctx context.Context, s *slot.Slot) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type BookingStore interface {
	Create(ctx context.Context, b *booking.Booking) error
}

type StationLookup interface {
	GetStation(ctx context.Context, id uuid.UUID) (station.Station, error)
}

type Result struct {
	BookingID     uuid.UUID      `json:"bookingId"`
	Status        booking.Status `json:"status"`
	CreatedSlotID *uuid.UUID     `json:"createdSlotId,omitempty"`
}

type Engine struct {
	slots    SlotStore
	bookings BookingStore
	stations StationLookup
	notifier *notify.Dispatcher
	logger   *slog.Logger
	metrics  *o11y.Metrics
}

func NewEngine(slots SlotStore, bookings BookingStore, stations StationLookup, notifier *notify.Dispatcher, logger *slog.Logger, metrics *o11y.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		slots:    slots,
		bookings: bookings,
		stations: stations,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// Reserve books on behalf of userID. Failures are slot.ErrAlreadyReserved (the caller should
// refresh its slot list), slot.ErrNotFound, ErrStationNotFound, ErrInvalidRequest or an error
// wrapping ErrReservationFailed. No request is retried here.
func (e *Engine) Reserve(ctx context.Context, req Request, userID string) (Result, error) {
	if req == nil || userID == "" {
		return Result{}, ErrInvalidRequest
	}

	ctx, span := otel.Tracer("reservation").Start(ctx, "Engine.Reserve")
	defer span.End()
	span.SetAttributes(attribute.String("reservation.kind", req.kind()))

	var (
		res Result
		err error
	)
	switch r := req.(type) {
	case ExistingSlot:
		res, err = e.reserveExisting(ctx, r, userID)
	case NewSlotFromWindow:
		res, err = e.reserveWindow(ctx, r, userID)
	case Unbacked:
		res, err = e.recordUnbacked(ctx, r, userID)
	default:
		err = ErrInvalidRequest
	}

	e.metrics.Reservation(req.kind(), outcome(err))
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	span.SetAttributes(attribute.String("booking.id", res.BookingID.String()))
	return res, nil
}

func (e *Engine) reserveExisting(ctx context.Context, r ExistingSlot, userID string) (Result, error) {
	if r.SlotID == uuid.Nil {
		return Result{}, fmt.Errorf("%w: slot id is required", ErrInvalidRequest)
	}

	s, err := e.slots.Reserve(ctx, r.SlotID)
	if err != nil {
		return Result{}, err
	}

	st, err := e.stations.GetStation(ctx, s.StationID)
	if err != nil {
		relErr := e.release(ctx, s.ID)
		if errors.Is(err, station.ErrNotFound) {
			return Result{}, ErrStationNotFound
		}
		return Result{}, &rollbackError{compensation: Released, cause: err, compensationErr: relErr}
	}

	meta := booking.Metadata{
		ChargerType:  s.ChargerType,
		ChargerIndex: ptr(s.ChargerIndex),
		UnitIndex:    ptr(s.UnitIndex),
		Extra:        r.Meta,
	}
	if c, err := st.Charger(s.ChargerIndex); err == nil {
		meta.PricePerKWh = ptr(c.PricePerKWh)
		if meta.ChargerType == "" {
			meta.ChargerType = string(c.Type)
		}
	}

	b := &booking.Booking{
		SlotID:    uuid.NullUUID{UUID: s.ID, Valid: true},
		StationID: uuid.NullUUID{UUID: st.ID, Valid: true},
		UserID:    userID,
		OwnerID:   nullString(st.OwnerID),
		Status:    booking.StatusPending,
		Metadata:  meta,
	}
	if err := e.bookings.Create(ctx, b); err != nil {
		relErr := e.release(ctx, s.ID)
		return Result{}, &rollbackError{compensation: Released, cause: err, compensationErr: relErr}
	}

	e.announce(ctx, b, st, s.Window())
	return Result{BookingID: b.ID, Status: b.Status}, nil
}

func (e *Engine) reserveWindow(ctx context.Context, r NewSlotFromWindow, userID string) (Result, error) {
	if err := r.Window.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	st, err := e.stations.GetStation(ctx, r.StationID)
	if errors.Is(err, station.ErrNotFound) {
		return Result{}, ErrStationNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrReservationFailed, err)
	}
	charger, err := st.Charger(r.ChargerIndex)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	s := &slot.Slot{
		ID:           uuid.New(),
		StationID:    st.ID,
		ChargerIndex: r.ChargerIndex,
		UnitIndex:    0,
		ChargerType:  string(charger.Type),
		StartTime:    r.Window.Start.UTC(),
		EndTime:      r.Window.End.UTC(),
		Reserved:     true,
	}
	if err := e.slots.CreateReserved(ctx, s); err != nil {
		return Result{}, err
	}

	b := &booking.Booking{
		SlotID:    uuid.NullUUID{UUID: s.ID, Valid: true},
		StationID: uuid.NullUUID{UUID: st.ID, Valid: true},
		UserID:    userID,
		OwnerID:   nullString(st.OwnerID),
		Status:    booking.StatusPending,
		Metadata: booking.Metadata{
			ChargerType:  s.ChargerType,
			ChargerIndex: ptr(s.ChargerIndex),
			UnitIndex:    ptr(s.UnitIndex),
			PricePerKWh:  ptr(charger.PricePerKWh),
			DemoCreated:  true,
			Extra:        r.Meta,
		},
	}
	if err := e.bookings.Create(ctx, b); err != nil {
		// Nothing else can reference a slot created for this request, so it goes away entirely.
		delErr := e.slots.Delete(context.WithoutCancel(ctx), s.ID)
		e.metrics.Rollback(string(Deleted), delErr == nil)
		if delErr != nil {
			e.logger.ErrorContext(ctx, "failed to delete slot after booking failure",
				"slot_id", s.ID, "error", delErr)
		}
		return Result{}, &rollbackError{compensation: Deleted, cause: err, compensationErr: delErr}
	}

	e.announce(ctx, b, st, s.Window())
	return Result{BookingID: b.ID, Status: b.Status, CreatedSlotID: &s.ID}, nil
}

func (e *Engine) recordUnbacked(ctx context.Context, r Unbacked, userID string) (Result, error) {
	if err := r.Window.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	start, end := r.Window.Start.UTC(), r.Window.End.UTC()
	b := &booking.Booking{
		UserID: userID,
		Status: booking.StatusPending,
		Metadata: booking.Metadata{
			Start:       &start,
			End:         &end,
			DemoCreated: true,
			External:    true,
			Extra:       r.Meta,
		},
	}
	if err := e.bookings.Create(ctx, b); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrReservationFailed, err)
	}
	return Result{BookingID: b.ID, Status: b.Status}, nil
}

// release frees a slot reserved earlier in the request. It runs even if the request context is
// already cancelled.
func (e *Engine) release(ctx context.Context, id uuid.UUID) error {
	err := e.slots.Release(context.WithoutCancel(ctx), id)
	e.metrics.Rollback(string(Released), err == nil)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to release slot during rollback", "slot_id", id, "error", err)
	}
	return err
}

func (e *Engine) announce(ctx context.Context, b *booking.Booking, st station.Station, w slot.Window) {
	if !b.OwnerID.Valid {
		return
	}
	e.notifier.Emit(ctx, notify.OwnerChannel(b.OwnerID.String), notify.BookingNew, notify.BookingCreated{
		BookingID:   b.ID,
		StationID:   st.ID,
		StationName: st.Name,
		Start:       w.Start,
		End:         w.End,
		UserID:      b.UserID,
		Status:      string(b.Status),
	})
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, slot.ErrAlreadyReserved):
		return "conflict"
	case errors.Is(err, slot.ErrNotFound), errors.Is(err, ErrStationNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	}
	return "failed"
}

func ptr[T any](v T) *T {
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

package booking

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/semanticallynull/chargeslot-backend/internal/identity"
	"github.com/semanticallynull/chargeslot-backend/internal/o11y"
	"github.com/semanticallynull/chargeslot-backend/notify"
)

// Store is the booking persistence the lifecycle manager relies on. Transition and
// DeleteIfPending must only succeed while the booking is pending and report ErrInvalidState
// otherwise.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (Booking, error)
	Transition(ctx context.Context, id uuid.UUID, to Status) (Booking, error)
	DeleteIfPending(ctx context.Context, id uuid.UUID) (Booking, error)
}

type SlotStore interface {
	Confirm(ctx context.Context, id uuid.UUID) error
	Release(ctx context.Context, id uuid.UUID) error
}

// Manager owns the booking state machine: pending to accepted or rejected by the owner, pending
// to cancelled by the user.
type Manager struct {
	store    Store
	slots    SlotStore
	notifier *notify.Dispatcher
	logger   *slog.Logger
	metrics  *o11y.Metrics
}

func NewManager(store Store, slots SlotStore, notifier *notify.Dispatcher, logger *slog.Logger, metrics *o11y.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		slots:    slots,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// Decide applies an owner's accept or reject to a pending booking. Accepting confirms the backing
// slot, rejecting returns it to the pool. The booking record is kept either way.
func (m *Manager) Decide(ctx context.Context, bookingID uuid.UUID, ownerID string, action Action) (Booking, error) {
	ctx, span := otel.Tracer("booking").Start(ctx, "Manager.Decide")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.id", bookingID.String()),
		attribute.String("booking.action", string(action)),
	)

	if _, err := ParseAction(string(action)); err != nil {
		return Booking{}, err
	}

	b, err := m.store.GetByID(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	if !b.OwnedBy(ownerID) {
		return Booking{}, ErrForbidden
	}
	if !b.Status.CanBecome(action.Target()) {
		return Booking{}, ErrInvalidState
	}

	b, err = m.store.Transition(ctx, bookingID, action.Target())
	if err != nil {
		return Booking{}, err
	}
	m.metrics.Decision(string(action))

	if b.SlotID.Valid {
		if action == Accept {
			err = m.slots.Confirm(ctx, b.SlotID.UUID)
		} else {
			err = m.slots.Release(ctx, b.SlotID.UUID)
		}
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to update slot after decision",
				"booking_id", b.ID, "slot_id", b.SlotID.UUID, "action", action, "error", err)
		}
	}

	m.notifier.Emit(ctx, notify.UserChannel(b.UserID), notify.BookingUpdated, notify.BookingChanged{
		BookingID: b.ID,
		Status:    string(b.Status),
	})
	return b, nil
}

// Cancel removes a pending booking on behalf of its user (or an administrator) and frees the
// backing slot. Unlike a rejection no record is kept.
func (m *Manager) Cancel(ctx context.Context, bookingID uuid.UUID, caller identity.Caller) (Booking, error) {
	ctx, span := otel.Tracer("booking").Start(ctx, "Manager.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", bookingID.String()))

	b, err := m.store.GetByID(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	if b.UserID != caller.UserID && !caller.IsAdmin() {
		return Booking{}, ErrForbidden
	}
	if !b.Status.CanBecome(StatusCancelled) {
		return Booking{}, ErrInvalidState
	}

	b, err = m.store.DeleteIfPending(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	m.metrics.Cancellation()

	if b.SlotID.Valid {
		if err := m.slots.Release(ctx, b.SlotID.UUID); err != nil {
			m.logger.ErrorContext(ctx, "failed to free slot after cancellation",
				"booking_id", b.ID, "slot_id", b.SlotID.UUID, "error", err)
		}
	}

	b.Status = StatusCancelled
	if b.OwnerID.Valid {
		m.notifier.Emit(ctx, notify.OwnerChannel(b.OwnerID.String), notify.BookingUpdated, notify.BookingChanged{
			BookingID: b.ID,
			Status:    string(StatusCancelled),
		})
	}
	return b, nil
}

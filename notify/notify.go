// Package notify delivers booking lifecycle events to owners and users. Delivery is best effort:
// the Dispatcher never reports a failure back to the request that caused the event.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/semanticallynull/chargeslot-backend/internal/o11y"
)

type Event string

const (
	BookingNew     Event = "booking:new"
	BookingUpdated Event = "booking:updated"
)

const (
	ownerPrefix = "owner:"
	userPrefix  = "user:"
)

func OwnerChannel(ownerID string) string {
	return ownerPrefix + ownerID
}

func UserChannel(userID string) string {
	return userPrefix + userID
}

// ValidChannel reports whether channel is an owner or user channel with a non-empty id.
func ValidChannel(channel string) bool {
	for _, p := range []string{ownerPrefix, userPrefix} {
		if id, ok := strings.CutPrefix(channel, p); ok && id != "" {
			return true
		}
	}
	return false
}

type Message struct {
	Channel string          `json:"channel"`
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Publisher hands a message to a transport.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// BookingCreated is the payload of BookingNew, sent to the station owner.
type BookingCreated struct {
	BookingID   uuid.UUID `json:"bookingId"`
	StationID   uuid.UUID `json:"stationId"`
	StationName string    `json:"stationName"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	UserID      string    `json:"userId"`
	Status      string    `json:"status"`
}

// BookingChanged is the payload of BookingUpdated.
type BookingChanged struct {
	BookingID uuid.UUID `json:"bookingId"`
	Status    string    `json:"status"`
}

const defaultPublishTimeout = 2 * time.Second

type Dispatcher struct {
	pub     Publisher
	logger  *slog.Logger
	metrics *o11y.Metrics
	timeout time.Duration
}

func NewDispatcher(pub Publisher, logger *slog.Logger, metrics *o11y.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		pub:     pub,
		logger:  logger,
		metrics: metrics,
		timeout: defaultPublishTimeout,
	}
}

// Emit publishes event on channel. Errors are logged and counted, never returned. The publish
// outlives the cancellation of ctx but is bounded by the dispatcher timeout.
func (d *Dispatcher) Emit(ctx context.Context, channel string, event Event, payload any) {
	if d == nil || d.pub == nil {
		return
	}
	if !ValidChannel(channel) {
		d.logger.WarnContext(ctx, "notification dropped, invalid channel", "channel", channel, "event", event)
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		d.metrics.PublishFailure(string(event))
		d.logger.ErrorContext(ctx, "failed to encode notification", "event", event, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	err = d.pub.Publish(ctx, Message{Channel: channel, Event: event, Payload: raw})
	if err != nil {
		d.metrics.PublishFailure(string(event))
		d.logger.WarnContext(ctx, "failed to publish notification",
			"channel", channel, "event", event, "error", err)
	}
}

// Fanout publishes every message to all publishers and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, msg Message) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/semanticallynull/chargeslot-backend/booking"
	"github.com/semanticallynull/chargeslot-backend/reservation"
	"github.com/semanticallynull/chargeslot-backend/slot"
)

type bookingResponse struct {
	ID        uuid.UUID        `json:"id"`
	SlotID    *uuid.UUID       `json:"slotId,omitempty"`
	StationID *uuid.UUID       `json:"stationId,omitempty"`
	UserID    string           `json:"userId"`
	OwnerID   string           `json:"ownerId,omitempty"`
	Status    booking.Status   `json:"status"`
	Metadata  booking.Metadata `json:"meta"`
	DecidedAt *time.Time       `json:"decidedAt,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func toBookingResponse(b booking.Booking) bookingResponse {
	resp := bookingResponse{
		ID:        b.ID,
		UserID:    b.UserID,
		OwnerID:   b.OwnerID.String,
		Status:    b.Status,
		Metadata:  b.Metadata,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
	if b.SlotID.Valid {
		resp.SlotID = &b.SlotID.UUID
	}
	if b.StationID.Valid {
		resp.StationID = &b.StationID.UUID
	}
	if b.DecidedAt.Valid {
		resp.DecidedAt = &b.DecidedAt.Time
	}
	return resp
}

func toBookingResponses(bookings []booking.Booking) []bookingResponse {
	resp := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		resp = append(resp, toBookingResponse(b))
	}
	return resp
}

// createBookingRequest carries one of three shapes: {slotId}, {demo, stationId, start, end} or
// {demo, start, end}.
type createBookingRequest struct {
	SlotID       string         `json:"slotId"`
	Demo         bool           `json:"demo"`
	StationID    string         `json:"stationId"`
	ChargerIndex int            `json:"chargerIndex"`
	Start        *time.Time     `json:"start"`
	End          *time.Time     `json:"end"`
	Meta         map[string]any `json:"meta"`
}

var errMissingPayload = errors.New("slotId or demo payload required")

func (r createBookingRequest) toRequest() (reservation.Request, error) {
	if r.SlotID != "" && !r.Demo {
		id, err := uuid.Parse(r.SlotID)
		if err == nil {
			return reservation.ExistingSlot{SlotID: id, Meta: r.Meta}, nil
		}
		// A slot id that is not ours falls through to the window shapes.
		if r.Start == nil || r.End == nil {
			return nil, errors.New("invalid slot id")
		}
	} else if !r.Demo {
		return nil, errMissingPayload
	}

	if r.Start == nil || r.End == nil {
		return nil, errors.New("start and end are required for demo booking")
	}
	w := slot.Window{Start: *r.Start, End: *r.End}
	if r.StationID == "" {
		return reservation.Unbacked{Window: w, Meta: r.Meta}, nil
	}
	stationID, err := uuid.Parse(r.StationID)
	if err != nil {
		return nil, errors.New("invalid station id")
	}
	return reservation.NewSlotFromWindow{
		StationID:    stationID,
		ChargerIndex: r.ChargerIndex,
		Window:       w,
		Meta:         r.Meta,
	}, nil
}

func (a *API) createBookingHandler(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}

	var body createBookingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid request body"})
		return
	}
	req, err := body.toRequest()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	res, err := a.cfg.Reserver.Reserve(c, req, cl.UserID)
	if err != nil {
		respondError(c, err, "failed to reserve slot")
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (a *API) myBookingsHandler(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}

	bookings, err := a.cfg.Bookings.ListByUser(c, cl.UserID)
	if err != nil {
		respondError(c, err, "failed to get user bookings")
		return
	}
	c.JSON(http.StatusOK, toBookingResponses(bookings))
}

func (a *API) ownerBookingsHandler(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}

	bookings, err := a.cfg.Bookings.ListByOwner(c, cl.UserID)
	if err != nil {
		respondError(c, err, "failed to get owner bookings")
		return
	}
	c.JSON(http.StatusOK, toBookingResponses(bookings))
}

type decisionRequest struct {
	Action string `json:"action" binding:"required"`
}

func (a *API) decideHandler(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "booking")
	if !ok {
		return
	}

	var body decisionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "action is required"})
		return
	}
	action, err := booking.ParseAction(body.Action)
	if err != nil {
		respondError(c, err, "invalid action")
		return
	}

	b, err := a.cfg.Lifecycle.Decide(c, id, cl.UserID, action)
	if err != nil {
		respondError(c, err, "failed to decide booking")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Booking " + string(b.Status), "booking": toBookingResponse(b)})
}

func (a *API) cancelBookingHandler(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "booking")
	if !ok {
		return
	}

	if _, err := a.cfg.Lifecycle.Cancel(c, id, cl); err != nil {
		respondError(c, err, "failed to cancel booking")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Booking cancelled"})
}

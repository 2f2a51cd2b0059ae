package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/chargeslot-backend/booking"
	"github.com/semanticallynull/chargeslot-backend/internal/middleware"
	"github.com/semanticallynull/chargeslot-backend/reservation"
	"github.com/semanticallynull/chargeslot-backend/slot"
	"github.com/semanticallynull/chargeslot-backend/station"
)

// respondError writes the response for a domain error. Anything unrecognised is logged with msg
// and answered with a bare 500.
func respondError(c *gin.Context, err error, msg string) {
	logger := middleware.GetLogger(c)

	if comp, clean, ok := reservation.RollbackFromError(err); ok {
		logger.ErrorContext(c, msg, "error", err, "compensation", comp, "compensation_ok", clean)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "RESERVATION_FAILED", "message": "Reservation failed, please try again"})
		return
	}

	var cfgErr *slot.ConfigError
	switch {
	case errors.Is(err, slot.ErrAlreadyReserved):
		c.JSON(http.StatusConflict, gin.H{"code": "SLOT_ALREADY_RESERVED", "message": "Slot already reserved, refresh available slots"})
	case errors.Is(err, slot.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "SLOT_NOT_FOUND", "message": "Slot not found"})
	case errors.Is(err, reservation.ErrStationNotFound), errors.Is(err, station.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "STATION_NOT_FOUND", "message": "Station not found"})
	case errors.Is(err, booking.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "BOOKING_NOT_FOUND", "message": "Booking not found"})
	case errors.Is(err, booking.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "NOT_AUTHORIZED", "message": "Not allowed to modify this booking"})
	case errors.Is(err, booking.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"code": "INVALID_STATE", "message": "Booking is no longer pending"})
	case errors.As(err, &cfgErr):
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_CONFIG", "message": cfgErr.Error(), "field": cfgErr.Field})
	case errors.Is(err, reservation.ErrInvalidRequest),
		errors.Is(err, slot.ErrInvalidWindow),
		errors.Is(err, booking.ErrInvalidAction),
		errors.Is(err, station.ErrInvalidChargerIndex):
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
	default:
		logger.ErrorContext(c, msg, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

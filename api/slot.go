package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/semanticallynull/chargeslot-backend/slot"
)

// defaultListRange is how far ahead slots are listed when no "to" is given.
const defaultListRange = 7 * 24 * time.Hour

type slotResponse struct {
	ID           uuid.UUID  `json:"id"`
	StationID    uuid.UUID  `json:"stationId"`
	ChargerIndex int        `json:"chargerIndex"`
	UnitIndex    int        `json:"unitIndex"`
	ChargerType  string     `json:"chargerType"`
	Start        time.Time  `json:"start"`
	End          time.Time  `json:"end"`
	Reserved     bool       `json:"reserved"`
	ConfirmedAt  *time.Time `json:"confirmedAt,omitempty"`
}

func toSlotResponse(s slot.Slot) slotResponse {
	resp := slotResponse{
		ID:           s.ID,
		StationID:    s.StationID,
		ChargerIndex: s.ChargerIndex,
		UnitIndex:    s.UnitIndex,
		ChargerType:  s.ChargerType,
		Start:        s.StartTime,
		End:          s.EndTime,
		Reserved:     s.Reserved,
	}
	if s.ConfirmedAt.Valid {
		resp.ConfirmedAt = &s.ConfirmedAt.Time
	}
	return resp
}

// listSlotsHandler lists a station's slots starting in [from, to). from defaults to now, to to a
// week after from, and only free slots are listed unless onlyFree=false.
func (a *API) listSlotsHandler(c *gin.Context) {
	stationID, ok := parseID(c, "station")
	if !ok {
		return
	}

	f := slot.ListFilter{StationID: stationID, From: a.now(), OnlyFree: true}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "from must be RFC 3339"})
			return
		}
		f.From = t
	}
	f.To = f.From.Add(defaultListRange)
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "to must be RFC 3339"})
			return
		}
		f.To = t
	}
	if v := c.Query("onlyFree"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "onlyFree must be a boolean"})
			return
		}
		f.OnlyFree = b
	}
	if !f.From.Before(f.To) {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "from must be before to"})
		return
	}

	slots, err := a.cfg.Slots.List(c, f)
	if err != nil {
		respondError(c, err, "failed to list slots")
		return
	}

	resp := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		resp = append(resp, toSlotResponse(s))
	}
	c.JSON(http.StatusOK, resp)
}

// generateSlotsHandler runs the generator for a station the caller owns. Admins may generate for
// any station.
func (a *API) generateSlotsHandler(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	stationID, ok := parseID(c, "station")
	if !ok {
		return
	}

	var cfg slot.GenerationConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid generation config"})
		return
	}
	if err := cfg.Validate(); err != nil {
		respondError(c, err, "invalid generation config")
		return
	}

	st, err := a.cfg.Stations.GetStation(c, stationID)
	if err != nil {
		respondError(c, err, "failed to get station")
		return
	}
	if st.OwnerID != cl.UserID && !cl.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"code": "NOT_AUTHORIZED", "message": "Not the owner of this station"})
		return
	}

	res, err := a.cfg.Generator.Generate(c, stationID, cfg)
	if err != nil {
		respondError(c, err, "failed to generate slots")
		return
	}
	c.JSON(http.StatusCreated, res)
}

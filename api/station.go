package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/semanticallynull/chargeslot-backend/station"
)

func (a *API) stationHandler(c *gin.Context) {
	id, ok := parseID(c, "station")
	if !ok {
		return
	}

	st, err := a.cfg.Stations.GetStation(c, id)
	if err != nil {
		respondError(c, err, "failed to get station")
		return
	}
	c.JSON(http.StatusOK, toStationResponse(st))
}

type chargerResponse struct {
	Index       int                 `json:"index"`
	Type        station.ChargerType `json:"type"`
	PowerKW     float64             `json:"powerKw"`
	PricePerKWh float64             `json:"pricePerKwh"`
	Count       int                 `json:"count"`
}

type stationResponse struct {
	ID        uuid.UUID         `json:"id"`
	OwnerID   string            `json:"ownerId"`
	Name      string            `json:"name"`
	Address   string            `json:"address"`
	Lat       float64           `json:"latitude"`
	Lng       float64           `json:"longitude"`
	Status    station.Status    `json:"status"`
	Chargers  []chargerResponse `json:"chargers"`
	CreatedAt time.Time         `json:"createdAt"`
}

func toStationResponse(st station.Station) stationResponse {
	chargers := make([]chargerResponse, 0, len(st.Chargers))
	for i, ch := range st.Chargers {
		chargers = append(chargers, chargerResponse{
			Index:       i,
			Type:        ch.Type,
			PowerKW:     ch.PowerKW,
			PricePerKWh: ch.PricePerKWh,
			Count:       ch.Count,
		})
	}
	return stationResponse{
		ID:        st.ID,
		OwnerID:   st.OwnerID,
		Name:      st.Name,
		Address:   st.Address,
		Lat:       st.Location.P.X,
		Lng:       st.Location.P.Y,
		Status:    st.Status,
		Chargers:  chargers,
		CreatedAt: st.CreatedAt,
	}
}

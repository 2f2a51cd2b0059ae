package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/chargeslot-backend/internal/middleware"
	"github.com/semanticallynull/chargeslot-backend/notify"
)

// wsHandler subscribes the caller to its user room, and to its owner room when it manages stations.
func (a *API) wsHandler(c *gin.Context) {
	if a.cfg.Realtime == nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "Realtime notifications are disabled"})
		return
	}
	cl, ok := caller(c)
	if !ok {
		return
	}

	rooms := []string{notify.UserChannel(cl.UserID)}
	if cl.CanManageStations() {
		rooms = append(rooms, notify.OwnerChannel(cl.UserID))
	}

	// Serve answers the failed upgrade itself.
	if err := a.cfg.Realtime.Serve(c.Writer, c.Request, rooms); err != nil {
		middleware.GetLogger(c).WarnContext(c, "websocket upgrade failed", "error", err)
	}
}

package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FileEvents upgrades the connection and hands it to the notification
// hub. Clients then send {"action":"subscribe","fileId":"..."} to join
// a file's group.
func (a *API) FileEvents(c *gin.Context) {
	if err := a.Hub.ServeWS(c.Writer, c.Request); err != nil {
		// Upgrade already wrote the HTTP error
		zap.L().Debug("Websocket upgrade failed", zap.Error(err))
	}
}

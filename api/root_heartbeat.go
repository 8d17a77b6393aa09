package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (a *API) Heartbeat(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "API is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

package api

import (
	"net/http"

	"polo74/file-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (a *API) FileFetchBulk(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	var files []model.File

	err := a.DB.
		Where("uploader_id = ? AND is_deleted = ?", userID, false).
		Order("created_at DESC").
		Find(&files).
		Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch files from db", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	c.JSON(http.StatusOK, files)
}

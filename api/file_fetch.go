package api

import (
	"errors"
	"net/http"

	"polo74/file-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (a *API) FileFetch(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.GetString("userID")

	fileID := c.Param("uuid")
	if fileID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No file ID provided",
			"requestID": requestID,
		})
		return
	}

	var fileDoc model.File

	err := a.DB.
		Where("uuid = ? AND is_deleted = ?", fileID, false).
		First(&fileDoc).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "File not found",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch file from db", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	if !fileDoc.VisibleTo(userID) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "File not found",
			"requestID": requestID,
		})
		return
	}

	c.JSON(http.StatusOK, fileDoc)
}

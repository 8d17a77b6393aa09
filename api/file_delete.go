package api

import (
	"net/http"

	"polo74/file-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FileDelete soft deletes a record. The flag only ever goes one way,
// so deleting an already-deleted or unknown uuid is a not-found, never
// a second state change. Objects stay in the store.
func (a *API) FileDelete(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.GetString("userID")

	fileID := c.Param("uuid")
	if fileID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
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
		// Absent and already-deleted look the same from outside
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error":     "File not found",
			"requestID": requestID,
		})
		return
	}

	if !fileDoc.VisibleTo(userID) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error":     "File not found",
			"requestID": requestID,
		})
		return
	}

	res := a.DB.
		Model(model.File{}).
		Where("uuid = ? AND is_deleted = ?", fileID, false).
		Update("is_deleted", true)
	if res.Error != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to soft delete file", zap.Error(res.Error), zap.String("requestID", requestID))
		return
	}

	if res.RowsAffected == 0 {
		// Lost the race against another delete
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error":     "File not found",
			"requestID": requestID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "File deleted",
		"fileId":  fileID,
	})
}

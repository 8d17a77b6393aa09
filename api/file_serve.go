package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"polo74/file-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FileServe streams a processed file straight from the object store,
// honoring HTTP Range requests so media elements can seek.
func (a *API) FileServe(c *gin.Context) {
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
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error":     "File not found",
				"requestID": requestID,
			})
			return
		}

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch file record", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	// Invisible looks exactly like absent
	if !fileDoc.VisibleTo(userID) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error":     "File not found",
			"requestID": requestID,
		})
		return
	}

	if fileDoc.Status != model.StatusProcessed {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":     "File is not ready yet",
			"status":    fileDoc.Status,
			"requestID": requestID,
		})
		return
	}

	key := resolveStorageKey(&fileDoc)
	ctx := c.Request.Context()

	size, err := a.Store.Stat(ctx, key)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to stat object", zap.Error(err), zap.String("key", key), zap.String("requestID", requestID))
		return
	}

	rangeHeader := c.GetHeader("Range")

	if rangeHeader == "" {
		reader, err := a.Store.Get(ctx, key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to get object", zap.Error(err), zap.String("key", key), zap.String("requestID", requestID))
			return
		}
		defer reader.Close()

		c.DataFromReader(http.StatusOK, size, fileDoc.MimeType, reader, map[string]string{
			"Accept-Ranges": "bytes",
		})
		return
	}

	start, end, err := parseRange(rangeHeader, size)
	if err != nil {
		c.Header("Content-Range", "bytes */"+strconv.FormatInt(size, 10))
		c.AbortWithStatusJSON(http.StatusRequestedRangeNotSatisfiable, gin.H{
			"error":     "Invalid range",
			"requestID": requestID,
		})
		return
	}

	reader, err := a.Store.GetRange(ctx, key, start, end)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to get object range", zap.Error(err), zap.String("key", key), zap.String("requestID", requestID))
		return
	}
	defer reader.Close()

	chunkSize := end - start + 1

	c.DataFromReader(http.StatusPartialContent, chunkSize, fileDoc.MimeType, reader, map[string]string{
		"Content-Range": fmt.Sprintf("bytes %d-%d/%d", start, end, size),
		"Accept-Ranges": "bytes",
	})
}

package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"polo74/file-api/internal/model"
	"polo74/file-api/validators"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const nanoidDigits = "0123456789"

// FileUpload stages the payload, creates the pending record and hands
// it to the worker. It returns as soon as the task is queued; clients
// follow the processing over the events feed.
func (a *API) FileUpload(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.GetString("userID")

	fh, err := c.FormFile("file")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "No file provided",
			"requestID": requestID,
		})
		return
	}

	code, f, err := validators.FileValidator(fh)
	if err != nil {
		if code == http.StatusInternalServerError {
			zap.L().Error("Failed to validate file", zap.Error(err), zap.String("requestID", requestID))

			// That's to set the error into a general one for the users
			err = errors.New("internal server error")
		}

		c.AbortWithStatusJSON(code, gin.H{
			"error":     err.Error(),
			"requestID": requestID,
		})
		return
	}
	defer f.Close()

	stagingDir := viper.GetString("staging.dir")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to create staging directory", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	suffix, err := gonanoid.Generate(nanoidDigits, 9)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to generate staging name", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	stagedName := "file-" + time.Now().UTC().Format("20060102150405") + "-" + suffix + path.Ext(fh.Filename)
	stagedPath := filepath.Join(stagingDir, stagedName)

	out, err := os.Create(stagedPath)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to create staged file", zap.Error(err), zap.String("requestID", requestID))
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, f); err != nil {
		os.Remove(stagedPath)

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to write staged file", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	var uploader *string
	if userID != "" {
		uploader = &userID
	}

	fileDoc := model.File{
		UUID:         uuid.NewString(),
		OriginalName: fh.Filename,
		Encoding:     fh.Header.Get("Content-Transfer-Encoding"),
		MimeType:     fh.Header.Get("Content-Type"),
		Size:         fh.Size,
		Path:         stagedPath,
		StagingPath:  stagedPath,
		Status:       model.StatusPending,
		UploaderID:   uploader,
		CreatedAt:    time.Now().Unix(),
	}

	if err := a.DB.Create(&fileDoc).Error; err != nil {
		os.Remove(stagedPath)

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to save file record to db", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	// If this fails the record stays pending with no task behind it.
	// That needs manual remediation, there is no retry here.
	if err := a.Queue.EnqueueProcess(c.Request.Context(), fileDoc.UUID, stagedPath); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Upload accepted but processing could not be queued",
			"requestID": requestID,
		})

		zap.L().Error("Failed to enqueue processing task",
			zap.Error(err),
			zap.String("fileID", fileDoc.UUID),
			zap.String("requestID", requestID))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"fileId": fileDoc.UUID,
		"status": fileDoc.Status,
	})
}

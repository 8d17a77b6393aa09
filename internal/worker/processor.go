// Package worker drives staged uploads through the file state machine:
// pending -> processing -> processed | failed.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"polo74/file-api/internal/event"
	"polo74/file-api/internal/model"
	"polo74/file-api/internal/queue"
	"polo74/file-api/internal/storage"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Processor handles one task at a time. Every terminal path returns
// nil so the queue acknowledges the message: a visible failed record
// beats redelivery of a half-mutated one.
type Processor struct {
	DB        *gorm.DB
	Store     storage.ObjectStore
	Publisher event.Publisher

	// Staged paths from the API may be relative; they are resolved
	// against StagingRoot because the two processes don't have to
	// share a working directory.
	StagingRoot string

	// URL prefix for canonical locators written into processed records
	PublicURL string
}

// HandleProcessTask consumes one file:process task.
func (p *Processor) HandleProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.ProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		// Poison message, drain it
		zap.L().Error("Dropping malformed task payload", zap.Error(err))
		return nil
	}

	log := zap.L().With(zap.String("fileID", payload.FileID))
	log.Info("Received task")

	var fileDoc model.File
	err := p.DB.Where("uuid = ?", payload.FileID).First(&fileDoc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Poison message: ack and drop so it can't loop forever
			log.Error("File record not found, dropping task")
			return nil
		}

		// The store itself is unreachable; without the record there is
		// nothing to mark failed, so this is also drained
		log.Error("Failed to look up file record, dropping task", zap.Error(err))
		return nil
	}

	if err := fileDoc.TransitionTo(model.StatusProcessing); err != nil {
		// Terminal or already-processing record, e.g. a double submit.
		// The state machine never revisits earlier states.
		log.Warn("Dropping task for record outside pending state",
			zap.String("status", string(fileDoc.Status)))
		return nil
	}

	if err := p.DB.Save(&fileDoc).Error; err != nil {
		log.Error("Failed to persist processing status, dropping task", zap.Error(err))
		return nil
	}

	p.Publisher.PublishStatus(ctx, event.StatusEvent{
		FileID: fileDoc.UUID,
		Status: string(model.StatusProcessing),
	})

	stagedPath := payload.FilePath
	if !filepath.IsAbs(stagedPath) {
		stagedPath = filepath.Join(p.StagingRoot, stagedPath)
	}

	s3URL, err := p.upload(ctx, &fileDoc, stagedPath)
	if err != nil {
		p.markFailed(ctx, &fileDoc, err, log)
		return nil
	}

	fileDoc.Path = s3URL
	fileDoc.StorageKey = filepath.Base(stagedPath)

	if err := fileDoc.TransitionTo(model.StatusProcessed); err != nil {
		// Can't happen from processing, but the guard decides
		p.markFailed(ctx, &fileDoc, err, log)
		return nil
	}

	if err := p.DB.Save(&fileDoc).Error; err != nil {
		// The store still says processing, roll the in-memory copy back
		// so the failed transition is legal
		fileDoc.Status = model.StatusProcessing
		p.markFailed(ctx, &fileDoc, fmt.Errorf("failed to persist processed record, %w", err), log)
		return nil
	}

	p.Publisher.PublishStatus(ctx, event.StatusEvent{
		FileID: fileDoc.UUID,
		Status: string(model.StatusProcessed),
		S3URL:  s3URL,
	})

	// Cleanup never changes the outcome of the task
	if err := os.Remove(stagedPath); err != nil {
		log.Warn("Failed to delete staged file", zap.String("path", stagedPath), zap.Error(err))
	} else {
		log.Debug("Cleaned up staged file", zap.String("path", stagedPath))
	}

	log.Info("Processing complete")
	return nil
}

// upload moves the staged payload into the object store and returns
// the canonical locator.
func (p *Processor) upload(ctx context.Context, fileDoc *model.File, stagedPath string) (string, error) {
	f, err := os.Open(stagedPath)
	if err != nil {
		return "", fmt.Errorf("failed to open staged file, %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat staged file, %w", err)
	}

	key := filepath.Base(stagedPath)

	err = p.Store.Put(ctx, key, f, stat.Size(), fileDoc.MimeType)
	if err != nil {
		return "", err
	}

	return p.PublicURL + "/" + key, nil
}

// markFailed moves the record into its failed terminal state and
// announces it. Persistence errors here are logged and swallowed, the
// task is acknowledged either way.
func (p *Processor) markFailed(ctx context.Context, fileDoc *model.File, cause error, log *zap.Logger) {
	log.Error("Processing failed", zap.Error(cause))

	if err := fileDoc.TransitionTo(model.StatusFailed); err != nil {
		log.Error("Failed to transition record to failed", zap.Error(err))
		return
	}

	if err := p.DB.Save(fileDoc).Error; err != nil {
		log.Error("Failed to persist failed status", zap.Error(err))
	}

	p.Publisher.PublishStatus(ctx, event.StatusEvent{
		FileID: fileDoc.UUID,
		Status: string(model.StatusFailed),
		Error:  cause.Error(),
	})
}

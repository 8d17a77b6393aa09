// Package queue owns the task queue side of the broker. Each component
// that talks to the queue holds its own Client instead of sharing a
// package-level connection.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/viper"
)

const (
	// QueueFileProcessing is the durable queue the worker consumes
	QueueFileProcessing = "file_processing"

	// TypeFileProcess is the task type for a staged upload
	TypeFileProcess = "file:process"
)

// ProcessPayload is the hand-off contract between ingestion and the
// worker. FilePath is the staging locator, possibly relative to the
// worker's staging.root.
type ProcessPayload struct {
	FileID   string `json:"fileId"`
	FilePath string `json:"filePath"`
}

// Enqueuer is what the ingestion gateway depends on; tests swap in
// fakes.
type Enqueuer interface {
	EnqueueProcess(ctx context.Context, fileID, filePath string) error
}

type Client struct {
	c *asynq.Client
}

// RedisOpt builds the asynq/redis connection options from config.
func RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     viper.GetString("redis.addr"),
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	}
}

func NewClient() *Client {
	return &Client{c: asynq.NewClient(RedisOpt())}
}

// EnqueueProcess hands one staged upload to the worker. MaxRetry is 0
// on purpose: the worker acknowledges every terminal path itself and
// redelivery of a half-processed record is worse than a visible
// failed status.
func (q *Client) EnqueueProcess(ctx context.Context, fileID, filePath string) error {
	payload, err := json.Marshal(ProcessPayload{
		FileID:   fileID,
		FilePath: filePath,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal task payload, %w", err)
	}

	_, err = q.c.EnqueueContext(ctx,
		asynq.NewTask(TypeFileProcess, payload),
		asynq.Queue(QueueFileProcessing),
		asynq.MaxRetry(0),
		asynq.Timeout(10*time.Minute),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task for file '%s', %w", fileID, err)
	}

	return nil
}

func (q *Client) Close() error {
	return q.c.Close()
}

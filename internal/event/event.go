// Package event carries file status events from the worker to every
// live relay instance over the broker's fanout channel.
package event

import "time"

// ChannelFileEvents is the fanout channel status events go through.
// Every subscriber receives every event, so any number of API
// instances can relay to their own websocket clients.
const ChannelFileEvents = "file_events"

// StatusEvent is published once per worker-side transition. It is
// never persisted.
type StatusEvent struct {
	FileID    string    `json:"fileId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`

	// Set on processed events
	S3URL string `json:"s3Url,omitempty"`

	// Set on failed events
	Error string `json:"error,omitempty"`
}

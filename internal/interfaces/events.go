package interfaces

import (
	"context"

	"github.com/ternarybob/compleo/internal/models"
)

// ProgressHandler consumes job progress events.
type ProgressHandler func(ctx context.Context, event models.ProgressEvent)

// EventService is the pub/sub bus carrying job progress to subscribers
// (websocket clients, tests). Publishing never blocks the pipeline.
type EventService interface {
	// Publish delivers an event to all subscribers.
	Publish(ctx context.Context, event models.ProgressEvent)

	// Subscribe registers a handler for all events. Returns an unsubscribe func.
	Subscribe(handler ProgressHandler) func()

	// SubscribeJob returns a bounded channel of events for one job, closed
	// after the terminal event. Coalescable events may be replaced when the
	// buffer is full.
	SubscribeJob(jobID string) (<-chan models.ProgressEvent, func())

	// Close shuts down the event service.
	Close() error
}

package queue

import (
	"context"

	"github.com/google/uuid"
)

const QueueName = "comurban.jobs"

// Job kinds.
const (
	KindDetectIncident = "detect_incident"
	KindAutoReply      = "auto_reply"
)

// Job is the envelope for background work triggered by webhook ingestion.
// Detection and auto-reply run off the request path so a slow classifier
// never delays the provider acknowledgement.
type Job struct {
	Kind           string    `json:"kind"`
	SourceType     string    `json:"source_type,omitempty"`
	SourceID       uuid.UUID `json:"source_id,omitempty"`
	ConversationID uuid.UUID `json:"conversation_id,omitempty"`
}

// Handler processes a dequeued job.
type Handler func(ctx context.Context, job Job) error

// Enqueuer hands jobs off for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
	Close() error
}

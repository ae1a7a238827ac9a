package queue

import (
	"context"
	"log"
	"time"
)

// InlineEnqueuer runs jobs in a goroutine within the same process. It is the
// fallback when no broker is configured, trading durability for zero
// infrastructure.
type InlineEnqueuer struct {
	handler Handler
	timeout time.Duration
}

func NewInlineEnqueuer(handler Handler) *InlineEnqueuer {
	return &InlineEnqueuer{handler: handler, timeout: 60 * time.Second}
}

func (e *InlineEnqueuer) Enqueue(_ context.Context, job Job) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if err := e.handler(ctx, job); err != nil {
			log.Printf("[Queue] inline %s job failed: %v", job.Kind, err)
		}
	}()
	return nil
}

func (e *InlineEnqueuer) Close() error { return nil }

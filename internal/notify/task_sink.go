package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"greendrake/trueque/internal/models"
)

// TypeEventDeliver is the asynq task that turns an event into inbox messages.
const TypeEventDeliver = "market:event:deliver"

// IAsynqClient defines the Asynq client methods used for enqueuing.
// This allows easier mocking than using the concrete asynq.Client.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskSink defers delivery to the background worker by enqueuing one task per event.
type TaskSink struct {
	client IAsynqClient
}

// NewTaskSink creates a new TaskSink.
func NewTaskSink(client IAsynqClient) *TaskSink {
	return &TaskSink{client: client}
}

func (s *TaskSink) Publish(ctx context.Context, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	task := asynq.NewTask(TypeEventDeliver, payload)
	if _, err := s.client.EnqueueContext(ctx, task, asynq.Queue("default"), asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("failed to enqueue delivery of %s for listing %s: %w", event.Type, event.ListingID, err)
	}
	return nil
}

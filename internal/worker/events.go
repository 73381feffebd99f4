package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cuongbtq/ddl-worker/internal/taskqueue"
)

// Publisher delivers task outcome events. *rabbitmq.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// publishEvent is best effort; a failed publish never affects the task
func (w *Worker) publishEvent(ctx context.Context, event *taskqueue.TaskEvent) {
	if w.publisher == nil {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		w.logger.Error("Failed to marshal task event",
			slog.String("task_path", event.Path),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := w.publisher.Publish(ctx, body, "application/json"); err != nil {
		w.logger.Warn("Failed to publish task event",
			slog.String("task_path", event.Path),
			slog.String("status", event.Status),
			slog.String("error", err.Error()),
		)
	}
}

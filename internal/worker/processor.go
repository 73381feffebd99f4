package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/cuongbtq/ddl-worker/internal/query"
	"github.com/cuongbtq/ddl-worker/internal/taskqueue"
	"github.com/cuongbtq/ddl-worker/internal/worker/domain"
)

// passResult counts what one pass over the queue did
type passResult struct {
	listed   int
	executed int
	skipped  int
	failed   int
}

// run is the poll loop. The stop signal is only observed between passes.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	// Store and engine calls must not be interrupted by Stop
	opCtx := context.WithoutCancel(ctx)

	for ctx.Err() == nil {
		result, err := w.processTasks(opCtx)
		if err != nil {
			w.logger.Error("Failed to process DDL task queue",
				slog.String("queue_path", w.QueuePath()),
				slog.String("error", err.Error()),
			)
		} else if result.failed > 0 {
			w.logger.Warn("DDL task pass finished with failures",
				slog.Int("listed", result.listed),
				slog.Int("executed", result.executed),
				slog.Int("skipped", result.skipped),
				slog.Int("failed", result.failed),
			)
		} else if result.listed > 0 {
			w.logger.Debug("DDL task pass finished",
				slog.Int("listed", result.listed),
				slog.Int("executed", result.executed),
				slog.Int("skipped", result.skipped),
			)
		}

		timer := time.NewTimer(w.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	w.logger.Info("DDL worker loop exited")
}

// processTasks makes one pass over the queue. Only a listing failure is
// returned; task failures are logged and counted.
func (w *Worker) processTasks(ctx context.Context) (passResult, error) {
	var result passResult

	taskIDs, err := w.storage.ListTaskIDs(ctx)
	if err != nil {
		return result, err
	}
	result.listed = len(taskIDs)

	for _, taskID := range taskIDs {
		task, status, err := w.processTask(ctx, taskID)

		event := taskqueue.TaskEvent{
			Host:       w.hostAddress,
			TaskID:     taskID,
			Path:       taskqueue.TaskPath(w.QueuePath(), taskID),
			Status:     status,
			OccurredAt: time.Now().UTC(),
		}
		if task != nil {
			event.Query = task.Command()
		}

		if err != nil {
			result.failed++
			event.Status = taskqueue.StatusFailed
			event.Error = err.Error()

			attrs := []any{
				slog.String("task_path", event.Path),
				slog.String("error", err.Error()),
			}
			var taskErr *domain.TaskError
			if errors.As(err, &taskErr) {
				attrs = append(attrs, slog.String("step", taskErr.Step))
			}
			w.logger.Error("Failed to process DDL task", attrs...)
		} else if status == taskqueue.StatusSkippedEmpty {
			result.skipped++
		} else {
			result.executed++
		}

		w.publishEvent(ctx, &event)
	}

	return result, nil
}

// processTask fetches, executes and removes a single task. It is the
// containment boundary for one task: errors and panics are returned, never
// propagated. The node stays in the queue unless the remove step succeeded.
func (w *Worker) processTask(ctx context.Context, taskID string) (task *taskqueue.Task, status string, err error) {
	taskPath := taskqueue.TaskPath(w.QueuePath(), taskID)
	step := domain.StepFetch

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Recovered panic while processing DDL task",
				slog.String("task_path", taskPath),
				slog.String("step", step),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			status = ""
			err = domain.NewTaskError(step, taskPath, fmt.Errorf("%w: %v", domain.ErrTaskPanicked, r))
		}
	}()

	task, err = w.storage.GetTask(ctx, taskID)
	if err != nil {
		return nil, "", domain.NewTaskError(step, taskPath, err)
	}

	status = taskqueue.StatusSkippedEmpty
	if len(task.Payload) > 0 {
		step = domain.StepExecute
		w.logger.Info("Executing DDL task",
			slog.String("task_path", taskPath),
			slog.String("query", query.Summarize(task.Command(), 200)),
		)

		if err := w.engine.Execute(ctx, task.Command(), w.session); err != nil {
			return task, "", domain.NewTaskError(step, taskPath, err)
		}
		status = taskqueue.StatusCompleted
	}

	// If this fails after a successful execute the task runs again next pass
	step = domain.StepRemove
	if err := w.storage.RemoveTask(ctx, task); err != nil {
		return task, "", domain.NewTaskError(step, taskPath, err)
	}

	w.logger.Info("DDL task done",
		slog.String("task_path", taskPath),
		slog.String("status", status),
	)

	return task, status, nil
}

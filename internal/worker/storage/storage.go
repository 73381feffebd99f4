package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/ddl-worker/internal/taskqueue"
)

// NodeStore is the part of the coordination store the worker reads and acks through
type NodeStore interface {
	Children(ctx context.Context, nodePath string) ([]string, error)
	Get(ctx context.Context, nodePath string) ([]byte, error)
	Remove(ctx context.Context, nodePath string) error
}

// Storage handles all coordination-store operations for one host queue
type Storage struct {
	store     NodeStore
	queuePath string
	logger    *slog.Logger
}

// NewStorage creates a Storage bound to queuePath
func NewStorage(store NodeStore, queuePath string, logger *slog.Logger) *Storage {
	return &Storage{
		store:     store,
		queuePath: queuePath,
		logger:    logger,
	}
}

// QueuePath returns the queue this storage reads from
func (s *Storage) QueuePath() string {
	return s.queuePath
}

// ListTaskIDs returns the names of the pending task nodes in store order
func (s *Storage) ListTaskIDs(ctx context.Context) ([]string, error) {
	ids, err := s.store.Children(ctx, s.queuePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list task queue %s: %w", s.queuePath, err)
	}
	return ids, nil
}

// GetTask fetches a task's payload
func (s *Storage) GetTask(ctx context.Context, taskID string) (*taskqueue.Task, error) {
	taskPath := taskqueue.TaskPath(s.queuePath, taskID)

	payload, err := s.store.Get(ctx, taskPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return &taskqueue.Task{
		ID:      taskID,
		Path:    taskPath,
		Payload: payload,
	}, nil
}

// RemoveTask deletes a task node, acknowledging it
func (s *Storage) RemoveTask(ctx context.Context, task *taskqueue.Task) error {
	if err := s.store.Remove(ctx, task.Path); err != nil {
		return fmt.Errorf("failed to remove task: %w", err)
	}

	s.logger.Debug("Task removed from queue",
		slog.String("task_path", task.Path),
	)

	return nil
}

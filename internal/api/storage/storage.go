package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/ddl-worker/internal/api/domain"
	"github.com/cuongbtq/ddl-worker/internal/coordination"
	"github.com/cuongbtq/ddl-worker/internal/taskqueue"
)

// TaskFilter selects a page of a host's queue
type TaskFilter struct {
	Host     string
	After    string // exclusive lower bound on task id
	PageSize int
}

// Storage reads and writes host task queues in the coordination store
type Storage struct {
	store coordination.Store
	root  string
	now   func() time.Time
}

func NewStorage(store coordination.Store, root string) *Storage {
	return &Storage{
		store: store,
		root:  root,
		now:   time.Now,
	}
}

// NormalizeHost returns host in the form workers derive their own queue from
func NormalizeHost(host string) (string, error) {
	normalized, err := taskqueue.NormalizeHostAddress(host)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidHost, err)
	}
	return normalized, nil
}

func (s *Storage) queuePath(host string) (string, error) {
	normalized, err := NormalizeHost(host)
	if err != nil {
		return "", err
	}
	return taskqueue.QueuePath(s.root, normalized), nil
}

// CreateTask enqueues a command for host
func (s *Storage) CreateTask(ctx context.Context, host, query string) (*taskqueue.Task, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}

	queuePath, err := s.queuePath(host)
	if err != nil {
		return nil, err
	}

	taskID := taskqueue.NewTaskID(s.now())
	task := &taskqueue.Task{
		ID:      taskID,
		Path:    taskqueue.TaskPath(queuePath, taskID),
		Payload: []byte(query),
	}

	if err := s.store.Create(ctx, task.Path, task.Payload); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return task, nil
}

// ListTasks returns up to PageSize+1 tasks after filter.After so the caller
// can tell whether another page exists. A host without a queue has no tasks.
func (s *Storage) ListTasks(ctx context.Context, filter TaskFilter) ([]*taskqueue.Task, error) {
	queuePath, err := s.queuePath(filter.Host)
	if err != nil {
		return nil, err
	}

	ids, err := s.store.Children(ctx, queuePath)
	if err != nil {
		if errors.Is(err, coordination.ErrNotFound) {
			return []*taskqueue.Task{}, nil
		}
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := make([]*taskqueue.Task, 0, filter.PageSize+1)
	for _, id := range ids {
		if filter.After != "" && id <= filter.After {
			continue
		}

		taskPath := taskqueue.TaskPath(queuePath, id)
		payload, err := s.store.Get(ctx, taskPath)
		if err != nil {
			// removed by the worker since the listing
			if errors.Is(err, coordination.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to get task: %w", err)
		}

		tasks = append(tasks, &taskqueue.Task{ID: id, Path: taskPath, Payload: payload})
		if len(tasks) > filter.PageSize {
			break
		}
	}

	return tasks, nil
}

// GetTask returns a single pending task
func (s *Storage) GetTask(ctx context.Context, host, taskID string) (*taskqueue.Task, error) {
	taskPath, err := s.taskPath(host, taskID)
	if err != nil {
		return nil, err
	}

	payload, err := s.store.Get(ctx, taskPath)
	if err != nil {
		if errors.Is(err, coordination.ErrNotFound) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return &taskqueue.Task{ID: taskID, Path: taskPath, Payload: payload}, nil
}

// DeleteTask removes a pending task, e.g. one that keeps failing
func (s *Storage) DeleteTask(ctx context.Context, host, taskID string) error {
	taskPath, err := s.taskPath(host, taskID)
	if err != nil {
		return err
	}

	if err := s.store.Remove(ctx, taskPath); err != nil {
		if errors.Is(err, coordination.ErrNotFound) {
			return domain.ErrTaskNotFound
		}
		return fmt.Errorf("failed to delete task: %w", err)
	}

	return nil
}

func (s *Storage) taskPath(host, taskID string) (string, error) {
	queuePath, err := s.queuePath(host)
	if err != nil {
		return "", err
	}
	if err := taskqueue.ValidateTaskID(taskID); err != nil {
		return "", err
	}
	return taskqueue.TaskPath(queuePath, taskID), nil
}

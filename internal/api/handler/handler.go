package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/ddl-worker/internal/api/storage"
	"github.com/cuongbtq/ddl-worker/internal/coordination"
)

// HealthChecker reports whether a backing service is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger *slog.Logger
	Store  coordination.Store
	// QueueRoot is the configured task_queue_path
	QueueRoot string
	// Health is optional
	Health HealthChecker
}

// TaskHandler handles task queue HTTP requests
type TaskHandler struct {
	logger  *slog.Logger
	storage *storage.Storage
}

// NewTaskHandler creates a new TaskHandler instance
func NewTaskHandler(deps *Dependencies) *TaskHandler {
	return &TaskHandler{
		logger:  deps.Logger,
		storage: storage.NewStorage(deps.Store, deps.QueueRoot),
	}
}

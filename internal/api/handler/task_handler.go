package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/ddl-worker/internal/api/domain"
	"github.com/cuongbtq/ddl-worker/internal/api/dto"
	"github.com/cuongbtq/ddl-worker/internal/api/storage"
	"github.com/cuongbtq/ddl-worker/internal/coordination"
	"github.com/cuongbtq/ddl-worker/internal/taskqueue"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CreateTask handles POST /api/v1/hosts/:host/tasks
// Enqueues a command for the worker on host
func (h *TaskHandler) CreateTask(c *gin.Context) {
	host, err := storage.NormalizeHost(c.Param("host"))
	if err != nil {
		h.respondError(c, "Invalid host", err)
		return
	}

	h.logger.Info("CreateTask called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("host", host),
	)

	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	task, err := h.storage.CreateTask(c.Request.Context(), host, req.Query)
	if err != nil {
		h.respondError(c, "Failed to create task", err)
		return
	}

	h.logger.Info("Task enqueued",
		slog.String("host", host),
		slog.String("task_id", task.ID),
	)

	c.JSON(http.StatusCreated, toTaskDTO(host, task))
}

// GetTask handles GET /api/v1/hosts/:host/tasks/:task_id
func (h *TaskHandler) GetTask(c *gin.Context) {
	host, err := storage.NormalizeHost(c.Param("host"))
	if err != nil {
		h.respondError(c, "Invalid host", err)
		return
	}
	taskID := c.Param("task_id")

	task, err := h.storage.GetTask(c.Request.Context(), host, taskID)
	if err != nil {
		h.respondError(c, "Failed to get task", err)
		return
	}

	c.JSON(http.StatusOK, toTaskDTO(host, task))
}

// ListTasks handles GET /api/v1/hosts/:host/tasks
// Lists pending tasks in execution order with cursor pagination
func (h *TaskHandler) ListTasks(c *gin.Context) {
	host, err := storage.NormalizeHost(c.Param("host"))
	if err != nil {
		h.respondError(c, "Invalid host", err)
		return
	}

	var req dto.ListTasksRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	after, err := DecodeTaskCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	tasks, err := h.storage.ListTasks(c.Request.Context(), storage.TaskFilter{
		Host:     host,
		After:    after,
		PageSize: req.PageSize,
	})
	if err != nil {
		h.respondError(c, "Failed to list tasks", err)
		return
	}

	hasMore := len(tasks) > req.PageSize
	if hasMore {
		tasks = tasks[:req.PageSize]
	}

	items := make([]dto.TaskDTO, len(tasks))
	for i, task := range tasks {
		items[i] = toTaskDTO(host, task)
	}

	var nextCursor string
	if hasMore {
		nextCursor = EncodeTaskCursor(tasks[len(tasks)-1].ID)
	}

	c.JSON(http.StatusOK, dto.ListTasksResponse{
		Tasks:      items,
		NextCursor: nextCursor,
	})
}

// DeleteTask handles DELETE /api/v1/hosts/:host/tasks/:task_id
// Drops a pending task so the worker stops retrying it
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	host, err := storage.NormalizeHost(c.Param("host"))
	if err != nil {
		h.respondError(c, "Invalid host", err)
		return
	}
	taskID := c.Param("task_id")

	h.logger.Info("DeleteTask called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("host", host),
		slog.String("task_id", taskID),
	)

	if err := h.storage.DeleteTask(c.Request.Context(), host, taskID); err != nil {
		h.respondError(c, "Failed to delete task", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *TaskHandler) respondError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidHost),
		errors.Is(err, domain.ErrEmptyQuery),
		errors.Is(err, coordination.ErrInvalidPath):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, coordination.ErrUnavailable):
		h.logger.Error(msg, slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": msg})
	default:
		h.logger.Error(msg, slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

func toTaskDTO(host string, task *taskqueue.Task) dto.TaskDTO {
	return dto.TaskDTO{
		TaskID: task.ID,
		Host:   host,
		Path:   task.Path,
		Query:  task.Command(),
	}
}

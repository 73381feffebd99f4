package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownConfigParameter is returned when the worker's config section
	// contains a key other than task_queue_path
	ErrUnknownConfigParameter = errors.New("unknown parameter in DDL worker configuration")

	// ErrMissingConfigParameter is returned when task_queue_path is absent or empty
	ErrMissingConfigParameter = errors.New("missing parameter in DDL worker configuration")

	// ErrTaskPanicked is wrapped into the TaskError of a task whose processing panicked
	ErrTaskPanicked = errors.New("task processing panicked")
)

// TaskError records which step of a task failed. The node is left in the
// queue whenever Step is before StepRemove.
type TaskError struct {
	Step string
	Path string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Step, e.Path, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// NewTaskError wraps err with the failing step and task path
func NewTaskError(step, path string, err error) error {
	return &TaskError{Step: step, Path: path, Err: err}
}

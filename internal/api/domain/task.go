package domain

import (
	"errors"
)

var (
	// ErrTaskNotFound is returned when the addressed task node does not exist
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidHost is returned for host identities that are not host:port
	ErrInvalidHost = errors.New("host must be in host:port form")

	// ErrEmptyQuery is returned when a task is submitted without a command
	ErrEmptyQuery = errors.New("query must not be empty")
)

package query

import (
	"context"
	"time"
)

// Session is the execution context a command runs under
type Session struct {
	// Schema becomes the search_path for the command; empty keeps the server default
	Schema string
	// StatementTimeout bounds a single command; zero means no limit
	StatementTimeout time.Duration
	// ApplicationName is reported to the server for the duration of the command
	ApplicationName string
}

// Engine executes a single command synchronously
type Engine interface {
	Execute(ctx context.Context, command string, session *Session) error
}

// EngineFunc adapts a function to Engine
type EngineFunc func(ctx context.Context, command string, session *Session) error

func (f EngineFunc) Execute(ctx context.Context, command string, session *Session) error {
	return f(ctx, command, session)
}

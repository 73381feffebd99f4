package query

import (
	"context"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/ddl-worker/shared/postgresql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresEngine runs commands against PostgreSQL in autocommit mode, so
// statements that refuse a transaction block (CREATE DATABASE, VACUUM,
// CREATE INDEX CONCURRENTLY) work as well.
type PostgresEngine struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresEngine creates an engine on top of an established client
func NewPostgresEngine(client *postgresql.Client, logger *slog.Logger) *PostgresEngine {
	return &PostgresEngine{
		db:     client.GetDB(),
		logger: logger,
	}
}

// setting is one session parameter applied around a command
type setting struct {
	name  string
	value string
}

func (s setting) set() string {
	return "SET " + s.name + " TO " + s.value
}

func (s setting) reset() string {
	return "RESET " + s.name
}

// Execute runs command. Without session settings it goes straight to the
// pool; otherwise the settings are applied on a dedicated connection and
// reset before the connection is returned.
func (e *PostgresEngine) Execute(ctx context.Context, command string, session *Session) error {
	settings := sessionSettings(session)

	start := time.Now()
	if len(settings) == 0 {
		if _, err := e.db.ExecContext(ctx, command); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	} else if err := e.executeWithSettings(ctx, command, settings); err != nil {
		return err
	}

	e.logger.Debug("Query executed",
		slog.String("query", Summarize(command, 200)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return nil
}

func (e *PostgresEngine) executeWithSettings(ctx context.Context, command string, settings []setting) error {
	conn, err := e.db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()
	defer e.resetSettings(ctx, conn, settings)

	for _, s := range settings {
		if _, err := conn.ExecContext(ctx, s.set()); err != nil {
			return fmt.Errorf("failed to apply session setting %q: %w", s.set(), err)
		}
	}

	if _, err := conn.ExecContext(ctx, command); err != nil {
		return fmt.Errorf("failed to execute query: %w", err)
	}

	return nil
}

// resetSettings restores server defaults. A connection that cannot be reset
// is discarded instead of going back to the pool.
func (e *PostgresEngine) resetSettings(ctx context.Context, conn *sqlx.Conn, settings []setting) {
	for _, s := range settings {
		if _, err := conn.ExecContext(ctx, s.reset()); err != nil {
			e.logger.Warn("Failed to reset session setting, discarding connection",
				slog.String("setting", s.name),
				slog.String("error", err.Error()),
			)
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			return
		}
	}
}

// sessionSettings lists the parameters a session overrides
func sessionSettings(session *Session) []setting {
	if session == nil {
		return nil
	}

	var settings []setting
	if session.Schema != "" {
		settings = append(settings, setting{name: "search_path", value: pq.QuoteIdentifier(session.Schema)})
	}
	if session.StatementTimeout > 0 {
		settings = append(settings, setting{name: "statement_timeout", value: strconv.FormatInt(session.StatementTimeout.Milliseconds(), 10)})
	}
	if session.ApplicationName != "" {
		settings = append(settings, setting{name: "application_name", value: pq.QuoteLiteral(session.ApplicationName)})
	}
	return settings
}

// Summarize shortens a command for log lines, cutting on a rune boundary
func Summarize(command string, limit int) string {
	command = strings.Join(strings.Fields(command), " ")
	if limit <= 0 {
		return command
	}

	runes := []rune(command)
	if len(runes) <= limit {
		return command
	}
	return string(runes[:limit]) + "..."
}

package coordination

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cuongbtq/ddl-worker/shared/postgresql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const nodesSchema = `
	CREATE TABLE IF NOT EXISTS coordination_nodes (
		path       TEXT PRIMARY KEY,
		parent     TEXT NOT NULL,
		name       TEXT NOT NULL,
		payload    BYTEA NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_coordination_nodes_parent ON coordination_nodes (parent, name);
`

// unique_violation
const pqUniqueViolation = "23505"

// PostgresStore keeps the node tree in a single table, one row per node.
// The root is implicit and always exists.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates the store and its table if needed
func NewPostgresStore(ctx context.Context, client *postgresql.Client) (*PostgresStore, error) {
	s := &PostgresStore{db: client.GetDB()}

	if _, err := s.db.ExecContext(ctx, nodesSchema); err != nil {
		return nil, fmt.Errorf("failed to create coordination_nodes table: %w", err)
	}

	return s, nil
}

func (s *PostgresStore) exists(ctx context.Context, q sqlx.QueryerContext, nodePath string) (bool, error) {
	if nodePath == "/" {
		return true, nil
	}

	var found bool
	err := sqlx.GetContext(ctx, q, &found, `SELECT EXISTS (SELECT 1 FROM coordination_nodes WHERE path = $1)`, nodePath)
	if err != nil {
		return false, unavailable(nodePath, err)
	}
	return found, nil
}

func (s *PostgresStore) Children(ctx context.Context, nodePath string) ([]string, error) {
	found, err := s.exists(ctx, s.db, nodePath)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, nodePath)
	}

	names := []string{}
	query := `SELECT name FROM coordination_nodes WHERE parent = $1 ORDER BY name`
	if err := s.db.SelectContext(ctx, &names, query, nodePath); err != nil {
		return nil, unavailable(nodePath, err)
	}
	return names, nil
}

func (s *PostgresStore) Get(ctx context.Context, nodePath string) ([]byte, error) {
	var payload []byte
	err := s.db.GetContext(ctx, &payload, `SELECT payload FROM coordination_nodes WHERE path = $1`, nodePath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, nodePath)
		}
		return nil, unavailable(nodePath, err)
	}
	return payload, nil
}

func (s *PostgresStore) Remove(ctx context.Context, nodePath string) error {
	if err := ValidatePath(nodePath); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return unavailable(nodePath, err)
	}
	defer tx.Rollback()

	var children int
	if err := tx.GetContext(ctx, &children, `SELECT COUNT(*) FROM coordination_nodes WHERE parent = $1`, nodePath); err != nil {
		return unavailable(nodePath, err)
	}
	if children > 0 {
		return fmt.Errorf("%w: %s", ErrNotEmpty, nodePath)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM coordination_nodes WHERE path = $1`, nodePath)
	if err != nil {
		return unavailable(nodePath, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return unavailable(nodePath, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, nodePath)
	}

	if err := tx.Commit(); err != nil {
		return unavailable(nodePath, err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, nodePath string, payload []byte) error {
	if err := ValidatePath(nodePath); err != nil {
		return err
	}
	if payload == nil {
		payload = []byte{}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return unavailable(nodePath, err)
	}
	defer tx.Rollback()

	for _, ancestor := range Ancestors(nodePath) {
		parent, name := Parent(ancestor)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO coordination_nodes (path, parent, name)
			VALUES ($1, $2, $3)
			ON CONFLICT (path) DO NOTHING
		`, ancestor, parent, name)
		if err != nil {
			return unavailable(ancestor, err)
		}
	}

	parent, name := Parent(nodePath)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO coordination_nodes (path, parent, name, payload)
		VALUES ($1, $2, $3, $4)
	`, nodePath, parent, name, payload)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return fmt.Errorf("%w: %s", ErrNodeExists, nodePath)
		}
		return unavailable(nodePath, err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable(nodePath, err)
	}
	return nil
}

// Close is a no-op; the database client is owned by the caller
func (s *PostgresStore) Close() error {
	return nil
}

func unavailable(nodePath string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, nodePath, err)
}

// Package coordination provides access to the hierarchical key/value store
// the DDL task queues live in. Nodes are addressed by absolute slash paths,
// each holding a byte payload and an ordered list of child names.
package coordination

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrUnavailable is returned when the store cannot be reached
	ErrUnavailable = errors.New("coordination store unavailable")

	// ErrNotFound is returned when the addressed node does not exist
	ErrNotFound = errors.New("node not found")

	// ErrNodeExists is returned by Create when the node is already present
	ErrNodeExists = errors.New("node already exists")

	// ErrNotEmpty is returned by Remove for nodes that still have children
	ErrNotEmpty = errors.New("node has children")

	// ErrInvalidPath is returned for paths that are not absolute and clean
	ErrInvalidPath = errors.New("invalid node path")
)

// Store is the capability set the worker and the producer API need.
// Implementations must map their failures onto the errors above so that
// callers can tell an unreachable store from a missing node.
type Store interface {
	// Children lists the names of the node's children in store order
	Children(ctx context.Context, nodePath string) ([]string, error)
	// Get returns the node's payload
	Get(ctx context.Context, nodePath string) ([]byte, error)
	// Remove deletes a leaf node
	Remove(ctx context.Context, nodePath string) error
	// Create writes a new node, creating missing ancestors with empty payloads
	Create(ctx context.Context, nodePath string, payload []byte) error
	// Close releases the underlying connection
	Close() error
}

// ValidatePath checks that nodePath is absolute, clean and not the root
func ValidatePath(nodePath string) error {
	if nodePath == "" || nodePath == "/" || !strings.HasPrefix(nodePath, "/") || path.Clean(nodePath) != nodePath {
		return fmt.Errorf("%w: %q", ErrInvalidPath, nodePath)
	}
	return nil
}

// Join appends child names to a node path
func Join(parent string, names ...string) string {
	return path.Join(append([]string{parent}, names...)...)
}

// Parent returns the parent path and the node's own name
func Parent(nodePath string) (string, string) {
	dir, name := path.Split(nodePath)
	if dir != "/" {
		dir = strings.TrimSuffix(dir, "/")
	}
	return dir, name
}

// Ancestors returns every proper ancestor of nodePath below the root,
// outermost first: "/a/b/c" -> ["/a", "/a/b"].
func Ancestors(nodePath string) []string {
	var out []string
	for i := 1; i < len(nodePath); i++ {
		if nodePath[i] == '/' {
			out = append(out, nodePath[:i])
		}
	}
	return out
}

package coordination

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type memoryNode struct {
	payload  []byte
	children map[string]struct{}
}

// MemoryStore is a process-local Store used by tests and the memory backend.
// Children are listed in lexicographic order.
type MemoryStore struct {
	mu     sync.RWMutex
	nodes  map[string]*memoryNode
	closed bool
}

// NewMemoryStore creates an empty store containing only the root node
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: map[string]*memoryNode{
			"/": {children: map[string]struct{}{}},
		},
	}
}

func (s *MemoryStore) Children(ctx context.Context, nodePath string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrUnavailable
	}

	node, ok := s.nodes[nodePath]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, nodePath)
	}

	names := make([]string, 0, len(node.children))
	for name := range node.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) Get(ctx context.Context, nodePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrUnavailable
	}

	node, ok := s.nodes[nodePath]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, nodePath)
	}

	payload := make([]byte, len(node.payload))
	copy(payload, node.payload)
	return payload, nil
}

func (s *MemoryStore) Remove(ctx context.Context, nodePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidatePath(nodePath); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrUnavailable
	}

	node, ok := s.nodes[nodePath]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, nodePath)
	}
	if len(node.children) > 0 {
		return fmt.Errorf("%w: %s", ErrNotEmpty, nodePath)
	}

	parent, name := Parent(nodePath)
	delete(s.nodes[parent].children, name)
	delete(s.nodes, nodePath)
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, nodePath string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidatePath(nodePath); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrUnavailable
	}

	if _, ok := s.nodes[nodePath]; ok {
		return fmt.Errorf("%w: %s", ErrNodeExists, nodePath)
	}

	for _, ancestor := range append(Ancestors(nodePath), nodePath) {
		if _, ok := s.nodes[ancestor]; ok {
			continue
		}
		parent, name := Parent(ancestor)
		s.nodes[parent].children[name] = struct{}{}
		s.nodes[ancestor] = &memoryNode{children: map[string]struct{}{}}
	}

	stored := make([]byte, len(payload))
	copy(stored, payload)
	s.nodes[nodePath].payload = stored
	return nil
}

// Close marks the store unavailable; every later call fails with ErrUnavailable
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

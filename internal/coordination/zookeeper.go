package coordination

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/cuongbtq/ddl-worker/shared/zookeeper"
	"github.com/go-zookeeper/zk"
)

// zkConn is the subset of *zk.Conn the store uses
type zkConn interface {
	Children(path string) ([]string, *zk.Stat, error)
	Get(path string) ([]byte, *zk.Stat, error)
	Delete(path string, version int32) error
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
}

// ZooKeeperStore is a Store backed by a ZooKeeper ensemble
type ZooKeeperStore struct {
	conn  zkConn
	close func() error
}

// NewZooKeeperStore wraps an established session. Closing the store closes
// the session.
func NewZooKeeperStore(client *zookeeper.Client) *ZooKeeperStore {
	return &ZooKeeperStore{
		conn:  client.GetConn(),
		close: client.Close,
	}
}

func (s *ZooKeeperStore) Children(ctx context.Context, nodePath string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names, _, err := s.conn.Children(nodePath)
	if err != nil {
		return nil, mapZKError(nodePath, err)
	}

	// The server returns children in hash order
	sort.Strings(names)
	return names, nil
}

func (s *ZooKeeperStore) Get(ctx context.Context, nodePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, _, err := s.conn.Get(nodePath)
	if err != nil {
		return nil, mapZKError(nodePath, err)
	}
	return payload, nil
}

func (s *ZooKeeperStore) Remove(ctx context.Context, nodePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// -1 matches any version
	if err := s.conn.Delete(nodePath, -1); err != nil {
		return mapZKError(nodePath, err)
	}
	return nil
}

func (s *ZooKeeperStore) Create(ctx context.Context, nodePath string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidatePath(nodePath); err != nil {
		return err
	}

	acl := zk.WorldACL(zk.PermAll)

	for _, ancestor := range Ancestors(nodePath) {
		_, err := s.conn.Create(ancestor, nil, 0, acl)
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return mapZKError(ancestor, err)
		}
	}

	if _, err := s.conn.Create(nodePath, payload, 0, acl); err != nil {
		return mapZKError(nodePath, err)
	}
	return nil
}

func (s *ZooKeeperStore) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func mapZKError(nodePath string, err error) error {
	var sentinel error
	switch {
	case errors.Is(err, zk.ErrNoNode):
		sentinel = ErrNotFound
	case errors.Is(err, zk.ErrNodeExists):
		sentinel = ErrNodeExists
	case errors.Is(err, zk.ErrNotEmpty):
		sentinel = ErrNotEmpty
	default:
		sentinel = ErrUnavailable
	}
	return fmt.Errorf("%w: %s: %v", sentinel, nodePath, err)
}

package coordination

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuongbtq/ddl-worker/shared/redis"
	goredis "github.com/redis/go-redis/v9"
)

// RedisStore maps the node tree onto two key families:
//
//	<ns>:node:<path>      string holding the payload
//	<ns>:children:<path>  sorted set of child names, all scored 0
//
// Equal scores make ZRANGE return children in lexicographic order.
type RedisStore struct {
	rdb       goredis.Cmdable
	namespace string
	close     func() error
}

// NewRedisStore wraps a connected client. Closing the store closes the client.
func NewRedisStore(client *redis.Client, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "coordination"
	}
	return &RedisStore{
		rdb:       client.GetClient(),
		namespace: namespace,
		close:     client.Close,
	}
}

func (s *RedisStore) nodeKey(nodePath string) string {
	return s.namespace + ":node:" + nodePath
}

func (s *RedisStore) childrenKey(nodePath string) string {
	return s.namespace + ":children:" + nodePath
}

func (s *RedisStore) exists(ctx context.Context, nodePath string) (bool, error) {
	if nodePath == "/" {
		return true, nil
	}

	n, err := s.rdb.Exists(ctx, s.nodeKey(nodePath)).Result()
	if err != nil {
		return false, unavailable(nodePath, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Children(ctx context.Context, nodePath string) ([]string, error) {
	found, err := s.exists(ctx, nodePath)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, nodePath)
	}

	names, err := s.rdb.ZRange(ctx, s.childrenKey(nodePath), 0, -1).Result()
	if err != nil {
		return nil, unavailable(nodePath, err)
	}
	return names, nil
}

func (s *RedisStore) Get(ctx context.Context, nodePath string) ([]byte, error) {
	payload, err := s.rdb.Get(ctx, s.nodeKey(nodePath)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, nodePath)
		}
		return nil, unavailable(nodePath, err)
	}
	return payload, nil
}

// removeScript deletes a childless node and its entry in the parent index
// in one step. The entry is dropped even when the node key is already gone.
//
//	KEYS: node, node children, parent children   ARGV: name
var removeScript = goredis.NewScript(`
if redis.call('ZCARD', KEYS[2]) > 0 then
	return -1
end
local deleted = redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[3], ARGV[1])
return deleted
`)

// createScript writes a node and registers it with its parent in one step
//
//	KEYS: node, parent children   ARGV: payload, name
var createScript = goredis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('ZADD', KEYS[2], 0, ARGV[2])
return 1
`)

func (s *RedisStore) Remove(ctx context.Context, nodePath string) error {
	if err := ValidatePath(nodePath); err != nil {
		return err
	}

	parent, name := Parent(nodePath)
	keys := []string{s.nodeKey(nodePath), s.childrenKey(nodePath), s.childrenKey(parent)}

	result, err := removeScript.Run(ctx, s.rdb, keys, name).Int()
	if err != nil {
		return unavailable(nodePath, err)
	}

	switch result {
	case -1:
		return fmt.Errorf("%w: %s", ErrNotEmpty, nodePath)
	case 0:
		return fmt.Errorf("%w: %s", ErrNotFound, nodePath)
	}
	return nil
}

func (s *RedisStore) Create(ctx context.Context, nodePath string, payload []byte) error {
	if err := ValidatePath(nodePath); err != nil {
		return err
	}

	if ancestors := Ancestors(nodePath); len(ancestors) > 0 {
		_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			for _, ancestor := range ancestors {
				parent, name := Parent(ancestor)
				pipe.SetNX(ctx, s.nodeKey(ancestor), "", 0)
				pipe.ZAdd(ctx, s.childrenKey(parent), goredis.Z{Score: 0, Member: name})
			}
			return nil
		})
		if err != nil {
			return unavailable(nodePath, err)
		}
	}

	if payload == nil {
		payload = []byte{}
	}

	parent, name := Parent(nodePath)
	keys := []string{s.nodeKey(nodePath), s.childrenKey(parent)}

	created, err := createScript.Run(ctx, s.rdb, keys, payload, name).Int()
	if err != nil {
		return unavailable(nodePath, err)
	}
	if created == 0 {
		return fmt.Errorf("%w: %s", ErrNodeExists, nodePath)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

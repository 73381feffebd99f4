package coordination

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/ddl-worker/internal/config"
	"github.com/cuongbtq/ddl-worker/shared/postgresql"
	"github.com/cuongbtq/ddl-worker/shared/redis"
	"github.com/cuongbtq/ddl-worker/shared/zookeeper"
)

// Open connects the backend selected in cfg. dbClient is only used by the
// postgres backend and stays owned by the caller.
func Open(ctx context.Context, cfg *config.CoordinationConfig, dbClient *postgresql.Client, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendZooKeeper:
		client, err := zookeeper.NewClient(&zookeeper.Config{
			Servers:        cfg.ZooKeeper.Servers,
			SessionTimeout: cfg.ZooKeeper.SessionTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return NewZooKeeperStore(client), nil

	case config.BackendRedis:
		client, err := redis.NewClient(&redis.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client, cfg.Redis.Namespace), nil

	case config.BackendPostgres:
		if dbClient == nil {
			return nil, fmt.Errorf("postgres coordination backend requires a database client")
		}
		return NewPostgresStore(ctx, dbClient)

	case config.BackendMemory:
		logger.Warn("Using in-memory coordination store; tasks are not shared between processes")
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown coordination backend: %q", cfg.Backend)
	}
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "localhost", cfg.Database.Host)
			assert.Equal(t, BackendZooKeeper, cfg.Coordination.Backend)
			assert.Equal(t, []string{"zk-1:2181", "zk-2:2181"}, cfg.Coordination.ZooKeeper.Servers)
			assert.Equal(t, 10*time.Second, cfg.Coordination.ZooKeeper.SessionTimeout)
			assert.Equal(t, "db-1.internal", cfg.Worker.Host)
			assert.Equal(t, 9000, cfg.Worker.Port)
			assert.Equal(t, DefaultWorkerPrefix, cfg.Worker.ConfigPrefix)
			assert.Equal(t, "public", cfg.Query.Schema)

			assert.Equal(t, []string{"task_queue_path"}, cfg.Params.Keys(DefaultWorkerPrefix))
			path, err := cfg.Params.GetString("ddl_worker.task_queue_path")
			require.NoError(t, err)
			assert.Equal(t, "/clickhouse/task_queue/ddl/", path)
		})
	}
}

func validWorkerConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "ddl_db",
		},
		Coordination: CoordinationConfig{
			Backend: BackendZooKeeper,
			ZooKeeper: ZooKeeperConfig{
				Servers: []string{"zk-1:2181"},
			},
		},
		Worker: WorkerConfig{
			Host:            "db-1.internal",
			Port:            9000,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "missing worker host",
			mutate:    func(c *Config) { c.Worker.Host = "" },
			wantErr:   true,
			errString: "worker host is required",
		},
		{
			name:      "invalid worker port - too high",
			mutate:    func(c *Config) { c.Worker.Port = 70000 },
			wantErr:   true,
			errString: "invalid worker port",
		},
		{
			name:      "negative poll interval",
			mutate:    func(c *Config) { c.Worker.PollInterval = -time.Second },
			wantErr:   true,
			errString: "poll_interval must not be negative",
		},
		{
			name:      "zero shutdown timeout",
			mutate:    func(c *Config) { c.Worker.ShutdownTimeout = 0 },
			wantErr:   true,
			errString: "shutdown_timeout must be greater than 0",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "zookeeper without servers",
			mutate:    func(c *Config) { c.Coordination.ZooKeeper.Servers = nil },
			wantErr:   true,
			errString: "zookeeper servers are required",
		},
		{
			name: "redis backend without host",
			mutate: func(c *Config) {
				c.Coordination.Backend = BackendRedis
			},
			wantErr:   true,
			errString: "redis host is required",
		},
		{
			name: "redis backend",
			mutate: func(c *Config) {
				c.Coordination.Backend = BackendRedis
				c.Coordination.Redis = RedisConfig{Host: "localhost", Port: 6379}
			},
		},
		{
			name: "rabbitmq enabled without exchange",
			mutate: func(c *Config) {
				c.RabbitMQ = RabbitMQConfig{Enabled: true, Host: "localhost", Port: 5672}
			},
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "unsupported log format",
			mutate:    func(c *Config) { c.Logging.Format = "xml" },
			wantErr:   true,
			errString: "invalid logging format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validWorkerConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	cfg := &Config{
		Server:       ServerConfig{Port: 8080},
		Coordination: CoordinationConfig{Backend: BackendMemory},
	}
	require.NoError(t, cfg.ValidateAPIConfig())

	cfg.Server.Port = 0
	err := cfg.ValidateAPIConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server port")
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NoError(t, cfg.ValidateWorkerConfig())
		require.NoError(t, cfg.ValidateAPIConfig())
	})

	t.Run("load config with unknown backend", func(t *testing.T) {
		cfg, err := Load("testdata/unknown_backend.yaml")
		require.NoError(t, err)

		err = cfg.ValidateWorkerConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown coordination backend")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)

		err = cfg.ValidateWorkerConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database host is required")
	})
}

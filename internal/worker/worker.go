package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/ddl-worker/internal/config"
	"github.com/cuongbtq/ddl-worker/internal/query"
	"github.com/cuongbtq/ddl-worker/internal/taskqueue"
	"github.com/cuongbtq/ddl-worker/internal/worker/domain"
	"github.com/cuongbtq/ddl-worker/internal/worker/storage"
)

// Config holds worker configuration
type Config struct {
	Logger *slog.Logger
	// Store is the coordination store holding the task queues
	Store storage.NodeStore
	// Engine executes dequeued commands
	Engine query.Engine
	// Session is handed to Engine with every command
	Session *query.Session
	// Source and Prefix locate the worker's own config section
	Source config.Source
	Prefix string
	// Host and Port are this node's network identity
	Host string
	Port int
	// PollInterval is the wait between passes; zero means DefaultPollInterval
	PollInterval time.Duration
	// Publisher receives task outcome events; nil disables them
	Publisher Publisher
}

// Worker executes the DDL tasks queued for one host. It runs a single
// background goroutine from New until Stop.
type Worker struct {
	logger       *slog.Logger
	storage      *storage.Storage
	engine       query.Engine
	session      *query.Session
	publisher    Publisher
	hostAddress  string
	pollInterval time.Duration

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New validates the configuration and starts the poll loop. On error no
// goroutine is started.
func New(cfg *Config) (*Worker, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("worker store is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("worker query engine is required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("worker config source is required")
	}

	args, err := ParseArguments(cfg.Source, cfg.Prefix)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = domain.DefaultPollInterval
	}

	session := cfg.Session
	if session == nil {
		session = &query.Session{}
	}

	hostAddress := taskqueue.HostAddress(cfg.Host, cfg.Port)
	queuePath := taskqueue.QueuePath(args.TaskQueuePath, hostAddress)
	logger = logger.With(slog.String("host", hostAddress))

	w := &Worker{
		logger:       logger,
		storage:      storage.NewStorage(cfg.Store, queuePath, logger),
		engine:       cfg.Engine,
		session:      session,
		publisher:    cfg.Publisher,
		hostAddress:  hostAddress,
		pollInterval: pollInterval,
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.logger.Info("Starting DDL worker",
		slog.String("queue_path", queuePath),
		slog.Duration("poll_interval", pollInterval),
	)

	w.wg.Add(1)
	go w.run(ctx)

	return w, nil
}

// Stop wakes the loop if it is waiting and blocks until it has exited. A
// pass in progress is finished first. Calls after the first return at once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping DDL worker...")
		w.cancel()
		w.wg.Wait()
		w.logger.Info("DDL worker stopped")
	})
}

// Close stops the worker; it never fails
func (w *Worker) Close() error {
	w.Stop()
	return nil
}

// QueuePath returns the queue this worker drains
func (w *Worker) QueuePath() string {
	return w.storage.QueuePath()
}

// HostAddress returns the host:port identity the queue path was derived from
func (w *Worker) HostAddress() string {
	return w.hostAddress
}

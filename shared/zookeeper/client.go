package zookeeper

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

// Config holds ZooKeeper ensemble configuration
type Config struct {
	Servers        []string
	SessionTimeout time.Duration
	ConnectTimeout time.Duration
}

// Client represents a ZooKeeper session
type Client struct {
	conn   *zk.Conn
	config *Config
	logger *slog.Logger
	done   chan struct{}
}

// slogPrinter adapts slog to the zk package's Printf logger
type slogPrinter struct {
	logger *slog.Logger
}

func (p slogPrinter) Printf(format string, args ...interface{}) {
	p.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "zk"))
}

// NewClient connects to the ensemble and waits until a session is established
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	sessionTimeout := config.SessionTimeout
	if sessionTimeout <= 0 {
		sessionTimeout = 10 * time.Second
	}

	connectTimeout := config.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = sessionTimeout
	}

	logger.Info("Connecting to ZooKeeper",
		slog.Any("servers", config.Servers),
		slog.Duration("session_timeout", sessionTimeout),
	)

	conn, events, err := zk.Connect(config.Servers, sessionTimeout, zk.WithLogger(slogPrinter{logger: logger}))
	if err != nil {
		logger.Error("Failed to connect to ZooKeeper",
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to connect to ZooKeeper: %w", err)
	}

	timer := time.NewTimer(connectTimeout)
	defer timer.Stop()

waitSession:
	for {
		select {
		case event, ok := <-events:
			if !ok {
				conn.Close()
				return nil, fmt.Errorf("zookeeper event channel closed before session was established")
			}
			if event.State == zk.StateHasSession {
				break waitSession
			}
		case <-timer.C:
			conn.Close()
			return nil, fmt.Errorf("timed out after %s waiting for ZooKeeper session", connectTimeout)
		}
	}

	client := &Client{
		conn:   conn,
		config: config,
		logger: logger,
		done:   make(chan struct{}),
	}

	go client.watchSession(events)

	logger.Info("Successfully connected to ZooKeeper",
		slog.Int64("session_id", conn.SessionID()),
	)

	return client, nil
}

// watchSession logs session state transitions until the connection closes
func (c *Client) watchSession(events <-chan zk.Event) {
	defer close(c.done)

	for event := range events {
		if event.Type != zk.EventSession {
			continue
		}

		switch event.State {
		case zk.StateExpired, zk.StateDisconnected:
			c.logger.Warn("ZooKeeper session state changed",
				slog.String("state", event.State.String()),
				slog.String("server", event.Server),
			)
		default:
			c.logger.Debug("ZooKeeper session state changed",
				slog.String("state", event.State.String()),
				slog.String("server", event.Server),
			)
		}
	}
}

// GetConn returns the underlying zk connection
func (c *Client) GetConn() *zk.Conn {
	return c.conn
}

// Close ends the session
func (c *Client) Close() error {
	c.logger.Info("Closing ZooKeeper session")

	c.conn.Close()
	<-c.done

	c.logger.Info("ZooKeeper session closed successfully")
	return nil
}

// Package taskqueue describes how DDL tasks are laid out in the coordination
// store:
//
//	<root>/<host>:<port>/create/<task-id>
//
// The payload of a task node is the command text; an empty payload is a no-op.
package taskqueue

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/ddl-worker/internal/coordination"
	"github.com/google/uuid"
)

// CreateQueue is the name of the per-host subtree holding pending tasks
const CreateQueue = "create"

// TaskIDPrefix starts every producer-assigned node name
const TaskIDPrefix = "query-"

// Task outcome statuses carried by TaskEvent
const (
	StatusCompleted    = "COMPLETED"
	StatusSkippedEmpty = "SKIPPED_EMPTY"
	StatusFailed       = "FAILED"
)

// Task is one queued command
type Task struct {
	ID      string
	Path    string
	Payload []byte
}

// Command returns the payload as a command string
func (t *Task) Command() string {
	return string(t.Payload)
}

// TaskEvent reports what happened to a task during a pass
type TaskEvent struct {
	Host       string    `json:"host"`
	TaskID     string    `json:"task_id"`
	Path       string    `json:"path"`
	Query      string    `json:"query,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// HostAddress renders a worker's network identity. Host names are
// case-insensitive, so the host is lowercased.
func HostAddress(host string, port int) string {
	return net.JoinHostPort(strings.ToLower(host), strconv.Itoa(port))
}

// NormalizeHostAddress parses a host:port identity supplied by a producer and
// renders it the way HostAddress does, so both address the same queue.
func NormalizeHostAddress(addr string) (string, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}
	if host == "" || strings.Contains(host, "/") {
		return "", fmt.Errorf("invalid host %q", host)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", fmt.Errorf("invalid port %q", portStr)
	}

	return HostAddress(host, port), nil
}

// NormalizeRoot trims trailing slashes from the configured queue root
func NormalizeRoot(root string) string {
	trimmed := strings.TrimRight(root, "/")
	if trimmed == "" && strings.HasPrefix(root, "/") {
		return "/"
	}
	return trimmed
}

// QueuePath returns the pending-task subtree for a host
func QueuePath(root, hostAddress string) string {
	return coordination.Join(NormalizeRoot(root), hostAddress, CreateQueue)
}

// TaskPath returns the node path of a single task in a queue
func TaskPath(queuePath, taskID string) string {
	return coordination.Join(queuePath, taskID)
}

// NewTaskID returns a node name that sorts after every id issued earlier
// (at nanosecond resolution). The uuid suffix separates producers that
// enqueue within the same instant.
func NewTaskID(now time.Time) string {
	return fmt.Sprintf("%s%s-%s", TaskIDPrefix, now.UTC().Format("20060102T150405.000000000"), uuid.NewString()[:8])
}

// ValidateTaskID rejects ids that would escape the queue node
func ValidateTaskID(taskID string) error {
	if taskID == "" || taskID == "." || taskID == ".." || strings.Contains(taskID, "/") {
		return fmt.Errorf("%w: task id %q", coordination.ErrInvalidPath, taskID)
	}
	return nil
}

package handler

import (
	"encoding/base64"
	"fmt"

	"github.com/cuongbtq/ddl-worker/internal/taskqueue"
)

// DecodeTaskCursor returns the task id a page continues after
func DecodeTaskCursor(cursorStr string) (string, error) {
	if cursorStr == "" {
		return "", nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return "", err
	}

	taskID := string(decoded)
	if err := taskqueue.ValidateTaskID(taskID); err != nil {
		return "", fmt.Errorf("invalid cursor: %w", err)
	}

	return taskID, nil
}

func EncodeTaskCursor(taskID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(taskID))
}

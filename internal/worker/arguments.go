package worker

import (
	"fmt"

	"github.com/cuongbtq/ddl-worker/internal/config"
	"github.com/cuongbtq/ddl-worker/internal/worker/domain"
)

// Arguments are the parameters read from the worker's config section
type Arguments struct {
	TaskQueuePath string
}

// ParseArguments reads the section under prefix. task_queue_path is required
// and any other key is rejected.
func ParseArguments(source config.Source, prefix string) (*Arguments, error) {
	args := &Arguments{}

	for _, key := range source.Keys(prefix) {
		if key != domain.TaskQueuePathKey {
			return nil, fmt.Errorf("%w: %s.%s", domain.ErrUnknownConfigParameter, prefix, key)
		}

		// A nested section under task_queue_path has no scalar value
		value, err := source.GetString(prefix + "." + key)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", domain.ErrMissingConfigParameter, prefix, key, err)
		}
		args.TaskQueuePath = value
	}

	if args.TaskQueuePath == "" {
		return nil, fmt.Errorf("%w: %s.%s", domain.ErrMissingConfigParameter, prefix, domain.TaskQueuePathKey)
	}

	return args, nil
}

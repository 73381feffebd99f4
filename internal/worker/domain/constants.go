package domain

import "time"

// DefaultPollInterval is the wait between two passes over the queue
const DefaultPollInterval = 10 * time.Second

// TaskQueuePathKey is the only parameter accepted in the worker's config section
const TaskQueuePathKey = "task_queue_path"

// Steps a task goes through within a pass
const (
	StepFetch   = "fetch"
	StepExecute = "execute"
	StepRemove  = "remove"
)

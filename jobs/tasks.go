package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStatisticsWarmup recomputes stock statistics into the cache.
	TaskStatisticsWarmup = "stock:statistics-warmup"
	// StatisticsWarmupSpec runs the warmup every five minutes.
	StatisticsWarmupSpec = "*/5 * * * *"
)

// StatisticsWarmupPayload describes why a warmup was requested.
type StatisticsWarmupPayload struct {
	Reason string `json:"reason"`
}

// NewStatisticsWarmupTask constructs a warmup task.
func NewStatisticsWarmupTask(reason string) (*asynq.Task, error) {
	if reason == "" {
		reason = "schedule"
	}
	data, err := json.Marshal(StatisticsWarmupPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStatisticsWarmup, data), nil
}

/*
Package jobqueue configuration - tunable parameters for the branch-update
job queue.

Worker count trades update latency against git/network load on the remotes:
each running job holds a git fetch open. Retries are deliberately few; a
push that failed to sync is usually retriggered by the next push anyway,
and the notify client only waits update_timeout seconds for the first
attempt.
*/
package jobqueue

import (
	"time"

	"github.com/riverqueue/river"
)

// QueueConfig holds the configurable parameters for the job queue.
type QueueConfig struct {
	// MaxWorkers is the number of concurrent branch updates.
	MaxWorkers int

	// MaxRetries is the number of attempts per job before it is discarded.
	MaxRetries int

	// JobTimeout bounds a single git fetch.
	JobTimeout time.Duration
}

// DefaultQueueConfig returns the default configuration.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers: 10,
		MaxRetries: 3,
		JobTimeout: 2 * time.Minute,
	}
}

// DevelopmentQueueConfig returns a configuration for local development:
// fewer workers, fail fast.
func DevelopmentQueueConfig() *QueueConfig {
	config := DefaultQueueConfig()
	config.MaxWorkers = 2
	config.MaxRetries = 1
	config.JobTimeout = 30 * time.Second
	return config
}

// RiverQueueConfig converts our config to River's queue configuration
// format.
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {
			MaxWorkers: c.MaxWorkers,
		},
	}
}

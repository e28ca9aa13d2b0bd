// Package queue carries indexing jobs from the orchestrator to the worker
// over a Redis/Valkey list.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"podsearch/internal/config"

	"github.com/redis/go-redis/v9"
)

const (
	// WaitingQueue is the Redis list key for pending jobs
	WaitingQueue = "podsearch:waiting"
	// RunningSitesKey is the Redis set key for sites with a job in flight
	RunningSitesKey = "podsearch:running-sites"
	// FailedQueueName is the Redis list key for failed jobs
	FailedQueueName = "podsearch:failed"
	// BlockTimeout is how long BRPOP will wait for a job
	BlockTimeout = 5 * time.Second
	// FailedJobTTL is how long failed jobs are kept in Redis
	FailedJobTTL = 30 * time.Minute
)

// Job kinds the worker understands.
const (
	KindIndex              = "index"
	KindReapplyCorrections = "reapply-corrections"
)

// Job is one unit of worker work, scoped to a single site.
type Job struct {
	ID         string    `json:"id"`
	SiteID     string    `json:"site_id"`
	Kind       string    `json:"kind"`
	CreatedAt  time.Time `json:"created_at"`
	FailReason string    `json:"fail_reason,omitempty"` // Set when job fails
}

// Queue manages the Redis job queue
type Queue struct {
	client *redis.Client
}

// NewQueue creates a new queue connection
func NewQueue(ctx context.Context) (*Queue, error) {
	addr := fmt.Sprintf("%s:%d", config.ValkeyHost, config.ValkeyPort)
	slog.Debug("Connecting to Redis queue", "addr", addr)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "",
		DB:       0,
	})

	// Test the connection
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Redis queue initialized", "addr", addr)
	return &Queue{client: client}, nil
}

// NewQueueWithClient creates a queue with an existing Redis client (for testing)
func NewQueueWithClient(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue adds a job to the queue
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	if q.client == nil {
		return fmt.Errorf("queue is not connected")
	}

	jobJSON, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = q.client.LPush(ctx, WaitingQueue, jobJSON).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	slog.Info("Job enqueued", "job_id", job.ID, "site_id", job.SiteID, "kind", job.Kind)
	return nil
}

// Dequeue removes and returns a job from the queue.
// This blocks for up to BlockTimeout waiting for a job; a nil job means the
// wait timed out with nothing pending.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	if q.client == nil {
		return nil, fmt.Errorf("queue is not connected")
	}

	result, err := q.client.BRPop(ctx, BlockTimeout, WaitingQueue).Result()
	if err != nil {
		// redis.Nil means timeout (no job available)
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	// BRPOP returns [key, value]
	if len(result) < 2 {
		return nil, fmt.Errorf("invalid BRPOP result: %v", result)
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	slog.Info("Job dequeued", "job_id", job.ID, "site_id", job.SiteID, "kind", job.Kind)
	return &job, nil
}

// StartJob marks a site as having a running job.
// Returns false if the site already has one in flight.
func (q *Queue) StartJob(ctx context.Context, siteID string) (bool, error) {
	if q.client == nil {
		return false, fmt.Errorf("queue is not connected")
	}

	added, err := q.client.SAdd(ctx, RunningSitesKey, siteID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark site as running: %w", err)
	}

	return added == 1, nil
}

// CompleteJob removes a site from the running set
func (q *Queue) CompleteJob(ctx context.Context, siteID string) error {
	if q.client == nil {
		return fmt.Errorf("queue is not connected")
	}

	err := q.client.SRem(ctx, RunningSitesKey, siteID).Err()
	if err != nil {
		return fmt.Errorf("failed to remove site from running set: %w", err)
	}

	return nil
}

// FailJob adds a job to the failed queue with a reason
func (q *Queue) FailJob(ctx context.Context, job *Job, reason string) error {
	if q.client == nil {
		return fmt.Errorf("queue is not connected")
	}

	job.FailReason = reason

	jobJSON, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal failed job: %w", err)
	}

	pipe := q.client.Pipeline()
	pipe.LPush(ctx, FailedQueueName, jobJSON)
	pipe.Expire(ctx, FailedQueueName, FailedJobTTL)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to add job to failed queue: %w", err)
	}

	slog.Warn("Job failed", "job_id", job.ID, "site_id", job.SiteID, "reason", reason)
	return nil
}

// QueueLength returns the number of jobs in the queue
func (q *Queue) QueueLength(ctx context.Context) (int64, error) {
	if q.client == nil {
		return 0, fmt.Errorf("queue is not connected")
	}

	length, err := q.client.LLen(ctx, WaitingQueue).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}

	return length, nil
}

// Close closes the queue connection
func (q *Queue) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

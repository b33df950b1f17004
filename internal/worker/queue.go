package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultMaxTries = 3

type JobQueue struct {
	client   *redis.Client
	queue    string
	maxTries int
}

func NewJobQueue(client *redis.Client, queue string, maxTries int) *JobQueue {
	if queue == "" {
		queue = DefaultQueue
	}
	if maxTries <= 0 {
		maxTries = defaultMaxTries
	}
	return &JobQueue{client: client, queue: queue, maxTries: maxTries}
}

func (q *JobQueue) Enqueue(ctx context.Context, jobType JobType, entityID string) error {
	return q.EnqueueAt(ctx, jobType, entityID, time.Now())
}

func (q *JobQueue) EnqueueAt(ctx context.Context, jobType JobType, entityID string, processAt time.Time) error {
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	job := &Job{
		ID:        id.String(),
		Type:      jobType,
		EntityID:  entityID,
		MaxTries:  q.maxTries,
		CreatedAt: time.Now(),
		ProcessAt: processAt,
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return q.client.RPush(ctx, q.queue, jobData).Err()
}

func (q *JobQueue) Size(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return q.client.LLen(ctx, q.queue).Result()
}

func (q *JobQueue) DeadSize(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return q.client.LLen(ctx, DeadQueue).Result()
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type JobType string

const (
	JobTypeRepairTask JobType = "repair_task"
	JobTypeRepairUser JobType = "repair_user"
)

const (
	DefaultQueue = "repair_queue"
	DeadQueue    = "dead_queue"
)

type Job struct {
	ID        string    `json:"id"`
	Type      JobType   `json:"type"`
	EntityID  string    `json:"entity_id"`
	Attempts  int       `json:"attempts"`
	MaxTries  int       `json:"max_tries"`
	CreatedAt time.Time `json:"created_at"`
	ProcessAt time.Time `json:"process_at"`
}

type JobHandler func(ctx context.Context, job *Job) error

type Worker struct {
	client       *redis.Client
	handlers     map[JobType]JobHandler
	queue        string
	pollInterval time.Duration
	retryBackoff time.Duration
	jobTimeout   time.Duration
	mu           sync.RWMutex
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	now          func() time.Time
}

type WorkerConfig struct {
	RedisClient  *redis.Client
	Queue        string
	PollInterval time.Duration
	RetryBackoff time.Duration
	JobTimeout   time.Duration
}

func NewWorker(config WorkerConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		client:       config.RedisClient,
		handlers:     make(map[JobType]JobHandler),
		queue:        config.Queue,
		pollInterval: config.PollInterval,
		retryBackoff: config.RetryBackoff,
		jobTimeout:   config.JobTimeout,
		ctx:          ctx,
		cancel:       cancel,
		now:          time.Now,
	}
	if w.queue == "" {
		w.queue = DefaultQueue
	}
	if w.pollInterval <= 0 {
		w.pollInterval = 5 * time.Second
	}
	if w.retryBackoff <= 0 {
		w.retryBackoff = time.Second
	}
	if w.jobTimeout <= 0 {
		w.jobTimeout = 30 * time.Second
	}
	return w
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

func (w *Worker) Start(concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	log.Printf("[worker] Starting with %d goroutines on %s", concurrency, w.queue)

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop()
	}
}

func (w *Worker) Stop() {
	log.Println("[worker] Stopping...")
	w.cancel()
	w.wg.Wait()
	log.Println("[worker] Stopped")
}

func (w *Worker) workerLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			if err := w.processNextJob(); err != nil && w.ctx.Err() == nil {
				log.Printf("[worker] Error processing job: %v", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) processNextJob() error {
	result, err := w.client.BLPop(w.ctx, w.pollInterval, w.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || w.ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to pop job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}

	if wait := job.ProcessAt.Sub(w.now()); wait > 0 {
		if err := w.enqueueJob(result[0], &job); err != nil {
			return err
		}
		// Nothing else due at the head; avoid spinning on a delayed job.
		w.sleep(min(wait, w.pollInterval))
		return nil
	}

	return w.executeJob(&job)
}

func (w *Worker) executeJob(job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	if !exists {
		return w.moveToDeadQueue(job, fmt.Errorf("no handler registered for job type: %s", job.Type))
	}

	ctx, cancel := context.WithTimeout(w.ctx, w.jobTimeout)
	defer cancel()

	err := handler(ctx, job)
	if err != nil {
		job.Attempts++
		if job.Attempts < job.MaxTries {
			log.Printf("[worker] Job %s (%s %s) failed (attempt %d/%d), retrying: %v",
				job.ID, job.Type, job.EntityID, job.Attempts, job.MaxTries, err)
			return w.retryJob(job)
		}

		log.Printf("[worker] Job %s (%s %s) failed permanently after %d attempts: %v",
			job.ID, job.Type, job.EntityID, job.Attempts, err)
		return w.moveToDeadQueue(job, err)
	}

	return nil
}

func (w *Worker) retryJob(job *Job) error {
	delay := w.retryBackoff * time.Duration(1<<job.Attempts)
	job.ProcessAt = w.now().Add(delay)

	return w.enqueueJob(w.queue, job)
}

func (w *Worker) enqueueJob(queue string, job *Job) error {
	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return w.client.RPush(context.WithoutCancel(w.ctx), queue, jobData).Err()
}

func (w *Worker) moveToDeadQueue(job *Job, jobErr error) error {
	deadJob := map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    w.now(),
	}

	deadJobData, err := json.Marshal(deadJob)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}

	return w.client.RPush(context.WithoutCancel(w.ctx), DeadQueue, deadJobData).Err()
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.ctx.Done():
	case <-time.After(d):
	}
}

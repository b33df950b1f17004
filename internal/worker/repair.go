package worker

import (
	"context"
	"fmt"

	"task-assign/backend/internal/consistency"
)

// RepairQueue defers reconciliation to the worker. It satisfies consistency.RepairScheduler.
type RepairQueue struct {
	jobs *JobQueue
}

func NewRepairQueue(jobs *JobQueue) *RepairQueue {
	return &RepairQueue{jobs: jobs}
}

func (q *RepairQueue) ScheduleTaskRepair(ctx context.Context, taskID string) error {
	return q.jobs.Enqueue(ctx, JobTypeRepairTask, taskID)
}

func (q *RepairQueue) ScheduleUserRepair(ctx context.Context, userID string) error {
	return q.jobs.Enqueue(ctx, JobTypeRepairUser, userID)
}

// RegisterRepairHandlers binds the repair job types to the reconciler.
func RegisterRepairHandlers(w *Worker, reconciler *consistency.Reconciler) {
	w.RegisterHandler(JobTypeRepairTask, func(ctx context.Context, job *Job) error {
		if job.EntityID == "" {
			return fmt.Errorf("repair job %s has no entity id", job.ID)
		}
		_, err := reconciler.RepairTask(ctx, job.EntityID)
		return err
	})
	w.RegisterHandler(JobTypeRepairUser, func(ctx context.Context, job *Job) error {
		if job.EntityID == "" {
			return fmt.Errorf("repair job %s has no entity id", job.ID)
		}
		_, err := reconciler.RepairUser(ctx, job.EntityID)
		return err
	})
}

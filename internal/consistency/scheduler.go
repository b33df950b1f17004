package consistency

import (
	"context"
	"errors"
	"log"
)

// RepairScheduler queues a deferred RepairTask or RepairUser. Scheduling is best effort;
// callers log failures and carry on.
type RepairScheduler interface {
	ScheduleTaskRepair(ctx context.Context, taskID string) error
	ScheduleUserRepair(ctx context.Context, userID string) error
}

type noopScheduler struct{}

// NoopScheduler drops repair requests; drift is then healed by the next operation that
// touches the document.
func NoopScheduler() RepairScheduler {
	return noopScheduler{}
}

func (noopScheduler) ScheduleTaskRepair(context.Context, string) error { return nil }
func (noopScheduler) ScheduleUserRepair(context.Context, string) error { return nil }

// InlineScheduler repairs synchronously. Used in tests and when no queue is configured
// but immediate healing is preferred.
type InlineScheduler struct {
	Reconciler *Reconciler
}

func (s InlineScheduler) ScheduleTaskRepair(ctx context.Context, taskID string) error {
	_, err := s.Reconciler.RepairTask(ctx, taskID)
	return err
}

func (s InlineScheduler) ScheduleUserRepair(ctx context.Context, userID string) error {
	_, err := s.Reconciler.RepairUser(ctx, userID)
	return err
}

// ScheduleAfterFailure queues repairs for the documents touched by a partially applied
// plan. It never returns an error.
func ScheduleAfterFailure(ctx context.Context, scheduler RepairScheduler, err error, taskIDs, userIDs []string) {
	var stepErr *StepError
	if !errors.As(err, &stepErr) || !stepErr.Partial() || scheduler == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, id := range taskIDs {
		if id == "" {
			continue
		}
		if serr := scheduler.ScheduleTaskRepair(ctx, id); serr != nil {
			log.Printf("[reconcile] Warning: failed to schedule repair of task %s: %v", id, serr)
		}
	}
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if serr := scheduler.ScheduleUserRepair(ctx, id); serr != nil {
			log.Printf("[reconcile] Warning: failed to schedule repair of user %s: %v", id, serr)
		}
	}
}

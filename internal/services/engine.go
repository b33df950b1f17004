package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"task-assign/backend/internal/consistency"
	"task-assign/backend/internal/models"
	"task-assign/backend/internal/repositories"
)

// Dependencies wires the task and user services to the stores. Scheduler defaults to a
// no-op and Now to time.Now.
type Dependencies struct {
	Tasks     repositories.TaskRepository
	Users     repositories.UserRepository
	Scheduler consistency.RepairScheduler
	Now       func() time.Time
}

// engine holds what task and user operations share: the stores, the reconciler applying
// idempotent index writes and the repair scheduler.
type engine struct {
	tasks      repositories.TaskRepository
	users      repositories.UserRepository
	reconciler *consistency.Reconciler
	scheduler  consistency.RepairScheduler
	now        func() time.Time
}

func newEngine(deps Dependencies) *engine {
	e := &engine{
		tasks:      deps.Tasks,
		users:      deps.Users,
		reconciler: consistency.NewReconciler(deps.Tasks, deps.Users),
		scheduler:  deps.Scheduler,
		now:        deps.Now,
	}
	if e.scheduler == nil {
		e.scheduler = consistency.NoopScheduler()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// resolveAssignee loads the user a task is being assigned to and checks the caller's name
// hint against it. An empty hint counts as not supplied.
func (e *engine) resolveAssignee(ctx context.Context, userID, nameHint string) (*models.User, error) {
	id, err := repositories.ParseID(userID)
	if err != nil {
		return nil, newError(KindReference, "assigned user not found")
	}
	user, err := e.users.GetForUpdate(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, newError(KindReference, "assigned user not found")
	}
	if err != nil {
		return nil, wrapStoreError("user", err)
	}
	if nameHint != "" && nameHint != user.Name {
		return nil, invalidField("assignedUserName", "does not match the assigned user's name")
	}
	return user, nil
}

// checkUnassignedName rejects a name hint on a task left without assignee.
func checkUnassignedName(nameHint string) error {
	if nameHint != "" && nameHint != models.UnassignedName {
		return invalidField("assignedUserName", "must be empty or \"unassigned\" when no user is assigned")
	}
	return nil
}

// attachStep adds taskID to userID's pending list. A user deleted since it was resolved
// surfaces as a ReferenceError; the scheduled repair then unassigns the task.
func (e *engine) attachStep(userID, taskID string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		err := e.reconciler.AttachTask(ctx, userID, taskID)
		if errors.Is(err, repositories.ErrNotFound) {
			return newError(KindReference, "assigned user not found")
		}
		return err
	}
}

// healStep re-adds taskID to an assignee the caller did not change. If that user no longer
// exists the task is handed to the repair scheduler, which unassigns it, and repaired is
// set so the caller re-reads the task.
func (e *engine) healStep(userID, taskID string, repaired *bool) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		err := e.reconciler.AttachTask(ctx, userID, taskID)
		if !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		*repaired = true
		if serr := e.scheduler.ScheduleTaskRepair(context.WithoutCancel(ctx), taskID); serr != nil {
			log.Printf("[tasks] Warning: failed to schedule repair of task %s: %v", taskID, serr)
		}
		return nil
	}
}

func (e *engine) detachStep(userID, taskID string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return e.reconciler.DetachTask(ctx, userID, taskID)
	}
}

// run executes the plan and, when it stops half way, schedules repairs of every document
// it may have left inconsistent.
func (e *engine) run(ctx context.Context, plan *consistency.Plan, entity string, taskIDs, userIDs []string) error {
	err := plan.Execute(ctx)
	if err == nil {
		return nil
	}
	consistency.ScheduleAfterFailure(ctx, e.scheduler, err, taskIDs, userIDs)
	log.Printf("[%s] Warning: %s failed: %v", logPrefix(entity), plan.Op(), err)
	return wrapStoreError(entity, err)
}

func logPrefix(entity string) string {
	return entity + "s"
}

// normalizeIDs trims and de-duplicates a caller-supplied id list, preserving order.
func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

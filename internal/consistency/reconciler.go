package consistency

import (
	"context"
	"errors"
	"log"

	"task-assign/backend/internal/models"
	"task-assign/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

type Reconciler struct {
	tasks repositories.TaskRepository
	users repositories.UserRepository
}

func NewReconciler(tasks repositories.TaskRepository, users repositories.UserRepository) *Reconciler {
	return &Reconciler{tasks: tasks, users: users}
}

// Report summarizes what a repair changed.
type Report struct {
	Attached   int
	Detached   int64
	Renamed    int64
	Unassigned int64
}

func (r Report) Changed() bool {
	return r.Attached > 0 || r.Detached > 0 || r.Renamed > 0 || r.Unassigned > 0
}

// AttachTask adds taskID to the user's pending list. Re-adding is a no-op. A missing
// user yields repositories.ErrNotFound.
func (r *Reconciler) AttachTask(ctx context.Context, userID, taskID string) error {
	id, err := repositories.ParseID(userID)
	if err != nil {
		return repositories.ErrNotFound
	}
	user, err := r.users.GetForUpdate(ctx, id)
	if err != nil {
		return err
	}
	if !user.AddPendingTask(taskID) {
		return nil
	}
	return r.users.Replace(ctx, user)
}

// DetachTask removes taskID from the user's pending list. Removing an absent id, or from
// a user that no longer exists, is a no-op.
func (r *Reconciler) DetachTask(ctx context.Context, userID, taskID string) error {
	id, err := repositories.ParseID(userID)
	if err != nil {
		return nil
	}
	user, err := r.users.GetForUpdate(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !user.RemovePendingTask(taskID) {
		return nil
	}
	err = r.users.Replace(ctx, user)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil
	}
	return err
}

// DetachEverywhere removes taskID from every user holding it except keep (uuid.Nil keeps none).
func (r *Reconciler) DetachEverywhere(ctx context.Context, taskID string, keep uuid.UUID) (int64, error) {
	return r.users.UpdateMany(ctx,
		repositories.UserFilter{HoldingTask: taskID, ExceptID: keep},
		repositories.UserPatch{RemovePendingTask: taskID},
	)
}

// RepairTask recomputes every derived field that depends on one task: its assignee's
// pending list, stray entries in other users' lists and the denormalized name. A task
// referencing a user that no longer exists is unassigned.
func (r *Reconciler) RepairTask(ctx context.Context, taskID string) (Report, error) {
	var report Report

	id, err := repositories.ParseID(taskID)
	if err != nil {
		return report, err
	}

	task, err := r.tasks.GetForUpdate(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		report.Detached, err = r.DetachEverywhere(ctx, taskID, uuid.Nil)
		r.logReport("task", taskID, report)
		return report, err
	}
	if err != nil {
		return report, err
	}

	keep := uuid.Nil
	if task.IsAssigned() {
		owner, err := r.lookupUser(ctx, task.AssignedUser)
		if err != nil {
			return report, err
		}

		switch {
		case owner == nil:
			task.Unassign()
			if err := r.tasks.Replace(ctx, task); err != nil {
				return report, err
			}
			report.Unassigned = 1
		case task.AssignedUserName != owner.Name:
			task.AssignedUserName = owner.Name
			if err := r.tasks.Replace(ctx, task); err != nil {
				return report, err
			}
			report.Renamed = 1
		}

		if owner != nil && task.IsPending() {
			keep = owner.ID
			if owner.AddPendingTask(taskID) {
				if err := r.users.Replace(ctx, owner); err != nil {
					return report, err
				}
				report.Attached = 1
			}
		}
	} else if task.AssignedUserName != models.UnassignedName {
		task.AssignedUserName = models.UnassignedName
		if err := r.tasks.Replace(ctx, task); err != nil {
			return report, err
		}
		report.Renamed = 1
	}

	report.Detached, err = r.DetachEverywhere(ctx, taskID, keep)
	r.logReport("task", taskID, report)
	return report, err
}

// RepairUser rebuilds the user's pending list from the tasks that reference it and
// refreshes their denormalized names. For a user that no longer exists, the tasks still
// referencing it are unassigned.
func (r *Reconciler) RepairUser(ctx context.Context, userID string) (Report, error) {
	var report Report

	user, err := r.lookupUser(ctx, userID)
	if err != nil {
		return report, err
	}

	ref := userID
	if user == nil {
		report.Unassigned, err = r.tasks.UpdateMany(ctx,
			repositories.TaskFilter{AssignedUser: &ref}, repositories.UnassignPatch())
		r.logReport("user", userID, report)
		return report, err
	}

	owned, err := r.tasks.Find(ctx, repositories.TaskFilter{AssignedUser: &ref})
	if err != nil {
		return report, err
	}

	desired := models.TaskIDSet{}
	var stale []uuid.UUID
	for _, task := range owned {
		if !task.Completed {
			desired, _ = desired.Add(task.ID.String())
		}
		if task.AssignedUserName != user.Name {
			stale = append(stale, task.ID)
		}
	}

	if len(stale) > 0 {
		name := user.Name
		report.Renamed, err = r.tasks.UpdateMany(ctx,
			repositories.TaskFilter{IDs: stale}, repositories.TaskPatch{AssignedUserName: &name})
		if err != nil {
			return report, err
		}
	}

	if !user.PendingTasks.Equal(desired) {
		report.Attached = len(desired.Difference(user.PendingTasks))
		report.Detached = int64(len(user.PendingTasks.Difference(desired)))
		user.PendingTasks = desired
		if err := r.users.Replace(ctx, user); err != nil {
			return report, err
		}
	}

	r.logReport("user", userID, report)
	return report, nil
}

// lookupUser returns nil, nil when the reference does not resolve.
func (r *Reconciler) lookupUser(ctx context.Context, ref string) (*models.User, error) {
	id, err := repositories.ParseID(ref)
	if err != nil {
		return nil, nil
	}
	user, err := r.users.GetForUpdate(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

func (r *Reconciler) logReport(kind, id string, report Report) {
	if report.Changed() {
		log.Printf("[reconcile] repaired %s %s: attached=%d detached=%d renamed=%d unassigned=%d",
			kind, id, report.Attached, report.Detached, report.Renamed, report.Unassigned)
	}
}

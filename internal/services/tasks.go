package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"task-assign/backend/internal/consistency"
	"task-assign/backend/internal/models"
	"task-assign/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

type TaskService interface {
	CreateTask(ctx context.Context, input TaskInput) (*models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, query repositories.ListQuery) ([]models.Task, error)
	CountTasks(ctx context.Context, query repositories.ListQuery) (int64, error)
	UpdateTask(ctx context.Context, id string, input TaskInput) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) (*models.Task, error)
}

type TaskServiceImpl struct {
	*engine
}

func NewTaskService(deps Dependencies) *TaskServiceImpl {
	return &TaskServiceImpl{engine: newEngine(deps)}
}

func (s *TaskServiceImpl) CreateTask(ctx context.Context, input TaskInput) (*models.Task, error) {
	v := newValidator()
	name, _ := input.Name.Get()
	v.checkRequired(name, "name")
	deadline, _ := input.Deadline.Get()
	v.checkCond(!deadline.IsZero(), "deadline", "must be provided")
	if raw, ok := input.ID.Get(); ok {
		v.checkCond(raw == "", "_id", "is assigned by the server")
	}
	if err := v.toError(); err != nil {
		return nil, err
	}

	task := &models.Task{
		Name:        name,
		Description: input.Description.OrElse(""),
		Deadline:    deadline.UTC(),
		Completed:   input.Completed.OrElse(false),
		DateCreated: s.now().UTC(),
	}
	task.Unassign()

	hint := input.AssignedUserName.OrElse("")
	if userID := strings.TrimSpace(input.AssignedUser.OrElse("")); userID != "" {
		user, err := s.resolveAssignee(ctx, userID, hint)
		if err != nil {
			return nil, err
		}
		task.AssignTo(user)
	} else if err := checkUnassignedName(hint); err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, wrapStoreError("task", err)
	}
	task.ID = id
	taskID := id.String()

	plan := consistency.NewPlan("task.create").
		Add("insert-task", func(ctx context.Context) error {
			return s.tasks.Insert(ctx, task)
		}).
		AddIf(task.IsPending(), "attach-assignee", s.attachStep(task.AssignedUser, taskID))

	if err := s.run(ctx, plan, "task", []string{taskID}, []string{task.AssignedUser}); err != nil {
		return nil, err
	}
	return task, nil
}

// GetTask returns the stored task. Drift observed between the task and its assignee is
// handed to the repair scheduler rather than fixed on the read path, and the task is
// re-read afterwards since the scheduler may repair synchronously.
func (s *TaskServiceImpl) GetTask(ctx context.Context, id string) (*models.Task, error) {
	taskID, err := repositories.ParseID(id)
	if err != nil {
		return nil, notFound("task")
	}
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, wrapStoreError("task", err)
	}
	if task.IsAssigned() && s.drifted(ctx, task) {
		if err := s.scheduler.ScheduleTaskRepair(ctx, task.ID.String()); err != nil {
			log.Printf("[tasks] Warning: failed to schedule repair of task %s: %v", task.ID, err)
			return task, nil
		}
		return s.reread(ctx, task), nil
	}
	return task, nil
}

// reread returns the stored task after a repair that may have run synchronously. The
// given copy is kept when the read fails.
func (s *TaskServiceImpl) reread(ctx context.Context, task *models.Task) *models.Task {
	fresh, err := s.tasks.GetForUpdate(ctx, task.ID)
	if err != nil {
		log.Printf("[tasks] Warning: failed to re-read task %s after repair: %v", task.ID, err)
		return task
	}
	return fresh
}

func (s *TaskServiceImpl) drifted(ctx context.Context, task *models.Task) bool {
	userID, err := repositories.ParseID(task.AssignedUser)
	if err != nil {
		return true
	}
	owner, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return errors.Is(err, repositories.ErrNotFound)
	}
	return owner.Name != task.AssignedUserName || owner.HasPendingTask(task.ID.String()) != task.IsPending()
}

func (s *TaskServiceImpl) ListTasks(ctx context.Context, query repositories.ListQuery) ([]models.Task, error) {
	tasks, err := s.tasks.List(ctx, query)
	if err != nil {
		return nil, wrapStoreError("task", err)
	}
	return tasks, nil
}

func (s *TaskServiceImpl) CountTasks(ctx context.Context, query repositories.ListQuery) (int64, error) {
	total, err := s.tasks.Count(ctx, query)
	if err != nil {
		return 0, wrapStoreError("task", err)
	}
	return total, nil
}

// UpdateTask applies the fields present in input. Reassignment detaches the task from the
// previous assignee before the task is written and attaches it to the new one after.
// When the assignee is unchanged the attach still runs, restoring a missing index entry.
func (s *TaskServiceImpl) UpdateTask(ctx context.Context, id string, input TaskInput) (*models.Task, error) {
	taskID, err := repositories.ParseID(id)
	if err != nil {
		return nil, notFound("task")
	}
	existing, err := s.tasks.GetForUpdate(ctx, taskID)
	if err != nil {
		return nil, wrapStoreError("task", err)
	}
	if existing.Completed {
		return nil, newError(KindImmutable, "completed tasks cannot be modified")
	}

	v := newValidator()
	if raw, ok := input.ID.Get(); ok {
		v.checkCond(raw == "" || sameID(raw, taskID), "_id", "cannot be changed")
	}
	if name, ok := input.Name.Get(); ok {
		v.checkRequired(name, "name")
	}
	if deadline, ok := input.Deadline.Get(); ok {
		v.checkCond(!deadline.IsZero(), "deadline", "must be provided")
	}
	if err := v.toError(); err != nil {
		return nil, err
	}

	updated := *existing
	if name, ok := input.Name.Get(); ok {
		updated.Name = name
	}
	if description, ok := input.Description.Get(); ok {
		updated.Description = description
	}
	if deadline, ok := input.Deadline.Get(); ok {
		updated.Deadline = deadline.UTC()
	}
	if completed, ok := input.Completed.Get(); ok {
		updated.Completed = completed
	}

	hint := input.AssignedUserName.OrElse("")
	assignee := existing.AssignedUser
	if raw, ok := input.AssignedUser.Get(); ok {
		assignee = strings.TrimSpace(raw)
	}
	switch {
	case assignee == "":
		if err := checkUnassignedName(hint); err != nil {
			return nil, err
		}
		updated.Unassign()
	case input.AssignedUser.IsSet() || hint != "":
		user, err := s.resolveAssignee(ctx, assignee, hint)
		if err != nil {
			return nil, err
		}
		updated.AssignTo(user)
	}

	tid := taskID.String()
	previous := existing.AssignedUser
	reassigned := updated.AssignedUser != previous
	completing := updated.Completed && !existing.Completed

	healed := false
	plan := consistency.NewPlan("task.update").
		AddIf(reassigned && previous != "", "detach-previous-assignee", s.detachStep(previous, tid)).
		Add("replace-task", func(ctx context.Context) error {
			return s.tasks.Replace(ctx, &updated)
		}).
		AddIf(reassigned && updated.IsPending(), "attach-assignee", s.attachStep(updated.AssignedUser, tid)).
		AddIf(!reassigned && updated.IsPending(), "ensure-attached", s.healStep(updated.AssignedUser, tid, &healed)).
		AddIf(!reassigned && completing && updated.IsAssigned(), "detach-assignee", s.detachStep(updated.AssignedUser, tid))

	if err := s.run(ctx, plan, "task", []string{tid}, []string{previous, updated.AssignedUser}); err != nil {
		return nil, err
	}
	if healed {
		return s.reread(ctx, &updated), nil
	}
	return &updated, nil
}

// DeleteTask removes the task from its assignee's pending list, deletes it, then clears
// any stray references other users still hold. It returns the task as it was.
func (s *TaskServiceImpl) DeleteTask(ctx context.Context, id string) (*models.Task, error) {
	taskID, err := repositories.ParseID(id)
	if err != nil {
		return nil, notFound("task")
	}
	existing, err := s.tasks.GetForUpdate(ctx, taskID)
	if err != nil {
		return nil, wrapStoreError("task", err)
	}

	tid := taskID.String()
	plan := consistency.NewPlan("task.delete").
		AddIf(existing.IsAssigned(), "detach-assignee", s.detachStep(existing.AssignedUser, tid)).
		Add("delete-task", func(ctx context.Context) error {
			_, err := s.tasks.Delete(ctx, taskID)
			return err
		}).
		Add("detach-strays", func(ctx context.Context) error {
			_, err := s.reconciler.DetachEverywhere(ctx, tid, uuid.Nil)
			return err
		})

	if err := s.run(ctx, plan, "task", []string{tid}, []string{existing.AssignedUser}); err != nil {
		return nil, err
	}
	return existing, nil
}

func sameID(raw string, id uuid.UUID) bool {
	parsed, err := repositories.ParseID(raw)
	return err == nil && parsed == id
}

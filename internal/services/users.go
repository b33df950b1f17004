package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"task-assign/backend/internal/consistency"
	"task-assign/backend/internal/models"
	"task-assign/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

type UserService interface {
	CreateUser(ctx context.Context, input UserInput) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, query repositories.ListQuery) ([]models.User, error)
	CountUsers(ctx context.Context, query repositories.ListQuery) (int64, error)
	UpdateUser(ctx context.Context, id string, input UserInput) (*models.User, error)
	DeleteUser(ctx context.Context, id string) (*models.User, error)
}

type UserServiceImpl struct {
	*engine
}

func NewUserService(deps Dependencies) *UserServiceImpl {
	return &UserServiceImpl{engine: newEngine(deps)}
}

// CreateUser inserts the user and assigns it the tasks listed in pendingTasks, taking
// them away from their previous owners first.
func (s *UserServiceImpl) CreateUser(ctx context.Context, input UserInput) (*models.User, error) {
	v := newValidator()
	name, _ := input.Name.Get()
	v.checkRequired(name, "name")
	email := strings.TrimSpace(input.Email.OrElse(""))
	v.checkEmail(email)
	if raw, ok := input.ID.Get(); ok {
		v.checkCond(raw == "", "_id", "is assigned by the server")
	}
	if err := v.toError(); err != nil {
		return nil, err
	}

	if err := s.checkEmailAvailable(ctx, email, uuid.Nil); err != nil {
		return nil, err
	}

	if input.PendingTasks.IsNull() {
		return nil, invalidField("pendingTasks", "must be a list")
	}
	tasks, err := s.loadAssignable(ctx, input.PendingTasks.OrElse(nil))
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, wrapStoreError("user", err)
	}
	user := &models.User{
		ID:           id,
		Name:         name,
		Email:        email,
		PendingTasks: models.TaskIDSet{},
		DateCreated:  s.now().UTC(),
	}
	uid := id.String()

	plan := consistency.NewPlan("user.create")
	taskIDs, owners := s.detachFromOwners(plan, tasks, uid)
	user.PendingTasks = models.NewTaskIDSet(taskIDs...)

	plan.Add("insert-user", func(ctx context.Context) error {
		return s.users.Insert(ctx, user)
	})
	plan.AddIf(len(tasks) > 0, "assign-tasks", func(ctx context.Context) error {
		_, err := s.tasks.UpdateMany(ctx, repositories.TaskFilter{IDs: taskUUIDs(tasks)}, repositories.AssignPatch(user))
		return err
	})

	if err := s.run(ctx, plan, "user", taskIDs, append(owners, uid)); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserServiceImpl) GetUser(ctx context.Context, id string) (*models.User, error) {
	userID, err := repositories.ParseID(id)
	if err != nil {
		return nil, notFound("user")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, wrapStoreError("user", err)
	}
	return user, nil
}

func (s *UserServiceImpl) ListUsers(ctx context.Context, query repositories.ListQuery) ([]models.User, error) {
	users, err := s.users.List(ctx, query)
	if err != nil {
		return nil, wrapStoreError("user", err)
	}
	return users, nil
}

func (s *UserServiceImpl) CountUsers(ctx context.Context, query repositories.ListQuery) (int64, error) {
	total, err := s.users.Count(ctx, query)
	if err != nil {
		return 0, wrapStoreError("user", err)
	}
	return total, nil
}

// UpdateUser applies the fields present in input. A present pendingTasks list is the new
// assignment set: listed tasks move to this user, tasks it held that are not listed are
// unassigned. A name change is copied onto every task assigned to the user.
func (s *UserServiceImpl) UpdateUser(ctx context.Context, id string, input UserInput) (*models.User, error) {
	userID, err := repositories.ParseID(id)
	if err != nil {
		return nil, notFound("user")
	}
	existing, err := s.users.GetForUpdate(ctx, userID)
	if err != nil {
		return nil, wrapStoreError("user", err)
	}

	v := newValidator()
	if raw, ok := input.ID.Get(); ok {
		v.checkCond(raw == "" || sameID(raw, userID), "_id", "cannot be changed")
	}
	if name, ok := input.Name.Get(); ok {
		v.checkRequired(name, "name")
	}
	if email, ok := input.Email.Get(); ok {
		v.checkEmail(strings.TrimSpace(email))
	}
	v.checkCond(!input.PendingTasks.IsNull(), "pendingTasks", "must be a list")
	if err := v.toError(); err != nil {
		return nil, err
	}

	updated := *existing
	if name, ok := input.Name.Get(); ok {
		updated.Name = name
	}
	if email, ok := input.Email.Get(); ok {
		updated.Email = strings.TrimSpace(email)
	}
	if updated.Email != existing.Email {
		if err := s.checkEmailAvailable(ctx, updated.Email, userID); err != nil {
			return nil, err
		}
	}

	uid := userID.String()
	plan := consistency.NewPlan("user.update")
	repairTasks := []string{}
	repairUsers := []string{uid}

	pending, reassigning := input.PendingTasks.Get()
	var assigned []*models.Task
	var dropped []uuid.UUID
	if reassigning {
		assigned, err = s.loadAssignable(ctx, pending)
		if err != nil {
			return nil, err
		}
		desired, owners := s.detachFromOwners(plan, assigned, uid)
		updated.PendingTasks = models.NewTaskIDSet(desired...)

		dropped, err = s.droppedTasks(ctx, existing, updated.PendingTasks)
		if err != nil {
			return nil, err
		}
		repairTasks = append(repairTasks, desired...)
		for _, id := range dropped {
			repairTasks = append(repairTasks, id.String())
		}
		repairUsers = append(repairUsers, owners...)
	}

	plan.Add("replace-user", func(ctx context.Context) error {
		return s.users.Replace(ctx, &updated)
	})
	plan.AddIf(len(assigned) > 0, "assign-tasks", func(ctx context.Context) error {
		_, err := s.tasks.UpdateMany(ctx, repositories.TaskFilter{IDs: taskUUIDs(assigned)}, repositories.AssignPatch(&updated))
		return err
	})
	plan.AddIf(len(dropped) > 0, "unassign-dropped", func(ctx context.Context) error {
		open := false
		_, err := s.tasks.UpdateMany(ctx, repositories.TaskFilter{IDs: dropped, AssignedUser: &uid, Completed: &open}, repositories.UnassignPatch())
		return err
	})
	plan.AddIf(updated.Name != existing.Name, "rename-tasks", func(ctx context.Context) error {
		name := updated.Name
		_, err := s.tasks.UpdateMany(ctx, repositories.TaskFilter{AssignedUser: &uid}, repositories.TaskPatch{AssignedUserName: &name})
		return err
	})

	if err := s.run(ctx, plan, "user", repairTasks, repairUsers); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteUser deletes the user and unassigns every task that referenced it. It returns
// the user as it was.
func (s *UserServiceImpl) DeleteUser(ctx context.Context, id string) (*models.User, error) {
	userID, err := repositories.ParseID(id)
	if err != nil {
		return nil, notFound("user")
	}
	existing, err := s.users.GetForUpdate(ctx, userID)
	if err != nil {
		return nil, wrapStoreError("user", err)
	}

	uid := userID.String()
	plan := consistency.NewPlan("user.delete").
		Add("delete-user", func(ctx context.Context) error {
			_, err := s.users.Delete(ctx, userID)
			return err
		}).
		Add("unassign-tasks", func(ctx context.Context) error {
			_, err := s.tasks.UpdateMany(ctx, repositories.TaskFilter{AssignedUser: &uid}, repositories.UnassignPatch())
			return err
		})

	if err := s.run(ctx, plan, "user", existing.PendingTasks, []string{uid}); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *UserServiceImpl) checkEmailAvailable(ctx context.Context, email string, self uuid.UUID) error {
	other, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return nil
	case err != nil:
		return wrapStoreError("user", err)
	case other.ID != self:
		return newError(KindConflict, "email already exists")
	}
	return nil
}

// loadAssignable resolves a caller-supplied list of task ids. Every id must name an
// existing task that is not completed.
func (s *UserServiceImpl) loadAssignable(ctx context.Context, raw []string) ([]*models.Task, error) {
	ids := normalizeIDs(raw)
	tasks := make([]*models.Task, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, raw := range ids {
		id, err := repositories.ParseID(raw)
		if err != nil {
			return nil, newError(KindReference, fmt.Sprintf("task %s not found", raw))
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		task, err := s.tasks.GetForUpdate(ctx, id)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, newError(KindReference, fmt.Sprintf("task %s not found", raw))
		}
		if err != nil {
			return nil, wrapStoreError("task", err)
		}
		if task.Completed {
			return nil, newError(KindImmutable, fmt.Sprintf("task %s is already completed", raw))
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// detachFromOwners adds one step per task currently held by a user other than uid. It
// returns the task ids and the ids of the users they are taken from.
func (s *UserServiceImpl) detachFromOwners(plan *consistency.Plan, tasks []*models.Task, uid string) ([]string, []string) {
	ids := make([]string, 0, len(tasks))
	var owners []string
	for _, task := range tasks {
		tid := task.ID.String()
		ids = append(ids, tid)
		if !task.IsAssigned() || task.AssignedUser == uid {
			continue
		}
		owners = append(owners, task.AssignedUser)
		plan.Add("detach-previous-owner:"+tid, s.detachStep(task.AssignedUser, tid))
	}
	return ids, owners
}

// droppedTasks lists the tasks the user holds today, by its pending list or by their own
// reference, that are not in desired. Completed tasks keep their assignee.
func (s *UserServiceImpl) droppedTasks(ctx context.Context, user *models.User, desired models.TaskIDSet) ([]uuid.UUID, error) {
	uid := user.ID.String()
	owned, err := s.tasks.Find(ctx, repositories.TaskFilter{AssignedUser: &uid})
	if err != nil {
		return nil, wrapStoreError("task", err)
	}

	var listed []uuid.UUID
	for _, raw := range user.PendingTasks {
		if id, err := repositories.ParseID(raw); err == nil {
			listed = append(listed, id)
		}
	}
	if len(listed) > 0 {
		indexed, err := s.tasks.Find(ctx, repositories.TaskFilter{IDs: listed})
		if err != nil {
			return nil, wrapStoreError("task", err)
		}
		owned = append(owned, indexed...)
	}

	held := models.NewTaskIDSet()
	for _, task := range owned {
		if !task.Completed {
			held, _ = held.Add(task.ID.String())
		}
	}

	var dropped []uuid.UUID
	for _, raw := range held.Difference(desired) {
		if id, err := repositories.ParseID(raw); err == nil {
			dropped = append(dropped, id)
		}
	}
	return dropped, nil
}

func taskUUIDs(tasks []*models.Task) []uuid.UUID {
	ids := make([]uuid.UUID, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}
	return ids
}

package repositories_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"task-assign/backend/internal/cache"
	"task-assign/backend/internal/models"
	"task-assign/backend/internal/repositories"
	"task-assign/backend/internal/testutil"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTask(name string) *models.Task {
	return &models.Task{
		Name:             name,
		Deadline:         time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		AssignedUserName: models.UnassignedName,
		DateCreated:      time.Now().UTC(),
	}
}

func TestTaskRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewTaskRepository(testutil.NewTestDB(t))

	task := newTask("Ship")
	require.NoError(t, repo.Insert(ctx, task))
	require.NotEqual(t, uuid.Nil, task.ID)

	got, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ship", got.Name)
	assert.Equal(t, models.UnassignedName, got.AssignedUserName)

	got.Completed = true
	got.Description = ""
	require.NoError(t, repo.Replace(ctx, got))

	again, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, again.Completed)

	deleted, err := repo.Delete(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, deleted.ID)

	_, err = repo.GetByID(ctx, task.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	_, err = repo.Delete(ctx, task.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestTaskRepository_ReplaceDoesNotResurrect(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewTaskRepository(testutil.NewTestDB(t))

	task := newTask("Gone")
	require.NoError(t, repo.Insert(ctx, task))
	_, err := repo.Delete(ctx, task.ID)
	require.NoError(t, err)

	err = repo.Replace(ctx, task)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	_, err = repo.GetByID(ctx, task.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestTaskRepository_UpdateMany(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewTaskRepository(testutil.NewTestDB(t))

	owner := &models.User{ID: uuid.Must(uuid.NewV4()), Name: "Ann"}
	a, b, c := newTask("a"), newTask("b"), newTask("c")
	a.AssignTo(owner)
	b.AssignTo(owner)
	for _, task := range []*models.Task{a, b, c} {
		require.NoError(t, repo.Insert(ctx, task))
	}

	ownerID := owner.ID.String()
	n, err := repo.UpdateMany(ctx, repositories.TaskFilter{AssignedUser: &ownerID}, repositories.UnassignPatch())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		got, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "", got.AssignedUser)
		assert.Equal(t, models.UnassignedName, got.AssignedUserName)
	}

	n, err = repo.UpdateMany(ctx, repositories.TaskFilter{IDs: []uuid.UUID{}}, repositories.AssignPatch(owner))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = repo.UpdateMany(ctx, repositories.TaskFilter{}, repositories.UnassignPatch())
	assert.ErrorIs(t, err, repositories.ErrMissingFilter)

	n, err = repo.UpdateMany(ctx, repositories.TaskFilter{IDs: []uuid.UUID{c.ID}}, repositories.AssignPatch(owner))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	found, err := repo.Find(ctx, repositories.TaskFilter{AssignedUser: &ownerID})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, c.ID, found[0].ID)
}

func TestTaskRepository_ListAndCount(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewTaskRepository(testutil.NewTestDB(t))

	for i, name := range []string{"c", "a", "b"} {
		task := newTask(name)
		task.Completed = i == 0
		require.NoError(t, repo.Insert(ctx, task))
	}

	sort, err := repositories.ParseSort(`{"name": 1}`)
	require.NoError(t, err)

	tasks, err := repo.List(ctx, repositories.ListQuery{Sort: sort})
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{tasks[0].Name, tasks[1].Name, tasks[2].Name})

	where, err := repositories.ParseWhere(`{"completed": false}`)
	require.NoError(t, err)
	total, err := repo.Count(ctx, repositories.ListQuery{Where: where})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	where, err = repositories.ParseWhere(`{"name": {"$in": ["a", "c"]}}`)
	require.NoError(t, err)
	tasks, err = repo.List(ctx, repositories.ListQuery{Where: where, Sort: sort, Skip: 1, Limit: 5})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "c", tasks[0].Name)

	total, err = repo.Count(ctx, repositories.ListQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, err = repo.List(ctx, repositories.ListQuery{Where: map[string]interface{}{"secret": "x"}})
	assert.ErrorIs(t, err, repositories.ErrInvalidQuery)
}

func TestParseSort_RejectsBadDirection(t *testing.T) {
	_, err := repositories.ParseSort(`{"name": 2}`)
	assert.ErrorIs(t, err, repositories.ErrInvalidQuery)

	_, err = repositories.ParseSort(`["name"]`)
	assert.ErrorIs(t, err, repositories.ErrInvalidQuery)

	fields, err := repositories.ParseSort(`{"deadline": -1, "name": 1}`)
	require.NoError(t, err)
	assert.Equal(t, []repositories.SortField{{Field: "deadline", Desc: true}, {Field: "name"}}, fields)
}

func TestUserRepository_EmailIsUnique(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewUserRepository(testutil.NewTestDB(t))

	require.NoError(t, repo.Insert(ctx, &models.User{Name: "Ann", Email: "a@x.com"}))
	err := repo.Insert(ctx, &models.User{Name: "Other Ann", Email: "a@x.com"})
	assert.ErrorIs(t, err, repositories.ErrDuplicate)

	got, err := repo.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Name)
	assert.NotNil(t, got.PendingTasks)
}

func TestUserRepository_UpdateManyPendingTasks(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewUserRepository(testutil.NewTestDB(t))

	taskID := uuid.Must(uuid.NewV4()).String()
	ann := &models.User{Name: "Ann", Email: "a@x.com", PendingTasks: models.NewTaskIDSet(taskID)}
	bob := &models.User{Name: "Bob", Email: "b@x.com", PendingTasks: models.NewTaskIDSet(taskID, "other")}
	cat := &models.User{Name: "Cat", Email: "c@x.com"}
	for _, u := range []*models.User{ann, bob, cat} {
		require.NoError(t, repo.Insert(ctx, u))
	}

	n, err := repo.UpdateMany(ctx, repositories.UserFilter{HoldingTask: taskID}, repositories.UserPatch{RemovePendingTask: taskID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	gotBob, err := repo.GetByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskIDSet{"other"}, gotBob.PendingTasks)

	n, err = repo.UpdateMany(ctx, repositories.UserFilter{IDs: []uuid.UUID{cat.ID}}, repositories.UserPatch{AddPendingTask: taskID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.UpdateMany(ctx, repositories.UserFilter{IDs: []uuid.UUID{cat.ID}}, repositories.UserPatch{AddPendingTask: taskID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "re-adding an id already present is a no-op")
}

func TestCachedTaskRepository_InvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	inner := repositories.NewTaskRepository(testutil.NewTestDB(t))
	repo := repositories.NewCachedTaskRepository(inner, cache.NewMultiLevelCache(nil, time.Minute))

	task := newTask("Ship")
	require.NoError(t, repo.Insert(ctx, task))

	first, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, first.Completed)

	first.Completed = true
	require.NoError(t, repo.Replace(ctx, first))

	second, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, second.Completed)

	owner := &models.User{ID: uuid.Must(uuid.NewV4()), Name: "Ann"}
	_, err = repo.UpdateMany(ctx, repositories.TaskFilter{IDs: []uuid.UUID{task.ID}}, repositories.AssignPatch(owner))
	require.NoError(t, err)

	third, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", third.AssignedUserName)

	_, err = repo.Delete(ctx, task.ID)
	require.NoError(t, err)
	_, err = repo.GetByID(ctx, task.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestCachedUserRepository_InvalidatesOnUpdateMany(t *testing.T) {
	ctx := context.Background()
	inner := repositories.NewUserRepository(testutil.NewTestDB(t))
	repo := repositories.NewCachedUserRepository(inner, cache.NewMultiLevelCache(nil, time.Minute))

	user := &models.User{Name: "Ann", Email: "a@x.com"}
	require.NoError(t, repo.Insert(ctx, user))

	cached, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, cached.PendingTasks)

	_, err = repo.UpdateMany(ctx, repositories.UserFilter{IDs: []uuid.UUID{user.ID}}, repositories.UserPatch{AddPendingTask: "t1"})
	require.NoError(t, err)

	fresh, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskIDSet{"t1"}, fresh.PendingTasks)
}

// interleavedUsers runs afterRead once, between the store read and the return of GetByID.
type interleavedUsers struct {
	repositories.UserRepository
	once      sync.Once
	afterRead func()
}

func (u *interleavedUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := u.UserRepository.GetByID(ctx, id)
	if err == nil && u.afterRead != nil {
		u.once.Do(u.afterRead)
	}
	return user, err
}

func TestCachedUserRepository_DropsFillOverlappingWrite(t *testing.T) {
	ctx := context.Background()
	inner := &interleavedUsers{UserRepository: repositories.NewUserRepository(testutil.NewTestDB(t))}
	repo := repositories.NewCachedUserRepository(inner, cache.NewMultiLevelCache(nil, time.Minute))

	user := &models.User{Name: "Ann", Email: "a@x.com"}
	require.NoError(t, repo.Insert(ctx, user))

	inner.afterRead = func() {
		_, err := repo.UpdateMany(ctx, repositories.UserFilter{IDs: []uuid.UUID{user.ID}}, repositories.UserPatch{AddPendingTask: "t1"})
		require.NoError(t, err)
	}

	inFlight, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, inFlight.PendingTasks, "the read started before the write")

	after, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskIDSet{"t1"}, after.PendingTasks)
}

func TestCachedUserRepository_GetForUpdateReadsStore(t *testing.T) {
	ctx := context.Background()
	inner := repositories.NewUserRepository(testutil.NewTestDB(t))
	repo := repositories.NewCachedUserRepository(inner, cache.NewMultiLevelCache(nil, time.Minute))

	user := &models.User{Name: "Ann", Email: "a@x.com"}
	require.NoError(t, repo.Insert(ctx, user))
	_, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)

	// Written behind the decorator, so the cached copy is stale.
	_, err = inner.UpdateMany(ctx, repositories.UserFilter{IDs: []uuid.UUID{user.ID}}, repositories.UserPatch{AddPendingTask: "t1"})
	require.NoError(t, err)

	cached, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, cached.PendingTasks)

	fresh, err := repo.GetForUpdate(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskIDSet{"t1"}, fresh.PendingTasks)
}

package repositories

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"task-assign/backend/internal/cache"
	"task-assign/backend/internal/models"

	"github.com/gofrs/uuid"
)

const documentTTL = 5 * time.Minute

func taskKey(id uuid.UUID) string { return fmt.Sprintf("task:%s", id.String()) }
func userKey(id uuid.UUID) string { return fmt.Sprintf("user:%s", id.String()) }

// fillGuard drops cache fills that overlap a write. Writers advance the epoch before
// deleting keys; a fill is stored only while the epoch it started under is current.
type fillGuard struct {
	mu    sync.Mutex
	epoch uint64
}

func (g *fillGuard) begin() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.epoch
}

// fill runs set unless a write happened since start. It reports whether set ran.
func (g *fillGuard) fill(start uint64, set func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.epoch != start {
		return false
	}
	set()
	return true
}

func (g *fillGuard) advance() {
	g.mu.Lock()
	g.epoch++
	g.mu.Unlock()
}

// CachedTaskRepository reads single tasks through the cache. Every write drops the
// affected keys before returning, and GetForUpdate always reads the store.
type CachedTaskRepository struct {
	TaskRepository
	cache cache.Cache
	guard fillGuard
}

func NewCachedTaskRepository(inner TaskRepository, c cache.Cache) *CachedTaskRepository {
	return &CachedTaskRepository{TaskRepository: inner, cache: c}
}

func (r *CachedTaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var cached models.Task
	if err := r.cache.Get(ctx, taskKey(id), &cached); err == nil {
		return &cached, nil
	}

	start := r.guard.begin()
	task, err := r.TaskRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.guard.fill(start, func() {
		if err := r.cache.Set(ctx, taskKey(id), *task, documentTTL); err != nil {
			log.Printf("[cache] Warning: failed to cache task %s: %v", id, err)
		}
	})
	return task, nil
}

func (r *CachedTaskRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return r.TaskRepository.GetForUpdate(ctx, id)
}

func (r *CachedTaskRepository) Insert(ctx context.Context, task *models.Task) error {
	if err := r.TaskRepository.Insert(ctx, task); err != nil {
		return err
	}
	r.invalidate(ctx, taskKey(task.ID))
	return nil
}

func (r *CachedTaskRepository) Replace(ctx context.Context, task *models.Task) error {
	err := r.TaskRepository.Replace(ctx, task)
	r.invalidate(ctx, taskKey(task.ID))
	return err
}

func (r *CachedTaskRepository) Delete(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task, err := r.TaskRepository.Delete(ctx, id)
	r.invalidate(ctx, taskKey(id))
	return task, err
}

func (r *CachedTaskRepository) UpdateMany(ctx context.Context, filter TaskFilter, patch TaskPatch) (int64, error) {
	n, err := r.TaskRepository.UpdateMany(ctx, filter, patch)
	r.guard.advance()
	if filter.IDs != nil {
		for _, id := range filter.IDs {
			r.invalidate(ctx, taskKey(id))
		}
	} else if delErr := r.cache.DeletePattern(ctx, "task:*"); delErr != nil {
		log.Printf("[cache] Warning: failed to invalidate tasks: %v", delErr)
	}
	return n, err
}

func (r *CachedTaskRepository) invalidate(ctx context.Context, key string) {
	r.guard.advance()
	if err := r.cache.Delete(ctx, key); err != nil {
		log.Printf("[cache] Warning: failed to invalidate %s: %v", key, err)
	}
}

type CachedUserRepository struct {
	UserRepository
	cache cache.Cache
	guard fillGuard
}

func NewCachedUserRepository(inner UserRepository, c cache.Cache) *CachedUserRepository {
	return &CachedUserRepository{UserRepository: inner, cache: c}
}

func (r *CachedUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var cached models.User
	if err := r.cache.Get(ctx, userKey(id), &cached); err == nil {
		normalizePending(&cached)
		return &cached, nil
	}

	start := r.guard.begin()
	user, err := r.UserRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.guard.fill(start, func() {
		if err := r.cache.Set(ctx, userKey(id), *user, documentTTL); err != nil {
			log.Printf("[cache] Warning: failed to cache user %s: %v", id, err)
		}
	})
	return user, nil
}

func (r *CachedUserRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.UserRepository.GetForUpdate(ctx, id)
}

func (r *CachedUserRepository) Insert(ctx context.Context, user *models.User) error {
	if err := r.UserRepository.Insert(ctx, user); err != nil {
		return err
	}
	r.invalidate(ctx, userKey(user.ID))
	return nil
}

func (r *CachedUserRepository) Replace(ctx context.Context, user *models.User) error {
	err := r.UserRepository.Replace(ctx, user)
	r.invalidate(ctx, userKey(user.ID))
	return err
}

func (r *CachedUserRepository) Delete(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := r.UserRepository.Delete(ctx, id)
	r.invalidate(ctx, userKey(id))
	return user, err
}

// UpdateMany rewrites users inside the inner repository, bypassing the per-key
// invalidation above, so the whole user keyspace is dropped.
func (r *CachedUserRepository) UpdateMany(ctx context.Context, filter UserFilter, patch UserPatch) (int64, error) {
	n, err := r.UserRepository.UpdateMany(ctx, filter, patch)
	r.guard.advance()
	if delErr := r.cache.DeletePattern(ctx, "user:*"); delErr != nil {
		log.Printf("[cache] Warning: failed to invalidate users: %v", delErr)
	}
	return n, err
}

func (r *CachedUserRepository) invalidate(ctx context.Context, key string) {
	r.guard.advance()
	if err := r.cache.Delete(ctx, key); err != nil {
		log.Printf("[cache] Warning: failed to invalidate %s: %v", key, err)
	}
}

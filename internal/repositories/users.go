package repositories

import (
	"context"
	"fmt"

	"task-assign/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type GormUserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translateError(err)
	}
	normalizePending(&user)
	return &user, nil
}

func (r *GormUserRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.GetByID(ctx, id)
}

func (r *GormUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translateError(err)
	}
	normalizePending(&user)
	return &user, nil
}

func (r *GormUserRepository) Insert(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		user.ID = id
	}
	normalizePending(user)
	return translateError(r.db.WithContext(ctx).Create(user).Error)
}

func (r *GormUserRepository) Replace(ctx context.Context, user *models.User) error {
	normalizePending(user)
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", user.ID).
		Select("*").
		Omit("id", "date_created").
		Updates(user)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormUserRepository) Delete(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.User{})
	if result.Error != nil {
		return nil, translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return user, nil
}

// UpdateMany applies the pending-task patch document by document; the list column is
// JSON text and cannot be edited in SQL portably across sqlite and postgres. The returned
// count only includes users whose list changed.
func (r *GormUserRepository) UpdateMany(ctx context.Context, filter UserFilter, patch UserPatch) (int64, error) {
	if patch.AddPendingTask == "" && patch.RemovePendingTask == "" {
		return 0, nil
	}
	if filter.IDs == nil && filter.HoldingTask == "" {
		return 0, ErrMissingFilter
	}
	if filter.IDs != nil && len(filter.IDs) == 0 {
		return 0, nil
	}

	scoped := r.db.WithContext(ctx)
	if filter.IDs != nil {
		scoped = scoped.Where("id IN ?", filter.IDs)
	}
	if filter.HoldingTask != "" {
		scoped = scoped.Where("pending_tasks LIKE ?", fmt.Sprintf("%%%q%%", filter.HoldingTask))
	}
	if filter.ExceptID != uuid.Nil {
		scoped = scoped.Where("id <> ?", filter.ExceptID)
	}

	var users []models.User
	if err := scoped.Find(&users).Error; err != nil {
		return 0, translateError(err)
	}

	var changed int64
	for i := range users {
		user := &users[i]
		dirty := false
		if patch.RemovePendingTask != "" && user.RemovePendingTask(patch.RemovePendingTask) {
			dirty = true
		}
		if patch.AddPendingTask != "" && user.AddPendingTask(patch.AddPendingTask) {
			dirty = true
		}
		if !dirty {
			continue
		}
		if err := r.Replace(ctx, user); err != nil {
			if err == ErrNotFound {
				continue
			}
			return changed, err
		}
		changed++
	}
	return changed, nil
}

func (r *GormUserRepository) List(ctx context.Context, query ListQuery) ([]models.User, error) {
	scoped, err := query.apply(r.db.WithContext(ctx).Model(&models.User{}), userFields, true)
	if err != nil {
		return nil, err
	}

	users := []models.User{}
	if err := scoped.Find(&users).Error; err != nil {
		return nil, translateError(err)
	}
	for i := range users {
		normalizePending(&users[i])
	}
	return users, nil
}

func (r *GormUserRepository) Count(ctx context.Context, query ListQuery) (int64, error) {
	scoped, err := query.apply(r.db.WithContext(ctx).Model(&models.User{}), userFields, false)
	if err != nil {
		return 0, err
	}

	var total int64
	if err := scoped.Count(&total).Error; err != nil {
		return 0, translateError(err)
	}
	return query.window(total), nil
}

func normalizePending(user *models.User) {
	if user.PendingTasks == nil {
		user.PendingTasks = models.TaskIDSet{}
	}
}

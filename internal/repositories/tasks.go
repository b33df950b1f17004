package repositories

import (
	"context"

	"task-assign/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type GormTaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *GormTaskRepository {
	return &GormTaskRepository{db: db}
}

func (r *GormTaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, translateError(err)
	}
	return &task, nil
}

func (r *GormTaskRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return r.GetByID(ctx, id)
}

func (r *GormTaskRepository) Insert(ctx context.Context, task *models.Task) error {
	if task.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		task.ID = id
	}
	return translateError(r.db.WithContext(ctx).Create(task).Error)
}

// Replace overwrites every column of an existing task. It never upserts: replacing a
// task deleted in the meantime reports ErrNotFound.
func (r *GormTaskRepository) Replace(ctx context.Context, task *models.Task) error {
	result := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ?", task.ID).
		Select("*").
		Omit("id", "date_created").
		Updates(task)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormTaskRepository) Delete(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Task{})
	if result.Error != nil {
		return nil, translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return task, nil
}

func (r *GormTaskRepository) UpdateMany(ctx context.Context, filter TaskFilter, patch TaskPatch) (int64, error) {
	updates := map[string]interface{}{}
	if patch.AssignedUser != nil {
		updates["assigned_user"] = *patch.AssignedUser
	}
	if patch.AssignedUserName != nil {
		updates["assigned_user_name"] = *patch.AssignedUserName
	}
	if len(updates) == 0 {
		return 0, nil
	}

	scoped, ok, err := r.scope(ctx, filter)
	if err != nil || !ok {
		return 0, err
	}

	result := scoped.Model(&models.Task{}).Updates(updates)
	if result.Error != nil {
		return 0, translateError(result.Error)
	}
	return result.RowsAffected, nil
}

func (r *GormTaskRepository) Find(ctx context.Context, filter TaskFilter) ([]models.Task, error) {
	scoped, ok, err := r.scope(ctx, filter)
	if err != nil || !ok {
		return []models.Task{}, err
	}

	var tasks []models.Task
	if err := scoped.Order("date_created asc").Find(&tasks).Error; err != nil {
		return nil, translateError(err)
	}
	return tasks, nil
}

func (r *GormTaskRepository) List(ctx context.Context, query ListQuery) ([]models.Task, error) {
	scoped, err := query.apply(r.db.WithContext(ctx).Model(&models.Task{}), taskFields, true)
	if err != nil {
		return nil, err
	}

	tasks := []models.Task{}
	if err := scoped.Find(&tasks).Error; err != nil {
		return nil, translateError(err)
	}
	return tasks, nil
}

func (r *GormTaskRepository) Count(ctx context.Context, query ListQuery) (int64, error) {
	scoped, err := query.apply(r.db.WithContext(ctx).Model(&models.Task{}), taskFields, false)
	if err != nil {
		return 0, err
	}

	var total int64
	if err := scoped.Count(&total).Error; err != nil {
		return 0, translateError(err)
	}
	return query.window(total), nil
}

// scope returns false when the filter can match nothing.
func (r *GormTaskRepository) scope(ctx context.Context, filter TaskFilter) (*gorm.DB, bool, error) {
	if filter.IDs == nil && filter.AssignedUser == nil {
		return nil, false, ErrMissingFilter
	}
	if filter.IDs != nil && len(filter.IDs) == 0 {
		return nil, false, nil
	}

	scoped := r.db.WithContext(ctx)
	if filter.IDs != nil {
		scoped = scoped.Where("id IN ?", filter.IDs)
	}
	if filter.AssignedUser != nil {
		scoped = scoped.Where("assigned_user = ?", *filter.AssignedUser)
	}
	if filter.Completed != nil {
		scoped = scoped.Where("completed = ?", *filter.Completed)
	}
	return scoped, true, nil
}

package repositories

import (
	"context"
	"errors"
	"strings"

	"task-assign/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicate         = errors.New("duplicate key")
	ErrInvalidQuery      = errors.New("invalid query")
	ErrMissingFilter     = errors.New("update-many requires a filter")
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// TaskFilter selects tasks for bulk operations. A nil IDs slice does not constrain,
// an empty non-nil one matches nothing.
type TaskFilter struct {
	IDs          []uuid.UUID
	AssignedUser *string
	Completed    *bool
}

// TaskPatch lists the columns UpdateMany writes; nil fields are left untouched.
type TaskPatch struct {
	AssignedUser     *string
	AssignedUserName *string
}

// UnassignPatch is the patch applied to tasks whose assignee goes away.
func UnassignPatch() TaskPatch {
	empty, name := "", models.UnassignedName
	return TaskPatch{AssignedUser: &empty, AssignedUserName: &name}
}

// AssignPatch points tasks at user with its current display name.
func AssignPatch(user *models.User) TaskPatch {
	id, name := user.ID.String(), user.Name
	return TaskPatch{AssignedUser: &id, AssignedUserName: &name}
}

type UserFilter struct {
	IDs         []uuid.UUID
	HoldingTask string
	ExceptID    uuid.UUID
}

type UserPatch struct {
	AddPendingTask    string
	RemovePendingTask string
}

type TaskRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	// GetForUpdate reads the stored document ahead of a write derived from it. Caching
	// decorators never answer it from the cache.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Task, error)
	Insert(ctx context.Context, task *models.Task) error
	Replace(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id uuid.UUID) (*models.Task, error)
	UpdateMany(ctx context.Context, filter TaskFilter, patch TaskPatch) (int64, error)
	Find(ctx context.Context, filter TaskFilter) ([]models.Task, error)
	List(ctx context.Context, query ListQuery) ([]models.Task, error)
	Count(ctx context.Context, query ListQuery) (int64, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Insert(ctx context.Context, user *models.User) error
	Replace(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateMany(ctx context.Context, filter UserFilter, patch UserPatch) (int64, error)
	List(ctx context.Context, query ListQuery) ([]models.User, error)
	Count(ctx context.Context, query ListQuery) (int64, error)
}

// ParseID parses a document id. Foreign references are stored as strings, so callers
// holding one go through here before a lookup.
func ParseID(raw string) (uuid.UUID, error) {
	id, err := uuid.FromString(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidIdentifier
	}
	return id, nil
}

func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}

	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value") {
		return ErrDuplicate
	}
	return err
}

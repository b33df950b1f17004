package models

import (
	"time"

	"github.com/gofrs/uuid"
)

type User struct {
	ID           uuid.UUID `json:"_id" gorm:"primaryKey;type:uuid"`
	Name         string    `json:"name" gorm:"not null"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	PendingTasks TaskIDSet `json:"pendingTasks" gorm:"type:text;serializer:json"`
	DateCreated  time.Time `json:"dateCreated"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) HasPendingTask(taskID string) bool {
	return u.PendingTasks.Contains(taskID)
}

// AddPendingTask returns true when the set changed.
func (u *User) AddPendingTask(taskID string) bool {
	next, changed := u.PendingTasks.Add(taskID)
	u.PendingTasks = next
	return changed
}

// RemovePendingTask returns true when the set changed.
func (u *User) RemovePendingTask(taskID string) bool {
	next, changed := u.PendingTasks.Remove(taskID)
	u.PendingTasks = next
	return changed
}

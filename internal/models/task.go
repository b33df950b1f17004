package models

import (
	"time"

	"github.com/gofrs/uuid"
)

// UnassignedName is the display name carried by a task that has no assignee.
const UnassignedName = "unassigned"

type Task struct {
	ID               uuid.UUID `json:"_id" gorm:"primaryKey;type:uuid"`
	Name             string    `json:"name" gorm:"not null"`
	Description      string    `json:"description"`
	Deadline         time.Time `json:"deadline" gorm:"not null"`
	Completed        bool      `json:"completed" gorm:"not null;default:false"`
	AssignedUser     string    `json:"assignedUser" gorm:"index;not null;default:''"`
	AssignedUserName string    `json:"assignedUserName" gorm:"not null;default:'unassigned'"`
	DateCreated      time.Time `json:"dateCreated"`
}

func (Task) TableName() string {
	return "tasks"
}

func (t *Task) IsAssigned() bool {
	return t.AssignedUser != ""
}

// IsPending reports whether the task belongs in its assignee's pending list.
func (t *Task) IsPending() bool {
	return t.IsAssigned() && !t.Completed
}

// Unassign clears both sides of the denormalized assignment on the task.
func (t *Task) Unassign() {
	t.AssignedUser = ""
	t.AssignedUserName = UnassignedName
}

func (t *Task) AssignTo(user *User) {
	t.AssignedUser = user.ID.String()
	t.AssignedUserName = user.Name
}

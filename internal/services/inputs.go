package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"task-assign/backend/internal/optional"
)

// TaskInput carries the fields of a task write. Only fields present in the payload are
// set; an absent assignedUser leaves the assignment untouched on update.
type TaskInput struct {
	ID               optional.Value[string]    `json:"_id"`
	Name             optional.Value[string]    `json:"name"`
	Description      optional.Value[string]    `json:"description"`
	Deadline         optional.Value[Timestamp] `json:"deadline"`
	Completed        optional.Value[bool]      `json:"completed"`
	AssignedUser     optional.Value[string]    `json:"assignedUser"`
	AssignedUserName optional.Value[string]    `json:"assignedUserName"`
}

// UserInput carries the fields of a user write. A present pendingTasks list replaces the
// user's assignment set.
type UserInput struct {
	ID           optional.Value[string]   `json:"_id"`
	Name         optional.Value[string]   `json:"name"`
	Email        optional.Value[string]   `json:"email"`
	PendingTasks optional.Value[[]string] `json:"pendingTasks"`
}

var errInvalidTimestamp = errors.New("timestamp must be an RFC 3339 string or unix milliseconds")

// Timestamp decodes either an RFC 3339 string or a number of milliseconds since the epoch.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if raw == "" {
			t.Time = time.Time{}
			return nil
		}
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			t.Time = time.UnixMilli(ms).UTC()
			return nil
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, raw); err == nil {
				t.Time = parsed.UTC()
				return nil
			}
		}
		return errInvalidTimestamp
	}

	ms, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return errInvalidTimestamp
	}
	t.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time)
}

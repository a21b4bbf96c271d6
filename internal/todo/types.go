// Package todo holds the task domain types and the store contract.
package todo

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("task not found")

// Priority is the closed set of task priorities. The zero value means unspecified.
type Priority int

const (
	PriorityNone Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
)

func (p Priority) Valid() bool { return p >= PriorityNone && p <= PriorityHigh }

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "none"
	}
}

// Emoji is the list marker shown next to a task.
func (p Priority) Emoji() string {
	switch p {
	case PriorityHigh:
		return "🔴"
	case PriorityMedium:
		return "🟡"
	case PriorityLow:
		return "🔵"
	default:
		return ""
	}
}

type Task struct {
	ID       int64
	OwnerID  int64
	Text     string
	Done     bool
	Priority Priority
	// Due is zero when no reminder is owed.
	Due              time.Time
	DeliveryAttempts int
	CreatedAt        time.Time
}

func (t Task) HasReminder() bool { return !t.Due.IsZero() }

// DueReminder is one entry of a scan batch.
type DueReminder struct {
	TaskID  int64
	OwnerID int64
	Text    string
	Due     time.Time
}

// NewTask is the input for Store.CreateTask.
type NewTask struct {
	OwnerID  int64
	Text     string
	Priority Priority
	Due      time.Time
}

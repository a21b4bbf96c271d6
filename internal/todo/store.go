package todo

import (
	"context"
	"time"
)

// Store persists tasks and their reminder state.
//
// Due times are instants; implementations must not depend on the zone of the
// time.Time values they receive. A zero due time means "no reminder".
type Store interface {
	CreateTask(ctx context.Context, t NewTask) (int64, error)
	GetTask(ctx context.Context, id int64) (Task, error)
	// ListTasks orders by priority descending, then id.
	ListTasks(ctx context.Context, owner int64, onlyOpen bool) ([]Task, error)
	// ListWithReminders returns the owner's tasks that have a due time, earliest first.
	ListWithReminders(ctx context.Context, owner int64) ([]Task, error)

	// SetDueTime overwrites the due time (zero clears it) and resets delivery attempts.
	SetDueTime(ctx context.Context, id int64, due time.Time) error
	// ClearDueTime clears the due time only if it still equals expected.
	// It reports whether a row was changed.
	ClearDueTime(ctx context.Context, id int64, expected time.Time) (bool, error)
	// ListDueBefore returns open tasks with a due time at or before now,
	// ordered by due time ascending, then id.
	ListDueBefore(ctx context.Context, now time.Time) ([]DueReminder, error)
	// RecordDeliveryFailure increments the transient failure counter and returns the new value.
	RecordDeliveryFailure(ctx context.Context, id int64) (int, error)

	UpdatePriority(ctx context.Context, id int64, p Priority) error
	// ToggleDone flips completion for a task owned by owner and returns the new state.
	ToggleDone(ctx context.Context, id, owner int64) (bool, error)
	SetAllDone(ctx context.Context, owner int64, done bool) error
	DeleteTask(ctx context.Context, id, owner int64) error
	DeleteCompleted(ctx context.Context, owner int64) (int, error)

	Close() error
}

package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pockettodo/internal/clock"
	"pockettodo/internal/todo"
	logx "pockettodo/pkg/logx"
)

var (
	ErrNoTask         = errors.New("reminder: task not found")
	ErrInvalidSnooze  = errors.New("reminder: snooze needs minutes or next day")
	ErrDueNotInFuture = errors.New("reminder: due time is not in the future")
)

// SnoozeRequest postpones a reminder either by Minutes from now or to the same
// time tomorrow. PreviousDue is the due time shown in the notification, if known.
type SnoozeRequest struct {
	TaskID      int64
	Minutes     int
	NextDay     bool
	PreviousDue time.Time
}

type Snoozer struct {
	store todo.Store
	locks *Locks
	clock clock.Clock
	log   logx.Logger
}

func NewSnoozer(store todo.Store, locks *Locks, c clock.Clock, log logx.Logger) *Snoozer {
	if log.IsZero() {
		log = logx.Nop()
	}
	if locks == nil {
		locks = NewLocks()
	}
	return &Snoozer{store: store, locks: locks, clock: c, log: log}
}

// NextDue computes the new due time.
// Minute snoozes anchor to now. Next-day snoozes anchor to the previous due,
// else the stored due, else now, and roll forward in whole days past now.
func NextDue(req SnoozeRequest, stored, now time.Time) (time.Time, error) {
	loc := now.Location()
	if req.NextDay {
		anchor := req.PreviousDue
		if anchor.IsZero() {
			anchor = stored
		}
		if anchor.IsZero() {
			anchor = now
		}
		next := anchor.In(loc).AddDate(0, 0, 1)
		for !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return truncateSeconds(next), nil
	}
	if req.Minutes <= 0 {
		return time.Time{}, ErrInvalidSnooze
	}
	return truncateSeconds(now.Add(time.Duration(req.Minutes) * time.Minute)), nil
}

func truncateSeconds(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
}

// Snooze writes the new due time and returns it. Any delivery in flight for the
// old due time is superseded: its compare-and-clear no longer matches.
func (s *Snoozer) Snooze(ctx context.Context, req SnoozeRequest) (time.Time, error) {
	unlock := s.locks.Lock(req.TaskID)
	defer unlock()

	var stored time.Time
	if req.NextDay && req.PreviousDue.IsZero() {
		t, err := s.store.GetTask(ctx, req.TaskID)
		if err != nil {
			return time.Time{}, s.wrap(req.TaskID, err)
		}
		stored = t.Due
	}
	due, err := NextDue(req, stored, s.clock.Now())
	if err != nil {
		return time.Time{}, err
	}
	if err := s.store.SetDueTime(ctx, req.TaskID, due); err != nil {
		return time.Time{}, s.wrap(req.TaskID, err)
	}
	s.log.Debug("reminder snoozed",
		logx.Int64("task_id", req.TaskID),
		logx.Int("minutes", req.Minutes),
		logx.Bool("next_day", req.NextDay),
		logx.Time("due", due),
	)
	return due, nil
}

// SetCustom sets an explicit due time, truncated to the minute.
func (s *Snoozer) SetCustom(ctx context.Context, taskID int64, when time.Time) (time.Time, error) {
	now := s.clock.Now()
	due := truncateSeconds(when.In(now.Location()))
	if !due.After(now) {
		return time.Time{}, ErrDueNotInFuture
	}
	unlock := s.locks.Lock(taskID)
	defer unlock()
	if err := s.store.SetDueTime(ctx, taskID, due); err != nil {
		return time.Time{}, s.wrap(taskID, err)
	}
	s.log.Debug("reminder rescheduled", logx.Int64("task_id", taskID), logx.Time("due", due))
	return due, nil
}

// Cancel drops the pending reminder without touching the task itself.
func (s *Snoozer) Cancel(ctx context.Context, taskID int64) error {
	unlock := s.locks.Lock(taskID)
	defer unlock()
	if err := s.store.SetDueTime(ctx, taskID, time.Time{}); err != nil {
		return s.wrap(taskID, err)
	}
	s.log.Debug("reminder cancelled", logx.Int64("task_id", taskID))
	return nil
}

func (s *Snoozer) wrap(id int64, err error) error {
	if errors.Is(err, todo.ErrNotFound) {
		return fmt.Errorf("%w: %d", ErrNoTask, id)
	}
	return fmt.Errorf("task %d: %w", id, err)
}

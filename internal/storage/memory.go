package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pockettodo/internal/todo"
)

// Memory is a process-local todo.Store with the same semantics as the SQLite driver.
// Due times are kept at second precision like the SQLite column.
type Memory struct {
	mu     sync.Mutex
	loc    *time.Location
	nextID int64
	tasks  map[int64]*todo.Task

	// FailNext makes the next call return this error; used by tests.
	FailNext error
}

func NewMemory(loc *time.Location) *Memory {
	if loc == nil {
		loc = time.UTC
	}
	return &Memory{loc: loc, tasks: map[int64]*todo.Task{}}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) takeFailure() error {
	err := m.FailNext
	m.FailNext = nil
	return err
}

func (m *Memory) norm(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return time.Unix(t.Unix(), 0).In(m.loc)
}

func (m *Memory) CreateTask(ctx context.Context, t todo.NewTask) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return 0, err
	}
	if !t.Priority.Valid() {
		t.Priority = todo.PriorityNone
	}
	m.nextID++
	m.tasks[m.nextID] = &todo.Task{
		ID:        m.nextID,
		OwnerID:   t.OwnerID,
		Text:      t.Text,
		Priority:  t.Priority,
		Due:       m.norm(t.Due),
		CreatedAt: m.norm(time.Now()),
	}
	return m.nextID, nil
}

func (m *Memory) GetTask(ctx context.Context, id int64) (todo.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return todo.Task{}, err
	}
	t, ok := m.tasks[id]
	if !ok {
		return todo.Task{}, todo.ErrNotFound
	}
	return *t, nil
}

func (m *Memory) collect(keep func(*todo.Task) bool) []todo.Task {
	var out []todo.Task
	for _, t := range m.tasks {
		if keep(t) {
			out = append(out, *t)
		}
	}
	return out
}

func (m *Memory) ListTasks(ctx context.Context, owner int64, onlyOpen bool) ([]todo.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	out := m.collect(func(t *todo.Task) bool { return t.OwnerID == owner && (!onlyOpen || !t.Done) })
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) ListWithReminders(ctx context.Context, owner int64) ([]todo.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	out := m.collect(func(t *todo.Task) bool { return t.OwnerID == owner && t.HasReminder() })
	sort.Slice(out, func(i, j int) bool { return lessDue(out[i].Due, out[i].ID, out[j].Due, out[j].ID) })
	return out, nil
}

func lessDue(a time.Time, aid int64, b time.Time, bid int64) bool {
	if !a.Equal(b) {
		return a.Before(b)
	}
	return aid < bid
}

func (m *Memory) SetDueTime(ctx context.Context, id int64, due time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	t, ok := m.tasks[id]
	if !ok {
		return todo.ErrNotFound
	}
	t.Due = m.norm(due)
	t.DeliveryAttempts = 0
	return nil
}

func (m *Memory) ClearDueTime(ctx context.Context, id int64, expected time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return false, err
	}
	t, ok := m.tasks[id]
	if !ok || expected.IsZero() || !t.HasReminder() || t.Due.Unix() != expected.Unix() {
		return false, nil
	}
	t.Due = time.Time{}
	t.DeliveryAttempts = 0
	return true, nil
}

func (m *Memory) ListDueBefore(ctx context.Context, now time.Time) ([]todo.DueReminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	var out []todo.DueReminder
	for _, t := range m.tasks {
		if t.Done || !t.HasReminder() || t.Due.Unix() > now.Unix() {
			continue
		}
		out = append(out, todo.DueReminder{TaskID: t.ID, OwnerID: t.OwnerID, Text: t.Text, Due: t.Due})
	}
	sort.Slice(out, func(i, j int) bool { return lessDue(out[i].Due, out[i].TaskID, out[j].Due, out[j].TaskID) })
	return out, nil
}

func (m *Memory) RecordDeliveryFailure(ctx context.Context, id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return 0, err
	}
	t, ok := m.tasks[id]
	if !ok {
		return 0, todo.ErrNotFound
	}
	t.DeliveryAttempts++
	return t.DeliveryAttempts, nil
}

func (m *Memory) UpdatePriority(ctx context.Context, id int64, p todo.Priority) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if !p.Valid() {
		return fmt.Errorf("invalid priority %d", p)
	}
	t, ok := m.tasks[id]
	if !ok {
		return todo.ErrNotFound
	}
	t.Priority = p
	return nil
}

func (m *Memory) ToggleDone(ctx context.Context, id, owner int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return false, err
	}
	t, ok := m.tasks[id]
	if !ok || t.OwnerID != owner {
		return false, todo.ErrNotFound
	}
	t.Done = !t.Done
	return t.Done, nil
}

func (m *Memory) SetAllDone(ctx context.Context, owner int64, done bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	for _, t := range m.tasks {
		if t.OwnerID == owner {
			t.Done = done
		}
	}
	return nil
}

func (m *Memory) DeleteTask(ctx context.Context, id, owner int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	t, ok := m.tasks[id]
	if !ok || t.OwnerID != owner {
		return todo.ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *Memory) DeleteCompleted(ctx context.Context, owner int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return 0, err
	}
	n := 0
	for id, t := range m.tasks {
		if t.OwnerID == owner && t.Done {
			delete(m.tasks, id)
			n++
		}
	}
	return n, nil
}

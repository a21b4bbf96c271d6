package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"pockettodo/internal/todo"
	logx "pockettodo/pkg/logx"
)

//go:embed schema.sql
var schemaSQL string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	loc *time.Location
}

func openSQLite(cfg Config, log logx.Logger) (todo.Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers; SQLite handles a single writer best.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log, loc: cfg.Location}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func dueArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func (s *sqliteStore) fromUnix(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0).In(s.loc)
}

func (s *sqliteStore) CreateTask(ctx context.Context, t todo.NewTask) (int64, error) {
	if !t.Priority.Valid() {
		t.Priority = todo.PriorityNone
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(owner_id, text, done, priority, due_at, created_at) VALUES(?,?,0,?,?,?)`,
		t.OwnerID, t.Text, int(t.Priority), dueArg(t.Due), time.Now().Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const taskColumns = `id, owner_id, text, done, priority, due_at, delivery_attempts, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *sqliteStore) scanTask(r rowScanner) (todo.Task, error) {
	var (
		t       todo.Task
		done    int
		prio    int
		due     sql.NullInt64
		created int64
	)
	if err := r.Scan(&t.ID, &t.OwnerID, &t.Text, &done, &prio, &due, &t.DeliveryAttempts, &created); err != nil {
		return todo.Task{}, err
	}
	t.Done = done != 0
	t.Priority = todo.Priority(prio)
	t.Due = s.fromUnix(due)
	t.CreatedAt = time.Unix(created, 0).In(s.loc)
	return t, nil
}

func (s *sqliteStore) queryTasks(ctx context.Context, query string, args ...any) ([]todo.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []todo.Task
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetTask(ctx context.Context, id int64) (todo.Task, error) {
	t, err := s.scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return todo.Task{}, todo.ErrNotFound
	}
	return t, err
}

func (s *sqliteStore) ListTasks(ctx context.Context, owner int64, onlyOpen bool) ([]todo.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = ?`
	if onlyOpen {
		q += ` AND done = 0`
	}
	return s.queryTasks(ctx, q+` ORDER BY priority DESC, id ASC`, owner)
}

func (s *sqliteStore) ListWithReminders(ctx context.Context, owner int64) ([]todo.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE owner_id = ? AND due_at IS NOT NULL ORDER BY due_at ASC, id ASC`,
		owner)
}

func (s *sqliteStore) SetDueTime(ctx context.Context, id int64, due time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET due_at = ?, delivery_attempts = 0 WHERE id = ?`, dueArg(due), id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *sqliteStore) ClearDueTime(ctx context.Context, id int64, expected time.Time) (bool, error) {
	if expected.IsZero() {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET due_at = NULL, delivery_attempts = 0 WHERE id = ? AND due_at = ?`, id, expected.Unix())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) ListDueBefore(ctx context.Context, now time.Time) ([]todo.DueReminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, text, due_at FROM tasks
		 WHERE due_at IS NOT NULL AND due_at <= ? AND done = 0
		 ORDER BY due_at ASC, id ASC`, now.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []todo.DueReminder
	for rows.Next() {
		var (
			r   todo.DueReminder
			due int64
		)
		if err := rows.Scan(&r.TaskID, &r.OwnerID, &r.Text, &due); err != nil {
			return nil, err
		}
		r.Due = time.Unix(due, 0).In(s.loc)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) RecordDeliveryFailure(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`UPDATE tasks SET delivery_attempts = delivery_attempts + 1 WHERE id = ? RETURNING delivery_attempts`, id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, todo.ErrNotFound
	}
	return n, err
}

func (s *sqliteStore) UpdatePriority(ctx context.Context, id int64, p todo.Priority) error {
	if !p.Valid() {
		return fmt.Errorf("invalid priority %d", p)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET priority = ? WHERE id = ?`, int(p), id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *sqliteStore) ToggleDone(ctx context.Context, id, owner int64) (bool, error) {
	var done int
	err := s.db.QueryRowContext(ctx,
		`UPDATE tasks SET done = 1 - done WHERE id = ? AND owner_id = ? RETURNING done`, id, owner).Scan(&done)
	if errors.Is(err, sql.ErrNoRows) {
		return false, todo.ErrNotFound
	}
	return done != 0, err
}

func (s *sqliteStore) SetAllDone(ctx context.Context, owner int64, done bool) error {
	v := 0
	if done {
		v = 1
	}
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET done = ? WHERE owner_id = ?`, v, owner)
	return err
}

func (s *sqliteStore) DeleteTask(ctx context.Context, id, owner int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND owner_id = ?`, id, owner)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *sqliteStore) DeleteCompleted(ctx context.Context, owner int64) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE owner_id = ? AND done = 1`, owner)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return todo.ErrNotFound
	}
	return nil
}

// ABOUTME: Task persistence for SQLiteStore
// ABOUTME: Owner and deadline filters run in SQL, text filters run on the decoded rows

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2389/taskd/internal/task"
)

const taskColumns = `id, owner_id, title, description, state, deadline, version, created_at, updated_at`

// CreateTask inserts a new task and assigns its id
func (s *SQLiteStore) CreateTask(ctx context.Context, t *task.Task) error {
	now := time.Now().UTC()

	query := `
		INSERT INTO tasks (owner_id, title, description, state, deadline, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		t.OwnerID,
		t.Title,
		t.Description,
		string(t.State),
		deadlineValue(t.Deadline),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading task id: %w", err)
	}

	t.ID = id
	t.Version = 1
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

// GetTask retrieves a task by id
func (s *SQLiteStore) GetTask(ctx context.Context, id int64) (*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	t, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying task: %w", err)
	}
	return t, nil
}

// FindTasks returns the owner's tasks selected by p, ordered by id.
// State and search matching use Unicode case folding, which SQLite's lower()
// and LIKE do not implement, so those parts are applied after the scan.
func (s *SQLiteStore) FindTasks(ctx context.Context, p task.Predicate) ([]*task.Task, error) {
	var (
		where = []string{"owner_id = ?"}
		args  = []any{p.Owner()}
	)

	// YYYY-MM-DD sorts lexically in date order
	if ceiling, ok := p.Criteria().DeadlineCeiling(); ok {
		where = append(where, "(deadline IS NULL OR deadline <= ?)")
		args = append(args, ceiling.String())
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		if p.Match(t) {
			tasks = append(tasks, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tasks: %w", err)
	}

	return tasks, nil
}

// UpdateTask replaces the mutable fields of t if t.Version is still current.
// The owner and creation time are never rewritten.
func (s *SQLiteStore) UpdateTask(ctx context.Context, t *task.Task) error {
	now := time.Now().UTC()

	query := `
		UPDATE tasks
		SET title = ?, description = ?, state = ?, deadline = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		t.Title,
		t.Description,
		string(t.State),
		deadlineValue(t.Deadline),
		now.Format(time.RFC3339Nano),
		t.ID,
		t.Version,
	)
	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, t.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking task existence: %w", err)
		}
		return ErrConflict
	}

	t.Version++
	t.UpdatedAt = now
	return nil
}

// DeleteTask removes a task owned by ownerID
func (s *SQLiteStore) DeleteTask(ctx context.Context, id, ownerID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t                    task.Task
		state                string
		deadline             sql.NullString
		createdAt, updatedAt string
	)

	err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &state, &deadline, &t.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	t.State = task.State(state)

	if deadline.Valid {
		d, err := task.ParseDate(deadline.String)
		if err != nil {
			return nil, fmt.Errorf("parsing deadline of task %d: %w", t.ID, err)
		}
		t.Deadline = &d
	}

	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &t, nil
}

func deadlineValue(d *task.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

// ABOUTME: Store interfaces and data types for taskd persistence
// ABOUTME: Defines the User record and the task/user store contracts

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/taskd/internal/task"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an update lost a race with a concurrent write
var ErrConflict = errors.New("version conflict")

// ErrEmailExists is returned when registering an email that is already taken
var ErrEmailExists = errors.New("email already exists")

// User is a registered account. Emails are unique ignoring case.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string // bcrypt hash
	CreatedAt    time.Time
}

// TaskStore persists tasks keyed by integer id.
type TaskStore interface {
	// CreateTask inserts t and fills in ID, Version, CreatedAt and UpdatedAt.
	CreateTask(ctx context.Context, t *task.Task) error
	// GetTask returns ErrNotFound when no task has the id.
	GetTask(ctx context.Context, id int64) (*task.Task, error)
	// FindTasks returns the tasks selected by p ordered by id.
	FindTasks(ctx context.Context, p task.Predicate) ([]*task.Task, error)
	// UpdateTask writes t only if the stored version still equals t.Version.
	// On success t.Version is incremented. A stale version yields ErrConflict.
	UpdateTask(ctx context.Context, t *task.Task) error
	// DeleteTask removes the task with id owned by ownerID.
	DeleteTask(ctx context.Context, id, ownerID int64) error
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// Store is the full persistence surface used by the server.
type Store interface {
	TaskStore
	UserStore

	// Ping reports whether the backing database is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}

// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/2389/taskd/internal/task"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	tasks    map[int64]*task.Task // keyed by task ID
	users    map[int64]*User      // keyed by user ID
	nextTask int64
	nextUser int64

	// FailWith, when set, is returned by every operation
	FailWith error
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		tasks: make(map[int64]*task.Task),
		users: make(map[int64]*User),
	}
}

// CreateTask stores a new task.
func (m *MockStore) CreateTask(ctx context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}

	now := time.Now().UTC()
	m.nextTask++
	t.ID = m.nextTask
	t.Version = 1
	t.CreatedAt = now
	t.UpdatedAt = now

	// Make a copy to avoid external modification
	m.tasks[t.ID] = t.Clone()
	return nil
}

// GetTask retrieves a task by ID.
func (m *MockStore) GetTask(ctx context.Context, id int64) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailWith != nil {
		return nil, m.FailWith
	}

	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

// FindTasks returns copies of the tasks matching p, ordered by id.
func (m *MockStore) FindTasks(ctx context.Context, p task.Predicate) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailWith != nil {
		return nil, m.FailWith
	}

	var result []*task.Task
	for _, t := range m.tasks {
		if p.Match(t) {
			result = append(result, t.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// UpdateTask replaces a task if its version is current.
func (m *MockStore) UpdateTask(ctx context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}

	existing, ok := m.tasks[t.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Version != t.Version {
		return ErrConflict
	}

	t.Version++
	t.UpdatedAt = time.Now().UTC()

	updated := t.Clone()
	updated.OwnerID = existing.OwnerID
	updated.CreatedAt = existing.CreatedAt
	m.tasks[t.ID] = updated
	return nil
}

// DeleteTask removes a task owned by ownerID.
func (m *MockStore) DeleteTask(ctx context.Context, id, ownerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}

	t, ok := m.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

// CreateUser stores a new user. Emails are compared ignoring case.
func (m *MockStore) CreateUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}

	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrEmailExists
		}
	}

	m.nextUser++
	u.ID = m.nextUser
	u.CreatedAt = time.Now().UTC()

	copied := *u
	m.users[u.ID] = &copied
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailWith != nil {
		return nil, m.FailWith
	}

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *u
	return &result, nil
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailWith != nil {
		return nil, m.FailWith
	}

	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			result := *u
			return &result, nil
		}
	}
	return nil, ErrNotFound
}

// Ping always succeeds unless FailWith is set.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.FailWith
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// ErrMockFailure is a convenience error for FailWith.
var ErrMockFailure = errors.New("mock store failure")

// ABOUTME: Task service composing the store with the lifecycle and filter engines
// ABOUTME: Every operation takes the caller identity explicitly and returns typed task errors

package tracker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/2389/taskd/internal/auth"
	"github.com/2389/taskd/internal/store"
	"github.com/2389/taskd/internal/task"
)

// CreateInput carries the fields a caller may set on a new task.
type CreateInput struct {
	Title       string
	Description string
	Deadline    *task.Date
}

// Service realizes create, get, list, update and delete for authenticated callers.
type Service struct {
	tasks  store.TaskStore
	logger *slog.Logger
}

// NewService creates a task service over tasks.
func NewService(tasks store.TaskStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tasks:  tasks,
		logger: logger.With("component", "tracker"),
	}
}

// Create stores a new pending task owned by the caller.
func (s *Service) Create(ctx context.Context, id auth.Identity, in CreateInput) (*task.Task, error) {
	t, err := task.NewTask(id.UserID, in.Title, in.Description, in.Deadline)
	if err != nil {
		return nil, err
	}

	if err := s.tasks.CreateTask(ctx, t); err != nil {
		return nil, s.storageError("create task", err)
	}

	s.logger.Debug("task created", "task_id", t.ID, "owner_id", t.OwnerID)
	return t, nil
}

// Get returns one task if the caller owns it.
func (s *Service) Get(ctx context.Context, id auth.Identity, taskID int64) (*task.Task, error) {
	current, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := task.AuthorizeRead(current, taskID, id.UserID); err != nil {
		return nil, err
	}
	return current, nil
}

// List returns the caller's tasks matching c, ordered by id.
func (s *Service) List(ctx context.Context, id auth.Identity, c task.FilterCriteria) ([]*task.Task, error) {
	tasks, err := s.tasks.FindTasks(ctx, task.BuildFilter(id.UserID, c))
	if err != nil {
		return nil, s.storageError("find tasks", err)
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	return tasks, nil
}

// Update applies a full replacement of the task's mutable fields through the
// lifecycle engine. A concurrent write between read and update, or a u.Version
// that no longer matches the stored task, surfaces as a StorageError wrapping
// store.ErrConflict.
func (s *Service) Update(ctx context.Context, id auth.Identity, taskID int64, u task.Update) (*task.Task, error) {
	current, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}

	next, err := task.Transition(current, taskID, id.UserID, u)
	if err != nil {
		s.logger.Debug("update refused", "task_id", taskID, "kind", task.KindOf(err), "error", err)
		return nil, err
	}
	if u.Version != 0 && u.Version != current.Version {
		s.logger.Debug("update conflict", "task_id", taskID, "expected_version", u.Version, "version", current.Version)
		return nil, &task.StorageError{Op: "update task", Err: store.ErrConflict}
	}

	if err := s.tasks.UpdateTask(ctx, next); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &task.NotFoundError{TaskID: taskID}
		}
		return nil, s.storageError("update task", err)
	}

	s.logger.Debug("task updated", "task_id", next.ID, "state", next.State, "version", next.Version)
	return next, nil
}

// Delete removes the task if the caller owns it, in any state.
func (s *Service) Delete(ctx context.Context, id auth.Identity, taskID int64) error {
	current, err := s.load(ctx, taskID)
	if err != nil {
		return err
	}
	if err := task.AuthorizeDelete(current, taskID, id.UserID); err != nil {
		return err
	}

	if err := s.tasks.DeleteTask(ctx, taskID, id.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &task.NotFoundError{TaskID: taskID}
		}
		return s.storageError("delete task", err)
	}

	s.logger.Debug("task deleted", "task_id", taskID)
	return nil
}

// load fetches a task. A missing task is returned as nil without error so the
// engines can report it.
func (s *Service) load(ctx context.Context, taskID int64) (*task.Task, error) {
	t, err := s.tasks.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.storageError("get task", err)
	}
	return t, nil
}

func (s *Service) storageError(op string, err error) error {
	s.logger.Error("storage failure", "op", op, "error", err)
	return &task.StorageError{Op: op, Err: err}
}

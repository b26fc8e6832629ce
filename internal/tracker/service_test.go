// ABOUTME: Tests for the task service against mock and SQLite stores
// ABOUTME: Covers ownership checks, lifecycle scenarios, filters, and storage failure mapping

package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/taskd/internal/auth"
	"github.com/2389/taskd/internal/store"
	"github.com/2389/taskd/internal/task"
)

var (
	alice = auth.Identity{UserID: 1, Email: "alice@example.com", Name: "Alice"}
	bob   = auth.Identity{UserID: 2, Email: "bob@example.com", Name: "Bob"}
)

func setupService(t *testing.T) (*Service, *store.MockStore) {
	t.Helper()
	m := store.NewMockStore()
	return NewService(m, nil), m
}

func mustDate(t *testing.T, s string) *task.Date {
	t.Helper()
	d, err := task.ParseDate(s)
	require.NoError(t, err)
	return &d
}

func TestCreate(t *testing.T) {
	svc, _ := setupService(t)

	tk, err := svc.Create(context.Background(), alice, CreateInput{Title: "Buy milk", Deadline: mustDate(t, "2026-05-01")})
	require.NoError(t, err)

	assert.NotZero(t, tk.ID)
	assert.Equal(t, alice.UserID, tk.OwnerID)
	assert.Equal(t, task.StatePending, tk.State)
	assert.Equal(t, int64(1), tk.Version)
}

func TestCreate_ValidationError(t *testing.T) {
	svc, m := setupService(t)

	_, err := svc.Create(context.Background(), alice, CreateInput{Title: "   "})
	assert.Equal(t, task.KindValidation, task.KindOf(err))

	all, err := m.FindTasks(context.Background(), task.BuildFilter(alice.UserID, task.NewFilterCriteria()))
	require.NoError(t, err)
	assert.Empty(t, all, "nothing is stored on validation failure")
}

func TestGet_Ownership(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	tk, err := svc.Create(ctx, alice, CreateInput{Title: "private"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, alice, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "private", got.Title)

	_, err = svc.Get(ctx, bob, tk.ID)
	assert.Equal(t, task.KindForbidden, task.KindOf(err), "other owners see forbidden, not not-found")

	_, err = svc.Get(ctx, alice, tk.ID+100)
	var nerr *task.NotFoundError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, tk.ID+100, nerr.TaskID)
}

func TestUpdate_BuyMilkScenario(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	tk, err := svc.Create(ctx, alice, CreateInput{Title: "Buy milk"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, alice, tk.ID, task.Update{Title: "Buy milk", State: task.StateCompleted})
	var terr *task.InvalidTransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, task.StatePending, terr.From)
	assert.Equal(t, task.StateCompleted, terr.To)

	tk, err = svc.Update(ctx, alice, tk.ID, task.Update{Title: "Buy milk", State: task.StateInProgress})
	require.NoError(t, err)
	assert.Equal(t, int64(2), tk.Version)

	tk, err = svc.Update(ctx, alice, tk.ID, task.Update{Title: "Buy milk", State: task.StateCompleted})
	require.NoError(t, err)
	assert.Equal(t, task.StateCompleted, tk.State)

	_, err = svc.Update(ctx, alice, tk.ID, task.Update{Title: "Buy oat milk", State: task.StateCompleted})
	var ferr *task.ForbiddenError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, task.ReasonTerminal, ferr.Reason)

	got, err := svc.Get(ctx, alice, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", got.Title, "completed task is unchanged")
}

func TestUpdate_NotOwner(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	tk, err := svc.Create(ctx, alice, CreateInput{Title: "mine"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, bob, tk.ID, task.Update{Title: "stolen", State: task.StatePending})
	var ferr *task.ForbiddenError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, task.ReasonNotOwner, ferr.Reason)
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.Update(context.Background(), alice, 99, task.Update{Title: "x", State: task.StatePending})
	assert.Equal(t, task.KindNotFound, task.KindOf(err))
}

// racingStore lets another writer win between the service's read and write.
type racingStore struct {
	*store.MockStore
}

func (r *racingStore) UpdateTask(ctx context.Context, t *task.Task) error {
	rival := t.Clone()
	rival.Title = "rival"
	if err := r.MockStore.UpdateTask(ctx, rival); err != nil {
		return err
	}
	return r.MockStore.UpdateTask(ctx, t)
}

func TestUpdate_LostRaceIsStorageError(t *testing.T) {
	m := store.NewMockStore()
	svc := NewService(&racingStore{MockStore: m}, nil)
	ctx := context.Background()

	tk, err := svc.Create(ctx, alice, CreateInput{Title: "contested"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, alice, tk.ID, task.Update{Title: "mine", State: task.StateInProgress})
	assert.Equal(t, task.KindStorage, task.KindOf(err))
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := m.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "rival", got.Title)
}

func TestDelete(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	tk, err := svc.Create(ctx, alice, CreateInput{Title: "temp"})
	require.NoError(t, err)

	err = svc.Delete(ctx, bob, tk.ID)
	assert.Equal(t, task.KindForbidden, task.KindOf(err))

	require.NoError(t, svc.Delete(ctx, alice, tk.ID))

	err = svc.Delete(ctx, alice, tk.ID)
	assert.Equal(t, task.KindNotFound, task.KindOf(err))
}

func TestDelete_CompletedTask(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	tk, err := svc.Create(ctx, alice, CreateInput{Title: "done soon"})
	require.NoError(t, err)
	_, err = svc.Update(ctx, alice, tk.ID, task.Update{Title: "done soon", State: task.StateInProgress})
	require.NoError(t, err)
	_, err = svc.Update(ctx, alice, tk.ID, task.Update{Title: "done soon", State: task.StateCompleted})
	require.NoError(t, err)

	assert.NoError(t, svc.Delete(ctx, alice, tk.ID))
}

func TestList_SearchScenario(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, alice, CreateInput{Title: "Buy milk"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, alice, CreateInput{Title: "Call dentist"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, bob, CreateInput{Title: "Buy milk for Bob"})
	require.NoError(t, err)

	got, err := svc.List(ctx, alice, task.NewFilterCriteria().WithSearch("milk"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Buy milk", got[0].Title)
}

func TestList_EmptyIsNotNil(t *testing.T) {
	svc, _ := setupService(t)

	got, err := svc.List(context.Background(), alice, task.NewFilterCriteria())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStorageFailure(t *testing.T) {
	svc, m := setupService(t)
	ctx := context.Background()

	tk, err := svc.Create(ctx, alice, CreateInput{Title: "t"})
	require.NoError(t, err)

	m.FailWith = errors.New("disk on fire")

	_, err = svc.Create(ctx, alice, CreateInput{Title: "t"})
	assert.Equal(t, task.KindStorage, task.KindOf(err))
	_, err = svc.Get(ctx, alice, tk.ID)
	assert.Equal(t, task.KindStorage, task.KindOf(err))
	_, err = svc.List(ctx, alice, task.NewFilterCriteria())
	assert.Equal(t, task.KindStorage, task.KindOf(err))
	_, err = svc.Update(ctx, alice, tk.ID, task.Update{Title: "t", State: task.StatePending})
	assert.Equal(t, task.KindStorage, task.KindOf(err))
	err = svc.Delete(ctx, alice, tk.ID)
	assert.Equal(t, task.KindStorage, task.KindOf(err))

	var serr *task.StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "get task", serr.Op)
}

func TestService_SQLite(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	u := &store.User{Name: "Alice", Email: "alice@example.com", PasswordHash: "x"}
	require.NoError(t, s.CreateUser(ctx, u))
	id := auth.Identity{UserID: u.ID, Email: u.Email, Name: u.Name}

	svc := NewService(s, nil)

	first, err := svc.Create(ctx, id, CreateInput{Title: "Renew passport", Deadline: mustDate(t, "2026-03-01")})
	require.NoError(t, err)
	_, err = svc.Create(ctx, id, CreateInput{Title: "Someday"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, id, CreateInput{Title: "Later", Deadline: mustDate(t, "2026-09-01")})
	require.NoError(t, err)

	due, err := svc.List(ctx, id, task.NewFilterCriteria().WithDeadlineCeiling(mustDate(t, "2026-03-01")))
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "Renew passport", due[0].Title)
	assert.Equal(t, "Someday", due[1].Title)

	updated, err := svc.Update(ctx, id, first.ID, task.Update{
		Title:       "Renew passport",
		Description: "bring photos",
		State:       task.StateInProgress,
		Deadline:    first.Deadline,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	got, err := svc.Get(ctx, id, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "bring photos", got.Description)
	assert.Equal(t, task.StateInProgress, got.State)
}

func TestUpdate_StaleVersionIsConflict(t *testing.T) {
	svc, m := setupService(t)
	ctx := context.Background()

	tk, err := svc.Create(ctx, alice, CreateInput{Title: "draft"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, alice, tk.ID, task.Update{Title: "second", State: task.StatePending})
	require.NoError(t, err)

	_, err = svc.Update(ctx, alice, tk.ID, task.Update{Title: "stale", State: task.StateInProgress, Version: tk.Version})
	assert.Equal(t, task.KindStorage, task.KindOf(err))
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := m.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Title)
	assert.Equal(t, int64(2), got.Version)

	updated, err := svc.Update(ctx, alice, tk.ID, task.Update{Title: "fresh", State: task.StateInProgress, Version: got.Version})
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated.Version)
}

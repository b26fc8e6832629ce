// ABOUTME: Tests for the MCP task tools
// ABOUTME: Calls tool handlers directly against a tracker backed by the mock store

package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/2389/taskd/internal/auth"
	"github.com/2389/taskd/internal/store"
	"github.com/2389/taskd/internal/task"
	"github.com/2389/taskd/internal/tracker"
)

var (
	alice = auth.Identity{UserID: 1, Email: "alice@example.com", Name: "Alice"}
	bob   = auth.Identity{UserID: 2, Email: "bob@example.com", Name: "Bob"}
)

type toolTask struct {
	ID          int64   `json:"id"`
	OwnerID     int64   `json:"owner_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	State       string  `json:"state"`
	Deadline    *string `json:"deadline"`
}

func newTestServers(t *testing.T) (asAlice, asBob *server.MCPServer) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := tracker.NewService(store.NewMockStore(), logger)
	return NewServer(svc, alice, "test", logger), NewServer(svc, bob, "test", logger)
}

func call(t *testing.T, s *server.MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()

	tool := s.GetTool(name)
	if tool == nil {
		t.Fatalf("Tool %s not found", name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := tool.Handler(context.Background(), req)
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty tool result")
	}
	return result.Content[0].(mcp.TextContent).Text
}

func mustTask(t *testing.T, result *mcp.CallToolResult) toolTask {
	t.Helper()
	if result.IsError {
		t.Fatalf("Tool returned error: %s", resultText(t, result))
	}
	var body struct {
		Task toolTask `json:"task"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &body); err != nil {
		t.Fatalf("Failed to decode task: %v", err)
	}
	return body.Task
}

func expectError(t *testing.T, result *mcp.CallToolResult, kind string) {
	t.Helper()
	if !result.IsError {
		t.Fatalf("expected %s error, got %s", kind, resultText(t, result))
	}
	if text := resultText(t, result); !strings.HasPrefix(text, kind+":") {
		t.Errorf("expected error text to start with %q, got %q", kind, text)
	}
}

func TestToolsRegistered(t *testing.T) {
	s, _ := newTestServers(t)
	for _, name := range []string{"create_task", "get_task", "list_tasks", "update_task", "delete_task"} {
		if s.GetTool(name) == nil {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestTaskLifecycle(t *testing.T) {
	s, _ := newTestServers(t)

	created := mustTask(t, call(t, s, "create_task", map[string]any{
		"title":    "Buy milk",
		"deadline": "2030-01-15",
	}))
	if created.State != "pending" || created.OwnerID != alice.UserID {
		t.Fatalf("unexpected task: %+v", created)
	}

	// Only state changes; title and deadline are kept
	started := mustTask(t, call(t, s, "update_task", map[string]any{
		"id":    float64(created.ID),
		"state": "in_progress",
	}))
	if started.State != "in_progress" || started.Title != "Buy milk" {
		t.Errorf("unexpected task after update: %+v", started)
	}
	if started.Deadline == nil || *started.Deadline != "2030-01-15" {
		t.Errorf("deadline should be kept, got %v", started.Deadline)
	}

	cleared := mustTask(t, call(t, s, "update_task", map[string]any{
		"id":       float64(created.ID),
		"deadline": "",
	}))
	if cleared.Deadline != nil {
		t.Errorf("deadline should be cleared, got %v", *cleared.Deadline)
	}

	mustTask(t, call(t, s, "update_task", map[string]any{"id": float64(created.ID), "state": "completed"}))

	expectError(t, call(t, s, "update_task", map[string]any{
		"id":    float64(created.ID),
		"title": "Buy oat milk",
	}), "forbidden")

	result := call(t, s, "delete_task", map[string]any{"id": float64(created.ID)})
	if result.IsError {
		t.Fatalf("delete failed: %s", resultText(t, result))
	}

	expectError(t, call(t, s, "get_task", map[string]any{"id": float64(created.ID)}), "not_found")
}

func TestInvalidTransition(t *testing.T) {
	s, _ := newTestServers(t)
	created := mustTask(t, call(t, s, "create_task", map[string]any{"title": "Paint fence"}))

	expectError(t, call(t, s, "update_task", map[string]any{
		"id":    float64(created.ID),
		"state": "completed",
	}), "invalid_transition")
}

// interleavedService runs edit once, right after a task is read.
type interleavedService struct {
	*tracker.Service
	edit func(ctx context.Context, t *task.Task)
}

func (s *interleavedService) Get(ctx context.Context, id auth.Identity, taskID int64) (*task.Task, error) {
	t, err := s.Service.Get(ctx, id, taskID)
	if err == nil && s.edit != nil {
		edit := s.edit
		s.edit = nil
		edit(ctx, t)
	}
	return t, err
}

func TestUpdateTask_ConcurrentEditIsConflict(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := tracker.NewService(store.NewMockStore(), logger)

	created, err := svc.Create(ctx, alice, tracker.CreateInput{Title: "Report", Description: "orig"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	wrapped := &interleavedService{Service: svc}
	wrapped.edit = func(ctx context.Context, cur *task.Task) {
		_, err := svc.Update(ctx, alice, cur.ID, task.Update{
			Title:       cur.Title,
			Description: "edited elsewhere",
			State:       cur.State,
		})
		if err != nil {
			t.Fatalf("concurrent Update failed: %v", err)
		}
	}
	s := NewServer(wrapped, alice, "test", logger)

	expectError(t, call(t, s, "update_task", map[string]any{
		"id":    float64(created.ID),
		"state": "in_progress",
	}), "conflict")

	got, err := svc.Get(ctx, alice, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Description != "edited elsewhere" || got.State != task.StatePending || got.Version != 2 {
		t.Errorf("concurrent edit was overwritten: %+v", got)
	}

	// A retry reads the new version and keeps the other edit
	retried := mustTask(t, call(t, s, "update_task", map[string]any{
		"id":    float64(created.ID),
		"state": "in_progress",
	}))
	if retried.State != "in_progress" || retried.Description != "edited elsewhere" {
		t.Errorf("unexpected task after retry: %+v", retried)
	}
}

func TestValidationErrors(t *testing.T) {
	s, _ := newTestServers(t)

	expectError(t, call(t, s, "create_task", map[string]any{"title": "  "}), "validation")
	expectError(t, call(t, s, "create_task", map[string]any{"title": "x", "deadline": "soon"}), "validation")
	expectError(t, call(t, s, "list_tasks", map[string]any{"deadline_before": "2030/01/01"}), "validation")

	created := mustTask(t, call(t, s, "create_task", map[string]any{"title": "x"}))
	expectError(t, call(t, s, "update_task", map[string]any{
		"id":    float64(created.ID),
		"state": "finished",
	}), "validation")
}

func TestOwnership(t *testing.T) {
	asAlice, asBob := newTestServers(t)
	created := mustTask(t, call(t, asAlice, "create_task", map[string]any{"title": "Alice only"}))

	expectError(t, call(t, asBob, "get_task", map[string]any{"id": float64(created.ID)}), "forbidden")
	expectError(t, call(t, asBob, "delete_task", map[string]any{"id": float64(created.ID)}), "forbidden")

	result := call(t, asBob, "list_tasks", map[string]any{})
	if text := resultText(t, result); text != `{"tasks":[]}` {
		t.Errorf("bob should see no tasks, got %s", text)
	}
}

func TestListTasks_Filters(t *testing.T) {
	s, _ := newTestServers(t)
	mustTask(t, call(t, s, "create_task", map[string]any{"title": "Buy milk", "deadline": "2030-01-10"}))
	mustTask(t, call(t, s, "create_task", map[string]any{"title": "Paint fence", "description": "white paint", "deadline": "2030-03-01"}))
	mustTask(t, call(t, s, "create_task", map[string]any{"title": "Write report"}))

	tests := []struct {
		name string
		args map[string]any
		want []string
	}{
		{"all", map[string]any{}, []string{"Buy milk", "Paint fence", "Write report"}},
		{"search", map[string]any{"search": "WHITE"}, []string{"Paint fence"}},
		{"state", map[string]any{"state": "Pending"}, []string{"Buy milk", "Paint fence", "Write report"}},
		{"ceiling", map[string]any{"deadline_before": "2030-02-01"}, []string{"Buy milk", "Write report"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := call(t, s, "list_tasks", tt.args)
			if result.IsError {
				t.Fatalf("list failed: %s", resultText(t, result))
			}
			var body struct {
				Tasks []toolTask `json:"tasks"`
			}
			if err := json.Unmarshal([]byte(resultText(t, result)), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			var got []string
			for _, task := range body.Tasks {
				got = append(got, task.Title)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

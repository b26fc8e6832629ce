// ABOUTME: MCP server exposing the task service as tools for agents
// ABOUTME: Served over stdio with the caller identity fixed when the server starts

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/2389/taskd/internal/auth"
	"github.com/2389/taskd/internal/store"
	"github.com/2389/taskd/internal/task"
	"github.com/2389/taskd/internal/tracker"
)

// TaskService is the subset of tracker.Service the tools call.
type TaskService interface {
	Create(ctx context.Context, id auth.Identity, in tracker.CreateInput) (*task.Task, error)
	Get(ctx context.Context, id auth.Identity, taskID int64) (*task.Task, error)
	List(ctx context.Context, id auth.Identity, c task.FilterCriteria) ([]*task.Task, error)
	Update(ctx context.Context, id auth.Identity, taskID int64, u task.Update) (*task.Task, error)
	Delete(ctx context.Context, id auth.Identity, taskID int64) error
}

// NewServer creates an MCP server whose tools act as id.
func NewServer(svc TaskService, id auth.Identity, version string, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{svc: svc, id: id, logger: logger.With("component", "mcp")}

	s := server.NewMCPServer("taskd", version)

	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a pending task owned by you."),
		mcp.WithString("title", mcp.Description("Task title"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Task description (Markdown)")),
		mcp.WithString("deadline", mcp.Description("Deadline as YYYY-MM-DD")),
	), h.createTask)

	s.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Get one of your tasks by id."),
		mcp.WithNumber("id", mcp.Description("Task id"), mcp.Required()),
	), h.getTask)

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List your tasks with optional filters."),
		mcp.WithString("state", mcp.Description("Filter by state (pending|in_progress|completed)")),
		mcp.WithString("search", mcp.Description("Case-insensitive text to find in title or description")),
		mcp.WithString("deadline_before", mcp.Description("Keep tasks due on or before this YYYY-MM-DD date, plus tasks without a deadline")),
	), h.listTasks)

	s.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Update a task. Omitted fields keep their current value. States move pending -> in_progress -> completed; completed tasks cannot change."),
		mcp.WithNumber("id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("state", mcp.Description("New state (pending|in_progress|completed)")),
		mcp.WithString("deadline", mcp.Description("New deadline as YYYY-MM-DD, empty string to clear")),
	), h.updateTask)

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete one of your tasks, in any state."),
		mcp.WithNumber("id", mcp.Description("Task id"), mcp.Required()),
	), h.deleteTask)

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

type handlers struct {
	svc    TaskService
	id     auth.Identity
	logger *slog.Logger
}

func (h *handlers) createTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deadline, err := parseDeadline(mcp.ParseString(request, "deadline", ""))
	if err != nil {
		return h.toolError("create_task", err), nil
	}

	t, err := h.svc.Create(ctx, h.id, tracker.CreateInput{
		Title:       mcp.ParseString(request, "title", ""),
		Description: mcp.ParseString(request, "description", ""),
		Deadline:    deadline,
	})
	if err != nil {
		return h.toolError("create_task", err), nil
	}
	return jsonResult(map[string]any{"task": t})
}

func (h *handlers) getTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := h.svc.Get(ctx, h.id, taskID(request))
	if err != nil {
		return h.toolError("get_task", err), nil
	}
	return jsonResult(map[string]any{"task": t})
}

func (h *handlers) listTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	criteria := task.NewFilterCriteria().
		WithState(mcp.ParseString(request, "state", "")).
		WithSearch(mcp.ParseString(request, "search", ""))

	ceiling, err := parseDeadline(mcp.ParseString(request, "deadline_before", ""))
	if err != nil {
		return h.toolError("list_tasks", err), nil
	}
	criteria = criteria.WithDeadlineCeiling(ceiling)

	tasks, err := h.svc.List(ctx, h.id, criteria)
	if err != nil {
		return h.toolError("list_tasks", err), nil
	}
	return jsonResult(map[string]any{"tasks": tasks})
}

func (h *handlers) updateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := taskID(request)
	current, err := h.svc.Get(ctx, h.id, id)
	if err != nil {
		return h.toolError("update_task", err), nil
	}

	u := task.Update{
		Title:       current.Title,
		Description: current.Description,
		State:       current.State,
		Deadline:    current.Deadline,
		Version:     current.Version,
	}

	args, _ := request.Params.Arguments.(map[string]any)
	if title, ok := args["title"].(string); ok {
		u.Title = title
	}
	if description, ok := args["description"].(string); ok {
		u.Description = description
	}
	if state, ok := args["state"].(string); ok {
		if u.State, err = task.ParseState(state); err != nil {
			return h.toolError("update_task", err), nil
		}
	}
	if deadline, ok := args["deadline"].(string); ok {
		if u.Deadline, err = parseDeadline(deadline); err != nil {
			return h.toolError("update_task", err), nil
		}
	}

	t, err := h.svc.Update(ctx, h.id, id, u)
	if err != nil {
		return h.toolError("update_task", err), nil
	}
	return jsonResult(map[string]any{"task": t})
}

func (h *handlers) deleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := taskID(request)
	if err := h.svc.Delete(ctx, h.id, id); err != nil {
		return h.toolError("delete_task", err), nil
	}
	return jsonResult(map[string]any{"deleted": id})
}

// toolError reports a failure to the agent as "<kind>: <message>".
func (h *handlers) toolError(tool string, err error) *mcp.CallToolResult {
	kind := task.KindOf(err)
	switch {
	case errors.Is(err, store.ErrConflict):
		// The task changed since it was read; the caller can fetch and retry.
		h.logger.Debug("tool conflict", "tool", tool, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("conflict: %v", err))
	case kind == task.KindStorage:
		h.logger.Error("tool failed", "tool", tool, "error", err)
	default:
		h.logger.Debug("tool refused", "tool", tool, "kind", kind, "error", err)
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", kind, err))
}

func taskID(request mcp.CallToolRequest) int64 {
	return int64(mcp.ParseInt(request, "id", 0))
}

func parseDeadline(raw string) (*task.Date, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := task.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

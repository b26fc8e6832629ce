// ABOUTME: HTTP API handlers for accounts and tasks
// ABOUTME: Decodes JSON requests, calls the services, and maps typed errors to status codes

package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/2389/taskd/internal/account"
	"github.com/2389/taskd/internal/auth"
	"github.com/2389/taskd/internal/idempotency"
	"github.com/2389/taskd/internal/store"
	"github.com/2389/taskd/internal/task"
	"github.com/2389/taskd/internal/tracker"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// kindConflict is reported for duplicate emails, version races and in-flight idempotent requests.
const kindConflict task.Kind = "conflict"

// TaskRequest is the JSON request body for POST /api/tasks and PUT /api/tasks/{id}.
// Deadline is a YYYY-MM-DD string; null or empty means no deadline.
type TaskRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	State       string  `json:"state,omitempty"`
	Deadline    *string `json:"deadline"`
}

// TaskResponse is a task as returned by the API.
type TaskResponse struct {
	*task.Task
	DescriptionHTML string `json:"description_html,omitempty"`
}

// SingleTaskResponse wraps one task.
type SingleTaskResponse struct {
	Task TaskResponse `json:"task"`
}

// ListTasksResponse is the JSON response for GET /api/tasks.
type ListTasksResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

// DeleteTaskResponse is the JSON response for DELETE /api/tasks/{id}.
type DeleteTaskResponse struct {
	Deleted int64 `json:"deleted"`
}

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Reason string `json:"reason,omitempty"`
}

// handleRegister handles POST /api/auth/register.
func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in account.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		g.writeError(w, r, err)
		return
	}

	session, err := g.accounts.Register(r.Context(), in)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// handleLogin handles POST /api/auth/login.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in account.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		g.writeError(w, r, err)
		return
	}

	session, err := g.accounts.Login(r.Context(), in)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleCreateTask handles POST /api/tasks.
// With an Idempotency-Key header, a repeated request returns the task created by the first one.
func (g *Gateway) handleCreateTask(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	var req TaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	in := tracker.CreateInput{Title: req.Title, Description: req.Description, Deadline: deadline}

	clientKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if clientKey == "" {
		t, err := g.tracker.Create(r.Context(), id, in)
		if err != nil {
			g.writeError(w, r, err)
			return
		}
		g.writeTask(w, r, http.StatusCreated, t)
		return
	}

	key := idempotency.Key(id.UserID, clientKey)
	taskID, status := g.idempotency.Reserve(key)
	switch status {
	case idempotency.InFlight:
		g.sendJSONError(w, http.StatusConflict, kindConflict, "a request with this Idempotency-Key is in progress")
		return
	case idempotency.Replay:
		g.logger.Debug("idempotent replay", "task_id", taskID, "user_id", id.UserID)
		t, err := g.tracker.Get(r.Context(), id, taskID)
		if err != nil {
			g.writeError(w, r, err)
			return
		}
		g.writeTask(w, r, http.StatusOK, t)
		return
	}

	defer g.idempotency.Release(key)

	t, err := g.tracker.Create(r.Context(), id, in)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.idempotency.Complete(key, t.ID)
	g.writeTask(w, r, http.StatusCreated, t)
}

// handleListTasks handles GET /api/tasks.
// Supports ?state=, ?search= and ?deadline_before= (alias ?limitedDeadline=).
func (g *Gateway) handleListTasks(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	q := r.URL.Query()

	criteria := task.NewFilterCriteria().
		WithState(q.Get("state")).
		WithSearch(q.Get("search"))

	rawCeiling := q.Get("deadline_before")
	if rawCeiling == "" {
		rawCeiling = q.Get("limitedDeadline")
	}
	if rawCeiling != "" {
		ceiling, err := task.ParseDate(rawCeiling)
		if err != nil {
			g.writeError(w, r, err)
			return
		}
		criteria = criteria.WithDeadlineCeiling(&ceiling)
	}

	tasks, err := g.tracker.List(r.Context(), id, criteria)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	renderHTML := wantsHTML(r)
	response := ListTasksResponse{Tasks: make([]TaskResponse, 0, len(tasks))}
	for _, t := range tasks {
		response.Tasks = append(response.Tasks, g.taskResponse(t, renderHTML))
	}
	writeJSON(w, http.StatusOK, response)
}

// handleGetTask handles GET /api/tasks/{id}.
func (g *Gateway) handleGetTask(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	taskID, err := pathTaskID(r)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	t, err := g.tracker.Get(r.Context(), id, taskID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.writeTask(w, r, http.StatusOK, t)
}

// handleUpdateTask handles PUT /api/tasks/{id}.
// The body replaces title, description, state and deadline.
func (g *Gateway) handleUpdateTask(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	taskID, err := pathTaskID(r)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	var req TaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	state, err := task.ParseState(req.State)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	t, err := g.tracker.Update(r.Context(), id, taskID, task.Update{
		Title:       req.Title,
		Description: req.Description,
		State:       state,
		Deadline:    deadline,
	})
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.writeTask(w, r, http.StatusOK, t)
}

// handleDeleteTask handles DELETE /api/tasks/{id}.
func (g *Gateway) handleDeleteTask(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	taskID, err := pathTaskID(r)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	if err := g.tracker.Delete(r.Context(), id, taskID); err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteTaskResponse{Deleted: taskID})
}

func (g *Gateway) writeTask(w http.ResponseWriter, r *http.Request, status int, t *task.Task) {
	writeJSON(w, status, SingleTaskResponse{Task: g.taskResponse(t, wantsHTML(r))})
}

// taskResponse optionally renders the description from Markdown.
// A rendering failure leaves description_html empty.
func (g *Gateway) taskResponse(t *task.Task, renderHTML bool) TaskResponse {
	resp := TaskResponse{Task: t}
	if !renderHTML || t.Description == "" {
		return resp
	}

	var buf bytes.Buffer
	if err := g.markdown.Convert([]byte(t.Description), &buf); err != nil {
		g.logger.Warn("failed to render description", "task_id", t.ID, "error", err)
		return resp
	}
	resp.DescriptionHTML = buf.String()
	return resp
}

func wantsHTML(r *http.Request) bool {
	return r.URL.Query().Get("render") == "html"
}

// pathTaskID parses the {id} path segment. Malformed ids are validation errors.
func pathTaskID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &task.ValidationError{Field: "id", Message: fmt.Sprintf("invalid task id %q", raw)}
	}
	return id, nil
}

// parseDeadline turns an optional YYYY-MM-DD string into a Date.
func parseDeadline(raw *string) (*task.Date, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	d, err := task.ParseDate(*raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// decodeJSON reads a bounded JSON body into v. Malformed bodies are validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &task.ValidationError{Message: "invalid JSON body: " + err.Error()}
	}
	return nil
}

// writeError maps service errors onto HTTP status codes.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, account.ErrEmailTaken):
		g.sendJSONError(w, http.StatusConflict, kindConflict, err.Error())
		return
	case errors.Is(err, account.ErrInvalidCredentials):
		g.sendJSONError(w, http.StatusUnauthorized, task.KindUnauthenticated, err.Error())
		return
	case errors.Is(err, store.ErrConflict):
		g.sendJSONError(w, http.StatusConflict, kindConflict, "task was modified concurrently, retry")
		return
	}

	kind := task.KindOf(err)
	switch kind {
	case task.KindValidation:
		g.sendJSONError(w, http.StatusBadRequest, kind, err.Error())
	case task.KindUnauthenticated:
		g.sendJSONError(w, http.StatusUnauthorized, kind, err.Error())
	case task.KindNotFound:
		g.sendJSONError(w, http.StatusNotFound, kind, err.Error())
	case task.KindForbidden:
		var forbidden *task.ForbiddenError
		errors.As(err, &forbidden)
		writeJSON(w, http.StatusForbidden, ErrorResponse{
			Error:  err.Error(),
			Kind:   string(kind),
			Reason: string(forbidden.Reason),
		})
	case task.KindInvalidTransition:
		g.sendJSONError(w, http.StatusUnprocessableEntity, kind, err.Error())
	default:
		g.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, task.KindStorage, "internal storage error")
	}
}

// requireUser rejects identities whose account no longer exists.
func (g *Gateway) requireUser(logger *slog.Logger, next auth.IdentityHandler) auth.IdentityHandler {
	return func(w http.ResponseWriter, r *http.Request, id auth.Identity) {
		_, err := g.store.GetUser(r.Context(), id.UserID)
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("authentication failed",
				"reason", "unknown user",
				"user_id", id.UserID,
				"method", r.Method,
				"path", r.URL.Path,
			)
			g.writeError(w, r, fmt.Errorf("%w: user %d no longer exists", auth.ErrUnauthenticated, id.UserID))
			return
		}
		if err != nil {
			g.writeError(w, r, &task.StorageError{Op: "get user", Err: err})
			return
		}
		next(w, r, id)
	}
}

// sendJSONError writes an error response with the given status and kind.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, kind task.Kind, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Kind: string(kind)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ABOUTME: Tests for the HTTP bearer authentication adapter
// ABOUTME: Covers token extraction, 401 responses, identity hand-off, and failure logging

package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		token   string
		wantErr string
	}{
		{header: "", wantErr: "missing authorization header"},
		{header: "Basic dXNlcjpwYXNz", wantErr: "invalid authorization header format"},
		{header: "Bearer", wantErr: "invalid authorization header format"},
		{header: "Bearer   ", wantErr: "empty token"},
		{header: "Bearer abc.def.ghi", token: "abc.def.ghi"},
		{header: "bearer abc", token: "abc"},
	}

	for _, tt := range tests {
		token, errMsg := BearerToken(tt.header)
		if token != tt.token || errMsg != tt.wantErr {
			t.Errorf("BearerToken(%q) = (%q, %q), want (%q, %q)", tt.header, token, errMsg, tt.token, tt.wantErr)
		}
	}
}

func TestRequireIdentity_ValidToken(t *testing.T) {
	verifier := newTestVerifier(t)
	want := Identity{UserID: 3, Email: "c@example.com", Name: "C"}
	token, _ := verifier.Generate(want, time.Hour)

	var got Identity
	handler := RequireIdentity(verifier, nil, func(w http.ResponseWriter, r *http.Request, id Identity) {
		got = id
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rec.Code)
	}
	if got != want {
		t.Errorf("identity = %+v, want %+v", got, want)
	}
}

func TestRequireIdentity_Rejects(t *testing.T) {
	verifier := newTestVerifier(t)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "wrong scheme", header: "Token abc"},
		{name: "bad token", header: "Bearer nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := RequireIdentity(verifier, nil, func(w http.ResponseWriter, r *http.Request, id Identity) {
				called = true
			})

			req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if called {
				t.Error("handler must not run for unauthenticated requests")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rec.Code)
			}

			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if body["kind"] != "unauthenticated" {
				t.Errorf("kind = %q, want unauthenticated", body["kind"])
			}
		})
	}
}

// recordingHandler captures slog records for assertions.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }
func (h *recordingHandler) WithAttrs(_ []slog.Attr) slog.Handler         { return h }
func (h *recordingHandler) WithGroup(_ string) slog.Handler              { return h }
func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) hasRecordWithReason(reason string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		found := false
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "reason" && a.Value.String() == reason {
				found = true
				return false
			}
			return true
		})
		if found {
			return true
		}
	}
	return false
}

func TestRequireIdentity_LogsFailure(t *testing.T) {
	verifier := newTestVerifier(t)
	rh := &recordingHandler{}

	handler := RequireIdentity(verifier, slog.New(rh), func(w http.ResponseWriter, r *http.Request, id Identity) {})

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !rh.hasRecordWithReason("missing authorization header") {
		t.Error("expected a log record with the failure reason")
	}
}

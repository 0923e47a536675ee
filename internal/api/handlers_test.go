package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/gitsandbox/internal/command"
	"github.com/ChamsBouzaiene/gitsandbox/internal/sandbox"
	"github.com/ChamsBouzaiene/gitsandbox/internal/store"
	"github.com/ChamsBouzaiene/gitsandbox/internal/workspace"
)

var testOrigins = []string{"http://localhost:3000", "https://git.cicr.in"}

type fakeHistory struct {
	entries []store.Entry
	limit   int
	err     error
}

func (f *fakeHistory) RecentCommands(ctx context.Context, limit int) ([]store.Entry, error) {
	f.limit = limit
	return f.entries, f.err
}

type failingSandbox struct{}

func (failingSandbox) Initialize(ctx context.Context) (string, error) {
	return "", workspace.ErrIO
}
func (failingSandbox) Teardown(ctx context.Context) error { return errors.New("boom") }
func (failingSandbox) CurrentPath() (string, bool)        { return "", false }

type stubRunner struct{}

func (stubRunner) RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (sandbox.Result, error) {
	return sandbox.Result{Stdout: name + " ran\n"}, nil
}

type stubGit struct{}

func (stubGit) Run(ctx context.Context, dir string, args []string) (string, error) {
	return "git " + strings.Join(args, " "), nil
}

type server struct {
	handler http.Handler
	manager *workspace.Manager
}

func newServer(t *testing.T, history History) *server {
	t.Helper()
	manager := workspace.NewManager(workspace.Options{BaseDir: t.TempDir(), Prefix: "git-sandbox-"})
	t.Cleanup(func() { manager.Close(context.Background()) })

	mediator := command.NewMediator(command.Options{
		Workspace: manager,
		Git:       stubGit{},
		Runner:    stubRunner{},
		Policy:    command.NewPolicy(command.PolicyOptions{Containment: true}),
	})
	h := NewHandlers(Options{
		Sandbox:    manager,
		Executor:   mediator,
		History:    history,
		GitVersion: "git version 2.43.0",
	})
	return &server{handler: NewRouter(h, testOrigins), manager: manager}
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestSandboxLifecycle(t *testing.T) {
	s := newServer(t, nil)

	rec := do(t, s.handler, http.MethodPost, "/init-sandbox", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("init: expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	dir, _ := body["sandboxDir"].(string)
	if body["success"] != true || dir == "" {
		t.Fatalf("init: unexpected body %v", body)
	}

	// Idempotent while alive.
	again := decode(t, do(t, s.handler, http.MethodPost, "/init-sandbox", "", nil))
	if again["sandboxDir"] != dir {
		t.Errorf("Expected same sandbox %s, got %v", dir, again["sandboxDir"])
	}

	rec = do(t, s.handler, http.MethodPost, "/execute-command", `{"command":"pwd"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pwd: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if out := decode(t, rec); out["output"] != dir || out["success"] != true {
		t.Errorf("pwd: unexpected body %v", out)
	}

	rec = do(t, s.handler, http.MethodPost, "/cleanup-sandbox", "", nil)
	if rec.Code != http.StatusOK || decode(t, rec)["success"] != true {
		t.Fatalf("cleanup: unexpected response %d %s", rec.Code, rec.Body)
	}

	rec = do(t, s.handler, http.MethodPost, "/execute-command", `{"command":"ls"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("after cleanup: expected 400, got %d", rec.Code)
	}
	if decode(t, rec)["error"] != "Sandbox directory is not initialized." {
		t.Errorf("after cleanup: unexpected body %s", rec.Body)
	}

	// Cleanup without a sandbox still succeeds.
	if rec := do(t, s.handler, http.MethodPost, "/cleanup-sandbox", "", nil); rec.Code != http.StatusOK {
		t.Errorf("second cleanup: expected 200, got %d", rec.Code)
	}
}

func TestExecuteCommandStatuses(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
		wantOutput string
	}{
		{"allowed", `{"command":"ls -la"}`, http.StatusOK, "", "ls ran"},
		{"git", `{"command":"git status"}`, http.StatusOK, "", "git status"},
		{"missing command", `{}`, http.StatusBadRequest, "Command is missing.", ""},
		{"empty body", ``, http.StatusBadRequest, "Command is missing.", ""},
		{"blank command", `{"command":"   "}`, http.StatusBadRequest, "Command is missing.", ""},
		{"not allowed", `{"command":"rm -rf /"}`, http.StatusBadRequest, "Command 'rm' is not allowed.", ""},
		{"escaping path", `{"command":"ls /etc"}`, http.StatusBadRequest, "", ""},
		{"wrong type", `{"command":42}`, http.StatusBadRequest, "", ""},
		{"bad json", `{"command":`, http.StatusBadRequest, errInvalidJSON.Error(), ""},
	}

	s := newServer(t, nil)
	if _, err := s.manager.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s.handler, http.MethodPost, "/execute-command", tt.body, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected JSON content type, got %q", ct)
			}
			body := decode(t, rec)
			if tt.wantStatus == http.StatusOK {
				if body["success"] != true || body["output"] != tt.wantOutput {
					t.Errorf("Unexpected body %v", body)
				}
				return
			}
			msg, _ := body["error"].(string)
			if msg == "" {
				t.Errorf("Expected an error message, got %v", body)
			}
			if tt.wantError != "" && msg != tt.wantError {
				t.Errorf("Expected error %q, got %q", tt.wantError, msg)
			}
		})
	}
}

func TestInitFailure(t *testing.T) {
	h := NewHandlers(Options{Sandbox: failingSandbox{}, Executor: command.NewMediator(command.Options{Workspace: workspace.NewManager(workspace.Options{})})})
	router := NewRouter(h, testOrigins)

	rec := do(t, router, http.MethodPost, "/init-sandbox", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	if decode(t, rec)["error"] != "Failed to initialize sandbox" {
		t.Errorf("Unexpected body %s", rec.Body)
	}

	// Teardown errors never surface.
	if rec := do(t, router, http.MethodPost, "/cleanup-sandbox", "", nil); rec.Code != http.StatusOK {
		t.Errorf("cleanup: expected 200, got %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	s := newServer(t, nil)

	t.Run("disallowed origin", func(t *testing.T) {
		rec := do(t, s.handler, http.MethodPost, "/init-sandbox", "", map[string]string{"Origin": "https://evil.example"})
		if rec.Code != http.StatusForbidden {
			t.Fatalf("Expected 403, got %d", rec.Code)
		}
		if decode(t, rec)["error"] != "Not allowed by CORS" {
			t.Errorf("Unexpected body %s", rec.Body)
		}
		if _, ok := s.manager.CurrentPath(); ok {
			t.Error("Expected the handler not to run")
		}
	})

	t.Run("allowed origin", func(t *testing.T) {
		rec := do(t, s.handler, http.MethodGet, "/health", "", map[string]string{"Origin": "https://git.cicr.in"})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://git.cicr.in" {
			t.Errorf("Expected origin echoed, got %q", got)
		}
	})

	t.Run("no origin", func(t *testing.T) {
		rec := do(t, s.handler, http.MethodGet, "/health", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Expected no CORS header, got %q", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		rec := do(t, s.handler, http.MethodOptions, "/execute-command", "", map[string]string{
			"Origin":                        "http://localhost:3000",
			"Access-Control-Request-Method": "POST",
		})
		if rec.Code != http.StatusNoContent {
			t.Fatalf("Expected 204, got %d", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET,POST,PUT,DELETE" {
			t.Errorf("Unexpected methods %q", got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type" {
			t.Errorf("Unexpected headers %q", got)
		}
	})
}

func TestHealth(t *testing.T) {
	s := newServer(t, nil)

	body := decode(t, do(t, s.handler, http.MethodGet, "/health", "", nil))
	if body["status"] != "ok" || body["git"] != "git version 2.43.0" || body["sandbox"] != false {
		t.Errorf("Unexpected body %v", body)
	}
	commands, _ := body["commands"].([]any)
	want := []string{"cd", "git", "ls", "mkdir", "pwd", "touch"}
	if len(commands) != len(want) {
		t.Fatalf("Expected commands %v, got %v", want, body["commands"])
	}
	for i, name := range want {
		if commands[i] != name {
			t.Errorf("commands[%d] = %v, want %s", i, commands[i], name)
		}
	}

	s.manager.Initialize(context.Background())
	body = decode(t, do(t, s.handler, http.MethodGet, "/health", "", nil))
	if body["sandbox"] != true {
		t.Errorf("Expected live sandbox, got %v", body)
	}
}

func TestHistory(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := newServer(t, nil)
		if rec := do(t, s.handler, http.MethodGet, "/history", "", nil); rec.Code != http.StatusInternalServerError {
			t.Errorf("Expected 500, got %d", rec.Code)
		}
	})

	t.Run("entries", func(t *testing.T) {
		hist := &fakeHistory{entries: []store.Entry{{ID: "1", Command: "ls", Base: "ls", OK: true}}}
		s := newServer(t, hist)

		rec := do(t, s.handler, http.MethodGet, "/history?limit=5", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		var resp HistoryResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if !resp.Success || len(resp.Entries) != 1 || resp.Entries[0].Command != "ls" {
			t.Errorf("Unexpected response %+v", resp)
		}
		if hist.limit != 5 {
			t.Errorf("Expected limit 5, got %d", hist.limit)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		s := newServer(t, &fakeHistory{})
		if rec := do(t, s.handler, http.MethodGet, "/history?limit=abc", "", nil); rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("empty is an array", func(t *testing.T) {
		s := newServer(t, &fakeHistory{})
		rec := do(t, s.handler, http.MethodGet, "/history", "", nil)
		if !strings.Contains(rec.Body.String(), `"entries":[]`) {
			t.Errorf("Expected empty array, got %s", rec.Body)
		}
	})
}

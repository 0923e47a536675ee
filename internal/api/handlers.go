// Package api serves the sandbox over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ChamsBouzaiene/gitsandbox/internal/command"
	"github.com/ChamsBouzaiene/gitsandbox/internal/store"
)

const maxBodyBytes = 64 << 10

// Sandbox is the lifecycle surface the handlers need.
type Sandbox interface {
	Initialize(ctx context.Context) (string, error)
	Teardown(ctx context.Context) error
	CurrentPath() (string, bool)
}

// Executor runs one command line.
type Executor interface {
	Execute(ctx context.Context, raw string) command.Result
}

// History lists executed commands.
type History interface {
	RecentCommands(ctx context.Context, limit int) ([]store.Entry, error)
}

// Options configures Handlers.
type Options struct {
	Sandbox    Sandbox
	Executor   Executor
	History    History // optional
	GitVersion string
	Logger     *slog.Logger
}

// Handlers contains HTTP handlers for the sandbox API.
type Handlers struct {
	sandbox    Sandbox
	executor   Executor
	history    History
	gitVersion string
	logger     *slog.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(opts Options) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		sandbox:    opts.Sandbox,
		executor:   opts.Executor,
		history:    opts.History,
		gitVersion: opts.GitVersion,
		logger:     logger,
	}
}

// InitSandbox handles POST /init-sandbox.
func (h *Handlers) InitSandbox(w http.ResponseWriter, r *http.Request) {
	dir, err := h.sandbox.Initialize(r.Context())
	if err != nil {
		h.logger.Error("sandbox init failed", "error", err, "request_id", requestID(r))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to initialize sandbox"})
		return
	}
	writeJSON(w, http.StatusOK, InitResponse{Success: true, SandboxDir: dir})
}

// ExecuteCommand handles POST /execute-command.
func (h *Handlers) ExecuteCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Request body too large."})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Failed to read request body."})
		return
	}

	body, err = validateBody(executeSchema, body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	var req ExecuteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: errInvalidJSON.Error()})
		return
	}

	h.logger.Debug("execute requested", "command", req.Command, "request_id", requestID(r))
	res := h.executor.Execute(r.Context(), req.Command)
	if !res.Success() {
		writeJSON(w, res.Err.Kind.HTTPStatus(), ErrorResponse{Error: res.Err.Message, Kind: string(res.Err.Kind)})
		return
	}
	writeJSON(w, http.StatusOK, ExecuteResponse{Success: true, Output: res.Output})
}

// CleanupSandbox handles POST /cleanup-sandbox. It always succeeds.
func (h *Handlers) CleanupSandbox(w http.ResponseWriter, r *http.Request) {
	if err := h.sandbox.Teardown(r.Context()); err != nil {
		h.logger.Warn("sandbox cleanup failed", "error", err, "request_id", requestID(r))
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	_, alive := h.sandbox.CurrentPath()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Git:      h.gitVersion,
		Sandbox:  alive,
		Commands: command.AllowList(),
	})
}

// History handles GET /history?limit=N.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Command history is not enabled."})
		return
	}

	limit := store.DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer."})
			return
		}
		limit = n
	}

	entries, err := h.history.RecentCommands(r.Context(), limit)
	if err != nil {
		h.logger.Error("history query failed", "error", err, "request_id", requestID(r))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to load command history."})
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Success: true, Entries: entries})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

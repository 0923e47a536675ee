package api

import "github.com/ChamsBouzaiene/gitsandbox/internal/store"

// ExecuteRequest is the body of POST /execute-command.
type ExecuteRequest struct {
	Command string `json:"command"`
}

// InitResponse is returned by POST /init-sandbox.
type InitResponse struct {
	Success    bool   `json:"success"`
	SandboxDir string `json:"sandboxDir"`
}

// ExecuteResponse is returned by a successful POST /execute-command.
type ExecuteResponse struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
}

// SuccessResponse is returned by POST /cleanup-sandbox.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string   `json:"status"`
	Git      string   `json:"git,omitempty"`
	Sandbox  bool     `json:"sandbox"`
	Commands []string `json:"commands"`
}

// HistoryResponse is returned by GET /history.
type HistoryResponse struct {
	Success bool          `json:"success"`
	Entries []store.Entry `json:"entries"`
}

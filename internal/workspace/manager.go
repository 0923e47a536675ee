// Package workspace owns the lifecycle of the process-wide sandbox directory.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Registry records sandbox directories so a later process can find the ones
// this process left behind.
type Registry interface {
	RecordCreated(ctx context.Context, path string) error
	RecordRemoved(ctx context.Context, path string) error
}

// Options configures a Manager.
type Options struct {
	BaseDir  string // defaults to os.TempDir()
	Prefix   string
	Watch    bool     // reset when the root disappears out of band
	Registry Registry // optional
	Logger   *slog.Logger
}

// Manager holds at most one live sandbox. Initialize and Teardown are
// exclusive; Use callers share the sandbox and may run in parallel.
type Manager struct {
	opts Options
	log  *slog.Logger

	mu      sync.RWMutex
	root    string // empty when no sandbox is alive
	watcher *vanishWatcher
}

// NewManager creates a manager with no live sandbox.
func NewManager(opts Options) *Manager {
	if opts.BaseDir == "" {
		opts.BaseDir = os.TempDir()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{opts: opts, log: log.With("component", "workspace")}
}

// Initialize creates the sandbox directory, or returns the live one.
func (m *Manager) Initialize(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.root != "" {
		return m.root, nil
	}

	dir, err := os.MkdirTemp(m.opts.BaseDir, m.opts.Prefix+"*")
	if err != nil {
		return "", fmt.Errorf("%w: create sandbox directory: %w", ErrIO, err)
	}
	// Containment checks compare against the resolved path (macOS /var -> /private/var).
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}

	m.root = dir
	if m.opts.Registry != nil {
		if err := m.opts.Registry.RecordCreated(ctx, dir); err != nil {
			m.log.Warn("failed to register sandbox", "sandbox", dir, "error", err)
		}
	}
	if m.opts.Watch {
		w, err := watchRoot(dir, m.handleVanish, m.log)
		if err != nil {
			m.log.Warn("sandbox watcher unavailable", "sandbox", dir, "error", err)
		} else {
			m.watcher = w
		}
	}

	m.log.Info("sandbox initialized", "sandbox", dir)
	return dir, nil
}

// CurrentPath returns the live sandbox root, if any.
func (m *Manager) CurrentPath() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.root, m.root != ""
}

// Use runs fn with the live sandbox root. The sandbox cannot be torn down
// until fn returns.
func (m *Manager) Use(ctx context.Context, fn func(root string) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.root == "" {
		return ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(m.root); errors.Is(err, fs.ErrNotExist) {
		// Removed behind our back and the watcher has not caught up (or is off).
		go m.handleVanish(m.root)
		return ErrNotInitialized
	}
	return fn(m.root)
}

// Teardown removes the sandbox directory. It is a no-op when nothing is alive.
// Removal errors are logged, not returned.
func (m *Manager) Teardown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.root == "" {
		return nil
	}
	root := m.root
	m.stopWatcherLocked()

	if err := os.RemoveAll(root); err != nil {
		m.log.Error("failed to remove sandbox", "sandbox", root, "error", err)
	}
	m.forgetLocked(ctx, root)
	m.log.Info("sandbox removed", "sandbox", root)
	return nil
}

// Close tears down the live sandbox on process exit.
func (m *Manager) Close(ctx context.Context) error {
	return m.Teardown(ctx)
}

// handleVanish resets state when root was removed or renamed out of band.
func (m *Manager) handleVanish(root string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.root != root {
		return
	}
	m.stopWatcherLocked()
	m.forgetLocked(context.Background(), root)
	m.log.Warn("sandbox vanished, state reset", "sandbox", root)
}

func (m *Manager) forgetLocked(ctx context.Context, root string) {
	if m.opts.Registry != nil {
		if err := m.opts.Registry.RecordRemoved(context.WithoutCancel(ctx), root); err != nil {
			m.log.Warn("failed to unregister sandbox", "sandbox", root, "error", err)
		}
	}
	m.root = ""
}

func (m *Manager) stopWatcherLocked() {
	if m.watcher == nil {
		return
	}
	if err := m.watcher.Stop(); err != nil {
		m.log.Debug("failed to close watcher", "error", err)
	}
	m.watcher = nil
}

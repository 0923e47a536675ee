package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Ledger is the registry view the reaper needs.
type Ledger interface {
	Registry
	OrphanedSandboxes(ctx context.Context) ([]string, error)
}

// LiveSandbox reports the sandbox the reaper must never touch.
type LiveSandbox interface {
	CurrentPath() (string, bool)
}

// ReaperOptions configures a Reaper.
type ReaperOptions struct {
	BaseDir  string
	Prefix   string
	MaxAge   time.Duration // 0 disables the age sweep
	Interval time.Duration
	Ledger   Ledger      // optional
	Live     LiveSandbox // optional
	Logger   *slog.Logger
}

// Reaper removes sandbox directories left behind by processes that died
// without tearing down.
type Reaper struct {
	opts ReaperOptions
	log  *slog.Logger
}

// NewReaper creates a reaper.
func NewReaper(opts ReaperOptions) *Reaper {
	if opts.BaseDir == "" {
		opts.BaseDir = os.TempDir()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{opts: opts, log: log.With("component", "reaper")}
}

// Run sweeps once immediately and then every Interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		if n, err := r.Sweep(ctx); err != nil {
			r.log.Warn("sweep failed", "error", err)
		} else if n > 0 {
			r.log.Info("stale sandboxes removed", "count", n)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep removes registry orphans and prefix-matching directories older than
// MaxAge. It returns the number of directories removed. The live sandbox's
// mtime is refreshed first so that age sweeps run by other servers sharing
// BaseDir keep skipping it while it idles.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	live := ""
	if r.opts.Live != nil {
		live, _ = r.opts.Live.CurrentPath()
	}
	if live != "" {
		now := time.Now()
		if err := os.Chtimes(live, now, now); err != nil {
			r.log.Debug("failed to refresh live sandbox", "sandbox", live, "error", err)
		}
	}

	removed := 0
	seen := make(map[string]bool)

	if r.opts.Ledger != nil {
		orphans, err := r.opts.Ledger.OrphanedSandboxes(ctx)
		if err != nil {
			return 0, fmt.Errorf("list orphaned sandboxes: %w", err)
		}
		for _, path := range orphans {
			seen[path] = true
			if path == live {
				continue
			}
			// Only directories we would have created ourselves.
			if !strings.HasPrefix(filepath.Base(path), r.opts.Prefix) {
				r.log.Warn("skipping registry entry outside sandbox naming", "sandbox", path)
				continue
			}
			if r.remove(ctx, path) {
				removed++
			}
		}
	}

	if r.opts.MaxAge <= 0 {
		return removed, nil
	}

	entries, err := os.ReadDir(r.opts.BaseDir)
	if err != nil {
		return removed, fmt.Errorf("read %s: %w", r.opts.BaseDir, err)
	}
	cutoff := time.Now().Add(-r.opts.MaxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), r.opts.Prefix) {
			continue
		}
		path := filepath.Join(r.opts.BaseDir, entry.Name())
		if seen[path] || path == live || sameDir(path, live) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if r.remove(ctx, path) {
			removed++
		}
	}
	return removed, nil
}

func (r *Reaper) remove(ctx context.Context, path string) bool {
	if err := os.RemoveAll(path); err != nil {
		r.log.Warn("failed to remove stale sandbox", "sandbox", path, "error", err)
		return false
	}
	if r.opts.Ledger != nil {
		if err := r.opts.Ledger.RecordRemoved(ctx, path); err != nil {
			r.log.Warn("failed to unregister sandbox", "sandbox", path, "error", err)
		}
	}
	r.log.Info("stale sandbox removed", "sandbox", path)
	return true
}

// sameDir compares after symlink resolution; the live root is stored resolved.
func sameDir(a, b string) bool {
	if b == "" {
		return false
	}
	ra, err := filepath.EvalSymlinks(a)
	if err != nil {
		return false
	}
	return ra == b
}

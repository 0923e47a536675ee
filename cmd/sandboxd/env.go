package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ChamsBouzaiene/gitsandbox/internal/config"
	"github.com/ChamsBouzaiene/gitsandbox/internal/store"
	"github.com/ChamsBouzaiene/gitsandbox/internal/workspace"
	"github.com/spf13/cobra"
)

type runtimeEnv struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store // nil when state is disabled or unavailable
	manager *workspace.Manager
}

func (r *runtimeEnv) Close() {
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Warn("failed to close state database", "error", err)
		}
	}
}

// registry returns the store as a workspace.Ledger, or nil without one.
func (r *runtimeEnv) registry() workspace.Ledger {
	if r.store == nil {
		return nil
	}
	return r.store
}

func prepareRuntimeEnv(ctx context.Context, cmd *cobra.Command) (*runtimeEnv, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	env := &runtimeEnv{cfg: cfg, logger: logger}

	if cfg.State.Enabled {
		st, err := store.Open(ctx, cfg.State.Path)
		if err != nil {
			// The sandbox works without history; the reaper loses its registry.
			logger.Warn("state database unavailable, continuing without it", "path", cfg.State.Path, "error", err)
		} else {
			env.store = st
			logger.Debug("state database opened", "path", cfg.State.Path, "instance", st.Instance())
		}
	}

	env.manager = workspace.NewManager(workspace.Options{
		BaseDir:  cfg.SandboxBaseDir(),
		Prefix:   cfg.Sandbox.Prefix,
		Watch:    cfg.Sandbox.Watch,
		Registry: env.registry(),
		Logger:   logger,
	})
	return env, nil
}

// applyFlags lets command-line flags override file and environment values.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetString("port")
	}
	if flags.Changed("mode") {
		mode, _ := flags.GetString("mode")
		cfg.Runner.Mode = strings.ToLower(mode)
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}
	if f := flags.Lookup("shell"); f != nil && f.Changed {
		cfg.Runner.Shell, _ = flags.GetBool("shell")
	}
	if f := flags.Lookup("timeout"); f != nil && f.Changed {
		cfg.Runner.Timeout, _ = flags.GetDuration("timeout")
	}
	if f := flags.Lookup("max-age"); f != nil && f.Changed {
		cfg.Reaper.MaxAge, _ = flags.GetDuration("max-age")
	}
	return cfg.Validate()
}

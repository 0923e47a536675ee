package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ChamsBouzaiene/gitsandbox/internal/api"
	"github.com/ChamsBouzaiene/gitsandbox/internal/command"
	"github.com/ChamsBouzaiene/gitsandbox/internal/config"
	"github.com/ChamsBouzaiene/gitsandbox/internal/sandbox"
	"github.com/ChamsBouzaiene/gitsandbox/internal/vcs"
	"github.com/ChamsBouzaiene/gitsandbox/internal/workspace"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the sandbox API (default)",
	Long: `serve runs the HTTP API. With the reaper enabled it also removes stale
sandboxes under the base directory and refreshes its own sandbox on every
tick so that other servers sharing the directory leave it alone. Servers
sharing a base directory without the reaper should use distinct prefixes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().Bool("shell", false, "Interpret command lines with the host shell")
		c.Flags().Duration("timeout", config.DefaultCmdTimeout, "Per-command timeout (0 disables)")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := prepareRuntimeEnv(ctx, cmd)
	if err != nil {
		return err
	}
	defer env.Close()
	cfg, logger := env.cfg, env.logger

	gitClient := vcs.NewCLIClient()
	gitVersion := probeGit(ctx, gitClient, logger)

	runner, err := sandbox.NewRunner(ctx, sandbox.Config{
		Mode:        sandbox.Mode(cfg.Runner.Mode),
		DockerImage: cfg.Runner.DockerImage,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	if c, ok := runner.(io.Closer); ok {
		defer c.Close()
	}

	var (
		recorder command.Recorder
		history  api.History
	)
	if env.store != nil {
		recorder, history = env.store, env.store
	}

	mediator := command.NewMediator(command.Options{
		Workspace: env.manager,
		Git:       vcs.NewAdapter(gitClient, cfg.Runner.Timeout),
		Runner:    runner,
		Policy: command.NewPolicy(command.PolicyOptions{
			Containment:  cfg.Policy.Containment,
			DenyPatterns: cfg.Policy.DenyPatterns,
			Shell:        cfg.Runner.Shell,
		}),
		Shell:    cfg.Runner.Shell,
		Timeout:  cfg.Runner.Timeout,
		Recorder: recorder,
		Logger:   logger,
	})

	handlers := api.NewHandlers(api.Options{
		Sandbox:    env.manager,
		Executor:   mediator,
		History:    history,
		GitVersion: gitVersion,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewRouter(handlers, cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server running", "addr", srv.Addr, "mode", cfg.Runner.Mode, "shell", cfg.Runner.Shell)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Reaper.Enabled {
		reaper := workspace.NewReaper(workspace.ReaperOptions{
			BaseDir:  cfg.SandboxBaseDir(),
			Prefix:   cfg.Sandbox.Prefix,
			MaxAge:   cfg.Reaper.MaxAge,
			Interval: cfg.ReaperInterval(),
			Ledger:   env.registry(),
			Live:     env.manager,
			Logger:   logger,
		})
		g.Go(func() error { return reaper.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		// In-flight commands have finished (or been cut off); the sandbox goes with the process.
		if cerr := env.manager.Close(shutdownCtx); cerr != nil {
			logger.Warn("sandbox teardown failed", "error", cerr)
		}
		return err
	})

	return g.Wait()
}

// probeGit logs the git version. A missing git is not fatal; git commands
// will fail individually.
func probeGit(ctx context.Context, client vcs.Client, logger *slog.Logger) string {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	version, err := client.Version(probeCtx)
	if err != nil {
		logger.Error("git not found", "error", err)
		return ""
	}
	logger.Info("git detected", "version", version)
	return version
}

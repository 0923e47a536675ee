// Package command validates command lines against the allow-list and
// dispatches them to git or the process runner inside the live sandbox.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/gitsandbox/internal/sandbox"
	"github.com/ChamsBouzaiene/gitsandbox/internal/store"
	"github.com/ChamsBouzaiene/gitsandbox/internal/vcs"
	"github.com/ChamsBouzaiene/gitsandbox/internal/workspace"
	"github.com/google/uuid"
)

// Workspace gives access to the live sandbox root.
type Workspace interface {
	Use(ctx context.Context, fn func(root string) error) error
}

// GitRunner runs git against a sandbox.
type GitRunner interface {
	Run(ctx context.Context, dir string, args []string) (string, error)
}

// Recorder stores executed commands.
type Recorder interface {
	RecordCommand(ctx context.Context, e store.Entry) error
}

// Options configures a Mediator.
type Options struct {
	Workspace Workspace
	Git       GitRunner
	Runner    sandbox.Runner
	Policy    *Policy
	// Shell passes the whole line to the platform shell instead of
	// spawning the base command with split arguments.
	Shell    bool
	Timeout  time.Duration // 0 disables the per-command deadline
	Recorder Recorder      // optional
	Logger   *slog.Logger
}

// Mediator executes raw command lines.
type Mediator struct {
	ws       Workspace
	git      GitRunner
	runner   sandbox.Runner
	policy   *Policy
	shell    bool
	timeout  time.Duration
	recorder Recorder
	log      *slog.Logger
}

// NewMediator creates a mediator. A nil Policy checks nothing beyond the allow-list.
func NewMediator(opts Options) *Mediator {
	policy := opts.Policy
	if policy == nil {
		policy = NewPolicy(PolicyOptions{Shell: opts.Shell})
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Mediator{
		ws:       opts.Workspace,
		git:      opts.Git,
		runner:   opts.Runner,
		policy:   policy,
		shell:    opts.Shell,
		timeout:  opts.Timeout,
		recorder: opts.Recorder,
		log:      log.With("component", "command"),
	}
}

// Execute runs raw in the live sandbox. The sandbox cannot be torn down
// while the command runs.
func (m *Mediator) Execute(ctx context.Context, raw string) Result {
	start := time.Now()

	var (
		res  Result
		root string
		base string
	)
	err := m.ws.Use(ctx, func(r string) error {
		root = r
		res, base = m.execute(ctx, r, raw)
		return nil
	})
	switch {
	case err == nil:
	case workspace.IsNotInitialized(err):
		res = failure(newError(KindNotInitialized, "Sandbox directory is not initialized.", err))
	case errors.Is(err, context.DeadlineExceeded):
		res = failure(m.timeoutError(err))
	default:
		res = failure(newError(KindIOError, err.Error(), err))
	}

	m.record(ctx, root, raw, base, res, time.Since(start))
	return res
}

func (m *Mediator) execute(ctx context.Context, root, raw string) (Result, string) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return failure(newError(KindEmptyCommand, "Command is missing.", nil)), ""
	}

	base := strings.Fields(line)[0]
	if !Allowed(base) {
		return failure(newError(KindCommandNotAllowed, fmt.Sprintf("Command '%s' is not allowed.", base), nil)), base
	}

	rest := strings.TrimSpace(line[len(base):])
	args, err := SplitArgs(rest)
	if err != nil {
		return failure(newError(KindArgumentRejected, fmt.Sprintf("Arguments rejected: %v.", err), err)), base
	}
	if perr := m.policy.Check(root, base, args, rest); perr != nil {
		return failure(perr), base
	}

	switch base {
	case "git":
		return m.runGit(ctx, root, args), base
	case "pwd":
		return success(root), base
	case "cd":
		if !m.shell {
			return changeDir(root, args), base
		}
	}
	return m.spawn(ctx, root, base, args, line), base
}

// changeDir validates the target. A child cd cannot change the server's
// working directory, so there is nothing else to do.
func changeDir(root string, args []string) Result {
	switch len(args) {
	case 0:
		return success("")
	case 1:
		target := args[0]
		if !filepath.IsAbs(target) {
			target = filepath.Join(root, target)
		}
		if !isDir(target) {
			return failure(newError(KindProcessNonZeroExit, fmt.Sprintf("cd: %s: No such file or directory", args[0]), nil))
		}
		return success("")
	default:
		return failure(newError(KindProcessNonZeroExit, "cd: too many arguments", nil))
	}
}

func (m *Mediator) runGit(ctx context.Context, root string, args []string) Result {
	out, err := m.git.Run(ctx, root, args)
	if err == nil {
		return success(out)
	}

	var (
		cloneErr *vcs.CloneError
		cmdErr   *vcs.CommandError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return failure(m.timeoutError(err))
	case errors.As(err, &cloneErr):
		return failure(newError(KindCloneError, "Command failed: "+cloneErr.Error(), err))
	case errors.As(err, &cmdErr):
		return failure(newError(KindProcessNonZeroExit, "Command failed: "+cmdErr.Error(), err))
	default:
		return failure(newError(KindProcessSpawnError, "Command failed: "+err.Error(), err))
	}
}

func (m *Mediator) spawn(ctx context.Context, root, base string, args []string, line string) Result {
	name := base
	if m.shell {
		name, args = sandbox.ShellCommand(line)
	}

	res, err := m.runner.RunCmd(ctx, root, name, args, m.timeout)

	var exitErr *exec.ExitError
	switch {
	case res.TimedOut || errors.Is(err, context.DeadlineExceeded):
		return failure(m.timeoutError(err))
	case err != nil && !errors.As(err, &exitErr) && res.Code == 0:
		return failure(newError(KindProcessSpawnError, err.Error(), err))
	case err != nil || res.Code != 0:
		msg := res.Stderr
		if strings.TrimSpace(msg) == "" {
			if err != nil {
				msg = err.Error()
			} else {
				msg = fmt.Sprintf("exit status %d", res.Code)
			}
		}
		return failure(newError(KindProcessNonZeroExit, msg, err))
	}
	return success(strings.TrimSpace(res.Stdout))
}

func (m *Mediator) timeoutError(err error) *Error {
	if m.timeout > 0 {
		return newError(KindTimeout, fmt.Sprintf("command timed out after %s", m.timeout), err)
	}
	return newError(KindTimeout, "command timed out", err)
}

func (m *Mediator) record(ctx context.Context, root, raw, base string, res Result, elapsed time.Duration) {
	kind := ""
	if res.Err != nil {
		kind = string(res.Err.Kind)
	}
	m.log.Info("command executed",
		"sandbox", root,
		"command", base,
		"ok", res.Success(),
		"kind", kind,
		"duration", elapsed,
	)

	if m.recorder == nil {
		return
	}
	entry := store.Entry{
		ID:       uuid.NewString(),
		Sandbox:  root,
		Command:  strings.TrimSpace(raw),
		Base:     base,
		Kind:     kind,
		OK:       res.Success(),
		Duration: elapsed,
	}
	if err := m.recorder.RecordCommand(context.WithoutCancel(ctx), entry); err != nil {
		m.log.Warn("failed to record command", "error", err)
	}
}

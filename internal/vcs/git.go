// Package vcs runs git inside the sandbox.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Client is the git surface the adapter needs.
type Client interface {
	// Clone clones url into dir itself. dir must be empty.
	Clone(ctx context.Context, url, dir string) error
	// Raw runs git with args in dir and returns stdout unmodified.
	Raw(ctx context.Context, dir string, args []string) (string, error)
	// Version returns the output of git --version.
	Version(ctx context.Context) (string, error)
}

// CloneError carries git's own explanation of a failed clone.
type CloneError struct {
	Detail string
	Err    error
}

func (e *CloneError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Err.Error()
}

func (e *CloneError) Unwrap() error { return e.Err }

// CommandError is a git invocation that ran and exited non-zero.
type CommandError struct {
	Args   []string
	Stderr string
	Code   int
	Err    error
}

func (e *CommandError) Error() string {
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		return msg
	}
	return fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// CLIClient shells out to the git binary.
type CLIClient struct {
	// Binary defaults to "git".
	Binary string
}

// NewCLIClient returns a client for the git on PATH.
func NewCLIClient() *CLIClient {
	return &CLIClient{Binary: "git"}
}

func (c *CLIClient) command(ctx context.Context, dir string, args ...string) *exec.Cmd {
	bin := c.Binary
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	// Never block on a credential prompt; there is no terminal.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GCM_INTERACTIVE=never")
	// Helpers like git-remote-https may hold the pipes after git is killed.
	cmd.WaitDelay = 2 * time.Second
	return cmd
}

func (c *CLIClient) run(ctx context.Context, dir string, args []string) (string, error) {
	cmd := c.command(ctx, dir, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return stdout.String(), fmt.Errorf("git %s: %w", firstArg(args), ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), &CommandError{Args: args, Stderr: stderr.String(), Code: exitErr.ExitCode(), Err: err}
	}
	return "", fmt.Errorf("failed to run git: %w", err)
}

// Clone runs `git clone -- url .` in dir.
func (c *CLIClient) Clone(ctx context.Context, url, dir string) error {
	_, err := c.run(ctx, dir, []string{"clone", "--", url, "."})
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return &CloneError{Detail: strings.TrimSpace(cmdErr.Stderr), Err: err}
	}
	return err
}

// Raw runs git with args in dir.
func (c *CLIClient) Raw(ctx context.Context, dir string, args []string) (string, error) {
	return c.run(ctx, dir, args)
}

// Version returns the trimmed output of git --version.
func (c *CLIClient) Version(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "", []string{"--version"})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

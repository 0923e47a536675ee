// Package sandbox spawns allow-listed commands inside a sandbox directory,
// either directly on the host or in a throwaway Docker container.
package sandbox

import (
	"context"
	"runtime"
	"time"
)

// Result captures output of a command.
type Result struct {
	Stdout   string
	Stderr   string
	Code     int
	TimedOut bool
}

// Runner runs one command with dir as its working directory.
type Runner interface {
	// RunCmd runs name with args in dir. A timeout <= 0 means no deadline
	// beyond ctx. A non-zero exit is reported in Result.Code; the error is
	// non-nil when the process could not be started, was killed, or (host
	// runner) exited non-zero.
	RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error)
}

// ShellCommand returns the executable and arguments that interpret line with
// the platform shell.
func ShellCommand(line string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C", line}
	}
	return "sh", []string{"-c", line}
}

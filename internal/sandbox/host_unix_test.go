//go:build !windows

package sandbox

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestHostRunnerSuccess(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	r := &HostRunner{}

	name, args := ShellCommand("touch a.txt && ls")
	res, err := r.RunCmd(context.Background(), dir, name, args, time.Minute)
	if err != nil {
		t.Fatalf("RunCmd failed: %v", err)
	}
	if res.Code != 0 || res.TimedOut {
		t.Errorf("Unexpected result: %+v", res)
	}
	if strings.TrimSpace(res.Stdout) != "a.txt" {
		t.Errorf("Expected a.txt in %q", res.Stdout)
	}
}

func TestHostRunnerNonZeroExit(t *testing.T) {
	requireShell(t)
	r := &HostRunner{}

	res, err := r.RunCmd(context.Background(), t.TempDir(), "sh", []string{"-c", "echo boom >&2; exit 3"}, 0)
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Expected *exec.ExitError, got %v", err)
	}
	if res.Code != 3 {
		t.Errorf("Expected code 3, got %d", res.Code)
	}
	if strings.TrimSpace(res.Stderr) != "boom" {
		t.Errorf("Expected stderr boom, got %q", res.Stderr)
	}
	if res.TimedOut {
		t.Error("Expected TimedOut=false")
	}
}

func TestHostRunnerTimeoutKillsGroup(t *testing.T) {
	requireShell(t)
	r := &HostRunner{}

	start := time.Now()
	// The sleep runs in a grandchild; killing only sh would leave it holding stdout open.
	res, err := r.RunCmd(context.Background(), t.TempDir(), "sh", []string{"-c", "sleep 10; echo done"}, 100*time.Millisecond)
	if err == nil {
		t.Fatal("Expected error from killed process")
	}
	if !res.TimedOut {
		t.Errorf("Expected TimedOut=true, got %+v", res)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Expected kill well before the sleep finished, took %s", elapsed)
	}
}

func TestHostRunnerParentCancelIsNotTimeout(t *testing.T) {
	requireShell(t)
	r := &HostRunner{}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	res, err := r.RunCmd(ctx, t.TempDir(), "sleep", []string{"10"}, time.Minute)
	if err == nil {
		t.Fatal("Expected error from killed process")
	}
	if res.TimedOut {
		t.Error("Expected cancellation not to count as a timeout")
	}
}

func TestHostRunnerSpawnError(t *testing.T) {
	r := &HostRunner{}

	_, err := r.RunCmd(context.Background(), t.TempDir(), "definitely-not-a-real-binary-xyz", nil, time.Second)
	if err == nil {
		t.Fatal("Expected spawn error")
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		t.Errorf("Expected a start error, got exit error %v", err)
	}
}

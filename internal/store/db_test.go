package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOrphanedSandboxes(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "state.db")

	previous, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := previous.RecordCreated(ctx, "/tmp/git-sandbox-old"); err != nil {
		t.Fatalf("RecordCreated failed: %v", err)
	}
	if err := previous.RecordCreated(ctx, "/tmp/git-sandbox-gone"); err != nil {
		t.Fatalf("RecordCreated failed: %v", err)
	}
	if err := previous.RecordRemoved(ctx, "/tmp/git-sandbox-gone"); err != nil {
		t.Fatalf("RecordRemoved failed: %v", err)
	}
	previous.Close()

	current := openTestStore(t, path)
	if current.Instance() == previous.Instance() {
		t.Fatal("expected distinct instance ids")
	}
	if err := current.RecordCreated(ctx, "/tmp/git-sandbox-live"); err != nil {
		t.Fatalf("RecordCreated failed: %v", err)
	}

	orphans, err := current.OrphanedSandboxes(ctx)
	if err != nil {
		t.Fatalf("OrphanedSandboxes failed: %v", err)
	}
	if len(orphans) != 1 || orphans[0] != "/tmp/git-sandbox-old" {
		t.Errorf("Expected only the old sandbox, got %v", orphans)
	}
}

func TestRecordCreatedReclaimsPath(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	previous, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := previous.RecordCreated(ctx, "/tmp/git-sandbox-x"); err != nil {
		t.Fatalf("RecordCreated failed: %v", err)
	}
	previous.Close()

	current := openTestStore(t, path)
	if err := current.RecordCreated(ctx, "/tmp/git-sandbox-x"); err != nil {
		t.Fatalf("RecordCreated failed: %v", err)
	}

	orphans, err := current.OrphanedSandboxes(ctx)
	if err != nil {
		t.Fatalf("OrphanedSandboxes failed: %v", err)
	}
	if len(orphans) != 0 {
		t.Errorf("Expected reclaimed path to belong to this instance, got %v", orphans)
	}
}

func TestRecentCommands(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "state.db"))

	base := time.Now().Add(-time.Minute)
	commands := []Entry{
		{Sandbox: "/tmp/sb", Command: "ls", Base: "ls", OK: true, Duration: 12 * time.Millisecond, CreatedAt: base},
		{Sandbox: "/tmp/sb", Command: "rm -rf /", Base: "rm", Kind: "CommandNotAllowed", CreatedAt: base.Add(time.Second)},
		{Sandbox: "/tmp/sb", Command: "pwd", Base: "pwd", OK: true, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range commands {
		if err := s.RecordCommand(ctx, e); err != nil {
			t.Fatalf("RecordCommand failed: %v", err)
		}
	}

	entries, err := s.RecentCommands(ctx, 2)
	if err != nil {
		t.Fatalf("RecentCommands failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Command != "pwd" || entries[1].Command != "rm -rf /" {
		t.Errorf("Expected newest first, got %q then %q", entries[0].Command, entries[1].Command)
	}
	if entries[1].OK || entries[1].Kind != "CommandNotAllowed" {
		t.Errorf("Expected failed entry with kind, got %+v", entries[1])
	}
	if entries[0].ID == "" {
		t.Error("Expected generated id")
	}

	all, err := s.RecentCommands(ctx, 0)
	if err != nil {
		t.Fatalf("RecentCommands failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(all))
	}
	if all[2].DurationMS != 12 || all[2].Duration != 12*time.Millisecond {
		t.Errorf("Expected 12ms duration, got %+v", all[2])
	}
}

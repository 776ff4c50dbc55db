package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func waitDone(t *testing.T, ctx context.Context) bool {
	t.Helper()
	select {
	case <-ctx.Done():
		return true
	case <-time.After(5 * time.Second):
		return false
	}
}

func TestUntilModifiedWritten(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "train.py", "x = 1\n")

	ctx, cancel, err := untilModified(context.Background(), script)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	if err := ctx.Err(); err != nil {
		t.Fatalf("Expected a live context, got %v", err)
	}
	if err := os.WriteFile(script, []byte("x = 2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if !waitDone(t, ctx) {
		t.Fatal("Expected the context to be canceled after the script was written")
	}
	if cause := context.Cause(ctx); cause == nil || !strings.Contains(cause.Error(), "train.py") {
		t.Errorf("Expected the cause to name train.py, got %v", cause)
	}
}

func TestUntilModifiedRenamedOver(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "train.py", "x = 1\n")
	tmp := writeScript(t, dir, ".train.py.swp", "x = 2\n")

	ctx, cancel, err := untilModified(context.Background(), script)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	if err := os.Rename(tmp, script); err != nil {
		t.Fatal(err)
	}
	if !waitDone(t, ctx) {
		t.Fatal("Expected the context to be canceled after the script was replaced")
	}
}

func TestUntilModifiedIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "train.py", "x = 1\n")

	ctx, cancel, err := untilModified(context.Background(), script)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	writeScript(t, dir, "notes.txt", "unrelated\n")
	select {
	case <-ctx.Done():
		t.Fatalf("Expected no cancellation for other files, got %v", context.Cause(ctx))
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	if !errors.Is(context.Cause(ctx), context.Canceled) {
		t.Errorf("Expected context.Canceled after cancel, got %v", context.Cause(ctx))
	}
}

func TestUntilModifiedMissingDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone", "train.py")
	if _, _, err := untilModified(context.Background(), missing); err == nil {
		t.Error("Expected an error for a script in a missing directory")
	}
}

func TestWatchRepartitions(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "train.py", "x = 1\n")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var runs atomic.Int32
	partition := func(context.Context) error {
		runs.Add(1)
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- watch(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), []string{script}, partition)
	}()

	// the watcher is installed after each run, so keep writing until the
	// second run is seen
	deadline := time.After(5 * time.Second)
	for runs.Load() < 2 {
		if err := os.WriteFile(script, []byte("x = 2\n"), 0644); err != nil {
			t.Fatal(err)
		}
		select {
		case <-deadline:
			t.Fatalf("Expected a second run after the script changed, got %d runs", runs.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}

	stop()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected watch to stop cleanly, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Expected watch to return after the context was canceled")
	}
}

package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/config"
)

func TestWatcher_DetectsPromptOverrideChange(t *testing.T) {
	homeDir := t.TempDir()

	overridePath := filepath.Join(homeDir, "partial_prompt.txt")
	if err := os.WriteFile(overridePath, []byte("initial contract"), 0o644); err != nil {
		t.Fatalf("write initial override: %v", err)
	}

	w := config.NewWatcher(homeDir, []string{"partial_prompt.txt", "fusion_prompt.txt"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("start watcher: %v", err)
	}

	// Instead of a fixed sleep, retry the write at short intervals until the
	// watcher produces an event. This handles any platform-specific delay in
	// filesystem notification readiness.
	deadline := time.After(3 * time.Second)
	writeTick := time.NewTicker(50 * time.Millisecond)
	defer writeTick.Stop()

	if err := os.WriteFile(overridePath, []byte("updated contract"), 0o644); err != nil {
		t.Fatalf("write updated override: %v", err)
	}

	for {
		select {
		case ev := <-w.Events():
			if filepath.Base(ev.Path) != "partial_prompt.txt" {
				t.Fatalf("expected partial_prompt.txt event, got %s", ev.Path)
			}
			return
		case <-writeTick.C:
			_ = os.WriteFile(overridePath, []byte("updated contract"), 0o644)
		case <-deadline:
			t.Fatalf("timed out waiting for override change event")
		}
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	homeDir := t.TempDir()

	w := config.NewWatcher(homeDir, []string{"fusion_prompt.txt"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("start watcher: %v", err)
	}

	if err := os.WriteFile(filepath.Join(homeDir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write unrelated file: %v", err)
	}

	select {
	case ev := <-w.Events():
		t.Fatalf("expected no event for unrelated file, got %s", ev.Path)
	case <-time.After(300 * time.Millisecond):
	}
}

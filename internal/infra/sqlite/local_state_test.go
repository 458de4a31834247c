package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestState(t *testing.T, path string) *LocalState {
	t.Helper()
	state, err := NewLocalState(path)
	if err != nil {
		t.Fatalf("open local state: %v", err)
	}
	t.Cleanup(func() { _ = state.Close() })
	return state
}

func TestLocalStateSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	savedAt := time.Date(2026, 10, 14, 9, 0, 30, 250*int(time.Millisecond), time.UTC)

	first := newTestState(t, path)
	if _, ok, err := first.AttemptID(ctx); err != nil || ok {
		t.Fatalf("expected empty state, got ok=%v err=%v", ok, err)
	}
	if err := first.SetAttemptID(ctx, "attempt-1"); err != nil {
		t.Fatalf("set attempt id: %v", err)
	}
	if err := first.SetLastSave(ctx, "attempt-1", savedAt); err != nil {
		t.Fatalf("set last save: %v", err)
	}
	_ = first.Close()

	second := newTestState(t, path)
	id, ok, err := second.AttemptID(ctx)
	if err != nil || !ok || id != "attempt-1" {
		t.Fatalf("expected attempt-1, got %q ok=%v err=%v", id, ok, err)
	}
	at, ok, err := second.LastSave(ctx, "attempt-1")
	if err != nil || !ok || !at.Equal(savedAt) {
		t.Fatalf("expected %v, got %v ok=%v err=%v", savedAt, at, ok, err)
	}
}

func TestLocalStateOverwriteAndClear(t *testing.T) {
	ctx := context.Background()
	state := newTestState(t, filepath.Join(t.TempDir(), "state.db"))

	_ = state.SetAttemptID(ctx, "attempt-1")
	_ = state.SetAttemptID(ctx, "attempt-2")
	if id, _, _ := state.AttemptID(ctx); id != "attempt-2" {
		t.Fatalf("expected overwrite, got %q", id)
	}

	_ = state.SetLastSave(ctx, "attempt-1", time.UnixMilli(1000))
	_ = state.SetLastSave(ctx, "attempt-2", time.UnixMilli(2000))
	_ = state.SetLastSave(ctx, "attempt-2", time.UnixMilli(3000))
	if at, _, _ := state.LastSave(ctx, "attempt-2"); at.UnixMilli() != 3000 {
		t.Fatalf("expected latest last save, got %v", at)
	}

	if err := state.Clear(ctx, "attempt-2"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := state.AttemptID(ctx); ok {
		t.Fatalf("expected attempt id cleared")
	}
	if _, ok, _ := state.LastSave(ctx, "attempt-2"); ok {
		t.Fatalf("expected last save cleared")
	}
	if _, ok, _ := state.LastSave(ctx, "attempt-1"); !ok {
		t.Fatalf("other attempts keep their timestamp")
	}
}

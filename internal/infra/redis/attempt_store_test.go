package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"timed-quiz-service/internal/domain"
)

func TestAttemptStoreRoundTrip(t *testing.T) {
	mr := newMiniredis(t)
	store := NewAttemptStore(newClient(mr), time.Hour)
	ctx := context.Background()

	if _, err := store.GetAttempt(ctx, "a1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	savedAt := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	rec := domain.AttemptRecord{
		ID:           "a1",
		Answers:      []domain.Answer{{QuestionID: 1, SelectedIndex: 3}},
		RemainingSec: 42,
		LastSavedAt:  savedAt,
	}
	if err := store.PutAttempt(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	if ttl := mr.TTL("quiz:attempt:a1"); ttl != time.Hour {
		t.Fatalf("expected ttl of an hour, got %v", ttl)
	}

	got, err := store.GetAttempt(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RemainingSec != 42 || len(got.Answers) != 1 || !got.LastSavedAt.Equal(savedAt) || got.Result != nil {
		t.Fatalf("unexpected record %+v", got)
	}

	result := domain.Result{TotalQuestions: 10, TotalAnswered: 1, CorrectCount: 1}
	got.IsFinished = true
	got.Result = &result
	_ = store.PutAttempt(ctx, got)
	finished, _ := store.GetAttempt(ctx, "a1")
	if !finished.IsFinished || finished.Result == nil || *finished.Result != result {
		t.Fatalf("expected finished record with result, got %+v", finished)
	}
}

func TestAttemptStoreExpires(t *testing.T) {
	mr := newMiniredis(t)
	store := NewAttemptStore(newClient(mr), time.Minute)
	ctx := context.Background()

	_ = store.PutAttempt(ctx, domain.AttemptRecord{ID: "a1", RemainingSec: 5})
	mr.FastForward(2 * time.Minute)

	if _, err := store.GetAttempt(ctx, "a1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected expired attempt to be gone, got %v", err)
	}
}

func TestAttemptStoreMalformedValue(t *testing.T) {
	mr := newMiniredis(t)
	_ = mr.Set("quiz:attempt:a1", "[]oops")
	store := NewAttemptStore(newClient(mr), 0)

	if _, err := store.GetAttempt(context.Background(), "a1"); !errors.Is(err, domain.ErrMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
}

func TestAttemptStoreUnavailable(t *testing.T) {
	mr := newMiniredis(t)
	store := NewAttemptStore(newClient(mr), 0)
	mr.Close()

	if _, err := store.GetAttempt(context.Background(), "a1"); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"timed-quiz-service/internal/domain"
	"timed-quiz-service/internal/quizbank"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(quizbank.Default()),
	}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), quizbank.DefaultID); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	quiz, err := repo.GetQuiz(context.Background(), quizbank.DefaultID)
	if err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
	if len(quiz.Questions) != 10 {
		t.Fatalf("expected 10 questions, got %d", len(quiz.Questions))
	}
}

func TestQuizRepositoryReloadsAfterExpiry(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(quizbank.Default())}
	repo := NewQuizRepository(loader, time.Minute)
	now := time.Now()
	repo.now = func() time.Time { return now }

	_, _ = repo.GetQuiz(context.Background(), quizbank.DefaultID)
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetQuiz(context.Background(), quizbank.DefaultID)
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls)
	}
}

func TestQuizRepositoryInvalidate(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(quizbank.Default())}
	repo := NewQuizRepository(loader, time.Hour)

	_, _ = repo.GetQuiz(ctx, quizbank.DefaultID)
	if err := repo.Invalidate(ctx, quizbank.DefaultID); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = repo.GetQuiz(ctx, quizbank.DefaultID)
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls)
	}
}

func TestStaticQuizLoaderUnknownQuiz(t *testing.T) {
	_, err := NewStaticQuizLoader().LoadQuiz(context.Background(), "missing")
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

type countingLoader struct {
	QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

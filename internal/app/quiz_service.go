package app

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"sync"
	"time"

	"timed-quiz-service/internal/domain"
	"timed-quiz-service/internal/scoring"

	"golang.org/x/sync/singleflight"
)

// AttemptRepository abstracts how attempts are stored (in-memory, Redis, Postgres).
type AttemptRepository interface {
	GetAttempt(ctx context.Context, attemptID string) (domain.AttemptRecord, error)
	PutAttempt(ctx context.Context, rec domain.AttemptRecord) error
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// EventPublisher distributes attempt events beyond this process (e.g., Redis pub/sub).
// Events reach local subscribers through whatever relays the publisher back into the Feed.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.AttemptEvent) error
}

// QuizService contains the backend quiz use cases: serving the question set,
// checkpointing attempts and finishing them exactly once.
type QuizService struct {
	quizID   string
	quizzes  QuizRepository
	attempts AttemptRepository
	feed     *Feed
	events   EventPublisher
	now      func() time.Time
	log      *slog.Logger

	// Striped locks serialize save and finish per attempt within this process.
	locks     [64]sync.Mutex
	finishing singleflight.Group
}

// Option customizes a QuizService.
type Option func(*QuizService)

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option { return func(s *QuizService) { s.now = now } }

func WithLogger(l *slog.Logger) Option { return func(s *QuizService) { s.log = l } }

func WithFeed(f *Feed) Option { return func(s *QuizService) { s.feed = f } }

func WithEventPublisher(p EventPublisher) Option { return func(s *QuizService) { s.events = p } }

func NewQuizService(quizID string, quizzes QuizRepository, attempts AttemptRepository, opts ...Option) *QuizService {
	s := &QuizService{
		quizID:   quizID,
		quizzes:  quizzes,
		attempts: attempts,
		feed:     NewFeed(),
		now:      time.Now,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadQuestions returns the question set without the answer key.
func (s *QuizService) LoadQuestions(ctx context.Context) (domain.PublicQuiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, s.quizID)
	if err != nil {
		return domain.PublicQuiz{}, err
	}
	return quiz.Public(), nil
}

// LoadAttempt returns the stored snapshot or domain.ErrNotFound.
func (s *QuizService) LoadAttempt(ctx context.Context, attemptID string) (domain.Snapshot, error) {
	if err := domain.ValidateAttemptID(attemptID); err != nil {
		return domain.Snapshot{}, err
	}
	rec, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return rec.Snapshot(), nil
}

// SaveAttempt checkpoints answers and the remaining time of an unfinished attempt.
func (s *QuizService) SaveAttempt(ctx context.Context, attemptID string, answers []domain.Answer, remainingSec int) error {
	if err := domain.ValidateAttemptID(attemptID); err != nil {
		return err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, s.quizID)
	if err != nil {
		return err
	}
	if err := validateAnswers(quiz, answers); err != nil {
		return err
	}
	if remainingSec < 0 {
		remainingSec = 0
	}
	if quiz.DurationSec > 0 && remainingSec > quiz.DurationSec {
		remainingSec = quiz.DurationSec
	}

	lock := s.lockFor(attemptID)
	lock.Lock()
	rec, err := s.attempts.GetAttempt(ctx, attemptID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		rec = domain.AttemptRecord{ID: attemptID}
	case err != nil:
		lock.Unlock()
		return err
	case rec.IsFinished:
		lock.Unlock()
		return domain.ErrAttemptFinished
	}

	rec.Answers = append([]domain.Answer(nil), answers...)
	domain.SortAnswers(rec.Answers)
	rec.RemainingSec = remainingSec
	rec.LastSavedAt = s.now()
	err = s.attempts.PutAttempt(ctx, rec)
	lock.Unlock()
	if err != nil {
		return err
	}

	s.publish(ctx, domain.AttemptEvent{
		Type:      domain.EventSaved,
		AttemptID: attemptID,
		Snapshot:  rec.Snapshot(),
		At:        rec.LastSavedAt,
	})
	return nil
}

// FinishAttempt marks the attempt finished and scores it. Repeated calls
// return the stored result without rescoring. Finishing an attempt that was
// never saved finishes it with no answers. Concurrent calls for one attempt
// share a single scoring pass.
func (s *QuizService) FinishAttempt(ctx context.Context, attemptID string) (domain.Result, error) {
	if err := domain.ValidateAttemptID(attemptID); err != nil {
		return domain.Result{}, err
	}
	// Coalesced callers share this call, so one caller going away must not fail the rest.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.finishing.Do(attemptID, func() (any, error) {
		return s.finish(shared, attemptID)
	})
	if err != nil {
		return domain.Result{}, err
	}
	return v.(domain.Result), nil
}

func (s *QuizService) finish(ctx context.Context, attemptID string) (domain.Result, error) {
	lock := s.lockFor(attemptID)
	lock.Lock()
	rec, err := s.attempts.GetAttempt(ctx, attemptID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		rec = domain.AttemptRecord{ID: attemptID}
	case err != nil:
		lock.Unlock()
		return domain.Result{}, err
	}
	if rec.IsFinished && rec.Result != nil {
		lock.Unlock()
		return *rec.Result, nil
	}

	quiz, err := s.quizzes.GetQuiz(ctx, s.quizID)
	if err != nil {
		lock.Unlock()
		return domain.Result{}, err
	}
	result := scoring.Score(quiz.Questions, rec.Answers)
	finishedAt := s.now()
	rec.IsFinished = true
	rec.Result = &result
	rec.FinishedAt = &finishedAt
	if rec.LastSavedAt.IsZero() {
		rec.LastSavedAt = finishedAt
	}
	err = s.attempts.PutAttempt(ctx, rec)
	lock.Unlock()
	if err != nil {
		return domain.Result{}, err
	}

	s.log.InfoContext(ctx, "attempt finished",
		"attempt_id", attemptID,
		"answered", result.TotalAnswered,
		"correct", result.CorrectCount)
	s.publish(ctx, domain.AttemptEvent{
		Type:      domain.EventFinished,
		AttemptID: attemptID,
		Snapshot:  rec.Snapshot(),
		Result:    &result,
		At:        finishedAt,
	})
	return result, nil
}

// Subscribe returns a channel that receives events for an attempt.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(_ context.Context, attemptID string) (<-chan domain.AttemptEvent, func(), error) {
	if err := domain.ValidateAttemptID(attemptID); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.feed.Subscribe(attemptID)
	return ch, cancel, nil
}

func (s *QuizService) publish(ctx context.Context, ev domain.AttemptEvent) {
	if s.events == nil {
		s.feed.Publish(ev)
		return
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.log.WarnContext(ctx, "publish attempt event", "attempt_id", ev.AttemptID, "type", ev.Type, "error", err)
	}
}

func (s *QuizService) lockFor(attemptID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(attemptID))
	return &s.locks[h.Sum32()%uint32(len(s.locks))]
}

// validateAnswers checks answers against quiz content.
func validateAnswers(quiz domain.Quiz, answers []domain.Answer) error {
	options := make(map[int]int, len(quiz.Questions))
	for _, q := range quiz.Questions {
		options[q.ID] = len(q.Options)
	}
	seen := make(map[int]struct{}, len(answers))
	for _, a := range answers {
		count, ok := options[a.QuestionID]
		if !ok {
			return fmt.Errorf("%w: %d", domain.ErrQuestionNotFound, a.QuestionID)
		}
		if a.SelectedIndex < 0 || a.SelectedIndex >= count {
			return fmt.Errorf("%w: question %d, index %d", domain.ErrOptionOutOfRange, a.QuestionID, a.SelectedIndex)
		}
		if _, dup := seen[a.QuestionID]; dup {
			return fmt.Errorf("%w: %d", domain.ErrDuplicateAnswer, a.QuestionID)
		}
		seen[a.QuestionID] = struct{}{}
	}
	return nil
}

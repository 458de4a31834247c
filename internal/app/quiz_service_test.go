package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/domain"
	"timed-quiz-service/internal/infra/memory"
	"timed-quiz-service/internal/quizbank"
)

func TestLoadQuestionsHidesAnswerKey(t *testing.T) {
	service, _ := newTestService()

	quiz, err := service.LoadQuestions(context.Background())
	if err != nil {
		t.Fatalf("load questions: %v", err)
	}
	if quiz.DurationSec != quizbank.DefaultDurationSec || len(quiz.Questions) != 10 {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
	if quiz.Questions[0].ID != 1 || len(quiz.Questions[0].Options) != 4 {
		t.Fatalf("unexpected first question %+v", quiz.Questions[0])
	}
}

func TestSaveAndLoadAttempt(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	if _, err := service.LoadAttempt(ctx, "a1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	answers := []domain.Answer{{QuestionID: 3, SelectedIndex: 1}, {QuestionID: 1, SelectedIndex: 3}}
	if err := service.SaveAttempt(ctx, "a1", answers, 42); err != nil {
		t.Fatalf("save: %v", err)
	}

	snap, err := service.LoadAttempt(ctx, "a1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.RemainingSec != 42 || snap.IsFinished || len(snap.Answers) != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Answers[0].QuestionID != 1 {
		t.Fatalf("expected answers sorted by question, got %+v", snap.Answers)
	}
}

func TestSaveClampsRemaining(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	if err := service.SaveAttempt(ctx, "a1", nil, 500); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap, _ := service.LoadAttempt(ctx, "a1")
	if snap.RemainingSec != quizbank.DefaultDurationSec {
		t.Fatalf("expected remaining clamped to %d, got %d", quizbank.DefaultDurationSec, snap.RemainingSec)
	}
}

func TestSaveRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	cases := []struct {
		name    string
		id      string
		answers []domain.Answer
		want    error
	}{
		{"empty id", "", nil, domain.ErrInvalidAttemptID},
		{"bad id", "a/b", nil, domain.ErrInvalidAttemptID},
		{"unknown question", "a1", []domain.Answer{{QuestionID: 77, SelectedIndex: 0}}, domain.ErrQuestionNotFound},
		{"index out of range", "a1", []domain.Answer{{QuestionID: 1, SelectedIndex: 4}}, domain.ErrOptionOutOfRange},
		{"duplicate", "a1", []domain.Answer{{QuestionID: 1, SelectedIndex: 0}, {QuestionID: 1, SelectedIndex: 1}}, domain.ErrDuplicateAnswer},
	}
	for _, tc := range cases {
		if err := service.SaveAttempt(ctx, tc.id, tc.answers, 10); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService()

	answers := []domain.Answer{
		{QuestionID: 1, SelectedIndex: 3},
		{QuestionID: 2, SelectedIndex: 0},
		{QuestionID: 3, SelectedIndex: 1},
	}
	if err := service.SaveAttempt(ctx, "a1", answers, 20); err != nil {
		t.Fatalf("save: %v", err)
	}

	first, err := service.FinishAttempt(ctx, "a1")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if first.CorrectCount != 2 || first.IncorrectCount != 1 || first.UnansweredCount != 7 {
		t.Fatalf("unexpected result %+v", first)
	}

	// Tamper with the stored answers: a repeat finish must not rescore.
	rec, _ := store.GetAttempt(ctx, "a1")
	rec.Answers = nil
	_ = store.PutAttempt(ctx, rec)

	second, err := service.FinishAttempt(ctx, "a1")
	if err != nil {
		t.Fatalf("finish again: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical results, got %+v then %+v", first, second)
	}
}

func TestConcurrentFinishScoresOnce(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()
	_ = service.SaveAttempt(ctx, "a1", []domain.Answer{{QuestionID: 1, SelectedIndex: 3}}, 30)

	events, cancel, err := service.Subscribe(ctx, "a1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	var wg sync.WaitGroup
	results := make([]domain.Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = service.FinishAttempt(ctx, "a1")
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		if r != results[0] || r.CorrectCount != 1 {
			t.Fatalf("expected identical results, got %+v", results)
		}
	}
	finished := 0
	for len(events) > 0 {
		if ev := <-events; ev.Type == domain.EventFinished {
			finished++
		}
	}
	if finished != 1 {
		t.Fatalf("expected a single finished event, got %d", finished)
	}
}

// gatedStore holds reads until gate is closed and honours cancellation.
type gatedStore struct {
	*memory.AttemptStore
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (s *gatedStore) GetAttempt(ctx context.Context, attemptID string) (domain.AttemptRecord, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.gate
	if err := ctx.Err(); err != nil {
		return domain.AttemptRecord{}, err
	}
	return s.AttemptStore.GetAttempt(ctx, attemptID)
}

func (s *gatedStore) PutAttempt(ctx context.Context, rec domain.AttemptRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.AttemptStore.PutAttempt(ctx, rec)
}

func TestFinishSurvivesCancelledCaller(t *testing.T) {
	store := &gatedStore{AttemptStore: memory.NewAttemptStore(), entered: make(chan struct{}), gate: make(chan struct{})}
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(quizbank.Default()), time.Minute)
	service := app.NewQuizService(quizbank.DefaultID, quizRepo, store)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := service.FinishAttempt(ctx, "a1")
		firstErr <- err
	}()
	<-store.entered

	secondErr := make(chan error, 1)
	go func() {
		_, err := service.FinishAttempt(context.Background(), "a1")
		secondErr <- err
	}()
	cancel()
	close(store.gate)

	if err := <-firstErr; err != nil {
		t.Fatalf("finish started before cancellation must complete, got %v", err)
	}
	if err := <-secondErr; err != nil {
		t.Fatalf("coalesced finish failed: %v", err)
	}
	rec, err := store.AttemptStore.GetAttempt(context.Background(), "a1")
	if err != nil || !rec.IsFinished || rec.Result == nil {
		t.Fatalf("expected a finished attempt, got %+v %v", rec, err)
	}
}

func TestSaveAfterFinishRejected(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()
	_ = service.SaveAttempt(ctx, "a1", nil, 30)
	if _, err := service.FinishAttempt(ctx, "a1"); err != nil {
		t.Fatalf("finish: %v", err)
	}

	err := service.SaveAttempt(ctx, "a1", []domain.Answer{{QuestionID: 1, SelectedIndex: 3}}, 10)
	if !errors.Is(err, domain.ErrAttemptFinished) {
		t.Fatalf("expected finished error, got %v", err)
	}
	snap, _ := service.LoadAttempt(ctx, "a1")
	if !snap.IsFinished || len(snap.Answers) != 0 {
		t.Fatalf("finished attempt must be immutable, got %+v", snap)
	}
}

func TestFinishUnknownAttempt(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	result, err := service.FinishAttempt(ctx, "never-saved")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if result.TotalAnswered != 0 || result.UnansweredCount != 10 {
		t.Fatalf("unexpected result %+v", result)
	}
	snap, err := service.LoadAttempt(ctx, "never-saved")
	if err != nil || !snap.IsFinished {
		t.Fatalf("expected finished record, got %+v, %v", snap, err)
	}
}

func TestSubscribeReceivesSaveEvents(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	events, cancel, err := service.Subscribe(ctx, "a1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := service.SaveAttempt(ctx, "a1", []domain.Answer{{QuestionID: 2, SelectedIndex: 1}}, 50); err != nil {
		t.Fatalf("save: %v", err)
	}
	ev := <-events
	if ev.Type != domain.EventSaved || ev.Snapshot.RemainingSec != 50 || len(ev.Snapshot.Answers) != 1 {
		t.Fatalf("unexpected event %+v", ev)
	}
	if !ev.At.Equal(fixedNow) {
		t.Fatalf("expected event stamped with service clock, got %v", ev.At)
	}
}

var fixedNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func newTestService() (*app.QuizService, *memory.AttemptStore) {
	store := memory.NewAttemptStore()
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(quizbank.Default()), 5*time.Minute)
	service := app.NewQuizService(quizbank.DefaultID, quizRepo, store, app.WithClock(func() time.Time { return fixedNow }))
	return service, store
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.AttemptEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.AttemptEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func TestEventPublisherReplacesLocalFeed(t *testing.T) {
	ctx := context.Background()
	publisher := &recordingPublisher{}
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(quizbank.Default()), time.Minute)
	service := app.NewQuizService(quizbank.DefaultID, quizzes, memory.NewAttemptStore(), app.WithEventPublisher(publisher))

	events, cancel, _ := service.Subscribe(ctx, "a1")
	defer cancel()

	_ = service.SaveAttempt(ctx, "a1", nil, 30)
	_, _ = service.FinishAttempt(ctx, "a1")

	if len(publisher.events) != 2 || publisher.events[1].Type != domain.EventFinished {
		t.Fatalf("expected saved and finished events published, got %+v", publisher.events)
	}
	if len(events) != 0 {
		t.Fatalf("local feed is fed by the relay, not directly")
	}
}

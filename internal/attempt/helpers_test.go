package attempt_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"timed-quiz-service/internal/attempt"
	"timed-quiz-service/internal/clock"
	"timed-quiz-service/internal/domain"
	"timed-quiz-service/internal/infra/memory"
	"timed-quiz-service/internal/quizbank"
)

var start = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

type saveCall struct {
	AttemptID    string
	Answers      []domain.Answer
	RemainingSec int
}

// fakeBackend records calls and can be told to fail or to hold saves.
type fakeBackend struct {
	mu               sync.Mutex
	quiz             domain.PublicQuiz
	snapshots        map[string]domain.Snapshot
	loadQuestionsErr error
	loadAttemptErr   error
	saveErr          error
	finishErr        error
	saveGate         chan struct{}
	saves            []saveCall
	finishes         []string
	calls            []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		quiz:      quizbank.Default().Public(),
		snapshots: make(map[string]domain.Snapshot),
	}
}

func (b *fakeBackend) LoadQuestions(context.Context) (domain.PublicQuiz, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loadQuestionsErr != nil {
		return domain.PublicQuiz{}, b.loadQuestionsErr
	}
	return b.quiz, nil
}

func (b *fakeBackend) LoadAttempt(_ context.Context, attemptID string) (domain.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loadAttemptErr != nil {
		return domain.Snapshot{}, b.loadAttemptErr
	}
	snap, ok := b.snapshots[attemptID]
	if !ok {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (b *fakeBackend) SaveAttempt(ctx context.Context, attemptID string, answers []domain.Answer, remainingSec int) error {
	b.mu.Lock()
	b.calls = append(b.calls, "save")
	gate := b.saveGate
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return b.saveErr
	}
	b.saves = append(b.saves, saveCall{AttemptID: attemptID, Answers: answers, RemainingSec: remainingSec})
	b.snapshots[attemptID] = domain.Snapshot{Answers: answers, RemainingSec: remainingSec}
	return nil
}

func (b *fakeBackend) FinishAttempt(_ context.Context, attemptID string) (domain.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "finish")
	if b.finishErr != nil {
		return domain.Result{}, b.finishErr
	}
	b.finishes = append(b.finishes, attemptID)
	snap := b.snapshots[attemptID]
	snap.IsFinished = true
	b.snapshots[attemptID] = snap
	return domain.Result{TotalQuestions: 10, TotalAnswered: len(snap.Answers), UnansweredCount: 10 - len(snap.Answers)}, nil
}

func (b *fakeBackend) saveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.saves)
}

func (b *fakeBackend) finishCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.finishes)
}

func (b *fakeBackend) lastSave() saveCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves[len(b.saves)-1]
}

func (b *fakeBackend) callLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBackend) set(fn func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

type onlineFlag struct{ v atomic.Bool }

func newOnline(online bool) *onlineFlag {
	f := &onlineFlag{}
	f.v.Store(online)
	return f
}

func (f *onlineFlag) Online() bool { return f.v.Load() }

type harness struct {
	backend *fakeBackend
	local   *memory.LocalState
	online  *onlineFlag
	clock   *clock.Fake
	machine *attempt.Machine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		backend: newFakeBackend(),
		local:   memory.NewLocalState(),
		online:  newOnline(true),
		clock:   clock.NewFake(start),
	}
	ids := 0
	h.machine = attempt.New(h.backend, h.local, h.online,
		attempt.WithClock(h.clock),
		attempt.WithIDGenerator(func() string {
			ids++
			return "attempt-" + string(rune('a'+ids-1))
		}),
	)
	t.Cleanup(h.machine.Close)
	return h
}

func (h *harness) start(t *testing.T) attempt.View {
	t.Helper()
	if err := h.machine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return h.machine.View()
}

// settled waits for the write started by the last Advance to complete.
func (h *harness) settled(t *testing.T) {
	t.Helper()
	waitFor(t, "write to settle", func() bool { return h.machine.View().SaveStatus != attempt.SaveSaving })
}

// waitFor polls until cond holds; background writes and finalize calls run
// on their own goroutines.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

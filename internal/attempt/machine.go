// Package attempt drives one quiz attempt on the quiz-taker's side: it
// recovers the attempt from the durable store, runs the countdown, captures
// answers and keeps the durable snapshot in sync until the attempt finishes.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"timed-quiz-service/internal/clock"
	"timed-quiz-service/internal/domain"

	"github.com/google/uuid"
)

// State is the lifecycle position of the current attempt.
type State string

const (
	StateLoading    State = "loading"
	StateRecovering State = "recovering"
	StateActive     State = "active"
	StateFinished   State = "finished"
	StateErrored    State = "errored"
)

// FinishReason records how an attempt reached StateFinished.
type FinishReason string

const (
	ReasonNone      FinishReason = ""
	ReasonSubmitted FinishReason = "submitted"
	ReasonTimeout   FinishReason = "timeout"
	// ReasonExpired means the budget ran out while the quiz-taker was away.
	ReasonExpired FinishReason = "expired"
	// ReasonRecovered means the durable snapshot was already finished.
	ReasonRecovered FinishReason = "recovered"
)

// SaveStatus reports the last sync write.
type SaveStatus string

const (
	SaveIdle   SaveStatus = "idle"
	SaveSaving SaveStatus = "saving"
	SaveSaved  SaveStatus = "saved"
	SaveFailed SaveStatus = "failed"
)

var (
	// ErrNotActive is returned for intents that need an active attempt.
	ErrNotActive = errors.New("attempt is not active")
	// ErrNotFinished is returned by RefreshResult before the attempt finished.
	ErrNotFinished = errors.New("attempt is not finished")
	// ErrNotErrored is returned by Retry when there is nothing to retry.
	ErrNotErrored = errors.New("attempt is not in an errored state")
	// ErrSuperseded is returned when a newer attempt replaced the one being loaded.
	ErrSuperseded = errors.New("attempt superseded")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("attempt machine closed")
)

// Backend is the quiz service as seen from the quiz-taker's device.
type Backend interface {
	LoadQuestions(ctx context.Context) (domain.PublicQuiz, error)
	LoadAttempt(ctx context.Context, attemptID string) (domain.Snapshot, error)
	SaveAttempt(ctx context.Context, attemptID string, answers []domain.Answer, remainingSec int) error
	FinishAttempt(ctx context.Context, attemptID string) (domain.Result, error)
}

// LocalState is device-local bookkeeping kept outside the durable store.
type LocalState interface {
	AttemptID(ctx context.Context) (string, bool, error)
	SetAttemptID(ctx context.Context, attemptID string) error
	LastSave(ctx context.Context, attemptID string) (time.Time, bool, error)
	SetLastSave(ctx context.Context, attemptID string, at time.Time) error
	// Clear forgets the current attempt id and the last-save timestamp of attemptID.
	Clear(ctx context.Context, attemptID string) error
}

// Connectivity gates every network write.
type Connectivity interface {
	Online() bool
}

// ConnectivityFunc adapts a function to Connectivity.
type ConnectivityFunc func() bool

func (f ConnectivityFunc) Online() bool { return f() }

// AlwaysOnline never gates.
var AlwaysOnline Connectivity = ConnectivityFunc(func() bool { return true })

// Config tunes the scheduler and countdown.
type Config struct {
	PeriodicInterval   time.Duration
	DebounceDelay      time.Duration
	TickInterval       time.Duration
	DefaultDurationSec int
	// FinalizeTimeout bounds the finalize issued when the countdown runs out.
	FinalizeTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		PeriodicInterval:   5 * time.Second,
		DebounceDelay:      500 * time.Millisecond,
		TickInterval:       time.Second,
		DefaultDurationSec: 60,
		FinalizeTimeout:    10 * time.Second,
	}
}

// Option customizes a Machine.
type Option func(*Machine)

func WithClock(c clock.Clock) Option { return func(m *Machine) { m.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(m *Machine) { m.log = l } }

func WithConfig(cfg Config) Option { return func(m *Machine) { m.cfg = cfg } }

// WithIDGenerator replaces the attempt id generator.
func WithIDGenerator(gen func() string) Option { return func(m *Machine) { m.newID = gen } }

// NewAttemptID mints a client-side attempt identifier.
func NewAttemptID() string {
	return "attempt-" + uuid.NewString()
}

// Machine owns the in-memory state of one attempt at a time. Timer callbacks
// and intents serialize on mu; network calls run without holding it.
type Machine struct {
	backend Backend
	local   LocalState
	net     Connectivity
	clock   clock.Clock
	log     *slog.Logger
	cfg     Config
	newID   func() string

	mu     sync.Mutex
	closed bool
	// gen changes whenever the current attempt is replaced or discarded;
	// callbacks and in-flight calls carrying an older gen are ignored.
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc

	state         State
	attemptID     string
	questions     []domain.PublicQuestion
	optionCounts  map[int]int
	initialSec    int
	answers       map[int]int
	remainingSec  int
	finished      bool
	reason        FinishReason
	finalizing    bool
	resultPending bool
	result        *domain.Result
	saveStatus    SaveStatus
	lastSaveAt    time.Time
	err           error

	// finalWrite is set while the final snapshot has not reached the backend.
	finalWrite bool

	tickTimer     clock.Timer
	periodicTimer clock.Timer
	debounceTimer clock.Timer
	debounceSeq   uint64
	// saving is non-nil while a sync write is in flight and is closed once it settles.
	saving chan struct{}

	subscribers map[chan View]struct{}
}

func New(backend Backend, local LocalState, net Connectivity, opts ...Option) *Machine {
	if net == nil {
		net = AlwaysOnline
	}
	m := &Machine{
		backend:     backend,
		local:       local,
		net:         net,
		clock:       clock.Real{},
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg:         DefaultConfig(),
		newID:       NewAttemptID,
		state:       StateLoading,
		answers:     make(map[int]int),
		saveStatus:  SaveIdle,
		subscribers: make(map[chan View]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start resumes the attempt recorded on this device, or mints a new one, and
// loads it. It returns the load error when the attempt ends up Errored.
func (m *Machine) Start(ctx context.Context) error {
	id, ok, err := m.local.AttemptID(ctx)
	if err != nil {
		m.log.WarnContext(ctx, "read local attempt id", "error", err)
		ok = false
	}
	if !ok || id == "" {
		id = m.newID()
		if err := m.local.SetAttemptID(ctx, id); err != nil {
			m.log.WarnContext(ctx, "persist local attempt id", "attempt_id", id, "error", err)
		}
	}
	return m.load(ctx, id)
}

// Retry reloads the same attempt after a failed load.
func (m *Machine) Retry(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateErrored {
		m.mu.Unlock()
		return ErrNotErrored
	}
	id := m.attemptID
	m.mu.Unlock()
	return m.load(ctx, id)
}

// NewAttempt abandons the current attempt and starts a fresh one. Pending
// timers of the old attempt are cancelled and its in-flight calls discarded.
func (m *Machine) NewAttempt(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	old := m.attemptID
	m.discardLocked()
	m.mu.Unlock()

	if old != "" {
		if err := m.local.Clear(ctx, old); err != nil {
			m.log.WarnContext(ctx, "clear local attempt state", "attempt_id", old, "error", err)
		}
	}
	id := m.newID()
	if err := m.local.SetAttemptID(ctx, id); err != nil {
		m.log.WarnContext(ctx, "persist local attempt id", "attempt_id", id, "error", err)
	}
	return m.load(ctx, id)
}

// Close stops all timers and abandons in-flight calls without awaiting them.
// Subscriber channels are closed.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.discardLocked()
	for ch := range m.subscribers {
		delete(m.subscribers, ch)
		close(ch)
	}
}

func (m *Machine) load(ctx context.Context, id string) error {
	gen, err := m.begin(id)
	if err != nil {
		return err
	}
	ctx, cancel := m.scoped(ctx, gen)
	defer cancel()

	quiz, err := m.backend.LoadQuestions(ctx)
	if err != nil {
		return m.fail(gen, fmt.Errorf("load questions: %w", err))
	}
	initialSec, ok := m.enterRecovering(gen, quiz)
	if !ok {
		return ErrSuperseded
	}

	fresh := domain.Snapshot{RemainingSec: initialSec}
	snap, err := m.backend.LoadAttempt(ctx, id)
	switch {
	case err == nil:
		if verr := snap.Validate(); verr != nil {
			m.log.WarnContext(ctx, "discarding malformed snapshot", "attempt_id", id, "error", verr)
			snap = fresh
		}
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrMalformed):
		snap = fresh
	default:
		return m.fail(gen, fmt.Errorf("load attempt: %w", err))
	}

	lastSave, hasLastSave, err := m.local.LastSave(ctx, id)
	if err != nil {
		m.log.WarnContext(ctx, "read local last-save timestamp", "attempt_id", id, "error", err)
		hasLastSave = false
	}

	// Answers outside the question set neither count as progress nor survive.
	snap.Answers = m.knownAnswers(snap.Answers)
	rec := Reconcile(snap, initialSec, lastSave, hasLastSave, m.clock.Now())
	finished, ok := m.enterRecovered(gen, snap, rec, lastSave, hasLastSave)
	if !ok {
		return ErrSuperseded
	}
	if rec.ElapsedSec > 0 {
		m.log.InfoContext(ctx, "applied elapsed time while away",
			"attempt_id", id, "elapsed_sec", rec.ElapsedSec, "remaining_sec", rec.RemainingSec)
	}
	if finished {
		// Best effort: the attempt is finished locally whatever happens here.
		m.finalize(ctx, gen)
	}
	return nil
}

func (m *Machine) begin(id string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	m.discardLocked()
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.attemptID = id
	m.state = StateLoading
	m.questions = nil
	m.optionCounts = nil
	m.initialSec = 0
	m.answers = make(map[int]int)
	m.remainingSec = 0
	m.finished = false
	m.reason = ReasonNone
	m.finalizing = false
	m.finalWrite = false
	m.resultPending = false
	m.result = nil
	m.saveStatus = SaveIdle
	m.lastSaveAt = time.Time{}
	m.err = nil
	m.broadcastLocked()
	return m.gen, nil
}

// discardLocked cancels everything belonging to the current attempt.
func (m *Machine) discardLocked() {
	m.stopTimersLocked()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.saving = nil
	m.gen++
}

// scoped derives a call context that is also cancelled when the attempt is discarded.
func (m *Machine) scoped(ctx context.Context, gen uint64) (context.Context, context.CancelFunc) {
	m.mu.Lock()
	attemptCtx := m.ctx
	current := m.gen == gen
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	if !current || attemptCtx == nil {
		cancel()
		return ctx, cancel
	}
	stop := context.AfterFunc(attemptCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (m *Machine) fail(gen uint64, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return ErrSuperseded
	}
	m.state = StateErrored
	m.err = err
	m.log.Warn("attempt load failed", "attempt_id", m.attemptID, "error", err)
	m.broadcastLocked()
	return err
}

func (m *Machine) enterRecovering(gen uint64, quiz domain.PublicQuiz) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return 0, false
	}
	m.questions = quiz.Questions
	m.optionCounts = make(map[int]int, len(quiz.Questions))
	for _, q := range quiz.Questions {
		m.optionCounts[q.ID] = len(q.Options)
	}
	m.initialSec = quiz.DurationSec
	if m.initialSec <= 0 {
		m.initialSec = m.cfg.DefaultDurationSec
	}
	m.state = StateRecovering
	m.broadcastLocked()
	return m.initialSec, true
}

func (m *Machine) knownAnswers(answers []domain.Answer) []domain.Answer {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := make([]domain.Answer, 0, len(answers))
	for _, a := range answers {
		count, known := m.optionCounts[a.QuestionID]
		if !known || a.SelectedIndex < 0 || a.SelectedIndex >= count {
			m.log.Warn("dropping recovered answer outside the question set",
				"attempt_id", m.attemptID, "question_id", a.QuestionID, "selected_index", a.SelectedIndex)
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

func (m *Machine) enterRecovered(gen uint64, snap domain.Snapshot, rec Recovery, lastSave time.Time, hasLastSave bool) (bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return false, false
	}
	for _, a := range snap.Answers {
		m.answers[a.QuestionID] = a.SelectedIndex
	}
	m.remainingSec = rec.RemainingSec
	if hasLastSave {
		m.lastSaveAt = lastSave
	}

	if rec.Finished {
		m.finished = true
		m.state = StateFinished
		m.reason = rec.Reason
	} else {
		m.state = StateActive
		m.armTickLocked(gen)
		m.armPeriodicLocked(gen)
	}
	m.broadcastLocked()
	return rec.Finished, true
}

// SelectAnswer records index as the answer to questionID, replacing any
// earlier answer to the same question.
func (m *Machine) SelectAnswer(questionID, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished {
		return domain.ErrAttemptFinished
	}
	if m.state != StateActive {
		return ErrNotActive
	}
	count, ok := m.optionCounts[questionID]
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrQuestionNotFound, questionID)
	}
	if index < 0 || index >= count {
		return fmt.Errorf("%w: question %d has %d options, got %d", domain.ErrOptionOutOfRange, questionID, count, index)
	}
	m.answers[questionID] = index
	m.restartDebounceLocked(m.gen)
	m.broadcastLocked()
	return nil
}

// Submit finishes the attempt on the quiz-taker's request. The attempt is
// Finished when Submit returns even if the backend could not be reached.
func (m *Machine) Submit(ctx context.Context) (View, error) {
	m.mu.Lock()
	if m.state == StateFinished {
		view := m.viewLocked()
		m.mu.Unlock()
		return view, nil
	}
	if m.state != StateActive {
		m.mu.Unlock()
		return View{}, ErrNotActive
	}
	m.finishLocked(ReasonSubmitted)
	gen := m.gen
	m.mu.Unlock()

	ctx, cancel := m.scoped(ctx, gen)
	defer cancel()
	m.finalize(ctx, gen)
	return m.View(), nil
}

// RefreshResult completes the finalize of a finished attempt whose result is
// still pending, for example after connectivity returned. A final snapshot
// that never reached the backend is written before the finish call.
func (m *Machine) RefreshResult(ctx context.Context) (View, error) {
	m.mu.Lock()
	if m.state != StateFinished {
		m.mu.Unlock()
		return View{}, ErrNotFinished
	}
	if m.result != nil || m.finalizing {
		view := m.viewLocked()
		m.mu.Unlock()
		return view, nil
	}
	gen := m.gen
	m.mu.Unlock()

	ctx, cancel := m.scoped(ctx, gen)
	defer cancel()
	m.finalize(ctx, gen)
	return m.View(), nil
}

// AttemptID returns the identifier of the current attempt.
func (m *Machine) AttemptID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attemptID
}

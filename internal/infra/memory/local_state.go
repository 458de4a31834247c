package memory

import (
	"context"
	"sync"
	"time"
)

// LocalState keeps device-local attempt bookkeeping in process memory.
type LocalState struct {
	mu        sync.Mutex
	attemptID string
	lastSaves map[string]time.Time
}

func NewLocalState() *LocalState {
	return &LocalState{lastSaves: make(map[string]time.Time)}
}

func (l *LocalState) AttemptID(context.Context) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attemptID, l.attemptID != "", nil
}

func (l *LocalState) SetAttemptID(_ context.Context, attemptID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attemptID = attemptID
	return nil
}

func (l *LocalState) LastSave(_ context.Context, attemptID string) (time.Time, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	at, ok := l.lastSaves[attemptID]
	return at, ok, nil
}

func (l *LocalState) SetLastSave(_ context.Context, attemptID string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastSaves[attemptID] = at
	return nil
}

func (l *LocalState) Clear(_ context.Context, attemptID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.attemptID == attemptID {
		l.attemptID = ""
	}
	delete(l.lastSaves, attemptID)
	return nil
}

package memory

import (
	"context"
	"sync"

	"timed-quiz-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository.
// Records live as long as the process.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]domain.AttemptRecord
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[string]domain.AttemptRecord),
	}
}

func (s *AttemptStore) GetAttempt(_ context.Context, attemptID string) (domain.AttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.attempts[attemptID]
	if !ok {
		return domain.AttemptRecord{}, domain.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *AttemptStore) PutAttempt(_ context.Context, rec domain.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[rec.ID] = cloneRecord(rec)
	return nil
}

// Len reports how many attempts are stored.
func (s *AttemptStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.attempts)
}

func cloneRecord(rec domain.AttemptRecord) domain.AttemptRecord {
	out := rec
	out.Answers = append([]domain.Answer(nil), rec.Answers...)
	if rec.Result != nil {
		r := *rec.Result
		out.Result = &r
	}
	if rec.FinishedAt != nil {
		t := *rec.FinishedAt
		out.FinishedAt = &t
	}
	return out
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"timed-quiz-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// AttemptStore keeps attempt records in Redis as JSON values.
// Records are stored under quiz:attempt:{attemptID}; a positive ttl bounds
// how long an abandoned attempt survives.
type AttemptStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAttemptStore(client *redis.Client, ttl time.Duration) *AttemptStore {
	return &AttemptStore{client: client, ttl: ttl}
}

func (s *AttemptStore) GetAttempt(ctx context.Context, attemptID string) (domain.AttemptRecord, error) {
	payload, err := s.client.Get(ctx, s.key(attemptID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.AttemptRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.AttemptRecord{}, unavailable("get attempt", err)
	}

	var rec domain.AttemptRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return domain.AttemptRecord{}, fmt.Errorf("%w: attempt %s: %v", domain.ErrMalformed, attemptID, err)
	}
	rec.ID = attemptID
	return rec, nil
}

func (s *AttemptStore) PutAttempt(ctx context.Context, rec domain.AttemptRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode attempt %s: %w", rec.ID, err)
	}
	if err := s.client.Set(ctx, s.key(rec.ID), payload, s.ttl).Err(); err != nil {
		return unavailable("put attempt", err)
	}
	return nil
}

func (s *AttemptStore) key(attemptID string) string {
	return "quiz:attempt:" + attemptID
}

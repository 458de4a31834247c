package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"timed-quiz-service/internal/domain"

	"github.com/uptrace/bun"
)

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts"`

	ID           string          `bun:"id,pk"`
	Answers      []domain.Answer `bun:"answers,type:jsonb,notnull"`
	RemainingSec int             `bun:"remaining_sec,notnull"`
	IsFinished   bool            `bun:"is_finished,notnull"`
	Result       *domain.Result  `bun:"result,type:jsonb"`
	LastSavedAt  time.Time       `bun:"last_saved_at,notnull"`
	FinishedAt   *time.Time      `bun:"finished_at"`
}

// AttemptStore persists attempt records in the attempts table.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) GetAttempt(ctx context.Context, attemptID string) (domain.AttemptRecord, error) {
	var row attemptRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", attemptID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AttemptRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.AttemptRecord{}, fmt.Errorf("get attempt: %w: %v", domain.ErrUnavailable, err)
	}
	return row.record(), nil
}

func (s *AttemptStore) PutAttempt(ctx context.Context, rec domain.AttemptRecord) error {
	row := newAttemptRow(rec)
	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (id) DO UPDATE").
		Set("answers = EXCLUDED.answers").
		Set("remaining_sec = EXCLUDED.remaining_sec").
		Set("is_finished = EXCLUDED.is_finished").
		Set("result = EXCLUDED.result").
		Set("last_saved_at = EXCLUDED.last_saved_at").
		Set("finished_at = EXCLUDED.finished_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("put attempt: %w: %v", domain.ErrUnavailable, err)
	}
	return nil
}

func newAttemptRow(rec domain.AttemptRecord) attemptRow {
	answers := rec.Answers
	if answers == nil {
		answers = []domain.Answer{}
	}
	return attemptRow{
		ID:           rec.ID,
		Answers:      answers,
		RemainingSec: rec.RemainingSec,
		IsFinished:   rec.IsFinished,
		Result:       rec.Result,
		LastSavedAt:  rec.LastSavedAt.UTC(),
		FinishedAt:   rec.FinishedAt,
	}
}

func (r attemptRow) record() domain.AttemptRecord {
	answers := r.Answers
	if len(answers) == 0 {
		answers = nil
	}
	return domain.AttemptRecord{
		ID:           r.ID,
		Answers:      answers,
		RemainingSec: r.RemainingSec,
		IsFinished:   r.IsFinished,
		Result:       r.Result,
		LastSavedAt:  r.LastSavedAt,
		FinishedAt:   r.FinishedAt,
	}
}

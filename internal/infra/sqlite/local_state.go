// Package sqlite keeps the device-local attempt bookkeeping of the take
// command in a SQLite file so it survives restarts.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// LocalState implements attempt.LocalState on top of SQLite.
type LocalState struct {
	db *sql.DB
}

func NewLocalState(path string) (*LocalState, error) {
	if strings.TrimSpace(path) == "" {
		path = "quiz-state.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	state := &LocalState{db: db}
	if err := state.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return state, nil
}

func (s *LocalState) Close() error {
	return s.db.Close()
}

func (s *LocalState) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS local_attempt (
	slot       INTEGER PRIMARY KEY CHECK (slot = 1),
	attempt_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS last_saves (
	attempt_id TEXT PRIMARY KEY,
	saved_at   INTEGER NOT NULL
);`)
	if err != nil {
		return fmt.Errorf("init local state schema: %w", err)
	}
	return nil
}

func (s *LocalState) AttemptID(ctx context.Context) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT attempt_id FROM local_attempt WHERE slot = 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (s *LocalState) SetAttemptID(ctx context.Context, attemptID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO local_attempt (slot, attempt_id) VALUES (1, ?)
		 ON CONFLICT(slot) DO UPDATE SET attempt_id = excluded.attempt_id`, attemptID)
	return err
}

// LastSave returns the instant of the last acknowledged write, stored with
// millisecond precision.
func (s *LocalState) LastSave(ctx context.Context, attemptID string) (time.Time, bool, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT saved_at FROM last_saves WHERE attempt_id = ?`, attemptID).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

func (s *LocalState) SetLastSave(ctx context.Context, attemptID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO last_saves (attempt_id, saved_at) VALUES (?, ?)
		 ON CONFLICT(attempt_id) DO UPDATE SET saved_at = excluded.saved_at`, attemptID, at.UnixMilli())
	return err
}

func (s *LocalState) Clear(ctx context.Context, attemptID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM local_attempt`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM last_saves WHERE attempt_id = ?`, attemptID); err != nil {
		return err
	}
	return tx.Commit()
}

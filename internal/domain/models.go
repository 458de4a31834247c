package domain

import (
	"fmt"
	"regexp"
	"sort"
	"time"
)

// Question models an MCQ question with exactly one correct option.
// CorrectIndex is the answer key and never leaves the backend.
type Question struct {
	ID           int      `json:"id"`
	Body         string   `json:"body"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
}

// PublicQuestion is what the quiz-taker sees.
type PublicQuestion struct {
	ID      int      `json:"id"`
	Body    string   `json:"body"`
	Options []string `json:"options"`
}

// Public strips the answer key.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{ID: q.ID, Body: q.Body, Options: q.Options}
}

// Quiz is the canonical question set plus its time budget.
type Quiz struct {
	ID          string     `json:"id"`
	DurationSec int        `json:"durationSec"`
	Questions   []Question `json:"questions"`
}

// PublicQuiz is the quiz without the answer key.
type PublicQuiz struct {
	DurationSec int              `json:"durationSec"`
	Questions   []PublicQuestion `json:"questions"`
}

// Public strips the answer key from every question.
func (q Quiz) Public() PublicQuiz {
	out := PublicQuiz{DurationSec: q.DurationSec, Questions: make([]PublicQuestion, 0, len(q.Questions))}
	for _, question := range q.Questions {
		out.Questions = append(out.Questions, question.Public())
	}
	return out
}

// Answer is one selected option for one question.
type Answer struct {
	QuestionID    int `json:"questionId"`
	SelectedIndex int `json:"selectedIndex"`
}

// SortAnswers orders answers by question id so snapshots compare stably.
func SortAnswers(answers []Answer) {
	sort.Slice(answers, func(i, j int) bool { return answers[i].QuestionID < answers[j].QuestionID })
}

// Snapshot is the durable copy of an attempt as seen by the client.
type Snapshot struct {
	Answers      []Answer `json:"answers"`
	RemainingSec int      `json:"remainingSec"`
	IsFinished   bool     `json:"isFinished"`
}

// Validate performs the basic shape check; failures wrap ErrMalformed.
func (s Snapshot) Validate() error {
	if s.RemainingSec < 0 {
		return fmt.Errorf("%w: negative remainingSec %d", ErrMalformed, s.RemainingSec)
	}
	seen := make(map[int]struct{}, len(s.Answers))
	for _, a := range s.Answers {
		if a.SelectedIndex < 0 {
			return fmt.Errorf("%w: negative selectedIndex for question %d", ErrMalformed, a.QuestionID)
		}
		if _, dup := seen[a.QuestionID]; dup {
			return fmt.Errorf("%w: question %d answered twice", ErrMalformed, a.QuestionID)
		}
		seen[a.QuestionID] = struct{}{}
	}
	return nil
}

// Result summarizes a scored attempt.
type Result struct {
	TotalQuestions      int `json:"totalQuestions"`
	TotalAnswered       int `json:"totalAnswered"`
	CorrectCount        int `json:"correctCount"`
	IncorrectCount      int `json:"incorrectCount"`
	CorrectPercentage   int `json:"correctPercentage"`
	IncorrectPercentage int `json:"incorrectPercentage"`
	UnansweredCount     int `json:"unansweredCount"`
}

// AttemptRecord is the backend's stored attempt.
type AttemptRecord struct {
	ID           string     `json:"id"`
	Answers      []Answer   `json:"answers"`
	RemainingSec int        `json:"remainingSec"`
	IsFinished   bool       `json:"isFinished"`
	Result       *Result    `json:"result,omitempty"`
	LastSavedAt  time.Time  `json:"lastSavedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// Snapshot projects the record onto what clients recover from.
func (r AttemptRecord) Snapshot() Snapshot {
	answers := make([]Answer, len(r.Answers))
	copy(answers, r.Answers)
	return Snapshot{Answers: answers, RemainingSec: r.RemainingSec, IsFinished: r.IsFinished}
}

// Attempt feed event types.
const (
	EventSaved    = "saved"
	EventFinished = "finished"
)

// AttemptEvent is published on the attempt feed after each durable change.
type AttemptEvent struct {
	Type      string    `json:"type"`
	AttemptID string    `json:"attemptId"`
	Snapshot  Snapshot  `json:"snapshot"`
	Result    *Result   `json:"result,omitempty"`
	At        time.Time `json:"at"`
}

var attemptIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateAttemptID rejects identifiers that are empty, too long or not URL-safe.
func ValidateAttemptID(id string) error {
	if !attemptIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidAttemptID, id)
	}
	return nil
}

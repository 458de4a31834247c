package domain

import "errors"

var (
	// ErrUnavailable is returned when the backend or a store cannot be reached.
	// It is always recoverable.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrNotFound is returned when no snapshot exists for an attempt.
	ErrNotFound = errors.New("attempt not found")
	// ErrMalformed indicates a snapshot failed shape validation.
	ErrMalformed = errors.New("malformed attempt snapshot")
	// ErrAttemptFinished is returned for mutations of a finished attempt.
	ErrAttemptFinished = errors.New("attempt already finished")
	// ErrInvalidAttemptID rejects empty or oversized attempt identifiers.
	ErrInvalidAttemptID = errors.New("invalid attempt id")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionOutOfRange indicates a selected index outside the question's options.
	ErrOptionOutOfRange = errors.New("option index out of range")
	// ErrDuplicateAnswer indicates two answers for the same question in one write.
	ErrDuplicateAnswer = errors.New("duplicate answer for question")
)

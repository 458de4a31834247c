// Package client talks to the quiz service from the quiz-taker's device.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"timed-quiz-service/internal/domain"
)

// Backend implements attempt.Backend over the REST API.
type Backend struct {
	baseURL string
	http    *http.Client
}

// NewBackend returns a Backend for the service at baseURL. A zero timeout
// keeps the http.Client default.
func NewBackend(baseURL string, timeout time.Duration) *Backend {
	return &Backend{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type saveRequest struct {
	AttemptID    string          `json:"attemptId"`
	Answers      []domain.Answer `json:"answers"`
	RemainingSec int             `json:"remainingSec"`
}

type finishRequest struct {
	AttemptID string `json:"attemptId"`
}

func (b *Backend) LoadQuestions(ctx context.Context) (domain.PublicQuiz, error) {
	var quiz domain.PublicQuiz
	if err := b.do(ctx, http.MethodGet, "/api/quiz", nil, &quiz); err != nil {
		return domain.PublicQuiz{}, fmt.Errorf("load questions: %w", err)
	}
	return quiz, nil
}

func (b *Backend) LoadAttempt(ctx context.Context, attemptID string) (domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := b.do(ctx, http.MethodGet, "/api/attempt/"+url.PathEscape(attemptID), nil, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("load attempt %s: %w", attemptID, err)
	}
	return snap, nil
}

func (b *Backend) SaveAttempt(ctx context.Context, attemptID string, answers []domain.Answer, remainingSec int) error {
	if answers == nil {
		answers = []domain.Answer{}
	}
	req := saveRequest{AttemptID: attemptID, Answers: answers, RemainingSec: remainingSec}
	if err := b.do(ctx, http.MethodPost, "/api/attempt/save", req, nil); err != nil {
		return fmt.Errorf("save attempt %s: %w", attemptID, err)
	}
	return nil
}

func (b *Backend) FinishAttempt(ctx context.Context, attemptID string) (domain.Result, error) {
	var result domain.Result
	if err := b.do(ctx, http.MethodPost, "/api/attempt/finish", finishRequest{AttemptID: attemptID}, &result); err != nil {
		return domain.Result{}, fmt.Errorf("finish attempt %s: %w", attemptID, err)
	}
	return result, nil
}

// Ping checks that the service answers its health probe.
func (b *Backend) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", domain.ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (b *Backend) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env)

	if resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, env)
	}
	if decodeErr != nil || !env.OK {
		return fmt.Errorf("%w: undecodable response", domain.ErrMalformed)
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("%w: empty response data", domain.ErrMalformed)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	return nil
}

// statusError maps a failed response back onto the domain sentinels.
func statusError(status int, env envelope) error {
	msg := http.StatusText(status)
	code := ""
	if env.Error != nil {
		msg = env.Error.Message
		code = env.Error.Code
	}
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrAttemptFinished, msg)
	case status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrMalformed, msg)
	case status == http.StatusBadRequest:
		switch code {
		case "invalid_attempt_id":
			return fmt.Errorf("%w: %s", domain.ErrInvalidAttemptID, msg)
		case "unknown_question":
			return fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, msg)
		case "option_out_of_range":
			return fmt.Errorf("%w: %s", domain.ErrOptionOutOfRange, msg)
		case "duplicate_answer":
			return fmt.Errorf("%w: %s", domain.ErrDuplicateAnswer, msg)
		}
		return fmt.Errorf("bad request: %s", msg)
	case status >= 500 || status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", domain.ErrUnavailable, status, msg)
	default:
		return fmt.Errorf("unexpected status %d: %s", status, msg)
	}
}

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"timed-quiz-service/internal/domain"

	"github.com/go-chi/chi/v5/middleware"
)

// ErrorPayload describes a failed request.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Meta struct {
	RequestID string `json:"request_id,omitempty"`
}

// Envelope wraps every REST response.
type Envelope struct {
	OK    bool          `json:"ok"`
	Data  any           `json:"data,omitempty"`
	Error *ErrorPayload `json:"error,omitempty"`
	Meta  Meta          `json:"meta"`
}

func writeOK(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeEnvelope(w, r, status, Envelope{OK: true, Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	if code == "" {
		code = codeFromStatus(status)
	}
	writeEnvelope(w, r, status, Envelope{Error: &ErrorPayload{Code: code, Message: msg}})
}

func writeEnvelope(w http.ResponseWriter, r *http.Request, status int, res Envelope) {
	res.Meta.RequestID = middleware.GetReqID(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}

// writeServiceError maps domain errors onto HTTP statuses. Internal details
// of unexpected errors are not echoed to the caller.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = ""
	}
	writeError(w, r, status, code, msg)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidAttemptID):
		return http.StatusBadRequest, "invalid_attempt_id"
	case errors.Is(err, domain.ErrQuestionNotFound):
		return http.StatusBadRequest, "unknown_question"
	case errors.Is(err, domain.ErrOptionOutOfRange):
		return http.StatusBadRequest, "option_out_of_range"
	case errors.Is(err, domain.ErrDuplicateAnswer):
		return http.StatusBadRequest, "duplicate_answer"
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrAttemptFinished):
		return http.StatusConflict, "attempt_finished"
	case errors.Is(err, domain.ErrMalformed):
		return http.StatusUnprocessableEntity, "malformed"
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func codeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		if status >= 200 && status < 300 {
			return ""
		}
		return "error"
	}
}

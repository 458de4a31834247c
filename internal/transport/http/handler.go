package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 64 << 10

type answerDTO struct {
	QuestionID    int `json:"questionId" validate:"min=1"`
	SelectedIndex int `json:"selectedIndex" validate:"min=0"`
}

type saveAttemptRequest struct {
	AttemptID    string      `json:"attemptId" validate:"required,max=128"`
	Answers      []answerDTO `json:"answers" validate:"max=1000,dive"`
	RemainingSec *int        `json:"remainingSec" validate:"required,min=0"`
}

type finishAttemptRequest struct {
	AttemptID string `json:"attemptId" validate:"required,max=128"`
}

type saveAttemptResponse struct {
	AttemptID string `json:"attemptId"`
}

// APIHandler serves the REST side of the quiz service.
type APIHandler struct {
	service  *app.QuizService
	validate *validator.Validate
}

func NewAPIHandler(service *app.QuizService) *APIHandler {
	return &APIHandler{service: service, validate: validator.New()}
}

func (h *APIHandler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.service.LoadQuestions(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, quiz)
}

func (h *APIHandler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.LoadAttempt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, snap)
}

func (h *APIHandler) SaveAttempt(w http.ResponseWriter, r *http.Request) {
	var req saveAttemptRequest
	if !h.decode(w, r, &req) {
		return
	}
	answers := make([]domain.Answer, len(req.Answers))
	for i, a := range req.Answers {
		answers[i] = domain.Answer{QuestionID: a.QuestionID, SelectedIndex: a.SelectedIndex}
	}
	if err := h.service.SaveAttempt(r.Context(), req.AttemptID, answers, *req.RemainingSec); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, saveAttemptResponse{AttemptID: req.AttemptID})
}

func (h *APIHandler) FinishAttempt(w http.ResponseWriter, r *http.Request) {
	var req finishAttemptRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.FinishAttempt(r.Context(), req.AttemptID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, result)
}

// decode reads a JSON body into dst and validates it, writing a 400 on failure.
func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_failed", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Namespace()+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}

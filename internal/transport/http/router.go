package http

import (
	"log/slog"
	"net/http"

	"timed-quiz-service/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the REST API, the attempt feed and the health probe.
func NewRouter(service *app.QuizService, log *slog.Logger) http.Handler {
	h := NewAPIHandler(service)
	ws := NewWSHandler(service, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/quiz", h.GetQuiz)
		api.Get("/attempt/{id}", h.GetAttempt)
		api.Post("/attempt/save", h.SaveAttempt)
		api.Post("/attempt/finish", h.FinishAttempt)
	})
	r.Get("/ws/attempt", ws.ServeWS)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "", "route not found")
	})
	return r
}

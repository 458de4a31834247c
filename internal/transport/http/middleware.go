package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// requestLogger logs one structured line per request.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []any{
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"latency_ms", float64(time.Since(start).Microseconds()) / 1000.0,
				"remote_ip", strings.TrimSpace(r.RemoteAddr),
			}
			if id := attemptIDFromRequest(r); id != "" {
				attrs = append(attrs, "attempt_id", id)
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			log.Log(r.Context(), level, "http request", attrs...)
		})
	}
}

func attemptIDFromRequest(r *http.Request) string {
	if id := r.URL.Query().Get("attemptId"); id != "" {
		return id
	}
	if rest, ok := strings.CutPrefix(r.URL.Path, "/api/attempt/"); ok && !strings.Contains(rest, "/") {
		switch rest {
		case "save", "finish":
			return ""
		}
		return rest
	}
	return ""
}

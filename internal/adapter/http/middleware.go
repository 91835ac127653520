package adapthttp

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"salesboard/internal/app"
	"salesboard/internal/domain"
	"salesboard/internal/log"
)

type contextKey string

const dashboardContextKey contextKey = "dashboard"

const sessionCookie = "session"

// authMiddleware resolves the caller's token to its live dashboard.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := requestToken(r)

		// Authelia-style forward auth gets a session on first sight.
		if token == "" && s.trustForwardAuth {
			if remoteUser := r.Header.Get("Remote-User"); remoteUser != "" {
				t, err := s.authSvc.LoginWithUser(r.Context(), remoteUser)
				if err != nil {
					writeError(w, http.StatusUnauthorized, err)
					return
				}
				s.setSessionCookie(w, r, t)
				token = t
			}
		}

		if token == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		d, _, err := s.hub.Open(r.Context(), token)
		if err != nil {
			s.logger.Warn("opening dashboard failed", log.FieldError, err)
			writeError(w, statusFor(err), err)
			return
		}

		ctx := context.WithValue(r.Context(), dashboardContextKey, d)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func dashboardFrom(ctx context.Context) *app.Dashboard {
	d, _ := ctx.Value(dashboardContextKey).(*app.Dashboard)
	return d
}

// requestToken reads a bearer token, falling back to the session cookie.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if t, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(t)
		}
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent events working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// loggingMiddleware tags each request with an id and logs its outcome.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		logger := s.logger.With(log.FieldRequestID, reqID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(log.IntoContext(r.Context(), logger)))

		logger.Info("request",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rec.status,
			log.FieldDuration, time.Since(start).Milliseconds())
	})
}

// statusFor maps application errors to HTTP status codes.
func statusFor(err error) int {
	var (
		validation  *domain.ValidationError
		auth        *domain.AuthError
		persistence *domain.PersistenceError
		cfg         *domain.ConfigError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	case errors.As(err, &auth),
		errors.Is(err, app.ErrSessionNotFound),
		errors.Is(err, app.ErrSessionExpired),
		errors.Is(err, app.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, app.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, app.ErrWeakPassword), errors.Is(err, app.ErrInvalidUsername):
		return http.StatusBadRequest
	case errors.As(err, &persistence):
		return http.StatusBadGateway
	case errors.As(err, &cfg):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

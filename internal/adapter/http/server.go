package adapthttp

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"

	"salesboard/internal/adapter/sso"
	"salesboard/internal/app"
	"salesboard/internal/log"
)

// Options wires a Server to the application services.
type Options struct {
	Auth   *app.AuthService
	Hub    *app.Hub
	SSO    *sso.Provider // nil disables SSO
	WebDir string
	Logger *log.Logger
	// TrustForwardAuth accepts the Remote-User header from a trusted proxy.
	TrustForwardAuth bool
	SessionTTL       time.Duration
}

// Server is the driving HTTP adapter that routes requests to application
// services.
type Server struct {
	authSvc          *app.AuthService
	hub              *app.Hub
	sso              *sso.Provider
	webDir           string
	logger           *log.Logger
	trustForwardAuth bool
	sessionTTL       time.Duration
}

// New creates a Server wired to the given application services.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = app.DefaultSessionTTL
	}
	return &Server{
		authSvc:          opts.Auth,
		hub:              opts.Hub,
		sso:              opts.SSO,
		webDir:           opts.WebDir,
		logger:           opts.Logger.WithComponent(log.ComponentHTTP),
		trustForwardAuth: opts.TrustForwardAuth,
		sessionTTL:       opts.SessionTTL,
	}
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	api.HandleFunc("/config", s.handleConfig)

	api.HandleFunc("/auth/register", s.handleRegister)
	api.HandleFunc("/auth/login", s.handleLogin)
	api.HandleFunc("/auth/anonymous", s.handleAnonymous)
	api.HandleFunc("/auth/logout", s.handleLogout)
	api.HandleFunc("/auth/sso/login", s.handleSSOLogin)
	api.HandleFunc("/auth/sso/callback", s.handleSSOCallback)

	dash := http.NewServeMux()
	dash.HandleFunc("GET /dashboard", s.handleDashboard)
	dash.HandleFunc("PUT /dashboard/form", s.handleSetForm)
	dash.HandleFunc("DELETE /dashboard/error", s.handleDismissError)
	dash.HandleFunc("GET /dashboard/events", s.handleEvents)
	dash.HandleFunc("GET /dashboard/chart.svg", s.handleChart)
	dash.HandleFunc("POST /records", s.handleCreateRecord)
	dash.HandleFunc("DELETE /records/{id}", s.handleDeleteRecord)
	protected := s.authMiddleware(dash)
	api.Handle("/dashboard", protected)
	api.Handle("/dashboard/", protected)
	api.Handle("/records", protected)
	api.Handle("/records/", protected)

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))
	root.Handle("/", spaFromDisk(s.webDir))

	var h http.Handler = withNoCache(root)
	if s.trustForwardAuth {
		h = handlers.ProxyHeaders(h)
	}
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.logger}))(h)
	return s.loggingMiddleware(h)
}

// recoveryLogger reports recovered handler panics through the server log.
type recoveryLogger struct {
	logger *log.Logger
}

func (l recoveryLogger) Println(args ...any) {
	l.logger.Error("handler panic", log.FieldError, fmt.Sprint(args...))
}

// Package handlers wires the calendar's HTTP surface: the HTML form routes,
// the JSON event routes used by the calendar page and API clients, and the
// middleware around them.
package handlers

import (
	"net/http"
	"os"

	"calendar/auth"
	"calendar/config"
	"calendar/crypto"
	"calendar/db"
	"calendar/events"
	"calendar/i18n"
	"calendar/metrics"

	"github.com/dchest/captcha"
	"github.com/rs/zerolog"
)

// Server holds the services behind the routes. Build it with NewServer.
type Server struct {
	cfg      *config.Config
	logger   zerolog.Logger
	auth     *auth.Service
	sessions *auth.Sessions
	tokens   *auth.Tokens
	events   *events.Service
	renderer Renderer
	catalog  *i18n.Catalog

	loginLimiter  *rateLimiter
	signupLimiter *rateLimiter

	mux *http.ServeMux
}

// NewServer builds the stores and services on top of docs and registers
// every route.
func NewServer(cfg *config.Config, logger zerolog.Logger, docs db.Documents) (*Server, error) {
	catalog, err := i18n.Load()
	if err != nil {
		return nil, err
	}
	renderer, err := NewTemplateRenderer(cfg.AppName, catalog)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:           cfg,
		logger:        logger,
		auth:          auth.NewService(db.NewUserStore(docs), cfg.BcryptCost, logger),
		sessions:      auth.NewSessions(cfg),
		tokens:        auth.NewTokens(cfg),
		events:        events.NewService(db.NewEventStore(docs, logger), logger),
		renderer:      renderer,
		catalog:       catalog,
		loginLimiter:  newRateLimiter(cfg.LoginAttempts, cfg.LoginWindow()),
		signupLimiter: newRateLimiter(cfg.LoginAttempts, cfg.LoginWindow()),
		mux:           http.NewServeMux(),
	}
	s.registerHandlers()
	return s, nil
}

// WithRenderer swaps the HTML renderer.
func (s *Server) WithRenderer(r Renderer) *Server {
	s.renderer = r
	return s
}

// Auth exposes the account service, for the command line tools.
func (s *Server) Auth() *auth.Service { return s.auth }

func (s *Server) registerHandlers() {
	protect := noCSRF
	if !s.cfg.DisableCSRF {
		protect = CSRFProtection(crypto.DeriveKey(s.cfg.SessionKey, crypto.PurposeCSRF), s.cfg.CookieSecure)
	}

	mux := s.mux
	mux.HandleFunc("GET /{$}", s.IndexHandler)
	mux.Handle("/signup", protect(http.HandlerFunc(s.SignupHandler)))
	mux.Handle("/login", protect(http.HandlerFunc(s.LoginHandler)))
	mux.HandleFunc("/logout", s.LogoutHandler)
	mux.HandleFunc("GET /calendar", s.CalendarHandler)

	// JSON routes, session cookie or bearer token
	mux.HandleFunc("GET /get_events", s.GetEventsHandler)
	mux.HandleFunc("POST /save_event", s.SaveEventHandler)
	mux.HandleFunc("POST /delete_event", s.DeleteEventHandler)
	mux.HandleFunc("POST /api/v1/token", s.TokenHandler)

	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.Handle("GET /metrics", metrics.Handler())

	if info, err := os.Stat(s.cfg.StaticDir); err == nil && info.IsDir() {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.cfg.StaticDir))))
	}
	if s.cfg.Captcha {
		mux.Handle("GET /captcha/", captcha.Server(captcha.StdWidth, captcha.StdHeight))
	}
}

// Handler returns the routes wrapped in the middleware chain, outermost
// first: correlation id, access log, metrics, security headers, CORS.
func (s *Server) Handler() http.Handler {
	route := func(r *http.Request) string {
		_, pattern := s.mux.Handler(r)
		if pattern == "" {
			return "unmatched"
		}
		return pattern
	}

	var h http.Handler = s.mux
	h = CORSMiddleware(s.cfg.CORSOrigins)(h)
	h = SecurityHeadersMiddleware(h)
	h = metrics.HTTPMiddleware(route)(h)
	h = RequestLogging(h)
	h = CorrelationID(s.logger)(h)
	return h
}

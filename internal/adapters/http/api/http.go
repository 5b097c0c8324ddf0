// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/duel/internal/adapters/repository"
	service "github.com/okian/duel/internal/app"
	"github.com/okian/duel/internal/domain/candidate"
	"github.com/okian/duel/internal/domain/phase"
	"github.com/okian/duel/internal/domain/selection"
	"github.com/okian/duel/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionDependencies
	ParticipantDependencies
	AdminDependencies
	ResultsDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	participantHandler *ParticipantHandler
	adminHandler       *AdminHandler
	resultsHandler     *ResultsHandler
}

// Option configures the Server.
type Option func(*options)

type options struct {
	cookie       string
	secure       bool
	cookieMaxAge time.Duration
	adminToken   string
	resultsLimit int
	logger       logger.Logger
}

// WithSessionCookie sets the name of the cookie carrying the session id.
func WithSessionCookie(name string) Option {
	return func(o *options) {
		if name != "" {
			o.cookie = name
		}
	}
}

// WithSecureCookies marks the session cookie Secure.
func WithSecureCookies(secure bool) Option {
	return func(o *options) { o.secure = secure }
}

// WithAdminToken enables the admin endpoints behind a bearer token.
func WithAdminToken(token string) Option {
	return func(o *options) { o.adminToken = token }
}

// WithResultsLimit sets the default number of report rows.
func WithResultsLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.resultsLimit = n
		}
	}
}

// WithLogger sets a custom logger for handlers.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	o := options{
		cookie:       "duel_session",
		cookieMaxAge: 365 * 24 * time.Hour,
		resultsLimit: 50,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Named("api")
	}
	sessions := &sessionResolver{deps: deps, cookie: o.cookie, secure: o.secure, maxAge: o.cookieMaxAge}

	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		participantHandler: NewParticipantHandler(deps, sessions, o.logger),
		adminHandler:       NewAdminHandler(deps, o.adminToken, o.logger),
		resultsHandler:     NewResultsHandler(deps, o.resultsLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleHealth)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("/pair", MetricsMiddleware(s.participantHandler.HandlePair, "pair"))
	mux.HandleFunc("/status", MetricsMiddleware(s.participantHandler.HandleStatus, "status"))
	mux.HandleFunc("/choices", MetricsMiddleware(s.participantHandler.HandleChoice, "choices"))
	mux.HandleFunc("/neither", MetricsMiddleware(s.participantHandler.HandleNeither, "neither"))
	mux.HandleFunc("/submissions", MetricsMiddleware(s.participantHandler.HandleSubmission, "submissions"))

	mux.HandleFunc("/admin/phase", MetricsMiddleware(s.adminHandler.HandlePhase, "admin_phase"))
	mux.HandleFunc("/results/", MetricsMiddleware(s.resultsHandler.HandleResults, "results"))
}

type errorResponse struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Status: status, Code: code, Message: msg})
}

// writeServiceError maps domain errors to responses. Core conditions never
// surface as 500.
func writeServiceError(ctx context.Context, log logger.Logger, w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		log.Error(ctx, "request failed", logger.Error(err))
	}
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, selection.ErrGenerationUnavailable):
		return http.StatusServiceUnavailable, "generation_unavailable"
	case errors.Is(err, service.ErrStaleToken):
		return http.StatusConflict, "stale_token"
	case errors.Is(err, service.ErrSessionComplete):
		return http.StatusConflict, "session_complete"
	case errors.Is(err, service.ErrPhaseDisabled):
		return http.StatusConflict, "phase_disabled"
	case errors.Is(err, service.ErrNeitherNotAllowed), errors.Is(err, service.ErrSubmitNotAllowed):
		return http.StatusConflict, "not_allowed"
	case errors.Is(err, service.ErrPhaseReadOnly):
		return http.StatusConflict, "read_only"
	case errors.Is(err, service.ErrUnknownOption):
		return http.StatusBadRequest, "unknown_option"
	case errors.Is(err, candidate.ErrEmptyText), errors.Is(err, candidate.ErrTextTooLong):
		return http.StatusBadRequest, "invalid_text"
	case errors.Is(err, phase.ErrInvalidConfig):
		return http.StatusBadRequest, "invalid_phase"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

const maxBodyBytes = 64 << 10

var validate = validator.New()

// decode reads a JSON body into dst and validates its struct tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %w", ErrBadRequest, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

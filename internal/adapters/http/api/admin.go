package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/okian/duel/internal/domain/phase"
	"github.com/okian/duel/pkg/logger"
)

// AdminDependencies defines the phase operations behind the admin token.
type AdminDependencies interface {
	Phase(ctx context.Context) (phase.Config, error)
	SetPhase(ctx context.Context, cfg phase.Config) error
}

// phaseRequest mirrors the OpenAPI schema for PUT /admin/phase.
type phaseRequest struct {
	CurrentStep  *int   `json:"current_step" validate:"required,gte=0,lte=2"`
	RoundsTarget int    `json:"rounds_target" validate:"required,gte=1"`
	Prompt       string `json:"prompt" validate:"max=4000"`
}

// AdminHandler reads and changes the phase configuration.
type AdminHandler struct {
	deps   AdminDependencies
	token  string
	logger logger.Logger
}

// NewAdminHandler creates a new admin handler. An empty token disables it.
func NewAdminHandler(deps AdminDependencies, token string, log logger.Logger) *AdminHandler {
	return &AdminHandler{deps: deps, token: token, logger: log}
}

// HandlePhase handles GET and PUT /admin/phase requests.
func (h *AdminHandler) HandlePhase(w http.ResponseWriter, r *http.Request) {
	if h.token == "" {
		http.NotFound(w, r)
		return
	}
	if !h.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
		writeError(w, http.StatusUnauthorized, "unauthorized", ErrUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		cfg, err := h.deps.Phase(r.Context())
		if err != nil {
			writeServiceError(r.Context(), h.logger, w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	case http.MethodPut:
		var req phaseRequest
		if err := decode(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		cfg := phase.Config{
			CurrentStep:  phase.Step(*req.CurrentStep),
			RoundsTarget: req.RoundsTarget,
			Prompt:       req.Prompt,
		}
		if err := h.deps.SetPhase(r.Context(), cfg); err != nil {
			writeServiceError(r.Context(), h.logger, w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	default:
		http.NotFound(w, r)
	}
}

func (h *AdminHandler) authorized(r *http.Request) bool {
	got := r.Header.Get("X-Admin-Token")
	if auth := r.Header.Get("Authorization"); got == "" && strings.HasPrefix(auth, "Bearer ") {
		got = strings.TrimPrefix(auth, "Bearer ")
	}
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

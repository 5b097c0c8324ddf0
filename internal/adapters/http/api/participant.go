package api

import (
	"context"
	"net/http"

	"github.com/okian/duel/internal/domain/types"
	"github.com/okian/duel/pkg/logger"
)

// ParticipantDependencies defines the operations available to participants.
type ParticipantDependencies interface {
	Current(ctx context.Context, sessionID string) (types.Next, error)
	Status(ctx context.Context, sessionID string) (types.Status, error)
	Choose(ctx context.Context, sessionID, token string, optionID int64) (types.Next, error)
	Neither(ctx context.Context, sessionID, token string) (types.Next, error)
	Submit(ctx context.Context, sessionID, text string) (types.Next, error)
}

// choiceRequest mirrors the OpenAPI schema for POST /choices.
type choiceRequest struct {
	Token    string `json:"token" validate:"required,max=128"`
	OptionID int64  `json:"option_id" validate:"required,gt=0"`
}

// neitherRequest mirrors the OpenAPI schema for POST /neither.
type neitherRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

// submissionRequest mirrors the OpenAPI schema for POST /submissions.
type submissionRequest struct {
	Text string `json:"text" validate:"required,max=1024"`
}

// ParticipantHandler serves pairs and accepts votes.
type ParticipantHandler struct {
	deps     ParticipantDependencies
	sessions *sessionResolver
	logger   logger.Logger
}

// NewParticipantHandler creates a new participant handler.
func NewParticipantHandler(deps ParticipantDependencies, sessions *sessionResolver, log logger.Logger) *ParticipantHandler {
	return &ParticipantHandler{deps: deps, sessions: sessions, logger: log}
}

// HandlePair handles GET /pair requests.
func (h *ParticipantHandler) HandlePair(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	sessionID := h.sessions.resolve(w, r)
	next, err := h.deps.Current(r.Context(), sessionID)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

// HandleStatus handles GET /status requests.
func (h *ParticipantHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	sessionID := h.sessions.resolve(w, r)
	status, err := h.deps.Status(r.Context(), sessionID)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleChoice handles POST /choices requests.
func (h *ParticipantHandler) HandleChoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req choiceRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	sessionID := h.sessions.resolve(w, r)
	next, err := h.deps.Choose(r.Context(), sessionID, req.Token, req.OptionID)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

// HandleNeither handles POST /neither requests.
func (h *ParticipantHandler) HandleNeither(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req neitherRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	sessionID := h.sessions.resolve(w, r)
	next, err := h.deps.Neither(r.Context(), sessionID, req.Token)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

// HandleSubmission handles POST /submissions requests.
func (h *ParticipantHandler) HandleSubmission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req submissionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	sessionID := h.sessions.resolve(w, r)
	next, err := h.deps.Submit(r.Context(), sessionID, req.Text)
	if err != nil {
		writeServiceError(r.Context(), h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, next)
}

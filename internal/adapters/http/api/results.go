package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/duel/internal/domain/types"
)

const maxResultsLimit = 1000

// ResultsDependencies defines the aggregate report operations.
type ResultsDependencies interface {
	Popularity(ctx context.Context, limit int) ([]types.PopularityEntry, error)
	Streaks(ctx context.Context, limit int) ([]types.StreakEntry, error)
	Winners(ctx context.Context, limit int) ([]types.WinnerEntry, error)
}

// ResultsHandler serves the phase reports.
type ResultsHandler struct {
	deps         ResultsDependencies
	defaultLimit int
}

// NewResultsHandler creates a new results handler.
func NewResultsHandler(deps ResultsDependencies, defaultLimit int) *ResultsHandler {
	return &ResultsHandler{deps: deps, defaultLimit: defaultLimit}
}

// HandleResults handles GET /results/{popularity|streaks|winners}?limit=N requests.
func (h *ResultsHandler) HandleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxResultsLimit {
			writeError(w, http.StatusBadRequest, "bad_request",
				fmt.Errorf("%w: limit must be between 1 and %d", ErrBadRequest, maxResultsLimit))
			return
		}
		limit = n
	}

	var (
		body any
		err  error
	)
	switch strings.TrimPrefix(r.URL.Path, "/results/") {
	case "popularity":
		body, err = h.deps.Popularity(r.Context(), limit)
	case "streaks":
		body, err = h.deps.Streaks(r.Context(), limit)
	case "winners":
		body, err = h.deps.Winners(r.Context(), limit)
	default:
		writeError(w, http.StatusNotFound, "not_found", ErrNotFound)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

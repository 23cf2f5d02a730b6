package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vncsmyrnk/tally/internal/core/domain"
)

func statementIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, domain.ErrInvalidStatementID.Error(), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// writeJSON logs encode failures; the status line is already on the wire.
func writeJSON(w http.ResponseWriter, r *http.Request, log *zap.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("failed to encode response", zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrStatementNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrIdentityUnresolved):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrWriteFailed):
		log.Warn("vote write failed", zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
		http.Error(w, domain.ErrWriteFailed.Error(), http.StatusServiceUnavailable)
	default:
		log.Error("request failed", zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
		http.Error(w, domain.ErrInternal.Error(), http.StatusInternalServerError)
	}
}

package http

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

type TallyHandler struct {
	service ports.TallyService
	log     *zap.Logger
}

func NewTallyHandler(service ports.TallyService, log *zap.Logger) *TallyHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &TallyHandler{
		service: service,
		log:     log,
	}
}

func (h *TallyHandler) GetTally(w http.ResponseWriter, r *http.Request) {
	statementID, ok := statementIDParam(w, r)
	if !ok {
		return
	}

	tally, err := h.service.Tally(r.Context(), statementID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, r, h.log, http.StatusOK, tally)
}

func (h *TallyHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	statementID, ok := statementIDParam(w, r)
	if !ok {
		return
	}

	window := 0
	if raw := r.URL.Query().Get("window"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, domain.ErrInvalidWindow.Error(), http.StatusBadRequest)
			return
		}
		window = n
	}

	series, err := h.service.DailySeries(r.Context(), statementID, window)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	if series == nil {
		series = []domain.DailyBucket{}
	}

	writeJSON(w, r, h.log, http.StatusOK, series)
}

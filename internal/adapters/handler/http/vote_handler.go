package http

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

type VoteHandler struct {
	service ports.VoteService
	log     *zap.Logger
}

func NewVoteHandler(service ports.VoteService, log *zap.Logger) *VoteHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &VoteHandler{
		service: service,
		log:     log,
	}
}

type voteRequest struct {
	Value  domain.Value `json:"value"`
	Region *string      `json:"region,omitempty"`
}

type eraseResponse struct {
	Statements int `json:"statements"`
}

// VoteOnStatement godoc
// @Summary      Casts or changes the caller's vote on a statement
// @Tags         votes
// @Accept       json
// @Produce      json
// @Success      200
// @Failure      400
// @Failure      404
// @Router       /api/statements/{id}/votes [post]
func (h *VoteHandler) VoteOnStatement(w http.ResponseWriter, r *http.Request) {
	statementID, ok := statementIDParam(w, r)
	if !ok {
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	out, err := h.service.Vote(r.Context(), ports.VoteInput{
		StatementID: statementID,
		Value:       req.Value,
		Region:      req.Region,
		Caller:      callerFromRequest(r),
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, r, h.log, http.StatusOK, out)
}

// EraseAnonymous godoc
// @Summary      Erases every vote cast by the caller's anonymous identity
// @Tags         votes
// @Produce      json
// @Success      200
// @Router       /api/votes/anonymous [delete]
func (h *VoteHandler) EraseAnonymous(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.EraseAnonymous(r.Context(), anonymousCaller(r))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, r, h.log, http.StatusOK, eraseResponse{Statements: n})
}

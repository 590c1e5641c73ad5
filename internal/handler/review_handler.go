package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/bandexam-backend/internal/model"
	"github.com/stemsi/bandexam-backend/internal/response"
	"github.com/stemsi/bandexam-backend/internal/service"
	"github.com/stemsi/bandexam-backend/internal/validator"
)

const defaultPendingLimit = 50

// ReviewHandler serves the manual review collaborator.
type ReviewHandler struct {
	submissions *service.SubmissionService
	log         zerolog.Logger
}

// NewReviewHandler creates a new ReviewHandler.
func NewReviewHandler(submissions *service.SubmissionService, log zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		submissions: submissions,
		log:         log.With().Str("component", "review_handler").Logger(),
	}
}

// ListPending godoc
// GET /api/v1/review/submissions/pending?limit=50
func (h *ReviewHandler) ListPending(c *gin.Context) {
	limit := defaultPendingLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
				"limit": "must be a positive integer",
			})
			return
		}
		limit = n
	}

	ids, err := h.submissions.PendingReviews(c.Request.Context(), limit)
	if err != nil {
		// Malformed members are skipped; the rest is still usable.
		h.log.Warn().Err(err).Msg("Pending review listing degraded")
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}

	response.SuccessWithPage(c, http.StatusOK, gin.H{"submission_ids": ids}, &response.Page{
		Limit:   limit,
		Count:   len(ids),
		Partial: err != nil,
	})
}

// GetSubmission godoc
// GET /api/v1/review/submissions/:id
func (h *ReviewHandler) GetSubmission(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	sub, err := h.submissions.Lookup(c.Request.Context(), id)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submission": sub})
}

// ApplyScore godoc
// POST /api/v1/review/submissions/:id/scores
// Stores a writing or speaking band and recomputes the overall band.
func (h *ReviewHandler) ApplyScore(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	var req model.ManualScoreRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sub, err := h.submissions.ApplyManualScore(c.Request.Context(), id, req.Skill, req.Band)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	h.log.Info().
		Str("submission_id", id.String()).
		Str("skill", string(req.Skill)).
		Float64("band", req.Band).
		Msg("Manual band applied")

	response.Success(c, http.StatusOK, gin.H{"submission": sub})
}

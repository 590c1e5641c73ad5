package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/bandexam-backend/internal/middleware"
	"github.com/stemsi/bandexam-backend/internal/model"
	"github.com/stemsi/bandexam-backend/internal/response"
	"github.com/stemsi/bandexam-backend/internal/service"
	"github.com/stemsi/bandexam-backend/internal/validator"
)

// SubmissionHandler handles candidate-facing exam session endpoints.
type SubmissionHandler struct {
	submissions *service.SubmissionService
	log         zerolog.Logger
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(submissions *service.SubmissionService, log zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		submissions: submissions,
		log:         log.With().Str("component", "submission_handler").Logger(),
	}
}

// StartTest godoc
// POST /api/v1/candidate/tests/:test_id/start
// Creates an attempt whose clock starts immediately.
func (h *SubmissionHandler) StartTest(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	testID, ok := paramUUID(c, "test_id")
	if !ok {
		return
	}

	sub, err := h.submissions.Start(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"submission": sub})
}

// ReserveTest godoc
// POST /api/v1/candidate/tests/:test_id/submissions
// Reserves an attempt in CREATED status; the clock starts on begin.
func (h *SubmissionHandler) ReserveTest(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	testID, ok := paramUUID(c, "test_id")
	if !ok {
		return
	}

	sub, err := h.submissions.Create(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"submission": sub})
}

// Begin godoc
// POST /api/v1/candidate/submissions/:id/begin
func (h *SubmissionHandler) Begin(c *gin.Context) {
	h.transition(c, h.submissions.Begin)
}

// Pause godoc
// POST /api/v1/candidate/submissions/:id/pause
func (h *SubmissionHandler) Pause(c *gin.Context) {
	h.transition(c, h.submissions.Pause)
}

// Resume godoc
// POST /api/v1/candidate/submissions/:id/resume
func (h *SubmissionHandler) Resume(c *gin.Context) {
	h.transition(c, h.submissions.Resume)
}

// Abandon godoc
// POST /api/v1/candidate/submissions/:id/abandon
func (h *SubmissionHandler) Abandon(c *gin.Context) {
	h.transition(c, h.submissions.Abandon)
}

// GetSubmission godoc
// GET /api/v1/candidate/submissions/:id
// Returns the submission so a reloaded page can restore answers, cursor and
// remaining time.
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	h.transition(c, h.submissions.Get)
}

// SaveProgress godoc
// PATCH /api/v1/candidate/submissions/:id/progress
// Merges an answer delta and cursor move into the attempt.
func (h *SubmissionHandler) SaveProgress(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	var req model.SaveProgressRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.submissions.SaveProgress(c.Request.Context(), id, claims.UserID, service.ProgressInput{
		Answers:      req.Answers,
		Cursor:       req.Cursor,
		ElapsedDelta: req.ElapsedDelta,
	})
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Submit godoc
// POST /api/v1/candidate/submissions/:id/submit
// Scores the attempt. The body may carry answers that were not saved yet.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	var req model.SubmitRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	sub, err := h.submissions.Submit(c.Request.Context(), id, claims.UserID, req.Answers)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submission": sub})
}

// ReportEvent godoc
// POST /api/v1/candidate/submissions/:id/events
// Records a tab switch, a warning or a technical issue.
func (h *SubmissionHandler) ReportEvent(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	var req model.ReportEventRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sub, err := h.submissions.ReportEvent(c.Request.Context(), id, claims.UserID, req.Kind, req.Message)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"tab_switch_count": sub.Metadata.TabSwitchCount,
		"flags":            sub.Flags,
	})
}

// DeleteSubmission godoc
// DELETE /api/v1/candidate/submissions/:id
func (h *SubmissionHandler) DeleteSubmission(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	if err := h.submissions.Delete(c.Request.Context(), id, claims.UserID); err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Submission deleted"})
}

// ListHistory godoc
// GET /api/v1/candidate/submissions
// Returns scored attempts, newest first, with the improvement rate.
func (h *SubmissionHandler) ListHistory(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	history, err := h.submissions.ListHistory(c.Request.Context(), claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	if history.Attempts == nil {
		history.Attempts = []service.HistoryEntry{}
	}

	response.Success(c, http.StatusOK, history)
}

type ownedAction func(ctx context.Context, id uuid.UUID, userID int) (*model.Submission, error)

// transition runs a body-less, owner-scoped action and returns the submission.
func (h *SubmissionHandler) transition(c *gin.Context, action ownedAction) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	sub, err := action(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submission": sub})
}

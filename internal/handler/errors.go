package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/bandexam-backend/internal/response"
	"github.com/stemsi/bandexam-backend/internal/service"
)

// classify maps a service error onto an HTTP status and envelope code.
func classify(err error) (int, response.ErrCode) {
	switch {
	// Scoring errors may wrap content errors; the attempt stays open for a retry.
	case errors.Is(err, service.ErrScoring):
		return http.StatusInternalServerError, response.ErrScoringFailed
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, response.ErrValidation
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, response.ErrSubmissionNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, response.ErrActiveSubmissionExists
	case errors.Is(err, service.ErrInvalidStateTransition):
		return http.StatusConflict, response.ErrInvalidTransition
	case errors.Is(err, service.ErrTestUnavailable):
		return http.StatusNotFound, response.ErrTestNotAvailable
	case errors.Is(err, service.ErrPauseNotAllowed):
		return http.StatusForbidden, response.ErrPauseNotAllowed
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failService writes the envelope matching a service error.
func failService(c *gin.Context, log zerolog.Logger, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}

	var ve *service.ValidationError
	if errors.As(err, &ve) {
		response.FailWithFields(c, status, code, ve.Fields)
		return
	}
	response.Fail(c, status, code)
}

// paramUUID parses a UUID path parameter, writing INVALID_ID on failure.
func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/bandexam-backend/internal/model"
	"github.com/stemsi/bandexam-backend/internal/response"
	"github.com/stemsi/bandexam-backend/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   response.ErrCode
	}{
		{"not found", service.ErrNotFound, http.StatusNotFound, response.ErrSubmissionNotFound},
		{"conflict", fmt.Errorf("start: %w", service.ErrConflict), http.StatusConflict, response.ErrActiveSubmissionExists},
		{"transition", &service.TransitionError{From: model.SubmissionStatusCompleted, Event: service.EventSubmit}, http.StatusConflict, response.ErrInvalidTransition},
		{"validation", &service.ValidationError{Fields: map[string]string{"answers[0].skill": "unknown skill"}}, http.StatusBadRequest, response.ErrValidation},
		{"scoring", &service.ScoringError{Err: errors.New("content store down")}, http.StatusInternalServerError, response.ErrScoringFailed},
		{"scoring wraps missing content", &service.ScoringError{Err: fmt.Errorf("load test content: %w", service.ErrTestUnavailable)}, http.StatusInternalServerError, response.ErrScoringFailed},
		{"scoring wraps not found", fmt.Errorf("submit: %w", &service.ScoringError{Err: service.ErrNotFound}), http.StatusInternalServerError, response.ErrScoringFailed},
		{"unavailable", service.ErrTestUnavailable, http.StatusNotFound, response.ErrTestNotAvailable},
		{"pause", service.ErrPauseNotAllowed, http.StatusForbidden, response.ErrPauseNotAllowed},
		{"other", errors.New("connection reset"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestFailServiceIncludesValidationFields(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPatch, "/", nil)

	failService(c, zerolog.Nop(), &service.ValidationError{Fields: map[string]string{"elapsed_delta": "must not be negative"}})

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, response.ErrValidation, body.Error.Code)
	assert.Equal(t, "must not be negative", body.Error.Fields["elapsed_delta"])
}

func TestParamUUIDRejectsGarbage(t *testing.T) {
	r := gin.New()
	h := NewSubmissionHandler(nil, zerolog.Nop())
	r.GET("/submissions/:id", func(c *gin.Context) {
		c.Set("claims", &service.Claims{UserID: 1, TokenType: service.TokenTypeCandidate})
		h.GetSubmission(c)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/submissions/not-a-uuid", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), string(response.ErrInvalidID))
}

func TestSubmissionHandlerRequiresClaims(t *testing.T) {
	r := gin.New()
	h := NewSubmissionHandler(nil, zerolog.Nop())
	r.GET("/submissions", h.ListHistory)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/submissions", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListPendingRejectsBadLimit(t *testing.T) {
	r := gin.New()
	h := NewReviewHandler(nil, zerolog.Nop())
	r.GET("/pending", h.ListPending)

	for _, q := range []string{"0", "-3", "ten"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pending?limit="+q, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

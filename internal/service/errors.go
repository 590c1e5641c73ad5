package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/stemsi/bandexam-backend/internal/model"
)

// Sentinel errors returned by the session engine. Handlers match them with
// errors.Is and map them onto response codes.
var (
	ErrNotFound               = errors.New("submission not found")
	ErrConflict               = errors.New("an active submission already exists for this test")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrValidation             = errors.New("validation failed")
	ErrScoring                = errors.New("scoring failed")
	ErrTestUnavailable        = errors.New("test is not available")
	ErrPauseNotAllowed        = errors.New("test does not allow pausing")
)

// ValidationError carries field-level messages for a rejected payload.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TransitionError reports an event that the current status does not accept.
type TransitionError struct {
	From  model.SubmissionStatus
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a submission in status %s", e.Event, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }

// ScoringError wraps a failure of the evaluation or aggregation path.
type ScoringError struct {
	Err error
}

func (e *ScoringError) Error() string { return "scoring failed: " + e.Err.Error() }

// Is lets errors.Is match both ErrScoring and the wrapped cause.
func (e *ScoringError) Is(target error) bool { return target == ErrScoring }

func (e *ScoringError) Unwrap() error { return e.Err }

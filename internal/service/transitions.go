package service

import (
	"slices"

	"github.com/stemsi/bandexam-backend/internal/model"
)

// Event names a lifecycle operation on a submission.
type Event string

const (
	EventBegin        Event = "begin"
	EventSaveProgress Event = "save progress of"
	EventPause        Event = "pause"
	EventResume       Event = "resume"
	EventSubmit       Event = "submit"
	EventExpire       Event = "expire"
	EventAbandon      Event = "abandon"
	EventReport       Event = "report an event on"
	EventDelete       Event = "delete"
	EventReview       Event = "review"
)

// sources lists, per event, the statuses the event may leave from.
var sources = map[Event][]model.SubmissionStatus{
	EventBegin:        {model.SubmissionStatusCreated},
	EventSaveProgress: {model.SubmissionStatusInProgress, model.SubmissionStatusPaused},
	EventPause:        {model.SubmissionStatusInProgress},
	EventResume:       {model.SubmissionStatusPaused},
	EventSubmit:       {model.SubmissionStatusInProgress, model.SubmissionStatusPaused},
	EventExpire:       {model.SubmissionStatusInProgress, model.SubmissionStatusPaused},
	EventAbandon:      {model.SubmissionStatusCreated, model.SubmissionStatusInProgress, model.SubmissionStatusPaused},
	EventReport:       {model.SubmissionStatusInProgress, model.SubmissionStatusPaused},
	EventDelete:       {model.SubmissionStatusCreated, model.SubmissionStatusInProgress, model.SubmissionStatusPaused, model.SubmissionStatusAbandoned},
	EventReview:       {model.SubmissionStatusCompleted, model.SubmissionStatusExpired},
}

// CanApply reports whether event is accepted from status.
func CanApply(status model.SubmissionStatus, event Event) bool {
	return slices.Contains(sources[event], status)
}

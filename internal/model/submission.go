package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus enumerates the states of an exam attempt.
type SubmissionStatus string

const (
	SubmissionStatusCreated    SubmissionStatus = "CREATED"
	SubmissionStatusInProgress SubmissionStatus = "IN_PROGRESS"
	SubmissionStatusPaused     SubmissionStatus = "PAUSED"
	SubmissionStatusCompleted  SubmissionStatus = "COMPLETED"
	SubmissionStatusAbandoned  SubmissionStatus = "ABANDONED"
	SubmissionStatusExpired    SubmissionStatus = "EXPIRED"
)

// ActiveStatuses are the statuses that count towards the one-active-attempt rule.
var ActiveStatuses = []SubmissionStatus{
	SubmissionStatusCreated,
	SubmissionStatusInProgress,
	SubmissionStatusPaused,
}

// IsTerminal reports whether no further transition may leave the status.
func (s SubmissionStatus) IsTerminal() bool {
	switch s {
	case SubmissionStatusCompleted, SubmissionStatusAbandoned, SubmissionStatusExpired:
		return true
	}
	return false
}

// Cursor is the candidate's navigation bookmark. It is not used for scoring.
type Cursor struct {
	Skill         Skill `json:"skill" binding:"omitempty,oneof=reading listening writing speaking"`
	SectionIndex  int   `json:"section_index" binding:"min=0"`
	QuestionIndex int   `json:"question_index" binding:"min=0"`
}

// Scores holds per-skill bands and the overall band.
// Overall is nil until at least one skill has a positive band.
type Scores struct {
	Skills  map[Skill]float64 `json:"skills"`
	Overall *float64          `json:"overall,omitempty"`
}

// SkillResult is the correct/total breakdown for one auto-scored skill.
type SkillResult struct {
	Correct    int     `json:"correct"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// QuestionResult is the audit record of one evaluated question.
type QuestionResult struct {
	QuestionID string  `json:"question_id"`
	SectionID  string  `json:"section_id"`
	Skill      Skill   `json:"skill"`
	Type       string  `json:"type"`
	Submitted  any     `json:"submitted"`
	Expected   any     `json:"expected"`
	Correct    bool    `json:"correct"`
	Points     float64 `json:"points"`
}

// Results is the scoring outcome written at submit/expiry.
type Results struct {
	TotalQuestions int                   `json:"total_questions"`
	CorrectAnswers int                   `json:"correct_answers"`
	PerSkill       map[Skill]SkillResult `json:"per_skill"`
	Questions      []QuestionResult      `json:"questions"`
}

// Flags annotate post-completion workflows.
type Flags struct {
	NeedsManualReview  bool `json:"needs_manual_review"`
	IsReviewed         bool `json:"is_reviewed"`
	HasTechnicalIssues bool `json:"has_technical_issues"`
}

// Warning is one entry of a submission's free-form warning log.
type Warning struct {
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	RecordedAt time.Time `json:"recorded_at"`
}

// SessionMetadata counts lifecycle events that do not affect scoring.
type SessionMetadata struct {
	PauseCount     int       `json:"pause_count"`
	ResumeCount    int       `json:"resume_count"`
	TabSwitchCount int       `json:"tab_switch_count"`
	Warnings       []Warning `json:"warnings"`
}

// Submission is one user's attempt at one test.
type Submission struct {
	ID     uuid.UUID        `json:"id"`
	TestID uuid.UUID        `json:"test_id"`
	UserID int              `json:"user_id"`
	Status SubmissionStatus `json:"status"`

	StartedAt        *time.Time `json:"started_at,omitempty"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	PausedAt         *time.Time `json:"paused_at,omitempty"`
	PausedSeconds    int        `json:"paused_seconds"`
	ElapsedSeconds   int        `json:"elapsed_seconds"`
	RemainingSeconds *int       `json:"remaining_seconds,omitempty"`
	TimeLimitSeconds *int       `json:"time_limit_seconds,omitempty"`

	Cursor   Cursor          `json:"cursor"`
	Answers  AnswerSet       `json:"answers"`
	Scores   *Scores         `json:"scores,omitempty"`
	Results  *Results        `json:"results,omitempty"`
	Flags    Flags           `json:"flags"`
	Metadata SessionMetadata `json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CompletionEvent is published to the notification collaborator after scoring.
type CompletionEvent struct {
	SubmissionID      uuid.UUID        `json:"submission_id"`
	UserID            int              `json:"user_id"`
	TestID            uuid.UUID        `json:"test_id"`
	TestTitle         string           `json:"test_title"`
	Status            SubmissionStatus `json:"status"`
	Scores            Scores           `json:"scores"`
	CompletionMinutes int              `json:"completion_minutes"`
}

// ─── Requests ──────────────────────────────────────────────────────────

// SaveProgressRequest is the payload for an incremental progress save.
type SaveProgressRequest struct {
	Answers      []AnswerInput `json:"answers" binding:"dive"`
	Cursor       *Cursor       `json:"cursor" binding:"omitempty"`
	ElapsedDelta *int          `json:"elapsed_delta" binding:"omitempty,min=0"`
}

// SubmitRequest optionally carries answers not yet saved.
type SubmitRequest struct {
	Answers []AnswerInput `json:"answers" binding:"dive"`
}

// ReportEventRequest records a proctoring or technical event.
type ReportEventRequest struct {
	Kind    string `json:"kind" binding:"required,oneof=tab_switch warning technical_issue"`
	Message string `json:"message" binding:"max=500"`
}

// ManualScoreRequest is sent by the review collaborator.
type ManualScoreRequest struct {
	Skill Skill   `json:"skill" binding:"required,oneof=writing speaking"`
	Band  float64 `json:"band" binding:"required,band"`
}

package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/bandexam-backend/internal/model"
	"github.com/stemsi/bandexam-backend/internal/repository"
	"github.com/stemsi/bandexam-backend/internal/scoring"
)

// ProgressInput is an incremental save: an answer delta, an optional cursor
// move and the seconds the client counted since its previous save.
type ProgressInput struct {
	Answers      []model.AnswerInput
	Cursor       *model.Cursor
	ElapsedDelta *int
}

// ProgressResult is returned by SaveProgress.
type ProgressResult struct {
	Submission           *model.Submission `json:"submission"`
	CompletionPercentage float64           `json:"completion_percentage"`
}

// HistoryEntry summarises one scored attempt.
type HistoryEntry struct {
	SubmissionID   uuid.UUID              `json:"submission_id"`
	TestID         uuid.UUID              `json:"test_id"`
	Status         model.SubmissionStatus `json:"status"`
	Scores         *model.Scores          `json:"scores,omitempty"`
	ElapsedSeconds int                    `json:"elapsed_seconds"`
	EndedAt        *time.Time             `json:"ended_at,omitempty"`
}

// History is a user's scored attempts, newest first.
// ImprovementRate compares the oldest and newest overall band and is nil
// when fewer than two attempts carry one or the oldest is zero.
type History struct {
	Attempts        []HistoryEntry `json:"attempts"`
	ImprovementRate *float64       `json:"improvement_rate,omitempty"`
}

// Event kinds accepted by ReportEvent.
const (
	ReportTabSwitch      = "tab_switch"
	ReportWarning        = "warning"
	ReportTechnicalIssue = "technical_issue"
)

// SubmissionService drives the exam session lifecycle.
type SubmissionService struct {
	store    SubmissionStore
	content  ContentProvider
	notifier Notifier
	reviews  ReviewQueue
	scorer   *scoring.Aggregator
	clock    Clock
	log      zerolog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(
	store SubmissionStore,
	content ContentProvider,
	notifier Notifier,
	reviews ReviewQueue,
	scorer *scoring.Aggregator,
	clock Clock,
	log zerolog.Logger,
) *SubmissionService {
	return &SubmissionService{
		store:    store,
		content:  content,
		notifier: notifier,
		reviews:  reviews,
		scorer:   scorer,
		clock:    clock,
		log:      log.With().Str("component", "submission_service").Logger(),
	}
}

// ─── Creation ──────────────────────────────────────────────────────────

// Create reserves an attempt in CREATED status. The clock starts on Begin.
func (s *SubmissionService) Create(ctx context.Context, testID uuid.UUID, userID int) (*model.Submission, error) {
	return s.open(ctx, testID, userID, model.SubmissionStatusCreated)
}

// Start creates an attempt that is immediately IN_PROGRESS.
func (s *SubmissionService) Start(ctx context.Context, testID uuid.UUID, userID int) (*model.Submission, error) {
	return s.open(ctx, testID, userID, model.SubmissionStatusInProgress)
}

func (s *SubmissionService) open(ctx context.Context, testID uuid.UUID, userID int, status model.SubmissionStatus) (*model.Submission, error) {
	test, err := s.content.GetActiveTest(ctx, testID)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.FindActive(ctx, userID, testID); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find active submission: %w", err)
	}

	now := s.clock.Now()
	sub := &model.Submission{
		ID:               uuid.New(),
		TestID:           testID,
		UserID:           userID,
		Status:           status,
		TimeLimitSeconds: test.TimeLimitSeconds(),
		RemainingSeconds: test.TimeLimitSeconds(),
		Cursor:           test.FirstCursor(),
		Answers:          model.AnswerSet{},
		Metadata:         model.SessionMetadata{Warnings: []model.Warning{}},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if status == model.SubmissionStatusInProgress {
		sub.StartedAt = &now
	}

	if err := s.store.Create(ctx, sub); err != nil {
		if errors.Is(err, repository.ErrDuplicateActive) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create submission: %w", err)
	}

	s.log.Info().
		Str("submission_id", sub.ID.String()).
		Str("test_id", testID.String()).
		Int("user_id", userID).
		Str("status", string(status)).
		Msg("Submission opened")

	if status == model.SubmissionStatusInProgress {
		s.countAttempt(ctx, testID)
	}
	return sub, nil
}

// Begin starts the clock of a CREATED reservation.
func (s *SubmissionService) Begin(ctx context.Context, id uuid.UUID, userID int) (*model.Submission, error) {
	sub, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	updated, err := s.mutate(ctx, sub, EventBegin, nil, func(m *model.Submission) error {
		now := s.clock.Now()
		m.Status = model.SubmissionStatusInProgress
		m.StartedAt = &now
		m.RemainingSeconds = Remaining(m.TimeLimitSeconds, 0)
		m.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.countAttempt(ctx, updated.TestID)
	return updated, nil
}

func (s *SubmissionService) countAttempt(ctx context.Context, testID uuid.UUID) {
	if err := s.content.IncrementAttemptCounter(ctx, testID); err != nil {
		s.log.Warn().Err(err).Str("test_id", testID.String()).Msg("Failed to increment attempt counter")
	}
}

// ─── Progress ──────────────────────────────────────────────────────────

// SaveProgress merges an answer delta into an IN_PROGRESS or PAUSED
// submission. Any other status, or a submission owned by someone else,
// reads as not found.
func (s *SubmissionService) SaveProgress(ctx context.Context, id uuid.UUID, userID int, in ProgressInput) (*ProgressResult, error) {
	sub, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !CanApply(sub.Status, EventSaveProgress) {
		return nil, ErrNotFound
	}

	fields := make(map[string]string)
	if in.ElapsedDelta != nil && *in.ElapsedDelta < 0 {
		fields["elapsed_delta"] = "must not be negative"
	}
	if in.Cursor != nil {
		if in.Cursor.Skill != "" && !in.Cursor.Skill.Valid() {
			fields["cursor.skill"] = "unknown skill"
		}
		if in.Cursor.SectionIndex < 0 || in.Cursor.QuestionIndex < 0 {
			fields["cursor"] = "indices must not be negative"
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	test, err := s.content.GetTest(ctx, sub.TestID)
	if err != nil {
		return nil, fmt.Errorf("load test content: %w", err)
	}
	now := s.clock.Now()
	writes, err := NormalizeDelta(test, in.Answers, now)
	if err != nil {
		return nil, err
	}

	updated, err := s.mutate(ctx, sub, EventSaveProgress, writes, func(m *model.Submission) error {
		if in.Cursor != nil {
			m.Cursor = *in.Cursor
		}
		var delta int
		if in.ElapsedDelta != nil {
			delta = *in.ElapsedDelta
		}
		syncTiming(m, now, delta)
		m.UpdatedAt = now
		return nil
	})
	if errors.Is(err, ErrInvalidStateTransition) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &ProgressResult{
		Submission:           updated,
		CompletionPercentage: CompletionPercentage(test, updated.Answers),
	}, nil
}

// syncTiming refreshes elapsed and remaining time at now. Remaining is the
// smaller of the stored value less clientDelta and the server clock's value.
func syncTiming(m *model.Submission, now time.Time, clientDelta int) {
	if m.StartedAt == nil {
		return
	}
	elapsed := Elapsed(*m.StartedAt, m.PausedSeconds, m.PausedAt, now)
	if elapsed > m.ElapsedSeconds {
		m.ElapsedSeconds = elapsed
	}
	server := Remaining(m.TimeLimitSeconds, elapsed)
	if server == nil {
		m.RemainingSeconds = nil
		return
	}
	r := *server
	if m.RemainingSeconds != nil {
		if stored := *m.RemainingSeconds - clientDelta; stored < r {
			r = stored
		}
	}
	if r < 0 {
		r = 0
	}
	m.RemainingSeconds = &r
}

// Pause freezes the countdown of an IN_PROGRESS submission.
func (s *SubmissionService) Pause(ctx context.Context, id uuid.UUID, userID int) (*model.Submission, error) {
	sub, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	test, err := s.content.GetTest(ctx, sub.TestID)
	if err != nil {
		return nil, fmt.Errorf("load test content: %w", err)
	}
	if !test.AllowPause {
		return nil, ErrPauseNotAllowed
	}

	return s.mutate(ctx, sub, EventPause, nil, func(m *model.Submission) error {
		now := s.clock.Now()
		syncTiming(m, now, 0)
		m.Status = model.SubmissionStatusPaused
		m.PausedAt = &now
		m.Metadata.PauseCount++
		m.UpdatedAt = now
		return nil
	})
}

// Resume restarts the countdown. The paused interval is not charged.
func (s *SubmissionService) Resume(ctx context.Context, id uuid.UUID, userID int) (*model.Submission, error) {
	sub, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, sub, EventResume, nil, func(m *model.Submission) error {
		now := s.clock.Now()
		foldPause(m, now)
		syncTiming(m, now, 0)
		m.Status = model.SubmissionStatusInProgress
		m.Metadata.ResumeCount++
		m.UpdatedAt = now
		return nil
	})
}

func foldPause(m *model.Submission, now time.Time) {
	if m.PausedAt == nil {
		return
	}
	m.PausedSeconds += PausedFor(*m.PausedAt, now)
	m.PausedAt = nil
}

// ─── Terminal transitions ──────────────────────────────────────────────

// Submit merges trailing answers, scores the attempt and completes it.
// A second submit fails with a TransitionError and leaves scores untouched.
func (s *SubmissionService) Submit(ctx context.Context, id uuid.UUID, userID int, trailing []model.AnswerInput) (*model.Submission, error) {
	sub, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !CanApply(sub.Status, EventSubmit) {
		return nil, &TransitionError{From: sub.Status, Event: EventSubmit}
	}

	test, err := s.content.GetTest(ctx, sub.TestID)
	if err != nil {
		return nil, &ScoringError{Err: fmt.Errorf("load test content: %w", err)}
	}
	writes, err := NormalizeDelta(test, trailing, s.clock.Now())
	if err != nil {
		return nil, err
	}

	var pending []model.Skill
	updated, err := s.mutate(ctx, sub, EventSubmit, writes, func(m *model.Submission) error {
		var ferr error
		pending, ferr = s.finish(test, m, model.SubmissionStatusCompleted, s.clock.Now())
		return ferr
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("submission_id", updated.ID.String()).
		Int("user_id", updated.UserID).
		Int("elapsed_seconds", updated.ElapsedSeconds).
		Msg("Submission completed")

	s.afterScoring(ctx, test, updated, pending)
	return updated, nil
}

// Expire scores a timed-out attempt and marks it EXPIRED. It is a no-op on
// terminal submissions and fails with a TransitionError while time remains.
func (s *SubmissionService) Expire(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	sub, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	if sub.Status.IsTerminal() {
		return sub, nil
	}
	now := s.clock.Now()
	if !timedOut(sub, now) {
		return nil, &TransitionError{From: sub.Status, Event: EventExpire}
	}

	test, err := s.content.GetTest(ctx, sub.TestID)
	if err != nil {
		return nil, &ScoringError{Err: fmt.Errorf("load test content: %w", err)}
	}

	var pending []model.Skill
	updated, err := s.store.Mutate(ctx, id, repository.Mutation{
		Allowed: sources[EventExpire],
		Apply: func(m *model.Submission) error {
			now := s.clock.Now()
			if !timedOut(m, now) {
				return &TransitionError{From: m.Status, Event: EventExpire}
			}
			var ferr error
			pending, ferr = s.finish(test, m, model.SubmissionStatusExpired, now)
			return ferr
		},
	})
	if errors.Is(err, repository.ErrStaleStatus) && updated != nil && updated.Status.IsTerminal() {
		return updated, nil
	}
	if err != nil {
		return nil, s.storeError(err, sub, EventExpire)
	}

	s.log.Info().
		Str("submission_id", updated.ID.String()).
		Int("user_id", updated.UserID).
		Msg("Submission expired")

	s.afterScoring(ctx, test, updated, pending)
	return updated, nil
}

func timedOut(m *model.Submission, now time.Time) bool {
	if m.TimeLimitSeconds == nil || m.StartedAt == nil {
		return false
	}
	snapshot := *m
	syncTiming(&snapshot, now, 0)
	return snapshot.RemainingSeconds != nil && *snapshot.RemainingSeconds <= 0
}

// finish closes the clock, scores the answers and moves m to status.
func (s *SubmissionService) finish(test *model.Test, m *model.Submission, status model.SubmissionStatus, now time.Time) ([]model.Skill, error) {
	foldPause(m, now)
	syncTiming(m, now, 0)
	if m.StartedAt != nil {
		m.ElapsedSeconds = Elapsed(*m.StartedAt, m.PausedSeconds, nil, now)
	}
	if status == model.SubmissionStatusExpired && m.RemainingSeconds != nil {
		zero := 0
		m.RemainingSeconds = &zero
	}

	results, scores, err := s.scorer.Score(test, m.Answers, m.Scores)
	if err != nil {
		return nil, &ScoringError{Err: err}
	}
	pending := scoring.PendingReview(test, m.Answers, scores)

	end := now
	m.EndedAt = &end
	m.Status = status
	m.Results = results
	m.Scores = scores
	m.Flags.NeedsManualReview = len(pending) > 0
	m.UpdatedAt = now
	return pending, nil
}

// afterScoring notifies collaborators. Failures are logged and never undo
// the committed transition.
func (s *SubmissionService) afterScoring(ctx context.Context, test *model.Test, sub *model.Submission, pending []model.Skill) {
	minutes := int(math.Round(float64(sub.ElapsedSeconds) / 60))
	log := s.log.With().Str("submission_id", sub.ID.String()).Logger()

	ev := model.CompletionEvent{
		SubmissionID:      sub.ID,
		UserID:            sub.UserID,
		TestID:            sub.TestID,
		TestTitle:         test.Title,
		Status:            sub.Status,
		CompletionMinutes: minutes,
	}
	if sub.Scores != nil {
		ev.Scores = *sub.Scores
	}
	if err := s.notifier.SubmissionCompleted(ctx, ev); err != nil {
		log.Warn().Err(err).Msg("Failed to publish completion notification")
	}
	if err := s.content.RecordCompletionStats(ctx, sub.TestID, minutes); err != nil {
		log.Warn().Err(err).Msg("Failed to record completion stats")
	}
	if len(pending) > 0 {
		if err := s.reviews.FlagForManualReview(ctx, sub.ID, pending); err != nil {
			log.Warn().Err(err).Msg("Failed to flag submission for manual review")
		}
	}
}

// Abandon ends an attempt without scoring it.
func (s *SubmissionService) Abandon(ctx context.Context, id uuid.UUID, userID int) (*model.Submission, error) {
	sub, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, sub, EventAbandon, nil, func(m *model.Submission) error {
		now := s.clock.Now()
		foldPause(m, now)
		syncTiming(m, now, 0)
		m.Status = model.SubmissionStatusAbandoned
		m.EndedAt = &now
		m.UpdatedAt = now
		return nil
	})
}

// SweepExpired expires up to limit timed-out submissions and returns how
// many it moved to EXPIRED.
func (s *SubmissionService) SweepExpired(ctx context.Context, limit int) (int, error) {
	ids, err := s.store.ListExpired(ctx, s.clock.Now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list expired submissions: %w", err)
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		sub, err := s.Expire(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("submission_id", id.String()).Msg("Failed to expire submission")
			continue
		}
		if sub.Status == model.SubmissionStatusExpired {
			expired++
		}
	}
	return expired, nil
}

// ─── Queries & auxiliary operations ────────────────────────────────────

// Get returns a submission owned by userID.
func (s *SubmissionService) Get(ctx context.Context, id uuid.UUID, userID int) (*model.Submission, error) {
	return s.owned(ctx, id, userID)
}

// Lookup returns a submission regardless of owner. Used by reviewers.
func (s *SubmissionService) Lookup(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	sub, err := s.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return sub, err
}

// ListHistory returns the user's scored attempts.
func (s *SubmissionService) ListHistory(ctx context.Context, userID int) (*History, error) {
	subs, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	h := &History{Attempts: []HistoryEntry{}}
	var newest, oldest float64
	banded := 0
	for _, sub := range subs {
		if sub.Status != model.SubmissionStatusCompleted && sub.Status != model.SubmissionStatusExpired {
			continue
		}
		h.Attempts = append(h.Attempts, HistoryEntry{
			SubmissionID:   sub.ID,
			TestID:         sub.TestID,
			Status:         sub.Status,
			Scores:         sub.Scores,
			ElapsedSeconds: sub.ElapsedSeconds,
			EndedAt:        sub.EndedAt,
		})
		if sub.Scores != nil && sub.Scores.Overall != nil {
			if banded == 0 {
				newest = *sub.Scores.Overall
			}
			oldest = *sub.Scores.Overall
			banded++
		}
	}

	if banded >= 2 {
		if rate, ok := scoring.ImprovementRate(oldest, newest); ok {
			h.ImprovementRate = &rate
		}
	}
	return h, nil
}

// ReportEvent records a tab switch, a warning or a technical issue.
func (s *SubmissionService) ReportEvent(ctx context.Context, id uuid.UUID, userID int, kind, message string) (*model.Submission, error) {
	switch kind {
	case ReportTabSwitch, ReportWarning, ReportTechnicalIssue:
	default:
		return nil, &ValidationError{Fields: map[string]string{"kind": "unknown event kind"}}
	}

	sub, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, sub, EventReport, nil, func(m *model.Submission) error {
		now := s.clock.Now()
		switch kind {
		case ReportTabSwitch:
			m.Metadata.TabSwitchCount++
		case ReportTechnicalIssue:
			m.Flags.HasTechnicalIssues = true
		}
		m.Metadata.Warnings = append(m.Metadata.Warnings, model.Warning{Kind: kind, Message: message, RecordedAt: now})
		m.UpdatedAt = now
		return nil
	})
}

// Delete removes a submission that was never scored.
func (s *SubmissionService) Delete(ctx context.Context, id uuid.UUID, userID int) error {
	sub, err := s.owned(ctx, id, userID)
	if err != nil {
		return err
	}
	if !CanApply(sub.Status, EventDelete) {
		return &TransitionError{From: sub.Status, Event: EventDelete}
	}

	err = s.store.Delete(ctx, id, sources[EventDelete])
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrStaleStatus):
		return &TransitionError{From: sub.Status, Event: EventDelete}
	case err != nil:
		return fmt.Errorf("delete submission: %w", err)
	}

	s.log.Info().Str("submission_id", id.String()).Int("user_id", userID).Msg("Submission deleted")
	return nil
}

// ApplyManualScore stores a reviewer's writing or speaking band and
// recomputes the overall band.
func (s *SubmissionService) ApplyManualScore(ctx context.Context, id uuid.UUID, skill model.Skill, band float64) (*model.Submission, error) {
	if !skill.Valid() || skill.AutoScored() {
		return nil, &ValidationError{Fields: map[string]string{"skill": "only writing and speaking accept a manual band"}}
	}
	if !scoring.ValidBand(band) {
		return nil, &ValidationError{Fields: map[string]string{"band": "must be between 1 and 9 in 0.5 steps"}}
	}

	sub, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	test, err := s.content.GetTest(ctx, sub.TestID)
	if err != nil {
		return nil, fmt.Errorf("load test content: %w", err)
	}

	updated, err := s.mutate(ctx, sub, EventReview, nil, func(m *model.Submission) error {
		if m.Scores == nil {
			m.Scores = &model.Scores{}
		}
		if m.Scores.Skills == nil {
			m.Scores.Skills = make(map[model.Skill]float64)
		}
		m.Scores.Skills[skill] = band
		m.Scores.Overall = scoring.Overall(m.Scores.Skills)

		pending := scoring.PendingReview(test, m.Answers, m.Scores)
		m.Flags.NeedsManualReview = len(pending) > 0
		m.Flags.IsReviewed = len(pending) == 0
		m.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !updated.Flags.NeedsManualReview {
		if err := s.reviews.Resolve(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("submission_id", id.String()).Msg("Failed to clear review flag")
		}
	}
	return updated, nil
}

// PendingReviews lists submissions waiting for a manual band.
func (s *SubmissionService) PendingReviews(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return s.reviews.Pending(ctx, limit)
}

// ─── Helpers ───────────────────────────────────────────────────────────

// owned loads a submission and hides it from anyone but its owner.
func (s *SubmissionService) owned(ctx context.Context, id uuid.UUID, userID int) (*model.Submission, error) {
	sub, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	if sub.UserID != userID {
		return nil, ErrNotFound
	}
	return sub, nil
}

func (s *SubmissionService) mutate(ctx context.Context, sub *model.Submission, event Event, writes []model.AnswerWrite, apply func(*model.Submission) error) (*model.Submission, error) {
	updated, err := s.store.Mutate(ctx, sub.ID, repository.Mutation{
		Allowed: sources[event],
		Answers: writes,
		Apply:   apply,
	})
	if err != nil {
		current := sub
		if updated != nil {
			current = updated
		}
		return nil, s.storeError(err, current, event)
	}
	return updated, nil
}

func (s *SubmissionService) storeError(err error, current *model.Submission, event Event) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrStaleStatus):
		return &TransitionError{From: current.Status, Event: event}
	case errors.Is(err, ErrValidation), errors.Is(err, ErrScoring), errors.Is(err, ErrInvalidStateTransition):
		return err
	}
	return fmt.Errorf("%s submission: %w", event, err)
}

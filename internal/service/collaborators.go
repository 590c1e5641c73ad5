package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/bandexam-backend/internal/model"
	"github.com/stemsi/bandexam-backend/internal/repository"
)

// SubmissionStore persists submissions. Mutate must lock the row and
// verify its status before applying the change.
type SubmissionStore interface {
	Create(ctx context.Context, s *model.Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	FindActive(ctx context.Context, userID int, testID uuid.UUID) (*model.Submission, error)
	Mutate(ctx context.Context, id uuid.UUID, m repository.Mutation) (*model.Submission, error)
	Delete(ctx context.Context, id uuid.UUID, allowed []model.SubmissionStatus) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	ListByUser(ctx context.Context, userID int) ([]model.Submission, error)
}

// ContentProvider serves read-only test content and collects attempt stats.
type ContentProvider interface {
	GetTest(ctx context.Context, id uuid.UUID) (*model.Test, error)
	GetActiveTest(ctx context.Context, id uuid.UUID) (*model.Test, error)
	IncrementAttemptCounter(ctx context.Context, id uuid.UUID) error
	RecordCompletionStats(ctx context.Context, id uuid.UUID, minutes int) error
}

// Notifier announces scored submissions. Delivery is best effort.
type Notifier interface {
	SubmissionCompleted(ctx context.Context, ev model.CompletionEvent) error
}

// ReviewQueue tracks submissions waiting for a writing or speaking band.
type ReviewQueue interface {
	FlagForManualReview(ctx context.Context, id uuid.UUID, skills []model.Skill) error
	Resolve(ctx context.Context, id uuid.UUID) error
	Pending(ctx context.Context, limit int) ([]uuid.UUID, error)
}

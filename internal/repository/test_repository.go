package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/bandexam-backend/internal/model"
)

// TestRepository handles test content data access.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// GetByID retrieves a test with its sections decoded into question variants.
func (r *TestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t := &model.Test{}
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, duration_minutes, allow_pause, is_active, sections,
		        attempt_count, completion_count, total_completion_minutes, created_at, updated_at
		 FROM tests WHERE id = $1`, id,
	).Scan(&t.ID, &t.Title, &t.DurationMinutes, &t.AllowPause, &t.Active, &t.Sections,
		&t.AttemptCount, &t.CompletionCount, &total, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if t.CompletionCount > 0 {
		t.AvgMinutes = float64(total) / float64(t.CompletionCount)
	}
	return t, nil
}

// ListActiveIDs returns the ids of tests open for new attempts.
func (r *TestRepository) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM tests WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Create inserts a test. Used by the content seeding command.
func (r *TestRepository) Create(ctx context.Context, t *model.Test) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO tests (id, title, duration_minutes, allow_pause, is_active, sections)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		t.ID, t.Title, t.DurationMinutes, t.AllowPause, t.Active, t.Sections,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

// IncrementAttemptCounter bumps the attempt counter of a test.
func (r *TestRepository) IncrementAttemptCounter(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tests SET attempt_count = attempt_count + 1 WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordCompletion adds one completion of the given duration.
func (r *TestRepository) RecordCompletion(ctx context.Context, id uuid.UUID, minutes int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE tests
		 SET completion_count = completion_count + 1,
		     total_completion_minutes = total_completion_minutes + $2
		 WHERE id = $1`, id, minutes)
	return err
}

// BulkRecordCompletions applies many completions in one statement.
// Rows for the same test are aggregated before the update.
func (r *TestRepository) BulkRecordCompletions(ctx context.Context, ids []uuid.UUID, minutes []int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE tests AS t
		 SET completion_count = t.completion_count + agg.n,
		     total_completion_minutes = t.total_completion_minutes + agg.minutes
		 FROM (
			SELECT u.test_id, COUNT(*) AS n, SUM(u.minutes) AS minutes
			FROM UNNEST($1::uuid[], $2::int[]) AS u (test_id, minutes)
			GROUP BY u.test_id
		 ) AS agg
		 WHERE t.id = agg.test_id`, ids, minutes)
	return err
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/bandexam-backend/internal/model"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateActive is returned when the active-attempt unique index rejects an insert.
	ErrDuplicateActive = errors.New("active submission already exists")
	// ErrStaleStatus is returned when a guarded mutation finds the row in a status it does not accept.
	ErrStaleStatus = errors.New("submission status does not allow this mutation")
)

const uniqueViolation = "23505"

// Mutation is a status-guarded change applied under a row lock.
// Answers are upserted before Apply runs, so Apply sees the merged set.
// An error from Apply rolls the whole mutation back.
type Mutation struct {
	Allowed []model.SubmissionStatus
	Answers []model.AnswerWrite
	Apply   func(s *model.Submission) error
}

// SubmissionRepository handles submission data access.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

const submissionColumns = `id, test_id, user_id, status, started_at, ended_at, paused_at,
	paused_seconds, elapsed_seconds, remaining_seconds, time_limit_seconds,
	cursor, scores, results, flags, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*model.Submission, error) {
	s := &model.Submission{}
	err := row.Scan(&s.ID, &s.TestID, &s.UserID, &s.Status, &s.StartedAt, &s.EndedAt, &s.PausedAt,
		&s.PausedSeconds, &s.ElapsedSeconds, &s.RemainingSeconds, &s.TimeLimitSeconds,
		&s.Cursor, &s.Scores, &s.Results, &s.Flags, &s.Metadata, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new submission. The partial unique index on
// (user_id, test_id) turns a concurrent second attempt into ErrDuplicateActive.
func (r *SubmissionRepository) Create(ctx context.Context, s *model.Submission) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO submissions (id, test_id, user_id, status, started_at, remaining_seconds,
		                          time_limit_seconds, cursor, flags, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.TestID, s.UserID, s.Status, s.StartedAt, s.RemainingSeconds,
		s.TimeLimitSeconds, s.Cursor, s.Flags, s.Metadata, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateActive
		}
		return err
	}
	return nil
}

// GetByID retrieves a submission with its answers.
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	s, err := scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if s.Answers, err = loadAnswers(ctx, r.pool, id); err != nil {
		return nil, err
	}
	return s, nil
}

// FindActive retrieves the non-terminal submission of a user for a test.
func (r *SubmissionRepository) FindActive(ctx context.Context, userID int, testID uuid.UUID) (*model.Submission, error) {
	return scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+`
		 FROM submissions
		 WHERE user_id = $1 AND test_id = $2 AND status = ANY($3)`,
		userID, testID, statusStrings(model.ActiveStatuses)))
}

// Mutate locks the row, verifies its status against m.Allowed, loads the
// answer set, upserts m.Answers and merges them into the loaded set, then
// runs m.Apply before writing the row back. On ErrStaleStatus the current submission is returned with the error.
func (r *SubmissionRepository) Mutate(ctx context.Context, id uuid.UUID, m Mutation) (*model.Submission, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	s, err := scanSubmission(tx.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if !slices.Contains(m.Allowed, s.Status) {
		return s, ErrStaleStatus
	}

	if s.Answers, err = loadAnswers(ctx, tx, id); err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	if err := upsertAnswers(ctx, tx, id, m.Answers); err != nil {
		return nil, fmt.Errorf("upsert answers: %w", err)
	}
	s.Answers = s.Answers.Merge(m.Answers)

	if m.Apply != nil {
		if err := m.Apply(s); err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE submissions
		 SET status = $2, started_at = $3, ended_at = $4, paused_at = $5,
		     paused_seconds = $6, elapsed_seconds = $7, remaining_seconds = $8,
		     cursor = $9, scores = $10, results = $11, flags = $12, metadata = $13,
		     updated_at = $14
		 WHERE id = $1`,
		s.ID, s.Status, s.StartedAt, s.EndedAt, s.PausedAt,
		s.PausedSeconds, s.ElapsedSeconds, s.RemainingSeconds,
		s.Cursor, s.Scores, s.Results, s.Flags, s.Metadata, s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update submission: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s, nil
}

// Delete removes a submission whose status is one of allowed.
func (r *SubmissionRepository) Delete(ctx context.Context, id uuid.UUID, allowed []model.SubmissionStatus) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM submissions WHERE id = $1 AND status = ANY($2)`, id, statusStrings(allowed))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM submissions WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrStaleStatus
	}
	return ErrNotFound
}

// ListExpired returns timed, non-terminal submissions whose clock has run
// out at now. Paused submissions only qualify once their stored remaining
// time reached zero.
func (r *SubmissionRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id
		 FROM submissions
		 WHERE status IN ('IN_PROGRESS', 'PAUSED')
		   AND time_limit_seconds IS NOT NULL
		   AND (
		        remaining_seconds <= 0
		     OR (status = 'IN_PROGRESS'
		         AND started_at + make_interval(secs => time_limit_seconds + paused_seconds) <= $1)
		   )
		 ORDER BY started_at ASC
		 LIMIT $2`, now, limit)
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

// ListByUser retrieves a user's submissions, newest first, without answers.
func (r *SubmissionRepository) ListByUser(ctx context.Context, userID int) ([]model.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+`
		 FROM submissions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

func statusStrings(statuses []model.SubmissionStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadAnswers(ctx context.Context, q querier, id uuid.UUID) (model.AnswerSet, error) {
	rows, err := q.Query(ctx,
		`SELECT skill, section_id, question_id, value, time_spent, completed, updated_at
		 FROM submission_answers
		 WHERE submission_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := make(model.AnswerSet)
	for rows.Next() {
		var skill model.Skill
		var e model.AnswerEntry
		var value []byte
		if err := rows.Scan(&skill, &e.SectionID, &e.QuestionID, &value, &e.TimeSpent, &e.Completed, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Value = value
		set.Put(model.AnswerKey{Skill: skill, SectionID: e.SectionID, QuestionID: e.QuestionID}, e)
	}
	return set, rows.Err()
}

// upsertAnswers writes every entry in one statement; the latest write for a
// key replaces the stored entry wholesale.
func upsertAnswers(ctx context.Context, tx pgx.Tx, id uuid.UUID, writes []model.AnswerWrite) error {
	if len(writes) == 0 {
		return nil
	}

	n := len(writes)
	skills := make([]string, 0, n)
	sections := make([]string, 0, n)
	questions := make([]string, 0, n)
	values := make([]*string, 0, n)
	spent := make([]int, 0, n)
	completed := make([]bool, 0, n)
	updatedAts := make([]time.Time, 0, n)

	for _, w := range writes {
		skills = append(skills, string(w.Key.Skill))
		sections = append(sections, w.Key.SectionID)
		questions = append(questions, w.Key.QuestionID)
		if len(w.Entry.Value) == 0 {
			values = append(values, nil)
		} else {
			v := string(w.Entry.Value)
			values = append(values, &v)
		}
		spent = append(spent, w.Entry.TimeSpent)
		completed = append(completed, w.Entry.Completed)
		updatedAts = append(updatedAts, w.Entry.UpdatedAt)
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO submission_answers
		        (submission_id, skill, section_id, question_id, value, time_spent, completed, updated_at)
		 SELECT $1, u.skill, u.section_id, u.question_id, u.value::jsonb, u.time_spent, u.completed, u.updated_at
		 FROM UNNEST(
		        $2::text[],
		        $3::text[],
		        $4::text[],
		        $5::text[],
		        $6::int[],
		        $7::bool[],
		        $8::timestamptz[]
		      ) AS u (skill, section_id, question_id, value, time_spent, completed, updated_at)
		 ON CONFLICT (submission_id, skill, section_id, question_id) DO UPDATE
		 SET value = EXCLUDED.value,
		     time_spent = EXCLUDED.time_spent,
		     completed = EXCLUDED.completed,
		     updated_at = EXCLUDED.updated_at`,
		id, skills, sections, questions, values, spent, completed, updatedAts,
	)
	return err
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

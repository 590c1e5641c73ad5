package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/bandexam-backend/internal/model"
	"github.com/stemsi/bandexam-backend/internal/repository"
)

// memStore mimics SubmissionRepository: a unique active attempt per
// (user, test) and row-serialized, status-guarded mutations.
type memStore struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*model.Submission
}

func newMemStore() *memStore {
	return &memStore{subs: make(map[uuid.UUID]*model.Submission)}
}

// clone deep-copies through JSON so callers never share maps with the store.
func clone(s *model.Submission) *model.Submission {
	raw, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	var out model.Submission
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	if out.Answers == nil {
		out.Answers = model.AnswerSet{}
	}
	return &out
}

func (m *memStore) Create(_ context.Context, s *model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.subs {
		if existing.UserID == s.UserID && existing.TestID == s.TestID && slices.Contains(model.ActiveStatuses, existing.Status) {
			return repository.ErrDuplicateActive
		}
	}
	m.subs[s.ID] = clone(s)
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(s), nil
}

func (m *memStore) FindActive(_ context.Context, userID int, testID uuid.UUID) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.UserID == userID && s.TestID == testID && slices.Contains(model.ActiveStatuses, s.Status) {
			return clone(s), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) Mutate(_ context.Context, id uuid.UUID, mut repository.Mutation) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.subs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	work := clone(stored)
	if !slices.Contains(mut.Allowed, work.Status) {
		return work, repository.ErrStaleStatus
	}
	work.Answers = work.Answers.Merge(mut.Answers)
	if mut.Apply != nil {
		if err := mut.Apply(work); err != nil {
			return nil, err
		}
	}
	m.subs[id] = clone(work)
	return work, nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID, allowed []model.SubmissionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !slices.Contains(allowed, s.Status) {
		return repository.ErrStaleStatus
	}
	delete(m.subs, id)
	return nil
}

func (m *memStore) ListExpired(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, s := range m.subs {
		if len(ids) >= limit {
			break
		}
		if s.Status != model.SubmissionStatusInProgress && s.Status != model.SubmissionStatusPaused {
			continue
		}
		if timedOut(clone(s), now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) ListByUser(_ context.Context, userID int) ([]model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Submission
	for _, s := range m.subs {
		if s.UserID == userID {
			out = append(out, *clone(s))
		}
	}
	slices.SortFunc(out, func(a, b model.Submission) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

// put stores s directly, bypassing the active-attempt check.
func (m *memStore) put(s *model.Submission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[s.ID] = clone(s)
}

type fakeContent struct {
	mu          sync.Mutex
	tests       map[uuid.UUID]*model.Test
	attempts    map[uuid.UUID]int
	completions []CompletionStat
	unavailable bool
}

func newFakeContent(tests ...*model.Test) *fakeContent {
	c := &fakeContent{tests: make(map[uuid.UUID]*model.Test), attempts: make(map[uuid.UUID]int)}
	for _, t := range tests {
		c.tests[t.ID] = t
	}
	return c
}

func (c *fakeContent) GetTest(_ context.Context, id uuid.UUID) (*model.Test, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unavailable {
		return nil, fmt.Errorf("content store down")
	}
	t, ok := c.tests[id]
	if !ok {
		return nil, ErrTestUnavailable
	}
	return t, nil
}

func (c *fakeContent) GetActiveTest(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t, err := c.GetTest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Active {
		return nil, ErrTestUnavailable
	}
	return t, nil
}

func (c *fakeContent) IncrementAttemptCounter(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[id]++
	return nil
}

func (c *fakeContent) RecordCompletionStats(_ context.Context, id uuid.UUID, minutes int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completions = append(c.completions, CompletionStat{TestID: id, Minutes: minutes})
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []model.CompletionEvent
	err    error
}

func (n *fakeNotifier) SubmissionCompleted(_ context.Context, ev model.CompletionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fakeReviews struct {
	mu      sync.Mutex
	pending map[uuid.UUID][]model.Skill
}

func newFakeReviews() *fakeReviews {
	return &fakeReviews{pending: make(map[uuid.UUID][]model.Skill)}
}

func (r *fakeReviews) FlagForManualReview(_ context.Context, id uuid.UUID, skills []model.Skill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[id] = skills
	return nil
}

func (r *fakeReviews) Resolve(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
	return nil
}

func (r *fakeReviews) Pending(_ context.Context, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for id := range r.pending {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/bandexam-backend/internal/config"
	"github.com/stemsi/bandexam-backend/internal/model"
)

// QueueNotifier publishes completion events onto a Redis list consumed by
// the mail/notification service.
type QueueNotifier struct {
	rdb *redis.Client
}

// NewQueueNotifier creates a new QueueNotifier.
func NewQueueNotifier(rdb *redis.Client) *QueueNotifier {
	return &QueueNotifier{rdb: rdb}
}

// SubmissionCompleted pushes ev onto the completion queue.
func (n *QueueNotifier) SubmissionCompleted(ctx context.Context, ev model.CompletionEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal completion event: %w", err)
	}
	return n.rdb.RPush(ctx, config.WorkerKey.SubmissionCompletedQueue, raw).Err()
}

// ReviewRequest is pushed for reviewers when a submission needs manual bands.
type ReviewRequest struct {
	SubmissionID uuid.UUID     `json:"submission_id"`
	Skills       []model.Skill `json:"skills"`
}

// RedisReviewQueue keeps pending reviews in a Redis set and announces new
// ones on a list.
type RedisReviewQueue struct {
	rdb *redis.Client
}

// NewRedisReviewQueue creates a new RedisReviewQueue.
func NewRedisReviewQueue(rdb *redis.Client) *RedisReviewQueue {
	return &RedisReviewQueue{rdb: rdb}
}

// FlagForManualReview adds id to the pending set and announces it.
func (q *RedisReviewQueue) FlagForManualReview(ctx context.Context, id uuid.UUID, skills []model.Skill) error {
	raw, err := json.Marshal(ReviewRequest{SubmissionID: id, Skills: skills})
	if err != nil {
		return err
	}
	pipe := q.rdb.TxPipeline()
	pipe.SAdd(ctx, config.CacheKey.PendingReviewKey(), id.String())
	pipe.RPush(ctx, config.WorkerKey.ManualReviewQueue, raw)
	_, err = pipe.Exec(ctx)
	return err
}

// Resolve removes id from the pending set.
func (q *RedisReviewQueue) Resolve(ctx context.Context, id uuid.UUID) error {
	return q.rdb.SRem(ctx, config.CacheKey.PendingReviewKey(), id.String()).Err()
}

// Pending returns up to limit pending submission ids.
func (q *RedisReviewQueue) Pending(ctx context.Context, limit int) ([]uuid.UUID, error) {
	members, err := q.rdb.SMembers(ctx, config.CacheKey.PendingReviewKey()).Result()
	if err != nil {
		return nil, err
	}

	sort.Strings(members)
	ids := make([]uuid.UUID, 0, len(members))
	var bad []string
	for _, m := range members {
		if limit > 0 && len(ids) >= limit {
			break
		}
		id, err := uuid.Parse(m)
		if err != nil {
			bad = append(bad, m)
			continue
		}
		ids = append(ids, id)
	}
	if len(bad) > 0 {
		return ids, fmt.Errorf("malformed pending review ids: %s", strings.Join(bad, ", "))
	}
	return ids, nil
}

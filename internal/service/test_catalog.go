package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/bandexam-backend/internal/config"
	"github.com/stemsi/bandexam-backend/internal/model"
	"github.com/stemsi/bandexam-backend/internal/repository"
	"golang.org/x/sync/singleflight"
)

// TestSource is the durable store behind the catalog.
type TestSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error)
	IncrementAttemptCounter(ctx context.Context, id uuid.UUID) error
}

// CompletionStat is queued for the stats worker after each scored attempt.
type CompletionStat struct {
	TestID  uuid.UUID `json:"test_id"`
	Minutes int       `json:"minutes"`
}

// TestCatalog serves test content through a Redis read-through cache.
// Concurrent misses for the same test share one database load.
type TestCatalog struct {
	source TestSource
	rdb    *redis.Client
	ttl    time.Duration
	sf     singleflight.Group
	log    zerolog.Logger
}

// NewTestCatalog creates a new TestCatalog.
func NewTestCatalog(source TestSource, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *TestCatalog {
	return &TestCatalog{
		source: source,
		rdb:    rdb,
		ttl:    ttl,
		log:    log.With().Str("component", "test_catalog").Logger(),
	}
}

// GetTest returns a test regardless of its active flag.
func (c *TestCatalog) GetTest(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	key := config.CacheKey.TestContentKey(id.String())
	if t, ok := c.cached(ctx, key, id); ok {
		return t, nil
	}

	v, err, _ := c.sf.Do(id.String(), func() (interface{}, error) {
		// Another caller may have filled the cache while we waited.
		if t, ok := c.cached(ctx, key, id); ok {
			return t, nil
		}

		t, err := c.source.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrTestUnavailable
			}
			return nil, fmt.Errorf("get test: %w", err)
		}

		if payload, merr := json.Marshal(t); merr == nil {
			if serr := c.rdb.Set(ctx, key, payload, c.ttlWithJitter()).Err(); serr != nil {
				c.log.Warn().Err(serr).Str("test_id", id.String()).Msg("Failed to cache test content")
			}
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Test), nil
}

func (c *TestCatalog) cached(ctx context.Context, key string, id uuid.UUID) (*model.Test, bool) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var t model.Test
		uerr := json.Unmarshal(data, &t)
		if uerr == nil {
			return &t, true
		}
		c.log.Warn().Err(uerr).Str("test_id", id.String()).Msg("Corrupt cached content, reloading")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("test_id", id.String()).Msg("Content cache unavailable, reading through")
	}
	return nil, false
}

// ttlWithJitter spreads expiry by up to a tenth of the TTL so prewarmed
// tests do not all fall out of the cache at once.
func (c *TestCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	spread := int64(c.ttl / 10)
	if spread <= 0 {
		return c.ttl
	}
	return c.ttl + time.Duration(rand.Int64N(spread))
}

// GetActiveTest returns a test that is open for new attempts.
func (c *TestCatalog) GetActiveTest(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t, err := c.GetTest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Active {
		return nil, ErrTestUnavailable
	}
	return t, nil
}

// Prewarm loads the given tests into the cache and returns how many made it.
// Failures are logged and skipped.
func (c *TestCatalog) Prewarm(ctx context.Context, ids []uuid.UUID) int {
	warmed := 0
	for _, id := range ids {
		if _, err := c.GetTest(ctx, id); err != nil {
			c.log.Warn().Err(err).Str("test_id", id.String()).Msg("Prewarm skipped test")
			continue
		}
		warmed++
	}
	c.log.Info().Int("warmed", warmed).Int("requested", len(ids)).Msg("Content cache prewarmed")
	return warmed
}

// Invalidate drops the cached content of a test.
func (c *TestCatalog) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.rdb.Del(ctx, config.CacheKey.TestContentKey(id.String())).Err()
}

// IncrementAttemptCounter bumps the attempt counter in PostgreSQL.
func (c *TestCatalog) IncrementAttemptCounter(ctx context.Context, id uuid.UUID) error {
	return c.source.IncrementAttemptCounter(ctx, id)
}

// RecordCompletionStats queues a completion for the stats worker.
func (c *TestCatalog) RecordCompletionStats(ctx context.Context, id uuid.UUID, minutes int) error {
	raw, err := json.Marshal(CompletionStat{TestID: id, Minutes: minutes})
	if err != nil {
		return err
	}
	return c.rdb.RPush(ctx, config.WorkerKey.CompletionStatsQueue, raw).Err()
}

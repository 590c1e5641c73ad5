package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/bandexam-backend/internal/config"
)

const (
	StatsBatchSize    = 50
	StatsBatchTimeout = 2 * time.Second
	StatsPollTimeout  = 1 * time.Second
)

// StatsSink persists completion statistics.
type StatsSink interface {
	BulkRecordCompletions(ctx context.Context, ids []uuid.UUID, minutes []int) error
	RecordCompletion(ctx context.Context, id uuid.UUID, minutes int) error
}

// StatsWorker drains the completion stats queue into PostgreSQL in batches.
type StatsWorker struct {
	sink StatsSink
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewStatsWorker(sink StatsSink, rdb *redis.Client, log zerolog.Logger) *StatsWorker {
	return &StatsWorker{
		sink: sink,
		rdb:  rdb,
		log:  log.With().Str("component", "stats_worker").Logger(),
	}
}

type statPayload struct {
	TestID  uuid.UUID `json:"test_id"`
	Minutes int       `json:"minutes"`
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *StatsWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("StatsWorker started")

	batch := make([]statPayload, 0, StatsBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= StatsBatchSize || time.Since(lastFlush) >= StatsBatchTimeout) {
			w.flush(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested. Flushing remaining batch...")
			w.flush(context.Background(), batch)
			return nil

		default:
			item, err := w.rdb.BLPop(ctx, StatsPollTimeout, config.WorkerKey.CompletionStatsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			var p statPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil || p.TestID == uuid.Nil {
				w.log.Error().Err(err).Str("payload", item[1]).Msg("Invalid stats payload")
				continue
			}
			batch = append(batch, p)
		}
	}
}

// flush writes the batch in one statement and falls back to single rows,
// requeueing the ones that still fail.
func (w *StatsWorker) flush(ctx context.Context, batch []statPayload) {
	if len(batch) == 0 {
		return
	}

	ids := make([]uuid.UUID, len(batch))
	minutes := make([]int, len(batch))
	for i, p := range batch {
		ids[i] = p.TestID
		minutes[i] = p.Minutes
	}

	err := w.sink.BulkRecordCompletions(ctx, ids, minutes)
	if err == nil {
		return
	}
	w.log.Warn().Err(err).Int("size", len(batch)).Msg("Bulk stats update failed, using fallback")

	for _, p := range batch {
		if err := w.sink.RecordCompletion(ctx, p.TestID, p.Minutes); err != nil {
			w.log.Error().Err(err).Str("test_id", p.TestID.String()).Msg("RecordCompletion failed, requeueing")
			raw, _ := json.Marshal(p)
			w.rdb.RPush(ctx, config.WorkerKey.CompletionStatsQueue, raw)
		}
	}
}

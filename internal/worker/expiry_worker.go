package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Expirer moves timed-out submissions to EXPIRED.
type Expirer interface {
	SweepExpired(ctx context.Context, limit int) (int, error)
}

// ExpiryWorker periodically expires submissions whose clock ran out.
type ExpiryWorker struct {
	expirer  Expirer
	interval time.Duration
	batch    int
	log      zerolog.Logger
}

func NewExpiryWorker(expirer Expirer, interval time.Duration, batch int, log zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &ExpiryWorker{
		expirer:  expirer,
		interval: interval,
		batch:    batch,
		log:      log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start runs sweeps until ctx is cancelled. The first sweep runs immediately.
func (w *ExpiryWorker) Start(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Int("batch", w.batch).Msg("ExpiryWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpiryWorker stopped")
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep drains full batches so a backlog clears within one tick.
func (w *ExpiryWorker) sweep(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.expirer.SweepExpired(ctx, w.batch)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error().Err(err).Msg("Expiry sweep failed")
			}
			return
		}
		if n > 0 {
			w.log.Info().Int("expired", n).Msg("Expired timed-out submissions")
		}
		if n < w.batch {
			return
		}
	}
}

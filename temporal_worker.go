package anamnesis

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TemporalWorker runs the Temporal Engine's periodic decay sweep on a
// single-threaded timer. Cancellation at shutdown is graceful: the
// in-flight sweep call completes before the worker goroutine exits.
type TemporalWorker struct {
	engine   *TemporalEngine
	interval time.Duration
	log      *zap.SugaredLogger
}

// NewTemporalWorker constructs a worker firing at interval.
func NewTemporalWorker(engine *TemporalEngine, interval time.Duration, log *zap.SugaredLogger) *TemporalWorker {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &TemporalWorker{engine: engine, interval: interval, log: log}
}

// Run blocks, firing RecomputeAll on each tick, until ctx is cancelled.
func (w *TemporalWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("temporal worker shutting down")
			return
		case <-ticker.C:
			updated, err := w.engine.RecomputeAll(time.Now())
			if err != nil {
				w.log.Errorw("decay sweep failed", "err", err)
				continue
			}
			w.log.Infow("decay sweep complete", "updated", updated)
		}
	}
}

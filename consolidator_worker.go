package anamnesis

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ConsolidatorWorker runs the Memory Consolidator on a periodic timer,
// isolated from the Temporal Engine's own sweep cadence (§4.4, §5).
type ConsolidatorWorker struct {
	consolidator *MemoryConsolidator
	interval     time.Duration
	log          *zap.SugaredLogger
}

// NewConsolidatorWorker constructs a worker firing at interval.
func NewConsolidatorWorker(consolidator *MemoryConsolidator, interval time.Duration, log *zap.SugaredLogger) *ConsolidatorWorker {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ConsolidatorWorker{consolidator: consolidator, interval: interval, log: log}
}

// Run blocks, firing Run on each tick, until ctx is cancelled.
func (w *ConsolidatorWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("consolidator worker shutting down")
			return
		case <-ticker.C:
			report, err := w.consolidator.Run(ctx)
			if err != nil {
				w.log.Errorw("consolidation run failed", "err", err)
				continue
			}
			w.log.Infow("consolidation run complete",
				"clusters", report.ClustersFormed, "merged", report.EpisodesMerged, "kept", report.EpisodesKept)
		}
	}
}

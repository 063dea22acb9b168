package anamnesis

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PersonaWorker runs the Persona Engine's re-estimation pass on a
// periodic timer (§4.7).
type PersonaWorker struct {
	engine   *PersonaEngine
	interval time.Duration
	log      *zap.SugaredLogger
}

// NewPersonaWorker constructs a worker firing at interval.
func NewPersonaWorker(engine *PersonaEngine, interval time.Duration, log *zap.SugaredLogger) *PersonaWorker {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &PersonaWorker{engine: engine, interval: interval, log: log}
}

// Run blocks, firing Update on each tick, until ctx is cancelled.
func (w *PersonaWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("persona worker shutting down")
			return
		case <-ticker.C:
			if _, err := w.engine.Update(time.Now(), StrategyBlend, PersonaSourceEvolution); err != nil {
				w.log.Errorw("persona update failed", "err", err)
			}
		}
	}
}

package anamnesis

import (
	"math"
	"time"
)

// TemporalEngine maintains retention_score for every episode under the
// Ebbinghaus-style forgetting model of spec §4.1 and answers forecast
// queries.
type TemporalEngine struct {
	store  *Store
	vec    VectorStore
	config DecayConfig

	sweeping bool // re-entrancy guard; a sweep in flight makes recompute_all a no-op
}

// NewTemporalEngine wires the engine to its collaborators.
func NewTemporalEngine(store *Store, vec VectorStore, cfg DecayConfig) *TemporalEngine {
	return &TemporalEngine{store: store, vec: vec, config: cfg}
}

// Retention computes the current retention score for a single episode at
// wall-clock `now`, without persisting it.
func Retention(e Episode, now time.Time, cfg DecayConfig) float64 {
	if e.IsPinned {
		return 1.0
	}
	ageDays := now.Sub(e.CreatedAt).Hours() / 24.0
	strength := e.DecayStrength
	if strength <= 0 {
		strength = DefaultDecayStrength(e.MemoryType)
	}
	base := math.Exp(-ageDays / strength)
	accessBoost := accessBoostFor(e.AccessCount)
	return clampRetention(base*accessBoost, cfg.MinRetention, cfg.MaxRetention)
}

func accessBoostFor(accessCount int64) float64 {
	boost := 0.05 * float64(accessCount)
	if boost > 0.5 {
		boost = 0.5
	}
	return 1 + boost
}

func clampRetention(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// RecomputeAll scans every non-pinned episode, recomputes retention_score
// and last_decay_update, and stamps the config's last_decay_run. Re-entry
// while a sweep is already in flight is a no-op, per the scheduling
// contract in §4.1/§5.
func (t *TemporalEngine) RecomputeAll(now time.Time) (updated int, err error) {
	if t.sweeping {
		return 0, nil
	}
	t.sweeping = true
	defer func() { t.sweeping = false }()

	episodes, err := t.store.AllEpisodesForDecay()
	if err != nil {
		return 0, newError(KindStorageUnavailable, "TemporalEngine.RecomputeAll", err, "load episodes")
	}

	for _, e := range episodes {
		retention := Retention(e, now, t.config)
		if err := t.store.UpdateRetention(e.ID, retention, now); err != nil {
			// Isolate per-item failure: this row is skipped, sweep continues.
			continue
		}
		updated++
	}

	if err := t.store.RecordDecayRun(now); err != nil {
		return updated, newError(KindStorageUnavailable, "TemporalEngine.RecomputeAll", err, "record decay run")
	}
	return updated, nil
}

// Pin freezes retention at 1.0 and persists is_pinned=true.
func (t *TemporalEngine) Pin(id string, now time.Time) error {
	return t.store.SetPinned(id, true, now)
}

// Unpin clears is_pinned and immediately recomputes retention from stored data.
func (t *TemporalEngine) Unpin(id string, now time.Time) error {
	if err := t.store.SetPinned(id, false, now); err != nil {
		return err
	}
	e, err := t.store.GetEpisode(id)
	if err != nil {
		return err
	}
	retention := Retention(e, now, t.config)
	return t.store.UpdateRetention(id, retention, now)
}

// Prune deletes every non-pinned episode with retention_score below
// threshold, cascading the delete into the vector store.
func (t *TemporalEngine) Prune(threshold float64) (deleted int, err error) {
	ids, err := t.store.PruneBelow(threshold)
	if err != nil {
		return 0, newError(KindStorageUnavailable, "TemporalEngine.Prune", err, "prune relational rows")
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := t.vec.Delete(ids); err != nil {
		return len(ids), newError(KindStorageUnavailable, "TemporalEngine.Prune", err, "cascade vector delete")
	}
	return len(ids), nil
}

// ForecastPoint is one sample on a retention trajectory.
type ForecastPoint struct {
	DaysFromNow time.Duration
	Retention   float64
}

// Forecast reports current retention and a sampled trajectory: daily up
// to 30 days, every 3 days up to 90 days, weekly beyond, up to horizonDays.
func (t *TemporalEngine) Forecast(id string, horizonDays int, now time.Time) (current float64, trajectory []ForecastPoint, err error) {
	e, err := t.store.GetEpisode(id)
	if err != nil {
		return 0, nil, err
	}
	current = Retention(e, now, t.config)
	if e.IsPinned {
		return current, nil, nil
	}

	accessBoost := accessBoostFor(e.AccessCount)
	strength := e.DecayStrength
	if strength <= 0 {
		strength = DefaultDecayStrength(e.MemoryType)
	}
	ageDays := now.Sub(e.CreatedAt).Hours() / 24.0

	for d := 1; d <= horizonDays; d++ {
		if d > 30 && d <= 90 && d%3 != 0 {
			continue
		}
		if d > 90 && d%7 != 0 {
			continue
		}
		futureAge := ageDays + float64(d)
		base := math.Exp(-futureAge / strength)
		r := clampRetention(base*accessBoost, t.config.MinRetention, t.config.MaxRetention)
		trajectory = append(trajectory, ForecastPoint{DaysFromNow: time.Duration(d) * 24 * time.Hour, Retention: r})
	}
	return current, trajectory, nil
}

// DaysUntilThreshold solves, analytically, how many days from now until
// retention would cross tau, given the episode's current access_count
// held fixed. Returns (days, true), or (0, false) if retention never
// reaches tau because tau/access_boost already sits below min_retention.
func (t *TemporalEngine) DaysUntilThreshold(id string, tau float64, now time.Time) (float64, bool, error) {
	e, err := t.store.GetEpisode(id)
	if err != nil {
		return 0, false, err
	}
	if e.IsPinned {
		return 0, false, nil // pinned episodes never decay below threshold
	}
	accessBoost := accessBoostFor(e.AccessCount)
	strength := e.DecayStrength
	if strength <= 0 {
		strength = DefaultDecayStrength(e.MemoryType)
	}
	ratio := tau / accessBoost
	if ratio < t.config.MinRetention {
		return 0, false, nil
	}
	if ratio >= 1.0 {
		return 0, true, nil
	}
	tTotal := -strength * math.Log(ratio)
	ageDays := now.Sub(e.CreatedAt).Hours() / 24.0
	remaining := tTotal - ageDays
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true, nil
}

// AtRisk lists episodes whose days-until-threshold falls within horizonDays.
func (t *TemporalEngine) AtRisk(horizonDays float64, threshold float64, now time.Time) ([]string, error) {
	episodes, err := t.store.AllEpisodesForDecay()
	if err != nil {
		return nil, newError(KindStorageUnavailable, "TemporalEngine.AtRisk", err, "load episodes")
	}
	var out []string
	for _, e := range episodes {
		days, ok, err := t.DaysUntilThreshold(e.ID, threshold, now)
		if err != nil {
			continue
		}
		if ok && days <= horizonDays {
			out = append(out, e.ID)
		}
	}
	return out, nil
}

package anamnesis

import (
	"math"
	"testing"
	"time"
)

func TestRetentionFreshEpisodeNearOne(t *testing.T) {
	cfg := DefaultDecayConfig()
	e := sampleEpisode("fresh")
	e.CreatedAt = time.Now()
	r := Retention(e, time.Now(), cfg)
	if r < 0.99 {
		t.Errorf("expected retention near 1.0 for a fresh episode, got %.4f", r)
	}
}

func TestRetentionDecaysWithAge(t *testing.T) {
	cfg := DefaultDecayConfig()
	now := time.Now()
	e := sampleEpisode("old")
	e.CreatedAt = now.Add(-20 * 24 * time.Hour) // one decay constant for conversational
	e.DecayStrength = DefaultDecayStrength(MemoryConversational)
	r := Retention(e, now, cfg)
	expected := math.Exp(-1)
	if math.Abs(r-expected) > 0.01 {
		t.Errorf("expected retention ~%.4f at one time constant, got %.4f", expected, r)
	}
}

func TestRetentionPinnedIsAlwaysOne(t *testing.T) {
	cfg := DefaultDecayConfig()
	e := sampleEpisode("pinned")
	e.CreatedAt = time.Now().Add(-365 * 24 * time.Hour)
	e.IsPinned = true
	if r := Retention(e, time.Now(), cfg); r != 1.0 {
		t.Errorf("expected pinned retention 1.0, got %.4f", r)
	}
}

func TestRetentionAccessBoostCapped(t *testing.T) {
	cfg := DefaultDecayConfig()
	now := time.Now()
	low := sampleEpisode("low-access")
	low.CreatedAt = now.Add(-5 * 24 * time.Hour)
	low.AccessCount = 1

	high := sampleEpisode("high-access")
	high.CreatedAt = now.Add(-5 * 24 * time.Hour)
	high.AccessCount = 1000 // far past the 0.5 boost cap

	rLow := Retention(low, now, cfg)
	rHigh := Retention(high, now, cfg)
	if rHigh <= rLow {
		t.Errorf("expected more access to raise retention: low=%.4f high=%.4f", rLow, rHigh)
	}
	if rHigh > cfg.MaxRetention {
		t.Errorf("retention must never exceed MaxRetention, got %.4f", rHigh)
	}
}

func TestRetentionClampedToMinRetention(t *testing.T) {
	cfg := DefaultDecayConfig()
	e := sampleEpisode("ancient")
	e.CreatedAt = time.Now().Add(-3650 * 24 * time.Hour)
	r := Retention(e, time.Now(), cfg)
	if r < cfg.MinRetention {
		t.Errorf("retention must never fall below MinRetention %.4f, got %.4f", cfg.MinRetention, r)
	}
}

func TestRecomputeAllReEntrancyGuardIsNoop(t *testing.T) {
	s := testStore(t)
	vec, err := NewRelationalVectorStore(s)
	if err != nil {
		t.Fatal(err)
	}
	te := NewTemporalEngine(s, vec, DefaultDecayConfig())

	e := sampleEpisode("ep-1")
	e.CreatedAt = time.Now().Add(-5 * 24 * time.Hour)
	if err := s.InsertEpisode(e); err != nil {
		t.Fatal(err)
	}

	n, err := te.RecomputeAll(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 episode updated, got %d", n)
	}

	// Simulate re-entrant sweep: a sweep already in flight is a no-op.
	te.sweeping = true
	n, err = te.RecomputeAll(time.Now())
	te.sweeping = false
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected re-entrant sweep to be a no-op, got %d updated", n)
	}
}

func TestPinThenUnpinRecomputesRetention(t *testing.T) {
	s := testStore(t)
	vec, err := NewRelationalVectorStore(s)
	if err != nil {
		t.Fatal(err)
	}
	te := NewTemporalEngine(s, vec, DefaultDecayConfig())

	e := sampleEpisode("ep-1")
	e.CreatedAt = time.Now().Add(-100 * 24 * time.Hour)
	if err := s.InsertEpisode(e); err != nil {
		t.Fatal(err)
	}

	if err := te.Pin("ep-1", time.Now()); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetEpisode("ep-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.RetentionScore != 1.0 || !got.IsPinned {
		t.Errorf("expected pin to freeze retention at 1.0, got %+v", got)
	}

	if err := te.Unpin("ep-1", time.Now()); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetEpisode("ep-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.RetentionScore >= 1.0 {
		t.Errorf("expected unpin to recompute a decayed retention, got %.4f", got.RetentionScore)
	}
}

func TestForecastTrajectorySampling(t *testing.T) {
	s := testStore(t)
	vec, err := NewRelationalVectorStore(s)
	if err != nil {
		t.Fatal(err)
	}
	te := NewTemporalEngine(s, vec, DefaultDecayConfig())

	e := sampleEpisode("ep-1")
	if err := s.InsertEpisode(e); err != nil {
		t.Fatal(err)
	}

	_, trajectory, err := te.Forecast("ep-1", 40, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	// Daily for days 1-30, then every 3rd day through day 40: 30 + 3 = 33 points.
	if len(trajectory) != 33 {
		t.Errorf("expected 33 trajectory points, got %d", len(trajectory))
	}
}

func TestDaysUntilThresholdPinnedNeverCrosses(t *testing.T) {
	s := testStore(t)
	vec, err := NewRelationalVectorStore(s)
	if err != nil {
		t.Fatal(err)
	}
	te := NewTemporalEngine(s, vec, DefaultDecayConfig())

	e := sampleEpisode("ep-1")
	e.IsPinned = true
	if err := s.InsertEpisode(e); err != nil {
		t.Fatal(err)
	}

	_, ok, err := te.DaysUntilThreshold("ep-1", 0.5, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Errorf("expected pinned episode to never cross a threshold")
	}
}

func TestPruneCascadesIntoVectorStore(t *testing.T) {
	s := testStore(t)
	vec, err := NewRelationalVectorStore(s)
	if err != nil {
		t.Fatal(err)
	}
	te := NewTemporalEngine(s, vec, DefaultDecayConfig())

	e := sampleEpisode("ep-1")
	e.RetentionScore = 0.01
	if err := s.InsertEpisode(e); err != nil {
		t.Fatal(err)
	}
	if err := vec.Insert("ep-1", []float32{0.1, 0.2}, "{}"); err != nil {
		t.Fatal(err)
	}

	deleted, err := te.Prune(0.1)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
	count, err := vec.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected vector store to be cascaded clean, got %d entries", count)
	}
}

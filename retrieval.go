package anamnesis

import (
	"context"
	"math/rand"
	"sort"
	"time"
)

// RetrievalMode selects which of the three composable C6 strategies to run.
type RetrievalMode string

const (
	ModeSemantic         RetrievalMode = "semantic"
	ModeTemporalWeighted RetrievalMode = "temporal_weighted"
	ModeRaftFiltered     RetrievalMode = "raft_filtered"
)

// RetrievedEpisode pairs an Episode with its retrieval score and RAFT tag.
type RetrievedEpisode struct {
	Episode     Episode
	Score       float64
	Cosine      float64
	IsDistractor bool
}

// RetrievalResult is the full output of a RAFT-filtered query: ranked
// episodes plus the low-confidence caution flag from §4.2.
type RetrievalResult struct {
	Episodes     []RetrievedEpisode
	LowConfidence bool
}

// RetrievalEngine answers query -> ranked episodes, fusing semantic
// search with temporal weighting and RAFT-style filtering (C6).
type RetrievalEngine struct {
	store    *Store
	vec      VectorStore
	embedder EmbeddingProvider
	decay    DecayConfig
	raft     RaftConfig
	cfg      RetrievalConfig
}

// NewRetrievalEngine wires the engine to its collaborators.
func NewRetrievalEngine(store *Store, vec VectorStore, embedder EmbeddingProvider, decay DecayConfig, raft RaftConfig, cfg RetrievalConfig) *RetrievalEngine {
	return &RetrievalEngine{store: store, vec: vec, embedder: embedder, decay: decay, raft: raft, cfg: cfg}
}

// candidates runs an ANN search for n nearest neighbors, degrading to the
// most-recent-episodes fallback on any vector-store failure — retrieval
// is total and never raises to the caller, per §4.2/§7.
func (r *RetrievalEngine) candidates(ctx context.Context, query string, n int) ([]ScoredID, bool, error) {
	if n > r.cfg.CandidateCap {
		n = r.cfg.CandidateCap
	}

	embedding, err := r.embedder.Embed(ctx, query, "RETRIEVAL_QUERY")
	degraded := err != nil
	if err == nil {
		hits, vecErr := r.vec.Search(embedding, n)
		if vecErr == nil {
			return hits, false, nil
		}
		degraded = true
	}

	// Fallback: most-recent episodes, in lieu of both embedding and ANN failures.
	recent, rErr := r.store.GetRecentEpisodes(n)
	if rErr != nil {
		return nil, degraded, newError(KindStorageUnavailable, "RetrievalEngine.candidates", rErr, "fallback to recent")
	}
	hits := make([]ScoredID, len(recent))
	for i, e := range recent {
		hits[i] = ScoredID{ID: e.ID, Score: 0}
	}
	return hits, true, nil
}

// Semantic embeds the query, ANN-searches for top_k nearest by cosine,
// fetches metadata, and increments access_count for returned ids.
func (r *RetrievalEngine) Semantic(ctx context.Context, query string, topK int) ([]RetrievedEpisode, error) {
	hits, _, err := r.candidates(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}
	episodes, err := r.hydrate(hits, nil)
	if err != nil {
		return nil, err
	}
	if err := r.store.IncrementAccess(idsOf(episodes)); err != nil {
		return nil, newError(KindStorageUnavailable, "RetrievalEngine.Semantic", err, "increment access")
	}
	return episodes, nil
}

// TemporalWeighted ANN-searches for 3*top_k candidates, re-scores each as
// 0.7*cosine + 0.3*retention_score, re-sorts, and truncates to top_k.
func (r *RetrievalEngine) TemporalWeighted(ctx context.Context, query string, topK int, now time.Time) ([]RetrievedEpisode, error) {
	hits, _, err := r.candidates(ctx, query, 3*topK)
	if err != nil {
		return nil, err
	}
	episodes, err := r.hydrate(hits, nil)
	if err != nil {
		return nil, err
	}
	for i := range episodes {
		retention := Retention(episodes[i].Episode, now, r.decay)
		episodes[i].Score = 0.7*episodes[i].Cosine + 0.3*retention
	}
	sort.SliceStable(episodes, func(i, j int) bool { return episodes[i].Score > episodes[j].Score })
	if len(episodes) > topK {
		episodes = episodes[:topK]
	}
	ids := idsOf(episodes)
	if err := r.store.IncrementAccess(ids); err != nil {
		return nil, newError(KindStorageUnavailable, "RetrievalEngine.TemporalWeighted", err, "increment access")
	}
	return episodes, nil
}

// RaftFiltered ANN-searches for 3*top_k candidates, drops those below
// relevance_threshold, flags low_confidence when the top hit's cosine is
// below confidence_threshold, and injects up to max_distractors randomly
// sampled unrelated episodes (never access-count-incremented, never
// promoted into the relevant set).
func (r *RetrievalEngine) RaftFiltered(ctx context.Context, query string, topK int) (RetrievalResult, error) {
	hits, _, err := r.candidates(ctx, query, 3*topK)
	if err != nil {
		return RetrievalResult{}, err
	}
	episodes, err := r.hydrate(hits, nil)
	if err != nil {
		return RetrievalResult{}, err
	}

	sort.SliceStable(episodes, func(i, j int) bool { return episodes[i].Cosine > episodes[j].Cosine })

	var relevant []RetrievedEpisode
	for _, e := range episodes {
		if e.Cosine >= r.raft.RelevanceThreshold {
			e.Score = e.Cosine
			relevant = append(relevant, e)
		}
	}
	if len(relevant) > topK {
		relevant = relevant[:topK]
	}

	lowConfidence := len(relevant) == 0 || relevant[0].Cosine < r.raft.ConfidenceThreshold

	excluded := make(map[string]bool, len(relevant))
	for _, e := range relevant {
		excluded[e.Episode.ID] = true
	}
	distractors, err := r.sampleDistractors(excluded, r.raft.MaxDistractors)
	if err != nil {
		return RetrievalResult{}, err
	}

	ids := idsOf(relevant)
	if err := r.store.IncrementAccess(ids); err != nil {
		return RetrievalResult{}, newError(KindStorageUnavailable, "RetrievalEngine.RaftFiltered", err, "increment access")
	}

	out := append(relevant, distractors...)
	return RetrievalResult{Episodes: out, LowConfidence: lowConfidence}, nil
}

// sampleDistractors picks up to n random episodes not present in exclude.
// Distractors never get access_count incremented — they are a prompt-
// conditioning signal only, per the RAFT contract and Open Question (a).
func (r *RetrievalEngine) sampleDistractors(exclude map[string]bool, n int) ([]RetrievedEpisode, error) {
	if n <= 0 {
		return nil, nil
	}
	pool, err := r.store.GetRecentEpisodes(n * 5)
	if err != nil {
		return nil, newError(KindStorageUnavailable, "RetrievalEngine.sampleDistractors", err, "load pool")
	}
	var candidates []Episode
	for _, e := range pool {
		if !exclude[e.ID] {
			candidates = append(candidates, e)
		}
	}
	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	out := make([]RetrievedEpisode, len(candidates))
	for i, e := range candidates {
		out[i] = RetrievedEpisode{Episode: e, IsDistractor: true}
	}
	return out, nil
}

// Cascade runs the full RAFT -> temporal-weighted -> semantic ->
// recent-episodes fallback chain, advancing to the next stage only when
// the previous one returns zero relevant episodes (not merely on a hard
// error, which each stage already degrades internally). The returned
// RetrievalResult always carries the name of the stage that produced it.
func (r *RetrievalEngine) Cascade(ctx context.Context, query string, topK int, now time.Time) (RetrievalResult, RetrievalMode, error) {
	raft, err := r.RaftFiltered(ctx, query, topK)
	if err != nil {
		return RetrievalResult{}, "", err
	}
	for _, e := range raft.Episodes {
		if !e.IsDistractor {
			return raft, ModeRaftFiltered, nil
		}
	}

	weighted, err := r.TemporalWeighted(ctx, query, topK, now)
	if err != nil {
		return RetrievalResult{}, "", err
	}
	if len(weighted) > 0 {
		return RetrievalResult{Episodes: weighted, LowConfidence: true}, ModeTemporalWeighted, nil
	}

	semantic, err := r.Semantic(ctx, query, topK)
	if err != nil {
		return RetrievalResult{}, "", err
	}
	if len(semantic) > 0 {
		return RetrievalResult{Episodes: semantic, LowConfidence: true}, ModeSemantic, nil
	}

	hits, _, err := r.candidates(ctx, query, topK)
	if err != nil {
		return RetrievalResult{}, "", err
	}
	recent, err := r.hydrate(hits, nil)
	if err != nil {
		return RetrievalResult{}, "", err
	}
	return RetrievalResult{Episodes: recent, LowConfidence: true}, "recent", nil
}

func (r *RetrievalEngine) hydrate(hits []ScoredID, _ any) ([]RetrievedEpisode, error) {
	ids := make([]string, len(hits))
	scoreByID := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scoreByID[h.ID] = h.Score
	}
	episodes, err := r.store.GetEpisodesByIDs(ids)
	if err != nil {
		return nil, newError(KindStorageUnavailable, "RetrievalEngine.hydrate", err, "load episodes")
	}
	out := make([]RetrievedEpisode, len(episodes))
	for i, e := range episodes {
		cos := scoreByID[e.ID]
		out[i] = RetrievedEpisode{Episode: e, Cosine: cos, Score: cos}
	}
	return out, nil
}

func idsOf(episodes []RetrievedEpisode) []string {
	ids := make([]string, len(episodes))
	for i, e := range episodes {
		ids[i] = e.Episode.ID
	}
	return ids
}

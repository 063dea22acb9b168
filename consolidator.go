package anamnesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ConsolidationReport summarizes one run of the consolidator.
type ConsolidationReport struct {
	ClustersFormed int
	EpisodesMerged int
	EpisodesKept   int // candidates that did not reach min_cluster_size
}

// MemoryConsolidator merges clusters of low-retention episodes into a
// single summarized episode, freeing storage while preserving gist (C7).
type MemoryConsolidator struct {
	store *Store
	vec   VectorStore
	embed EmbeddingProvider
	llm   LanguageModelClient
	cfg   ConsolidationConfig
}

// NewMemoryConsolidator wires the consolidator to its collaborators. llm
// may be nil, in which case summarization falls back to concatenation.
func NewMemoryConsolidator(store *Store, vec VectorStore, embed EmbeddingProvider, llm LanguageModelClient, cfg ConsolidationConfig) *MemoryConsolidator {
	return &MemoryConsolidator{store: store, vec: vec, embed: embed, llm: llm, cfg: cfg}
}

// Run fetches consolidation candidates, clusters them by embedding
// similarity, and consolidates every cluster that reaches min_cluster_size.
// Per-cluster failures are isolated: one bad cluster does not abort the run.
func (c *MemoryConsolidator) Run(ctx context.Context) (ConsolidationReport, error) {
	candidates, err := c.store.CandidatesBelowRetention(c.cfg.RetentionThreshold, c.cfg.CandidateCap)
	if err != nil {
		return ConsolidationReport{}, newError(KindStorageUnavailable, "MemoryConsolidator.Run", err, "load candidates")
	}

	var report ConsolidationReport
	remaining := make(map[string]Episode, len(candidates))
	for _, e := range candidates {
		remaining[e.ID] = e
	}

	for len(remaining) > 0 {
		var seed Episode
		for _, e := range remaining {
			seed = e
			break
		}
		delete(remaining, seed.ID)

		cluster, err := c.gatherCluster(seed, remaining)
		if err != nil {
			continue
		}
		if len(cluster) < c.cfg.MinClusterSize {
			report.EpisodesKept++
			continue
		}
		for _, e := range cluster[1:] {
			delete(remaining, e.ID)
		}

		if err := c.consolidate(ctx, cluster); err != nil {
			continue
		}
		report.ClustersFormed++
		report.EpisodesMerged += len(cluster)
	}

	return report, nil
}

// gatherCluster finds up to max_cluster_size-1 peers of seed among pool
// whose embedding cosine similarity exceeds similarity_threshold. Peer
// re-embedding is fanned out with a bounded worker pool since each call
// is an independent round trip to the embedding provider.
func (c *MemoryConsolidator) gatherCluster(seed Episode, pool map[string]Episode) ([]Episode, error) {
	seedVec, err := c.vectorFor(seed)
	if err != nil {
		return nil, err
	}

	type scored struct {
		episode Episode
		score   float64
	}
	var (
		mu    sync.Mutex
		peers []scored
	)
	g := new(errgroup.Group)
	g.SetLimit(c.cfg.EmbeddingConcurrency)
	for id, e := range pool {
		if id == seed.ID {
			continue
		}
		e := e
		g.Go(func() error {
			v, err := c.vectorFor(e)
			if err != nil {
				return nil // a single bad peer just drops out of the cluster
			}
			sim := CosineSimilarity(seedVec, v)
			if sim > c.cfg.SimilarityThreshold {
				mu.Lock()
				peers = append(peers, scored{episode: e, score: sim})
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	// Highest-similarity peers first so truncation to max_cluster_size-1
	// keeps the closest matches.
	for i := 1; i < len(peers); i++ {
		for j := i; j > 0 && peers[j].score > peers[j-1].score; j-- {
			peers[j], peers[j-1] = peers[j-1], peers[j]
		}
	}

	cluster := []Episode{seed}
	limit := c.cfg.MaxClusterSize - 1
	for i, p := range peers {
		if i >= limit {
			break
		}
		cluster = append(cluster, p.episode)
	}
	return cluster, nil
}

// vectorFor re-derives an episode's embedding from its text. The
// VectorStore interface has no get-by-id, so clustering re-embeds rather
// than round-tripping through ANN search.
func (c *MemoryConsolidator) vectorFor(e Episode) ([]float32, error) {
	return c.embed.Embed(context.Background(), e.UserText+"\n"+e.AssistantText, "RETRIEVAL_DOCUMENT")
}

// consolidate summarizes cluster, writes a new consolidated episode,
// embeds it, deletes the sources, and records an audit row.
func (c *MemoryConsolidator) consolidate(ctx context.Context, cluster []Episode) error {
	summary := c.summarize(ctx, cluster)

	var satisfactionSum float64
	var accessSum int64
	var textBytes int
	for _, e := range cluster {
		satisfactionSum += e.Satisfaction
		accessSum += e.AccessCount
		textBytes += len(e.UserText) + len(e.AssistantText)
	}

	now := time.Now()
	merged := Episode{
		ID:              uuid.NewString(),
		UserText:        "[consolidated summary]",
		AssistantText:   summary,
		Satisfaction:    satisfactionSum / float64(len(cluster)),
		CreatedAt:       now,
		AccessCount:     accessSum,
		RetentionScore:  c.cfg.RetentionThreshold,
		LastDecayUpdate: now,
		DecayStrength:   DefaultDecayStrength(MemoryConversational),
		MemoryType:      MemoryConversational,
		IsConsolidated:  true,
		SourceCount:     len(cluster),
	}
	merged.Importance = merged.ComputeImportance()

	embedding, err := c.embed.Embed(ctx, summary, "RETRIEVAL_DOCUMENT")
	if err != nil {
		return newError(KindModelUnavailable, "MemoryConsolidator.consolidate", err, "embed summary")
	}
	merged.EmbeddingRef = merged.ID

	if err := c.store.InsertEpisode(merged); err != nil {
		return newError(KindStorageUnavailable, "MemoryConsolidator.consolidate", err, "insert consolidated episode")
	}
	if err := c.vec.Insert(merged.ID, embedding, marshalMetadata(map[string]string{"memory_type": string(merged.MemoryType)})); err != nil {
		c.store.DeleteEpisode(merged.ID)
		return newError(KindStorageUnavailable, "MemoryConsolidator.consolidate", err, "index consolidated vector")
	}

	sourceIDs := make([]string, len(cluster))
	for i, e := range cluster {
		sourceIDs[i] = e.ID
		c.store.DeleteEpisode(e.ID)
	}
	c.vec.Delete(sourceIDs)
	sourceIDsJSON, _ := json.Marshal(sourceIDs)

	spaceSaved := textBytes - len(merged.AssistantText)
	if spaceSaved < 0 {
		spaceSaved = 0
	}
	return c.store.RecordConsolidation(string(sourceIDsJSON), merged.ID, len(cluster), spaceSaved, now)
}

// summarize produces the consolidated episode's body text via the
// language model, falling back to plain concatenation when no model is
// configured or the call fails — consolidation must never block on C9.
func (c *MemoryConsolidator) summarize(ctx context.Context, cluster []Episode) string {
	if c.llm != nil {
		var sb strings.Builder
		for _, e := range cluster {
			fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n\n", e.UserText, e.AssistantText)
		}
		prompt := "Summarize the following related conversation turns into a single dense paragraph preserving all facts and decisions:\n\n" + sb.String()
		if summary, err := c.llm.Generate(ctx, prompt, GenerateOptions{MaxTokens: 400, Timeout: 20 * time.Second}); err == nil && strings.TrimSpace(summary) != "" {
			return strings.TrimSpace(summary)
		}
	}

	var sb strings.Builder
	for i, e := range cluster {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(e.AssistantText)
	}
	return sb.String()
}

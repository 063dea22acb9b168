package anamnesis

import (
	"context"

	"go.uber.org/zap"
)

// Companion is the assembled memory and planning substrate: every
// component wired from a single Config, plus the background workers that
// keep decay, consolidation, and persona estimation running.
type Companion struct {
	Config Config
	Log    *zap.SugaredLogger

	Store      *Store
	Vector     VectorStore
	Embedder   EmbeddingProvider
	LLM        LanguageModelClient
	Tools      *ToolRegistry

	Episodic     *EpisodicMemory
	Temporal     *TemporalEngine
	Retrieval    *RetrievalEngine
	Consolidator *MemoryConsolidator
	Graph        *KnowledgeGraph
	GraphExtract *GraphExtractor
	Wiki         *SemanticWiki
	Persona      *PersonaEngine
	React        *ReactExecutor
	Planner      *Planner
	Goals        *GoalTracker

	cancel context.CancelFunc
}

// Open assembles a Companion from cfg: opens storage, constructs every
// provider and engine, and starts the background workers. Close must be
// called to release the database and stop the workers.
func Open(ctx context.Context, cfg Config) (*Companion, error) {
	cfg.ApplyDefaults()

	log, err := zap.NewProduction()
	logger := zap.NewNop().Sugar()
	if err == nil {
		logger = log.Sugar()
	}

	store, err := NewStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	vec, err := NewANNVectorStore(cfg.DBPath, cfg.EmbedDimension)
	if err != nil {
		vec, err = NewRelationalVectorStore(store)
		if err != nil {
			store.Close()
			return nil, err
		}
		logger.Infow("vector store degraded", "mode", "relational fallback")
	}

	embedder := cfg.EmbeddingProvider
	if embedder == nil {
		embedder, err = buildDefaultEmbedder(ctx, cfg, logger)
		if err != nil {
			store.Close()
			return nil, err
		}
	}
	if dp, ok := embedder.(DegradedProvider); ok {
		logger.Infow("embedding provider degraded", "mode", dp.ModeDescription())
	}

	llm := cfg.LanguageModel
	if llm == nil {
		llm = buildDefaultLLM(cfg)
	}

	tools := cfg.Tools
	if tools == nil {
		tools = NewToolRegistry()
	}

	episodic := NewEpisodicMemory(store, vec, embedder, cfg.Decay)
	temporal := NewTemporalEngine(store, vec, cfg.Decay)
	retrieval := NewRetrievalEngine(store, vec, embedder, cfg.Decay, cfg.Raft, cfg.Retrieval)
	consolidator := NewMemoryConsolidator(store, vec, embedder, llm, cfg.Consolidation)

	graph, err := NewKnowledgeGraph(store)
	if err != nil {
		store.Close()
		return nil, err
	}
	graphExtract := NewGraphExtractor(graph, llm)

	wiki, err := NewSemanticWiki(store, embedder, llm, cfg.Wiki)
	if err != nil {
		store.Close()
		return nil, err
	}

	persona, err := NewPersonaEngine(store, cfg.PersonaCfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	react := NewReactExecutor(llm, tools, cfg.React, store)
	planner := NewPlanner(llm, react, tools, cfg.PlannerCfg)

	companionCtx, cancel := context.WithCancel(ctx)

	c := &Companion{
		Config: cfg, Log: logger,
		Store: store, Vector: vec, Embedder: embedder, LLM: llm, Tools: tools,
		Episodic: episodic, Temporal: temporal, Retrieval: retrieval, Consolidator: consolidator,
		Graph: graph, GraphExtract: graphExtract, Wiki: wiki, Persona: persona,
		React: react, Planner: planner, Goals: NewGoalTracker(),
		cancel: cancel,
	}

	go NewTemporalWorker(temporal, cfg.Decay.DecayWorkerInterval, logger).Run(companionCtx)
	go NewConsolidatorWorker(consolidator, cfg.ConsolidationInterval, logger).Run(companionCtx)
	go NewPersonaWorker(persona, cfg.PersonaInterval, logger).Run(companionCtx)

	return c, nil
}

// Close stops the background workers and releases the database handle.
func (c *Companion) Close() error {
	c.cancel()
	return c.Store.Close()
}

func buildDefaultEmbedder(ctx context.Context, cfg Config, log *zap.SugaredLogger) (EmbeddingProvider, error) {
	if cfg.GeminiAPIKey != "" {
		e, err := NewGenAIEmbedder(ctx, cfg.GeminiAPIKey, "", cfg.EmbedDimension, log)
		if err == nil {
			return e, nil
		}
		log.Warnw("genai embedder unavailable, trying openai", "err", err)
	}
	if cfg.OpenAIAPIKey != "" {
		e, err := NewOpenAIEmbedder(cfg.OpenAIAPIKey, WithOpenAIEmbedDimension(cfg.EmbedDimension))
		if err == nil {
			return e, nil
		}
		log.Warnw("openai embedder unavailable, falling back to hash embedder", "err", err)
	}
	return NewHashEmbedder(cfg.EmbedDimension), nil
}

func buildDefaultLLM(cfg Config) LanguageModelClient {
	if cfg.AnthropicAPIKey != "" {
		if c, err := NewAnthropicClient(cfg.AnthropicAPIKey); err == nil {
			return c
		}
	}
	if cfg.OpenAIAPIKey != "" {
		if c, err := NewOpenAIClient(cfg.OpenAIAPIKey); err == nil {
			return c
		}
	}
	return nil
}

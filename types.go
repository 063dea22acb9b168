// Package anamnesis is the core long-term memory and planning substrate for
// a personal AI companion: episodic storage with temporal decay, hybrid
// retrieval, a knowledge graph, a semantic wiki, memory consolidation,
// persona adaptation, and a plan-and-execute agent loop.
package anamnesis

import "time"

// MemoryType classifies an Episode for decay-rate and retrieval purposes.
type MemoryType string

const (
	MemoryFactual        MemoryType = "factual"
	MemoryProcedural     MemoryType = "procedural"
	MemoryConversational MemoryType = "conversational"
	MemoryEphemeral      MemoryType = "ephemeral"
)

// DefaultDecayStrength returns the time constant (in days) for a memory
// type's forgetting curve. Larger values decay more slowly.
func DefaultDecayStrength(t MemoryType) float64 {
	switch t {
	case MemoryFactual:
		return 40
	case MemoryProcedural:
		return 30
	case MemoryEphemeral:
		return 10
	default:
		return 20 // conversational, and the default for unknown types
	}
}

// Episode is a single durable conversation-turn record plus decay metadata.
type Episode struct {
	ID              string
	UserText        string
	AssistantText   string
	Satisfaction    float64
	CreatedAt       time.Time
	AccessCount     int64
	Importance      float64
	RetentionScore  float64
	LastDecayUpdate time.Time
	IsPinned        bool
	DecayStrength   float64
	MemoryType      MemoryType
	EmbeddingRef    string // empty == unembedded
	IsConsolidated  bool
	SourceCount     int
}

// ComputeImportance derives Episode.Importance from its current fields,
// per spec: importance = 0.5*retention + 0.3*satisfaction + min(0.2, 0.05*access_count).
func (e *Episode) ComputeImportance() float64 {
	accessTerm := 0.05 * float64(e.AccessCount)
	if accessTerm > 0.2 {
		accessTerm = 0.2
	}
	return 0.5*e.RetentionScore + 0.3*e.Satisfaction + accessTerm
}

// Entity is a knowledge-graph node.
type Entity struct {
	EntityID    string
	Name        string
	EntityType  string
	Properties  map[string]string
	CommunityID *int
	Degree      int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Relationship is a directed, weighted knowledge-graph edge.
type Relationship struct {
	ID               int64
	SourceID         string
	TargetID         string
	RelationshipType string
	Weight           float64
	Properties       map[string]string
	CreatedAt        time.Time
}

// EntityLink associates an extracted Entity with the Episode it was found in.
type EntityLink struct {
	EntityID  string
	EpisodeID string
	Relevance float64
}

// FactCategory is the open-but-bounded taxonomy of semantic-wiki facts.
type FactCategory string

const (
	FactPreference  FactCategory = "preference"
	FactKnowledge   FactCategory = "knowledge"
	FactTask        FactCategory = "task"
	FactDefinition  FactCategory = "definition"
	FactInstruction FactCategory = "instruction"
	FactOther       FactCategory = "other"
)

// Fact is a discrete, deduplicated proposition extracted from conversation.
type Fact struct {
	ID                   string
	Statement            string
	Entity               string
	Category             FactCategory
	Confidence           float64
	SourceConversationID string
	SourceMessageID      string
	LearnedAt            time.Time
	ReinforcementCount   int
	RelatedFacts         []string
}

// PersonaSource tags where a persona-history entry came from.
type PersonaSource string

const (
	PersonaSourceManual       PersonaSource = "manual"
	PersonaSourceOptimization PersonaSource = "optimization"
	PersonaSourceEvolution    PersonaSource = "evolution"
)

// AdjustmentStrategy selects how a persona update is merged into the
// current vector.
type AdjustmentStrategy string

const (
	// StrategyBlend weighted-averages the proposed vector into the
	// current one using PersonaConfig.LearningRate. Default.
	StrategyBlend AdjustmentStrategy = "blend"
	// StrategyDirect overwrites the current vector outright; used for
	// explicit manual overrides.
	StrategyDirect AdjustmentStrategy = "direct"
)

// Persona is the ten-dimensional style vector driving response generation.
type Persona struct {
	Formality      float64
	Verbosity      float64
	Humor          float64
	EmojiUsage     float64
	Empathy        float64
	Creativity     float64
	Proactiveness  float64
	TechnicalDepth float64
	CodeExamples   float64
	Questioning    float64
}

// DefaultPersona returns a neutral midpoint vector.
func DefaultPersona() Persona {
	return Persona{
		Formality: 0.5, Verbosity: 0.5, Humor: 0.5, EmojiUsage: 0.5,
		Empathy: 0.5, Creativity: 0.5, Proactiveness: 0.5,
		TechnicalDepth: 0.5, CodeExamples: 0.5, Questioning: 0.5,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Clamp restricts every dimension to [0, 1] and returns the result.
func (p Persona) Clamp() Persona {
	return Persona{
		Formality:      clamp01(p.Formality),
		Verbosity:      clamp01(p.Verbosity),
		Humor:          clamp01(p.Humor),
		EmojiUsage:     clamp01(p.EmojiUsage),
		Empathy:        clamp01(p.Empathy),
		Creativity:     clamp01(p.Creativity),
		Proactiveness:  clamp01(p.Proactiveness),
		TechnicalDepth: clamp01(p.TechnicalDepth),
		CodeExamples:   clamp01(p.CodeExamples),
		Questioning:    clamp01(p.Questioning),
	}
}

// PersonaHistoryEntry is one logged persona-vector change.
type PersonaHistoryEntry struct {
	ID                  int64
	Parameters          Persona
	Timestamp           time.Time
	AverageSatisfaction *float64
	Source              PersonaSource
}

// StepStatus is the lifecycle state of a Plan Step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepSkipped    StepStatus = "skipped"
)

// Step is one atomic, dependency-gated action within a Plan.
type Step struct {
	StepNumber         int
	Description        string
	Action             string
	ExpectedOutput     string
	DependsOn          map[int]bool
	Status             StepStatus
	Result             string
	Error              string
	RecoverySuggestion string
}

// satisfiesDependents reports whether this step's terminal state allows
// dependents to become eligible (completed or deliberately skipped).
func (s Step) satisfiesDependents() bool {
	return s.Status == StepCompleted || s.Status == StepSkipped
}

// Plan is a DAG of Steps generated for a goal.
type Plan struct {
	ID               string
	Goal             string
	Steps            []Step
	EstimatedTime    time.Duration
	RequiredTools    []string
	Risks            []string
	UserApproved     bool
	ExecutionStarted bool
	Completed        bool
	GoalID           string // optional parent Goal, see goal_tracker.go
}

// IsComplete reports whether every step is completed-or-skipped.
func (p *Plan) IsComplete() bool {
	for _, s := range p.Steps {
		if !s.satisfiesDependents() {
			return false
		}
	}
	return true
}

// Progress returns 100 * completed-or-skipped / total, in [0, 100]. An
// empty plan is vacuously 100% complete, matching IsComplete.
func (p *Plan) Progress() float64 {
	if len(p.Steps) == 0 {
		return 100
	}
	done := 0
	for _, s := range p.Steps {
		if s.satisfiesDependents() {
			done++
		}
	}
	return 100 * float64(done) / float64(len(p.Steps))
}

// NextStep returns the first pending step whose dependencies are all
// completed-or-skipped, or nil if none is eligible (a cycle, full
// completion, or remaining steps that wait on a failed step — callers
// distinguish via IsComplete / ValidateDAG).
func (p *Plan) NextStep() *Step {
	terminal := make(map[int]bool, len(p.Steps))
	for _, s := range p.Steps {
		terminal[s.StepNumber] = s.satisfiesDependents()
	}
	for i := range p.Steps {
		s := &p.Steps[i]
		if s.Status != StepPending {
			continue
		}
		eligible := true
		for dep := range s.DependsOn {
			if !terminal[dep] {
				eligible = false
				break
			}
		}
		if eligible {
			return s
		}
	}
	return nil
}

// ValidateDAG checks that DependsOn references only existing steps and
// that the dependency graph is acyclic.
func (p *Plan) ValidateDAG() error {
	index := make(map[int]bool, len(p.Steps))
	for _, s := range p.Steps {
		index[s.StepNumber] = true
	}
	byNum := make(map[int]Step, len(p.Steps))
	for _, s := range p.Steps {
		byNum[s.StepNumber] = s
	}
	for _, s := range p.Steps {
		for dep := range s.DependsOn {
			if dep == s.StepNumber {
				return newError(KindInvalidInput, "plan.ValidateDAG", nil, "step %d depends on itself", s.StepNumber)
			}
			if !index[dep] {
				return newError(KindInvalidInput, "plan.ValidateDAG", nil, "step %d depends on unknown step %d", s.StepNumber, dep)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[int]int, len(p.Steps))
	var visit func(n int) error
	visit = func(n int) error {
		color[n] = gray
		for dep := range byNum[n].DependsOn {
			switch color[dep] {
			case gray:
				return newError(KindInvalidInput, "plan.ValidateDAG", nil, "cycle detected at step %d", dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[n] = black
		return nil
	}
	for _, s := range p.Steps {
		if color[s.StepNumber] == white {
			if err := visit(s.StepNumber); err != nil {
				return err
			}
		}
	}
	return nil
}

// DecayConfig governs the Temporal Engine's defaults.
type DecayConfig struct {
	MinRetention        float64
	MaxRetention        float64
	DecayWorkerInterval time.Duration
}

// DefaultDecayConfig matches spec §4.1/§8 defaults.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{
		MinRetention:        0.10,
		MaxRetention:        1.0,
		DecayWorkerInterval: 12 * time.Hour,
	}
}

// RaftConfig controls RAFT-filtered retrieval (§4.2).
type RaftConfig struct {
	RelevanceThreshold  float64
	ConfidenceThreshold float64
	DistractorRatio     float64
	MaxDistractors      int
}

// DefaultRaftConfig matches spec §4.2/§6 defaults.
func DefaultRaftConfig() RaftConfig {
	return RaftConfig{
		RelevanceThreshold:  0.5,
		ConfidenceThreshold: 0.7,
		DistractorRatio:     0.25,
		MaxDistractors:      3,
	}
}

// ConsolidationConfig controls the Memory Consolidator (§4.4).
type ConsolidationConfig struct {
	RetentionThreshold   float64
	SimilarityThreshold  float64
	MinClusterSize       int
	MaxClusterSize       int
	CandidateCap         int
	EmbeddingConcurrency int
}

// DefaultConsolidationConfig matches spec §4.4 defaults.
func DefaultConsolidationConfig() ConsolidationConfig {
	return ConsolidationConfig{
		RetentionThreshold:   0.3,
		SimilarityThreshold:  0.75,
		MinClusterSize:       2,
		MaxClusterSize:       5,
		CandidateCap:         500,
		EmbeddingConcurrency: 8,
	}
}

// WikiConfig controls Semantic Wiki extraction (§4.6).
type WikiConfig struct {
	MinConfidence      float64
	MaxFactsPerTurn    int
	FactDedupThreshold float64
}

// DefaultWikiConfig matches spec §4.6/§3 defaults.
func DefaultWikiConfig() WikiConfig {
	return WikiConfig{
		MinConfidence:      0.6,
		MaxFactsPerTurn:    5,
		FactDedupThreshold: 0.95,
	}
}

// PersonaConfig controls Persona Model re-estimation (§4.7).
type PersonaConfig struct {
	RetentionThreshold float64
	LearningRate       float64
}

// DefaultPersonaConfig matches spec §4.7 defaults.
func DefaultPersonaConfig() PersonaConfig {
	return PersonaConfig{RetentionThreshold: 0.5, LearningRate: 0.1}
}

// ReactConfig bounds the ReAct Executor (§4.8).
type ReactConfig struct {
	MaxIterations    int
	IterationTimeout time.Duration
}

// DefaultReactConfig matches spec §4.8 defaults.
func DefaultReactConfig() ReactConfig {
	return ReactConfig{MaxIterations: 6, IterationTimeout: 30 * time.Second}
}

// PlannerConfig controls plan generation and execution (§4.9).
type PlannerConfig struct {
	MaxSteps           int
	EnableAutoRecovery bool
}

// DefaultPlannerConfig matches spec §4.9 defaults.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{MaxSteps: 12, EnableAutoRecovery: false}
}

// RetrievalConfig bounds the Retrieval Engine (§4.2).
type RetrievalConfig struct {
	CandidateCap int
}

// DefaultRetrievalConfig matches spec §4.2's default candidate ceiling.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{CandidateCap: 500}
}

// Config bundles every tunable and collaborator the Companion core needs.
// Zero-valued fields are resolved to defaults by ApplyDefaults; nil
// provider fields fall back to the built-in implementations wired in
// companion.go.
type Config struct {
	// Storage
	DBPath string // default: ./data/anamnesis.db

	// Providers (nil = use defaults built from the API keys below)
	EmbeddingProvider EmbeddingProvider
	LanguageModel     LanguageModelClient
	Tools             *ToolRegistry

	// Subsystem configs (zero-valued = defaults)
	Decay         DecayConfig
	Raft          RaftConfig
	Consolidation ConsolidationConfig
	Wiki          WikiConfig
	PersonaCfg    PersonaConfig
	React         ReactConfig
	PlannerCfg    PlannerConfig
	Retrieval     RetrievalConfig

	// Worker intervals (0 resolves to the documented default; workers are
	// always on — spec.md has no "disabled" mode for decay/consolidation)
	ConsolidationInterval time.Duration // default: 6h
	PersonaInterval       time.Duration // default: 24h

	// Convenience construction of default providers
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GeminiAPIKey    string
	EmbedDimension  int // default 768
}

// ApplyDefaults fills zero-valued fields with spec-mandated defaults.
func (c *Config) ApplyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "./data/anamnesis.db"
	}
	if c.EmbedDimension == 0 {
		c.EmbedDimension = 768
	}
	if c.Decay == (DecayConfig{}) {
		c.Decay = DefaultDecayConfig()
	}
	if c.Raft == (RaftConfig{}) {
		c.Raft = DefaultRaftConfig()
	}
	if c.Consolidation == (ConsolidationConfig{}) {
		c.Consolidation = DefaultConsolidationConfig()
	}
	if c.Wiki == (WikiConfig{}) {
		c.Wiki = DefaultWikiConfig()
	}
	if c.PersonaCfg == (PersonaConfig{}) {
		c.PersonaCfg = DefaultPersonaConfig()
	}
	if c.React == (ReactConfig{}) {
		c.React = DefaultReactConfig()
	}
	if c.PlannerCfg == (PlannerConfig{}) {
		c.PlannerCfg = DefaultPlannerConfig()
	}
	if c.Retrieval == (RetrievalConfig{}) {
		c.Retrieval = DefaultRetrievalConfig()
	}
	if c.ConsolidationInterval == 0 {
		c.ConsolidationInterval = 6 * time.Hour
	}
	if c.PersonaInterval == 0 {
		c.PersonaInterval = 24 * time.Hour
	}
}

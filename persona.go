package anamnesis

import (
	"regexp"
	"strings"
	"time"
)

// PersonaEngine derives the companion's style vector from the weighted
// signal of well-retained, well-received episodes and blends it into the
// current persona (C11).
type PersonaEngine struct {
	store   *Store
	persona *personaStore
	cfg     PersonaConfig
}

// NewPersonaEngine opens the persona tables and wires its collaborators.
func NewPersonaEngine(store *Store, cfg PersonaConfig) (*PersonaEngine, error) {
	ps, err := newPersonaStore(store)
	if err != nil {
		return nil, newError(KindStorageUnavailable, "NewPersonaEngine", err, "migrate")
	}
	return &PersonaEngine{store: store, persona: ps, cfg: cfg}, nil
}

// Current returns the live persona vector.
func (p *PersonaEngine) Current() (Persona, error) {
	return p.persona.Load()
}

// History returns the n most recent persona-history entries, newest first.
func (p *PersonaEngine) History(n int) ([]PersonaHistoryEntry, error) {
	return p.persona.History(n)
}

// Update gathers episodes with retention above RetentionThreshold, infers
// each one's implied style signal, combines them into a weighted-average
// "learned" vector, and blends it into the current persona using
// strategy. Returns the resulting persona. If no episode qualifies, the
// current persona is returned unchanged.
func (p *PersonaEngine) Update(now time.Time, strategy AdjustmentStrategy, source PersonaSource) (Persona, error) {
	episodes, err := p.store.AllEpisodesForDecay()
	if err != nil {
		return Persona{}, newError(KindStorageUnavailable, "PersonaEngine.Update", err, "load episodes")
	}

	var weightSum float64
	var learned Persona
	var satisfactionSum float64
	var n int
	for _, e := range episodes {
		if e.RetentionScore <= p.cfg.RetentionThreshold {
			continue
		}
		accessTerm := 0.1 * float64(e.AccessCount)
		if accessTerm > 2.0 {
			accessTerm = 2.0
		}
		weight := e.RetentionScore * e.Satisfaction * (1 + accessTerm)
		if weight <= 0 {
			continue
		}
		signal := inferPersonaSignal(e)
		learned = addWeighted(learned, signal, weight)
		weightSum += weight
		satisfactionSum += e.Satisfaction
		n++
	}

	current, err := p.persona.Load()
	if err != nil {
		return Persona{}, newError(KindStorageUnavailable, "PersonaEngine.Update", err, "load current")
	}
	if n == 0 || weightSum == 0 {
		return current, nil
	}
	learned = scale(learned, 1/weightSum)

	var next Persona
	switch strategy {
	case StrategyDirect:
		next = learned.Clamp()
	default:
		lr := p.cfg.LearningRate
		next = blend(current, learned, lr).Clamp()
	}

	if err := p.persona.Save(next); err != nil {
		return Persona{}, newError(KindStorageUnavailable, "PersonaEngine.Update", err, "save persona")
	}
	avg := satisfactionSum / float64(n)
	if err := p.persona.AppendHistory(PersonaHistoryEntry{Parameters: next, Timestamp: now, AverageSatisfaction: &avg, Source: source}); err != nil {
		return Persona{}, newError(KindStorageUnavailable, "PersonaEngine.Update", err, "append history")
	}
	return next, nil
}

// RenderSystemPrompt turns a persona vector into a natural-language style
// directive for the assistant's system prompt.
func RenderSystemPrompt(p Persona) string {
	var sb strings.Builder
	sb.WriteString("Adopt the following conversational style:\n")
	writeDimension(&sb, "Formality", p.Formality, "very casual", "very formal")
	writeDimension(&sb, "Verbosity", p.Verbosity, "terse", "thorough")
	writeDimension(&sb, "Humor", p.Humor, "serious", "playful")
	writeDimension(&sb, "Emoji use", p.EmojiUsage, "none", "frequent")
	writeDimension(&sb, "Empathy", p.Empathy, "matter-of-fact", "warm")
	writeDimension(&sb, "Creativity", p.Creativity, "conventional", "inventive")
	writeDimension(&sb, "Proactiveness", p.Proactiveness, "reactive", "anticipates needs")
	writeDimension(&sb, "Technical depth", p.TechnicalDepth, "high-level", "deeply technical")
	writeDimension(&sb, "Code examples", p.CodeExamples, "avoid code", "prefer code")
	writeDimension(&sb, "Questioning", p.Questioning, "rarely asks questions", "clarifies often")
	return sb.String()
}

func writeDimension(sb *strings.Builder, label string, v float64, low, high string) {
	switch {
	case v < 0.33:
		sb.WriteString("- " + label + ": " + low + "\n")
	case v > 0.67:
		sb.WriteString("- " + label + ": " + high + "\n")
	}
}

var (
	emojiRe    = regexp.MustCompile(`[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}]`)
	questionRe = regexp.MustCompile(`\?`)
)

// inferPersonaSignal derives a per-episode style observation from the
// assistant's reply text, reusing the same lightweight heuristic-over-
// surface-features approach as ClassifyMemoryType rather than invoking
// the language model per episode.
func inferPersonaSignal(e Episode) Persona {
	text := e.AssistantText
	words := strings.Fields(text)
	wordCount := float64(len(words))
	if wordCount == 0 {
		wordCount = 1
	}

	hasCode := strings.Contains(text, "```")
	emojiCount := len(emojiRe.FindAllString(text, -1))
	questionCount := len(questionRe.FindAllString(text, -1))

	return Persona{
		Formality:      clamp01(0.5 - 0.1*float64(strings.Count(strings.ToLower(text), "lol"))),
		Verbosity:      clamp01(wordCount / 150),
		Humor:          clamp01(0.3 + 0.2*float64(emojiCount)),
		EmojiUsage:     clamp01(float64(emojiCount) / 3),
		Empathy:        clamp01(0.5 + 0.1*e.Satisfaction),
		Creativity:     0.5,
		Proactiveness:  clamp01(float64(questionCount) / 4),
		TechnicalDepth: boolToFloat(hasCode)*0.8 + 0.2,
		CodeExamples:   boolToFloat(hasCode),
		Questioning:    clamp01(float64(questionCount) / 3),
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func addWeighted(acc, v Persona, w float64) Persona {
	return Persona{
		Formality:      acc.Formality + v.Formality*w,
		Verbosity:      acc.Verbosity + v.Verbosity*w,
		Humor:          acc.Humor + v.Humor*w,
		EmojiUsage:     acc.EmojiUsage + v.EmojiUsage*w,
		Empathy:        acc.Empathy + v.Empathy*w,
		Creativity:     acc.Creativity + v.Creativity*w,
		Proactiveness:  acc.Proactiveness + v.Proactiveness*w,
		TechnicalDepth: acc.TechnicalDepth + v.TechnicalDepth*w,
		CodeExamples:   acc.CodeExamples + v.CodeExamples*w,
		Questioning:    acc.Questioning + v.Questioning*w,
	}
}

func scale(p Persona, s float64) Persona {
	return Persona{
		Formality:      p.Formality * s,
		Verbosity:      p.Verbosity * s,
		Humor:          p.Humor * s,
		EmojiUsage:     p.EmojiUsage * s,
		Empathy:        p.Empathy * s,
		Creativity:     p.Creativity * s,
		Proactiveness:  p.Proactiveness * s,
		TechnicalDepth: p.TechnicalDepth * s,
		CodeExamples:   p.CodeExamples * s,
		Questioning:    p.Questioning * s,
	}
}

// blend computes (1-lr)*current + lr*learned per dimension.
func blend(current, learned Persona, lr float64) Persona {
	return Persona{
		Formality:      (1-lr)*current.Formality + lr*learned.Formality,
		Verbosity:      (1-lr)*current.Verbosity + lr*learned.Verbosity,
		Humor:          (1-lr)*current.Humor + lr*learned.Humor,
		EmojiUsage:     (1-lr)*current.EmojiUsage + lr*learned.EmojiUsage,
		Empathy:        (1-lr)*current.Empathy + lr*learned.Empathy,
		Creativity:     (1-lr)*current.Creativity + lr*learned.Creativity,
		Proactiveness:  (1-lr)*current.Proactiveness + lr*learned.Proactiveness,
		TechnicalDepth: (1-lr)*current.TechnicalDepth + lr*learned.TechnicalDepth,
		CodeExamples:   (1-lr)*current.CodeExamples + lr*learned.CodeExamples,
		Questioning:    (1-lr)*current.Questioning + lr*learned.Questioning,
	}
}

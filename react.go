package anamnesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ReactStepKind tags one entry in a ReAct transcript.
type ReactStepKind string

const (
	ReactThought     ReactStepKind = "thought"
	ReactAction      ReactStepKind = "action"
	ReactObservation ReactStepKind = "observation"
	ReactFinal       ReactStepKind = "final"
)

// ReactTranscriptEntry is one recorded step of a ReAct run.
type ReactTranscriptEntry struct {
	Kind    ReactStepKind
	Content string
}

// ReactResult is the outcome of one ReAct run: either a final answer, or
// budget exhaustion with the partial transcript so the caller can decide
// how to recover.
type ReactResult struct {
	Answer     string
	Succeeded  bool
	Transcript []ReactTranscriptEntry
}

// reactAction is the JSON shape the model is prompted to emit when it
// wants to invoke a tool: {"tool": "...", "args": {...}}. A reply with no
// such JSON is treated as a final answer.
type reactAction struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

const reactSystemPrompt = `You are solving a task step by step using the think-act-observe pattern.
Available tools:
%s

At each step, either:
1. Respond with a JSON object {"tool": "<name>", "args": {...}} to invoke a tool, or
2. Respond with plain text to give your final answer.

Task: %s`

// ReactExecutor runs a bounded think/act/observe loop against a language
// model and a tool registry (C12).
type ReactExecutor struct {
	llm   LanguageModelClient
	tools *ToolRegistry
	cfg   ReactConfig
	store *Store
}

// NewReactExecutor wires the executor to its collaborators. store may be
// nil, in which case tool invocations simply aren't audited.
func NewReactExecutor(llm LanguageModelClient, tools *ToolRegistry, cfg ReactConfig, store *Store) *ReactExecutor {
	return &ReactExecutor{llm: llm, tools: tools, cfg: cfg, store: store}
}

// Run drives the loop for task, up to MaxIterations think/act rounds, each
// bounded by IterationTimeout. Tool failures become observations fed back
// into the next iteration rather than aborting the run; only budget
// exhaustion or a model failure (the first one; calls are not retried)
// ends the run unsuccessfully.
func (r *ReactExecutor) Run(ctx context.Context, task string) (ReactResult, error) {
	toolList := r.renderToolList()
	prompt := fmt.Sprintf(reactSystemPrompt, toolList, task)
	var transcript []ReactTranscriptEntry

	for i := 0; i < r.cfg.MaxIterations; i++ {
		iterCtx, cancel := context.WithTimeout(ctx, r.cfg.IterationTimeout)
		reply, err := r.llm.Generate(iterCtx, prompt, GenerateOptions{MaxTokens: 800})
		cancel()
		if err != nil {
			transcript = append(transcript, ReactTranscriptEntry{Kind: ReactObservation, Content: "model call failed: " + err.Error()})
			return ReactResult{Succeeded: false, Transcript: transcript}, nil
		}

		action, isAction := parseReactAction(reply)
		if !isAction {
			transcript = append(transcript, ReactTranscriptEntry{Kind: ReactFinal, Content: reply})
			return ReactResult{Answer: strings.TrimSpace(reply), Succeeded: true, Transcript: transcript}, nil
		}

		transcript = append(transcript, ReactTranscriptEntry{Kind: ReactAction, Content: reply})

		invokeCtx, cancel := context.WithTimeout(ctx, r.cfg.IterationTimeout)
		start := time.Now()
		observation, invokeErr := r.tools.Invoke(invokeCtx, action.Tool, string(action.Args))
		latency := time.Since(start)
		cancel()
		succeeded := invokeErr == nil
		if invokeErr != nil {
			observation = "error: " + invokeErr.Error()
		}
		if r.store != nil {
			r.store.RecordToolInvocation(action.Tool, string(action.Args), observation, succeeded, latency, time.Now())
		}
		transcript = append(transcript, ReactTranscriptEntry{Kind: ReactObservation, Content: observation})

		prompt = prompt + "\n\nAction: " + reply + "\nObservation: " + observation
	}

	return ReactResult{Succeeded: false, Transcript: transcript}, nil
}

func (r *ReactExecutor) renderToolList() string {
	if r.tools == nil {
		return "(none)"
	}
	descriptions := r.tools.Descriptions()
	if len(descriptions) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for name, desc := range descriptions {
		sb.WriteString("- " + name + ": " + desc + "\n")
	}
	return sb.String()
}

func parseReactAction(reply string) (reactAction, bool) {
	raw, ok := ExtractJSON(reply)
	if !ok {
		return reactAction{}, false
	}
	var a reactAction
	if err := json.Unmarshal([]byte(raw), &a); err != nil || a.Tool == "" {
		return reactAction{}, false
	}
	return a, true
}

package anamnesis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// plannedStep mirrors the JSON shape the language model emits per step:
// {"step_number","description","action","expected_output","depends_on"}.
type plannedStep struct {
	StepNumber     int    `json:"step_number"`
	Description    string `json:"description"`
	Action         string `json:"action"`
	ExpectedOutput string `json:"expected_output"`
	DependsOn      []int  `json:"depends_on"`
}

// plannedPlan mirrors the top-level generation reply.
type plannedPlan struct {
	Steps         []plannedStep `json:"steps"`
	EstimatedTime int           `json:"estimated_time_seconds"`
	RequiredTools []string      `json:"required_tools"`
	Risks         []string      `json:"risks"`
}

const planGenerationPrompt = `Decompose this goal into a dependency-ordered JSON plan:
{"steps": [{"step_number": 1, "description": "...", "action": "...", "expected_output": "...", "depends_on": []}], "estimated_time_seconds": 0, "required_tools": ["..."], "risks": ["..."]}

Tools available: %s

Goal: %s

Respond with only the JSON object.`

const autoRecoveryPrompt = `A plan step exhausted its execution budget without producing a final answer.

Step: %s
Failure: %s

Suggest, in one or two sentences, a narrower action or a split into sub-steps that would let this step succeed. Respond with plain text, no JSON.`

// Planner generates, validates, and sequentially executes Plans,
// delegating each step's execution to the ReAct Executor (C13).
type Planner struct {
	llm     LanguageModelClient
	react   *ReactExecutor
	tools   *ToolRegistry
	cfg     PlannerConfig
}

// NewPlanner wires the planner to its collaborators.
func NewPlanner(llm LanguageModelClient, react *ReactExecutor, tools *ToolRegistry, cfg PlannerConfig) *Planner {
	return &Planner{llm: llm, react: react, tools: tools, cfg: cfg}
}

// Generate asks the language model for a step decomposition of goal,
// validates the resulting DAG, and returns the Plan unexecuted.
func (p *Planner) Generate(ctx context.Context, goal string) (Plan, error) {
	toolList := "(none)"
	if p.tools != nil && len(p.tools.List()) > 0 {
		names, _ := json.Marshal(p.tools.List())
		toolList = string(names)
	}
	prompt := fmt.Sprintf(planGenerationPrompt, toolList, goal)
	reply, err := p.llm.Generate(ctx, prompt, GenerateOptions{MaxTokens: 1200, Timeout: 30 * time.Second})
	if err != nil {
		return Plan{}, newError(KindModelUnavailable, "Planner.Generate", err, "generate plan")
	}
	raw, ok := ExtractJSON(reply)
	if !ok {
		return Plan{}, newError(KindInvalidInput, "Planner.Generate", nil, "no JSON in model reply")
	}
	var parsed plannedPlan
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Plan{}, newError(KindInvalidInput, "Planner.Generate", err, "unmarshal plan")
	}
	if len(parsed.Steps) > p.cfg.MaxSteps {
		parsed.Steps = parsed.Steps[:p.cfg.MaxSteps]
	}

	plan := Plan{
		ID:            uuid.NewString(),
		Goal:          goal,
		EstimatedTime: time.Duration(parsed.EstimatedTime) * time.Second,
		RequiredTools: parsed.RequiredTools,
		Risks:         parsed.Risks,
	}
	for _, s := range parsed.Steps {
		depends := make(map[int]bool, len(s.DependsOn))
		for _, d := range s.DependsOn {
			depends[d] = true
		}
		plan.Steps = append(plan.Steps, Step{
			StepNumber:     s.StepNumber,
			Description:    s.Description,
			Action:         s.Action,
			ExpectedOutput: s.ExpectedOutput,
			DependsOn:      depends,
			Status:         StepPending,
		})
	}

	if err := plan.ValidateDAG(); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

// ExecuteNext runs the plan's next eligible step (via the ReAct
// Executor) and updates its status in place. Returns false when no step
// is currently eligible: the plan is complete, every remaining step waits
// on a failed step, or a cycle exists that ValidateDAG rejects at
// generation time.
func (p *Planner) ExecuteNext(ctx context.Context, plan *Plan) (bool, error) {
	step := plan.NextStep()
	if step == nil {
		return false, nil
	}
	step.Status = StepInProgress

	task := step.Description
	if step.Action != "" {
		task = step.Action + ": " + step.Description
	}
	result, err := p.react.Run(ctx, task)
	if err != nil {
		step.Status = StepFailed
		step.Error = err.Error()
		return true, nil
	}
	if !result.Succeeded {
		step.Status = StepFailed
		step.Error = "exhausted react budget without a final answer"
		if p.cfg.EnableAutoRecovery {
			step.RecoverySuggestion = p.suggestRecovery(ctx, step)
		}
		return true, nil
	}

	step.Status = StepCompleted
	step.Result = result.Answer
	return true, nil
}

// suggestRecovery asks the language model how to recover from a budget-
// exhausted step. A nil llm or a model failure yields an empty string —
// recovery is advisory and must never block plan execution.
func (p *Planner) suggestRecovery(ctx context.Context, step *Step) string {
	if p.llm == nil {
		return ""
	}
	prompt := fmt.Sprintf(autoRecoveryPrompt, step.Description, step.Error)
	reply, err := p.llm.Generate(ctx, prompt, GenerateOptions{MaxTokens: 200, Timeout: 10 * time.Second})
	if err != nil {
		return ""
	}
	return reply
}

// ExecuteAll drives ExecuteNext until the plan is complete or no further
// step is eligible (a stall not flagged by ValidateDAG — e.g. every
// remaining step transitively depends on a failed one). Marks the plan
// started and completed as appropriate.
func (p *Planner) ExecuteAll(ctx context.Context, plan *Plan) error {
	plan.ExecutionStarted = true
	for {
		advanced, err := p.ExecuteNext(ctx, plan)
		if err != nil {
			return err
		}
		if !advanced {
			break
		}
	}
	plan.Completed = plan.IsComplete()
	return nil
}

package anamnesis

import (
	"context"
	"errors"
	"testing"
)

var errToolBroken = errors.New("tool broke")

func TestReactExecutorFinalAnswerOnPlainTextReply(t *testing.T) {
	llm := &mockLLM{replies: []string{"The answer is 42."}}
	tools := NewToolRegistry()
	r := NewReactExecutor(llm, tools, DefaultReactConfig(), nil)

	result, err := r.Run(context.Background(), "what is the answer?")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Succeeded || result.Answer != "The answer is 42." {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestReactExecutorInvokesToolThenFinalAnswer(t *testing.T) {
	llm := &mockLLM{replies: []string{
		`{"tool": "search", "args": {"q": "go modules"}}`,
		"Go modules are the dependency system.",
	}}
	tool := &mockTool{name: "search", desc: "searches", reply: "go.mod declares the module"}
	tools := NewToolRegistry()
	tools.Register(tool)
	r := NewReactExecutor(llm, tools, DefaultReactConfig(), nil)

	result, err := r.Run(context.Background(), "what are go modules?")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Succeeded {
		t.Fatalf("expected success, got %+v", result)
	}
	if tool.calls != 1 {
		t.Errorf("expected the tool to be invoked once, got %d", tool.calls)
	}

	var sawAction, sawObservation, sawFinal bool
	for _, entry := range result.Transcript {
		switch entry.Kind {
		case ReactAction:
			sawAction = true
		case ReactObservation:
			sawObservation = true
		case ReactFinal:
			sawFinal = true
		}
	}
	if !sawAction || !sawObservation || !sawFinal {
		t.Errorf("expected action, observation, and final transcript entries, got %+v", result.Transcript)
	}
}

func TestReactExecutorAuditsToolInvocations(t *testing.T) {
	s := testStore(t)
	llm := &mockLLM{replies: []string{
		`{"tool": "search", "args": {"q": "x"}}`,
		"done.",
	}}
	tool := &mockTool{name: "search", desc: "searches", reply: "ok"}
	tools := NewToolRegistry()
	tools.Register(tool)
	r := NewReactExecutor(llm, tools, DefaultReactConfig(), s)

	if _, err := r.Run(context.Background(), "do a search"); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM react_tool_invocations WHERE tool_name = 'search'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 audited tool invocation, got %d", count)
	}
}

func TestReactExecutorToolFailureBecomesObservationNotAbort(t *testing.T) {
	llm := &mockLLM{replies: []string{
		`{"tool": "search", "args": {}}`,
		"Recovered after the tool error.",
	}}
	tool := &mockTool{name: "search", desc: "searches", err: errToolBroken}
	tools := NewToolRegistry()
	tools.Register(tool)
	r := NewReactExecutor(llm, tools, DefaultReactConfig(), nil)

	result, err := r.Run(context.Background(), "task")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Succeeded {
		t.Errorf("expected the loop to recover and finish successfully, got %+v", result)
	}
}

func TestReactExecutorExhaustsBudgetWithoutFinalAnswer(t *testing.T) {
	cfg := DefaultReactConfig()
	cfg.MaxIterations = 2
	llm := &mockLLM{replies: []string{
		`{"tool": "search", "args": {}}`,
		`{"tool": "search", "args": {}}`,
	}}
	tool := &mockTool{name: "search", desc: "searches", reply: "ok"}
	tools := NewToolRegistry()
	tools.Register(tool)
	r := NewReactExecutor(llm, tools, cfg, nil)

	result, err := r.Run(context.Background(), "never-ending task")
	if err != nil {
		t.Fatal(err)
	}
	if result.Succeeded {
		t.Errorf("expected budget exhaustion without a final answer, got %+v", result)
	}
	if tool.calls != 2 {
		t.Errorf("expected exactly MaxIterations tool calls, got %d", tool.calls)
	}
}

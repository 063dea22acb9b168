// anamnesis-mcp exposes the companion core as an MCP stdio server.
//
// Environment variables:
//
//	ANAMNESIS_DB_PATH   — SQLite database path (default: ./data/anamnesis.db)
//	GEMINI_API_KEY      — Gemini API key for embeddings
//	OPENAI_API_KEY      — OpenAI API key, alternate embeddings + language model
//	ANTHROPIC_API_KEY   — Anthropic API key, primary language model
//
// Usage:
//
//	go install github.com/aria-companion/anamnesis/cmd/anamnesis-mcp
//	anamnesis-mcp
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	anamnesis "github.com/aria-companion/anamnesis"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	dbPath := os.Getenv("ANAMNESIS_DB_PATH")
	if dbPath == "" {
		dbPath = "./data/anamnesis.db"
	}

	cfg := anamnesis.Config{
		DBPath:          dbPath,
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
	}

	companion, err := anamnesis.Open(context.Background(), cfg)
	if err != nil {
		log.Fatalf("anamnesis init: %v", err)
	}
	defer companion.Close()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "anamnesis-mcp",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remember",
		Description: "Store a conversation turn as an episodic memory. Returns the episode ID.",
	}, rememberHandler(companion))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "recall",
		Description: "Retrieve relevant memories for a query using semantic, temporal-weighted, or RAFT-filtered retrieval.",
	}, recallHandler(companion))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pin_memory",
		Description: "Pin or unpin an episode, freezing or releasing its retention score.",
	}, pinHandler(companion))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "forecast_memory",
		Description: "Project an episode's retention curve forward and report when it will cross a threshold.",
	}, forecastHandler(companion))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "recall_facts",
		Description: "List semantic-wiki facts known about an entity.",
	}, recallFactsHandler(companion))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "persona_status",
		Description: "Report the companion's current persona vector and recent history.",
	}, personaStatusHandler(companion))

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatalf("anamnesis-mcp: %v", err)
	}
}

// --- Input types ---

type rememberInput struct {
	UserMessage      string   `json:"user_message"      jsonschema:"What the user said"`
	AssistantMessage string   `json:"assistant_message" jsonschema:"What the assistant replied"`
	Satisfaction     *float64 `json:"satisfaction,omitempty" jsonschema:"User satisfaction 0.0-1.0 (default 0.5 when omitted)"`
}

type recallInput struct {
	Query   string `json:"query"             jsonschema:"Search query to find relevant memories"`
	TopK    int    `json:"top_k,omitempty"   jsonschema:"Max results to return (default 5)"`
	Mode    string `json:"mode,omitempty"    jsonschema:"semantic, temporal_weighted, raft_filtered, or cascade (default semantic)"`
}

type pinInput struct {
	EpisodeID string `json:"episode_id" jsonschema:"Episode ID to pin/unpin"`
	Pinned    bool   `json:"pinned"     jsonschema:"true to pin, false to unpin"`
}

type forecastInput struct {
	EpisodeID   string `json:"episode_id"   jsonschema:"Episode ID to forecast"`
	HorizonDays int    `json:"horizon_days,omitempty" jsonschema:"How many days ahead to project (default 30)"`
}

type recallFactsInput struct {
	Entity string `json:"entity" jsonschema:"Entity name to look up facts for"`
}

type personaStatusInput struct {
	HistoryCount int `json:"history_count,omitempty" jsonschema:"How many history entries to include (default 5)"`
}

// --- Handlers ---

func rememberHandler(c *anamnesis.Companion) func(context.Context, *mcp.CallToolRequest, rememberInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input rememberInput) (*mcp.CallToolResult, any, error) {
		satisfaction := 0.5
		if input.Satisfaction != nil {
			satisfaction = *input.Satisfaction
		}

		id, err := c.Episodic.Store(ctx, input.UserMessage, input.AssistantMessage, satisfaction)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}

		// Best-effort fan-out per spec.md §2: extraction augments the graph
		// and wiki opportunistically and must never fail the remember call.
		if err := c.GraphExtract.Extract(ctx, id, input.UserMessage, input.AssistantMessage); err != nil {
			log.Printf("graph extraction for episode %s: %v", id, err)
		}
		if _, err := c.Wiki.LearnFromTurn(ctx, id, id, input.UserMessage, input.AssistantMessage); err != nil {
			log.Printf("wiki learn for episode %s: %v", id, err)
		}

		return textResult(jsonString(map[string]any{"episode_id": id, "status": "stored"})), nil, nil
	}
}

func recallHandler(c *anamnesis.Companion) func(context.Context, *mcp.CallToolRequest, recallInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input recallInput) (*mcp.CallToolResult, any, error) {
		topK := input.TopK
		if topK <= 0 {
			topK = 5
		}

		switch anamnesis.RetrievalMode(input.Mode) {
		case "cascade":
			result, stage, err := c.Retrieval.Cascade(ctx, input.Query, topK, time.Now())
			if err != nil {
				return textResult(fmt.Sprintf("error: %v", err)), nil, nil
			}
			return textResult(jsonString(map[string]any{
				"episodes":       episodesToMaps(result.Episodes),
				"low_confidence": result.LowConfidence,
				"stage":          stage,
			})), nil, nil
		case anamnesis.ModeRaftFiltered:
			result, err := c.Retrieval.RaftFiltered(ctx, input.Query, topK)
			if err != nil {
				return textResult(fmt.Sprintf("error: %v", err)), nil, nil
			}
			return textResult(jsonString(map[string]any{
				"episodes":       episodesToMaps(result.Episodes),
				"low_confidence": result.LowConfidence,
			})), nil, nil
		case anamnesis.ModeTemporalWeighted:
			episodes, err := c.Retrieval.TemporalWeighted(ctx, input.Query, topK, time.Now())
			if err != nil {
				return textResult(fmt.Sprintf("error: %v", err)), nil, nil
			}
			return textResult(jsonString(episodesToMaps(episodes))), nil, nil
		default:
			episodes, err := c.Retrieval.Semantic(ctx, input.Query, topK)
			if err != nil {
				return textResult(fmt.Sprintf("error: %v", err)), nil, nil
			}
			return textResult(jsonString(episodesToMaps(episodes))), nil, nil
		}
	}
}

func pinHandler(c *anamnesis.Companion) func(context.Context, *mcp.CallToolRequest, pinInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input pinInput) (*mcp.CallToolResult, any, error) {
		var err error
		if input.Pinned {
			err = c.Temporal.Pin(input.EpisodeID, time.Now())
		} else {
			err = c.Temporal.Unpin(input.EpisodeID, time.Now())
		}
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(jsonString(map[string]any{"episode_id": input.EpisodeID, "pinned": input.Pinned})), nil, nil
	}
}

func forecastHandler(c *anamnesis.Companion) func(context.Context, *mcp.CallToolRequest, forecastInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input forecastInput) (*mcp.CallToolResult, any, error) {
		horizon := input.HorizonDays
		if horizon <= 0 {
			horizon = 30
		}
		current, trajectory, err := c.Temporal.Forecast(input.EpisodeID, horizon, time.Now())
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		points := make([]map[string]any, len(trajectory))
		for i, p := range trajectory {
			points[i] = map[string]any{
				"days_from_now": int(p.DaysFromNow.Hours() / 24),
				"retention":     p.Retention,
			}
		}
		return textResult(jsonString(map[string]any{
			"current_retention": current,
			"trajectory":        points,
		})), nil, nil
	}
}

func recallFactsHandler(c *anamnesis.Companion) func(context.Context, *mcp.CallToolRequest, recallFactsInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input recallFactsInput) (*mcp.CallToolResult, any, error) {
		facts, err := c.Wiki.ForEntity(input.Entity)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		out := make([]map[string]any, len(facts))
		for i, f := range facts {
			out[i] = map[string]any{
				"statement":  f.Statement,
				"category":   f.Category,
				"confidence": f.Confidence,
				"learned_at": f.LearnedAt.Format(time.RFC3339),
			}
		}
		return textResult(jsonString(out)), nil, nil
	}
}

func personaStatusHandler(c *anamnesis.Companion) func(context.Context, *mcp.CallToolRequest, personaStatusInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input personaStatusInput) (*mcp.CallToolResult, any, error) {
		n := input.HistoryCount
		if n <= 0 {
			n = 5
		}
		current, err := c.Persona.Current()
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		history, err := c.Persona.History(n)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		entries := make([]map[string]any, len(history))
		for i, h := range history {
			entries[i] = map[string]any{"timestamp": h.Timestamp.Format(time.RFC3339), "source": h.Source}
		}
		return textResult(jsonString(map[string]any{
			"current": current,
			"prompt":  anamnesis.RenderSystemPrompt(current),
			"history": entries,
		})), nil, nil
	}
}

// --- Helpers ---

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func episodesToMaps(episodes []anamnesis.RetrievedEpisode) []map[string]any {
	out := make([]map[string]any, len(episodes))
	for i, r := range episodes {
		out[i] = map[string]any{
			"id":            r.Episode.ID,
			"user_text":     r.Episode.UserText,
			"assistant_text": r.Episode.AssistantText,
			"score":         r.Score,
			"cosine":        r.Cosine,
			"is_distractor": r.IsDistractor,
			"memory_type":   r.Episode.MemoryType,
			"created_at":    r.Episode.CreatedAt.Format(time.RFC3339),
		}
	}
	return out
}

func jsonString(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "marshal: %v"}`, err)
	}
	return string(data)
}

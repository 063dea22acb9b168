package anamnesis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// extractedEntity mirrors the JSON shape the language model is prompted
// to emit for entity extraction: [{"name","type","properties"}].
type extractedEntity struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties"`
}

// extractedRelationship mirrors [{"source","target","relation","weight"}].
type extractedRelationship struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Relation string  `json:"relation"`
	Weight   float64 `json:"weight"`
}

const entityExtractionPrompt = `Extract named entities from the conversation turn below as a JSON array: [{"name": "...", "type": "...", "properties": {...}}]. Types should be short nouns (person, project, place, tool, concept). Respond with only the JSON array.

User: %s
Assistant: %s`

const relationshipExtractionPrompt = `Given these entity names: %s

And this conversation turn:
User: %s
Assistant: %s

Extract relationships between the named entities as a JSON array: [{"source": "...", "target": "...", "relation": "...", "weight": 0.0-1.0}]. Only use entity names from the list above. Respond with only the JSON array.`

// GraphExtractor pulls entities and relationships out of a conversation
// turn via the language model (C9) and writes them into the knowledge
// graph, linking each entity to its source episode.
type GraphExtractor struct {
	graph *KnowledgeGraph
	llm   LanguageModelClient
}

// NewGraphExtractor wires extraction to its graph and model collaborators.
func NewGraphExtractor(graph *KnowledgeGraph, llm LanguageModelClient) *GraphExtractor {
	return &GraphExtractor{graph: graph, llm: llm}
}

// Extract runs entity then relationship extraction over one turn and
// persists both into the graph, linking every entity to episodeID. A nil
// llm or a model failure is a no-op, not an error — extraction augments
// the graph opportunistically and must never block episode storage.
func (x *GraphExtractor) Extract(ctx context.Context, episodeID, userText, assistantText string) error {
	if x.llm == nil {
		return nil
	}

	entities, err := x.extractEntities(ctx, userText, assistantText)
	if err != nil || len(entities) == 0 {
		return nil
	}

	idByName := make(map[string]string, len(entities))
	for _, ex := range entities {
		id, err := x.graph.UpsertEntity(Entity{Name: ex.Name, EntityType: ex.Type, Properties: ex.Properties})
		if err != nil {
			continue
		}
		idByName[ex.Name] = id
		x.graph.Mention(id, episodeID, 0.8)
	}

	rels, err := x.extractRelationships(ctx, entities, userText, assistantText)
	if err != nil {
		return nil
	}
	now := time.Now()
	for _, rl := range rels {
		sourceID, sOK := idByName[rl.Source]
		targetID, tOK := idByName[rl.Target]
		if !sOK || !tOK {
			continue
		}
		x.graph.Link(Relationship{
			SourceID: sourceID, TargetID: targetID,
			RelationshipType: rl.Relation, Weight: rl.Weight, CreatedAt: now,
		})
	}
	return nil
}

func (x *GraphExtractor) extractEntities(ctx context.Context, userText, assistantText string) ([]extractedEntity, error) {
	prompt := fmt.Sprintf(entityExtractionPrompt, userText, assistantText)
	reply, err := x.llm.Generate(ctx, prompt, GenerateOptions{MaxTokens: 500, Timeout: 15 * time.Second})
	if err != nil {
		return nil, err
	}
	raw, ok := ExtractJSON(reply)
	if !ok {
		return nil, newError(KindInvalidInput, "GraphExtractor.extractEntities", nil, "no JSON in model reply")
	}
	var entities []extractedEntity
	if err := json.Unmarshal([]byte(raw), &entities); err != nil {
		return nil, newError(KindInvalidInput, "GraphExtractor.extractEntities", err, "unmarshal entities")
	}
	return entities, nil
}

func (x *GraphExtractor) extractRelationships(ctx context.Context, entities []extractedEntity, userText, assistantText string) ([]extractedRelationship, error) {
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}
	namesJSON, _ := json.Marshal(names)
	prompt := fmt.Sprintf(relationshipExtractionPrompt, string(namesJSON), userText, assistantText)
	reply, err := x.llm.Generate(ctx, prompt, GenerateOptions{MaxTokens: 500, Timeout: 15 * time.Second})
	if err != nil {
		return nil, err
	}
	raw, ok := ExtractJSON(reply)
	if !ok {
		return nil, newError(KindInvalidInput, "GraphExtractor.extractRelationships", nil, "no JSON in model reply")
	}
	var rels []extractedRelationship
	if err := json.Unmarshal([]byte(raw), &rels); err != nil {
		return nil, newError(KindInvalidInput, "GraphExtractor.extractRelationships", err, "unmarshal relationships")
	}
	return rels, nil
}

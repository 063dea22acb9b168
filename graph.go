package anamnesis

import (
	"time"

	"github.com/google/uuid"
)

// KnowledgeGraph is the public surface over kgStore: entity/relationship
// CRUD, search, neighborhood and community queries, and bounded path
// finding (C8).
type KnowledgeGraph struct {
	kg *kgStore
}

// NewKnowledgeGraph opens the graph's tables against store's connection.
func NewKnowledgeGraph(store *Store) (*KnowledgeGraph, error) {
	kg, err := newKGStore(store)
	if err != nil {
		return nil, newError(KindStorageUnavailable, "NewKnowledgeGraph", err, "migrate")
	}
	return &KnowledgeGraph{kg: kg}, nil
}

// UpsertEntity creates an entity or overwrites an existing one's name, type
// and properties, assigning a fresh id when
// EntityID is empty. Returns the resolved id.
func (g *KnowledgeGraph) UpsertEntity(e Entity) (string, error) {
	if e.EntityID == "" {
		e.EntityID = uuid.NewString()
	}
	if err := g.kg.UpsertEntity(e, time.Now()); err != nil {
		return "", newError(KindStorageUnavailable, "KnowledgeGraph.UpsertEntity", err, "upsert %s", e.Name)
	}
	return e.EntityID, nil
}

// Link records a directed, weighted relationship between two existing entities.
func (g *KnowledgeGraph) Link(r Relationship) error {
	if err := g.kg.InsertRelationship(r, time.Now()); err != nil {
		return newError(KindStorageUnavailable, "KnowledgeGraph.Link", err, "%s -> %s", r.SourceID, r.TargetID)
	}
	return nil
}

// Mention records that an entity was referenced within an episode.
func (g *KnowledgeGraph) Mention(entityID, episodeID string, relevance float64) error {
	if err := g.kg.LinkEntityToEpisode(entityID, episodeID, relevance, time.Now()); err != nil {
		return newError(KindStorageUnavailable, "KnowledgeGraph.Mention", err, "link %s to %s", entityID, episodeID)
	}
	return nil
}

// Get fetches a single entity by id.
func (g *KnowledgeGraph) Get(id string) (Entity, error) {
	return g.kg.GetEntity(id)
}

// Search performs a case-insensitive substring lookup over entity names.
func (g *KnowledgeGraph) Search(query string, limit int) ([]Entity, error) {
	if limit <= 0 {
		limit = 20
	}
	entities, err := g.kg.SearchEntities(query, limit)
	if err != nil {
		return nil, newError(KindStorageUnavailable, "KnowledgeGraph.Search", err, "query %q", query)
	}
	return entities, nil
}

// Neighbors returns every entity one hop from id.
func (g *KnowledgeGraph) Neighbors(id string) ([]Entity, error) {
	neighbors, err := g.kg.Neighbors(id)
	if err != nil {
		return nil, newError(KindStorageUnavailable, "KnowledgeGraph.Neighbors", err, "entity %s", id)
	}
	return neighbors, nil
}

// Community returns every entity sharing a community assignment with id.
func (g *KnowledgeGraph) Community(id string) ([]Entity, error) {
	self, err := g.kg.GetEntity(id)
	if err != nil {
		return nil, err
	}
	if self.CommunityID == nil {
		return []Entity{self}, nil
	}
	members, err := g.kg.Community(*self.CommunityID)
	if err != nil {
		return nil, newError(KindStorageUnavailable, "KnowledgeGraph.Community", err, "community of %s", id)
	}
	return members, nil
}

// Path finds the shortest undirected hop sequence from source to target
// via breadth-first search, bounded by maxHops. Returns a KindNotFound *Error when
// no path exists within the bound.
func (g *KnowledgeGraph) Path(source, target string, maxHops int) ([]string, error) {
	if source == target {
		return []string{source}, nil
	}
	type frame struct {
		id   string
		path []string
	}
	visited := map[string]bool{source: true}
	queue := []frame{{id: source, path: []string{source}}}

	for hop := 0; hop < maxHops && len(queue) > 0; hop++ {
		var next []frame
		for _, f := range queue {
			edges, err := g.kg.AdjacentEdges(f.id)
			if err != nil {
				return nil, newError(KindStorageUnavailable, "KnowledgeGraph.Path", err, "edges of %s", f.id)
			}
			for _, e := range edges {
				other := e.TargetID
				if other == f.id {
					other = e.SourceID
				}
				if visited[other] {
					continue
				}
				visited[other] = true
				newPath := append(append([]string{}, f.path...), other)
				if other == target {
					return newPath, nil
				}
				next = append(next, frame{id: other, path: newPath})
			}
		}
		queue = next
	}
	return nil, newError(KindNotFound, "KnowledgeGraph.Path", nil, "no path from %s to %s within %d hops", source, target, maxHops)
}

// DetectCommunities assigns community ids via connected-component
// labeling, starting from each of ids. A component takes in every entity
// reachable over relationships, whether or not it is listed in ids. This is the
// pluggable community-detection slot spec §4.5 leaves open for a future,
// more sophisticated algorithm (e.g. Louvain); connected components is
// the simplest correct implementation and requires no extra dependency.
func (g *KnowledgeGraph) DetectCommunities(ids []string) error {
	visited := make(map[string]bool, len(ids))
	now := time.Now()
	nextID := 0
	for _, start := range ids {
		if visited[start] {
			continue
		}
		component := g.collectComponent(start, visited)
		if len(component) == 0 {
			continue
		}
		if err := g.kg.SetCommunity(component, nextID, now); err != nil {
			return newError(KindStorageUnavailable, "KnowledgeGraph.DetectCommunities", err, "assign community %d", nextID)
		}
		nextID++
	}
	return nil
}

func (g *KnowledgeGraph) collectComponent(start string, visited map[string]bool) []string {
	if visited[start] {
		return nil
	}
	visited[start] = true
	component := []string{start}
	edges, err := g.kg.AdjacentEdges(start)
	if err != nil {
		return component
	}
	for _, e := range edges {
		other := e.TargetID
		if other == start {
			other = e.SourceID
		}
		component = append(component, g.collectComponent(other, visited)...)
	}
	return component
}

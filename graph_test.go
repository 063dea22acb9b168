package anamnesis

import (
	"testing"
)

func testGraph(t *testing.T) *KnowledgeGraph {
	t.Helper()
	s := testStore(t)
	g, err := NewKnowledgeGraph(s)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestGraphUpsertAndGetEntity(t *testing.T) {
	g := testGraph(t)
	id, err := g.UpsertEntity(Entity{Name: "Go", EntityType: "language"})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected a generated id")
	}
	got, err := g.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Go" || got.EntityType != "language" {
		t.Errorf("unexpected entity: %+v", got)
	}
}

func TestGraphSearchSubstring(t *testing.T) {
	g := testGraph(t)
	if _, err := g.UpsertEntity(Entity{Name: "Golang", EntityType: "language"}); err != nil {
		t.Fatal(err)
	}
	if _, err := g.UpsertEntity(Entity{Name: "Python", EntityType: "language"}); err != nil {
		t.Fatal(err)
	}

	results, err := g.Search("go", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Name != "Golang" {
		t.Errorf("expected only 'Golang' to match substring 'go', got %+v", results)
	}
}

func TestGraphLinkAndNeighbors(t *testing.T) {
	g := testGraph(t)
	a, err := g.UpsertEntity(Entity{Name: "Alice", EntityType: "person"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := g.UpsertEntity(Entity{Name: "Bob", EntityType: "person"})
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Link(Relationship{SourceID: a, TargetID: b, RelationshipType: "knows", Weight: 1.0}); err != nil {
		t.Fatal(err)
	}

	neighbors, err := g.Neighbors(a)
	if err != nil {
		t.Fatal(err)
	}
	if len(neighbors) != 1 || neighbors[0].EntityID != b {
		t.Errorf("expected Bob as Alice's only neighbor, got %+v", neighbors)
	}
}

func TestGraphPathFindsShortestRoute(t *testing.T) {
	g := testGraph(t)
	a, _ := g.UpsertEntity(Entity{Name: "A"})
	b, _ := g.UpsertEntity(Entity{Name: "B"})
	c, _ := g.UpsertEntity(Entity{Name: "C"})

	if err := g.Link(Relationship{SourceID: a, TargetID: b, RelationshipType: "rel", Weight: 1}); err != nil {
		t.Fatal(err)
	}
	if err := g.Link(Relationship{SourceID: b, TargetID: c, RelationshipType: "rel", Weight: 1}); err != nil {
		t.Fatal(err)
	}

	path, err := g.Path(a, c, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(path) != 3 || path[0] != a || path[2] != c {
		t.Errorf("expected path [a b c], got %v", path)
	}
}

func TestGraphPathNotFoundBeyondMaxHops(t *testing.T) {
	g := testGraph(t)
	a, _ := g.UpsertEntity(Entity{Name: "A"})
	b, _ := g.UpsertEntity(Entity{Name: "B"})
	c, _ := g.UpsertEntity(Entity{Name: "C"})
	if err := g.Link(Relationship{SourceID: a, TargetID: b, RelationshipType: "rel", Weight: 1}); err != nil {
		t.Fatal(err)
	}
	if err := g.Link(Relationship{SourceID: b, TargetID: c, RelationshipType: "rel", Weight: 1}); err != nil {
		t.Fatal(err)
	}

	_, err := g.Path(a, c, 1)
	if !IsNotFound(err) {
		t.Errorf("expected not_found when max_hops is too small, got %v", err)
	}
}

func TestGraphDetectCommunitiesConnectedComponents(t *testing.T) {
	g := testGraph(t)
	a, _ := g.UpsertEntity(Entity{Name: "A"})
	b, _ := g.UpsertEntity(Entity{Name: "B"})
	isolated, _ := g.UpsertEntity(Entity{Name: "Isolated"})

	if err := g.Link(Relationship{SourceID: a, TargetID: b, RelationshipType: "rel", Weight: 1}); err != nil {
		t.Fatal(err)
	}

	if err := g.DetectCommunities([]string{a, b, isolated}); err != nil {
		t.Fatal(err)
	}

	entA, err := g.Get(a)
	if err != nil {
		t.Fatal(err)
	}
	entB, err := g.Get(b)
	if err != nil {
		t.Fatal(err)
	}
	entIsolated, err := g.Get(isolated)
	if err != nil {
		t.Fatal(err)
	}

	if entA.CommunityID == nil || entB.CommunityID == nil || entIsolated.CommunityID == nil {
		t.Fatal("expected every entity to receive a community assignment")
	}
	if *entA.CommunityID != *entB.CommunityID {
		t.Errorf("expected A and B in the same community, got %d and %d", *entA.CommunityID, *entB.CommunityID)
	}
	if *entIsolated.CommunityID == *entA.CommunityID {
		t.Errorf("expected the isolated entity in its own community")
	}
}

package core

import (
	"errors"
	"testing"

	"github.com/gridsignals/urbangrid-simulator/model"
)

func TestZoneGraph_NeighborsSortedAndDeduped(t *testing.T) {
	ids := []string{"Z_001", "Z_002", "Z_003"}
	edges := []model.GridEdge{
		{FromZone: "Z_001", ToZone: "Z_003"},
		{FromZone: "Z_001", ToZone: "Z_002"},
		{FromZone: "Z_001", ToZone: "Z_002"}, // duplicate
	}
	g, err := NewZoneGraph(ids, edges)
	if err != nil {
		t.Fatalf("NewZoneGraph: %v", err)
	}

	got := g.Neighbors("Z_001")
	want := []string{"Z_002", "Z_003"}
	if len(got) != len(want) {
		t.Fatalf("Neighbors(Z_001) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Neighbors(Z_001) = %v, want %v", got, want)
		}
	}
}

func TestZoneGraph_StrictRejectsUnknownEndpoint(t *testing.T) {
	ids := []string{"Z_001"}
	edges := []model.GridEdge{{FromZone: "Z_001", ToZone: "Z_404"}}
	if _, err := NewZoneGraph(ids, edges); !errors.Is(err, ErrInvalidEdge) {
		t.Fatalf("err = %v, want ErrInvalidEdge", err)
	}
}

func TestZoneGraph_LenientSkipsAndWarns(t *testing.T) {
	ids := []string{"Z_001", "Z_002"}
	edges := []model.GridEdge{
		{FromZone: "Z_001", ToZone: "Z_002"},
		{FromZone: "Z_001", ToZone: "Z_404"},
		{FromZone: "Z_404", ToZone: "Z_002"},
	}
	g, warnings := NewZoneGraphLenient(ids, edges)
	if len(warnings) != 2 {
		t.Fatalf("warnings = %v, want 2 entries", warnings)
	}
	got := g.Neighbors("Z_001")
	if len(got) != 1 || got[0] != "Z_002" {
		t.Fatalf("Neighbors(Z_001) = %v, want [Z_002]", got)
	}
}

func TestZoneGraph_DirectedEdges(t *testing.T) {
	ids := []string{"A", "B"}
	edges := []model.GridEdge{{FromZone: "A", ToZone: "B"}}
	g, err := NewZoneGraph(ids, edges)
	if err != nil {
		t.Fatalf("NewZoneGraph: %v", err)
	}
	if got := g.Neighbors("B"); got != nil {
		t.Fatalf("Neighbors(B) = %v, want nil (edges are directed)", got)
	}
}

func TestZoneGraph_ContainsAndLen(t *testing.T) {
	g, err := NewZoneGraph([]string{"A", "B", "A"}, nil) // duplicate ID collapses
	if err != nil {
		t.Fatalf("NewZoneGraph: %v", err)
	}
	if g.Len() != 2 {
		t.Fatalf("Len = %d, want 2", g.Len())
	}
	if !g.Contains("A") || g.Contains("C") {
		t.Fatalf("Contains misreported membership")
	}
	if got := g.Neighbors("C"); got != nil {
		t.Fatalf("Neighbors of unknown zone = %v, want nil", got)
	}
}

package core

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gridsignals/urbangrid-simulator/model"
)

var (
	ErrInvalidEdge = errors.New("edge references unknown zone")
	ErrUnknownZone = errors.New("unknown zone")
)

// ZoneGraph is the directed adjacency relation between zones. Zone IDs are
// interned into an integer arena at build time so that cascade traversal
// works on int indices instead of string-keyed maps.
//
// The graph is immutable after construction and safe for concurrent reads.
type ZoneGraph struct {
	ids   []string
	index map[string]int
	adj   [][]int
}

// NewZoneGraph builds a graph over the given zone IDs from an edge list.
// Every edge endpoint must be a known zone ID; the first edge referencing an
// unknown zone fails the whole build with ErrInvalidEdge. Duplicate edges
// are merged. Edges are treated as directed; callers wanting symmetric
// adjacency must supply both directions.
func NewZoneGraph(zoneIDs []string, edges []model.GridEdge) (*ZoneGraph, error) {
	g := newArena(zoneIDs)
	for _, e := range edges {
		if err := g.addEdge(e); err != nil {
			return nil, err
		}
	}
	g.dedupe()
	return g, nil
}

// NewZoneGraphLenient builds a graph like NewZoneGraph but skips edges with
// unknown endpoints instead of failing, collecting one warning string per
// skipped edge. This is the loader's default policy: a bad edge never
// silently corrupts the adjacency map, it is dropped and reported.
func NewZoneGraphLenient(zoneIDs []string, edges []model.GridEdge) (*ZoneGraph, []string) {
	g := newArena(zoneIDs)
	var warnings []string
	for _, e := range edges {
		if err := g.addEdge(e); err != nil {
			warnings = append(warnings, err.Error())
		}
	}
	g.dedupe()
	return g, warnings
}

func newArena(zoneIDs []string) *ZoneGraph {
	g := &ZoneGraph{
		ids:   make([]string, 0, len(zoneIDs)),
		index: make(map[string]int, len(zoneIDs)),
		adj:   make([][]int, 0, len(zoneIDs)),
	}
	for _, id := range zoneIDs {
		if _, exists := g.index[id]; exists {
			continue
		}
		g.index[id] = len(g.ids)
		g.ids = append(g.ids, id)
		g.adj = append(g.adj, nil)
	}
	return g
}

func (g *ZoneGraph) addEdge(e model.GridEdge) error {
	from, ok := g.index[e.FromZone]
	if !ok {
		return fmt.Errorf("%w: %q -> %q (from)", ErrInvalidEdge, e.FromZone, e.ToZone)
	}
	to, ok := g.index[e.ToZone]
	if !ok {
		return fmt.Errorf("%w: %q -> %q (to)", ErrInvalidEdge, e.FromZone, e.ToZone)
	}
	g.adj[from] = append(g.adj[from], to)
	return nil
}

// dedupe sorts each adjacency list and drops duplicate targets so that a
// repeated edge in the source data behaves as an idempotent union.
func (g *ZoneGraph) dedupe() {
	for i, nbrs := range g.adj {
		if len(nbrs) < 2 {
			continue
		}
		sort.Ints(nbrs)
		out := nbrs[:1]
		for _, v := range nbrs[1:] {
			if v != out[len(out)-1] {
				out = append(out, v)
			}
		}
		g.adj[i] = out
	}
}

// Len returns the number of zones in the arena.
func (g *ZoneGraph) Len() int { return len(g.ids) }

// Contains reports whether zoneID is part of the graph.
func (g *ZoneGraph) Contains(zoneID string) bool {
	_, ok := g.index[zoneID]
	return ok
}

// Neighbors returns the IDs of zones reachable over one outgoing edge from
// zoneID. A zone with no outgoing edges (or an unknown zone) yields nil.
func (g *ZoneGraph) Neighbors(zoneID string) []string {
	i, ok := g.index[zoneID]
	if !ok || len(g.adj[i]) == 0 {
		return nil
	}
	out := make([]string, len(g.adj[i]))
	for k, v := range g.adj[i] {
		out[k] = g.ids[v]
	}
	return out
}

// indexOf returns the arena index of zoneID.
func (g *ZoneGraph) indexOf(zoneID string) (int, bool) {
	i, ok := g.index[zoneID]
	return i, ok
}

// idOf returns the zone ID at arena index i.
func (g *ZoneGraph) idOf(i int) string { return g.ids[i] }

// neighborsIdx returns the raw adjacency slice for arena index i. Callers
// must not mutate it.
func (g *ZoneGraph) neighborsIdx(i int) []int { return g.adj[i] }

package core

import (
	"fmt"
	"sort"

	"github.com/gridsignals/urbangrid-simulator/model"
)

// MaxCascadeHops caps how far a cascade spreads through the adjacency graph.
// Beyond three hops the model assumes the whole reachable neighbourhood is
// involved, so higher steps reuse the hop-3 affected set and only escalate
// the display tier.
const MaxCascadeHops = 3

// CascadeSeverity is the display tier derived from a zone's hop distance.
// It is a presentation concern layered on top of HopDistance, not part of
// the traversal.
type CascadeSeverity string

const (
	SeverityCritical CascadeSeverity = "critical"
	SeveritySevere   CascadeSeverity = "severe"
	SeverityModerate CascadeSeverity = "moderate"
	SeverityMild     CascadeSeverity = "mild"
)

// CascadePropagator runs bounded breadth-first propagation over a ZoneGraph.
// Each call recomputes from scratch; there is no incremental state, so a
// step counter that jumps or cycles always yields a consistent result.
type CascadePropagator struct {
	graph *ZoneGraph
}

// NewCascadePropagator constructs a propagator over the given graph.
func NewCascadePropagator(graph *ZoneGraph) *CascadePropagator {
	return &CascadePropagator{graph: graph}
}

// Step computes the affected-zone set and per-zone hop distances for a
// cascade that has spread `step` hops from sourceZone. Traversal depth is
// bounded by MaxCascadeHops; each zone keeps the smallest hop at which any
// path reached it. Returns ErrUnknownZone if sourceZone is not in the graph.
func (p *CascadePropagator) Step(sourceZone string, step int) (*model.CascadeState, error) {
	src, ok := p.graph.indexOf(sourceZone)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownZone, sourceZone)
	}

	limit := step
	if limit > MaxCascadeHops {
		limit = MaxCascadeHops
	}

	dist := make([]int, p.graph.Len())
	for i := range dist {
		dist[i] = -1
	}
	dist[src] = 0

	frontier := []int{src}
	for hop := 1; hop <= limit && len(frontier) > 0; hop++ {
		var next []int
		for _, u := range frontier {
			for _, v := range p.graph.neighborsIdx(u) {
				if dist[v] < 0 {
					dist[v] = hop
					next = append(next, v)
				}
			}
		}
		frontier = next
	}

	state := &model.CascadeState{
		SourceZone:  sourceZone,
		Step:        step,
		HopDistance: make(map[string]int),
	}
	for i, d := range dist {
		if d < 0 {
			continue
		}
		id := p.graph.idOf(i)
		state.HopDistance[id] = d
		state.AffectedZones = append(state.AffectedZones, id)
	}
	sort.Strings(state.AffectedZones)
	return state, nil
}

// HopSeverity maps a zone's hop distance to its display tier for the current
// step. The source is always critical; once the step counter reaches 4 the
// whole affected set is shown at the critical tier.
func HopSeverity(step, hopDistance int) CascadeSeverity {
	if step >= 4 || hopDistance == 0 {
		return SeverityCritical
	}
	switch {
	case hopDistance >= 3:
		return SeveritySevere
	case hopDistance == 2:
		return SeverityModerate
	default:
		return SeverityMild
	}
}

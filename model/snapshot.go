package model

// RiskLevel is the discrete classification of a zone's risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ZoneSnapshot is the derived per-zone state at one simulated hour. Snapshots
// are pure functions of (scenario, intensity, hour) and are recomputed in
// full on every tick; they are never partially updated.
type ZoneSnapshot struct {
	ZoneID          string
	Demand          float64 // kW, rounded
	AQI             float64 // rounded, floored at 0
	RiskScore       int     // 0..100
	RiskLevel       RiskLevel
	IsAffected      bool
	DemandChangePct int
	AQIChange       int
}

// CascadeState describes the progress of a localized-failure cascade through
// the zone-adjacency graph.
type CascadeState struct {
	SourceZone string
	// Step is the operator-visible hop counter (cyclic 0..4 while a cascade
	// runs). Traversal depth is capped separately; see core.MaxCascadeHops.
	Step          int
	AffectedZones []string       // sorted zone IDs reachable within Step hops
	HopDistance   map[string]int // zone ID -> smallest hop at which it was reached
}

// Snapshot is the full engine output for one tick: every zone's derived
// state, plus the cascade overlay when a cascade is running.
type Snapshot struct {
	ScenarioID string
	Hour       int
	Intensity  int
	Zones      map[string]ZoneSnapshot
	Cascade    *CascadeState // nil outside cascade mode
}

package model

// ZoneType categorises a zone by its dominant land use.
type ZoneType string

const (
	ZoneResidential ZoneType = "residential"
	ZoneCommercial  ZoneType = "commercial"
	ZoneIndustrial  ZoneType = "industrial"
	ZoneMedical     ZoneType = "medical"
	ZonePark        ZoneType = "park"
	ZoneMixed       ZoneType = "mixed"
)

// KnownZoneType reports whether s names one of the recognised zone types.
func KnownZoneType(s string) bool {
	switch ZoneType(s) {
	case ZoneResidential, ZoneCommercial, ZoneIndustrial, ZoneMedical, ZonePark, ZoneMixed:
		return true
	}
	return false
}

// Zone is an atomic grid unit. Zones are created once at catalog-build time
// and never mutated by the engine; only derived snapshots change.
type Zone struct {
	ID             string
	Type           ZoneType
	District       string
	Population     int
	BaselineDemand float64 // kW
	BaselineAQI    float64
	HasHospital    bool
	HasPowerPlant  bool

	// X/Y is a display-plane position. It has no behavioural effect on the
	// engine; renderers and proximity-derived edge builders use it.
	X, Y float64
}

// GridEdge is a directed adjacency relation between two zones, used for
// cascade traversal. Bidirectional adjacency is expressed by supplying both
// (a,b) and (b,a); the graph builder does not auto-symmetrise.
type GridEdge struct {
	FromZone string
	ToZone   string
}

package model

// AffectedAll is the sentinel value for scenarios that touch every zone type.
const AffectedAll = "all"

// ScenarioEffects is the coefficient bag of a scenario. A zero coefficient
// means the scenario does not define that effect; the computer skips it.
type ScenarioEffects struct {
	DemandMultiplier      float64
	ResidentialMultiplier float64
	CommercialMultiplier  float64
	AQIIncrease           float64
	AQIChange             float64 // signed; lockdown/flood style scenarios reduce AQI
	RiskIncrease          float64
	SupplyReduction       float64
	OutageChance          float64
}

// ScenarioDefinition is a named disaster/event definition. Loaded once from
// the scenario catalog and immutable afterwards.
type ScenarioDefinition struct {
	ID            string
	Name          string
	AffectedTypes []ZoneType
	AffectsAll    bool
	Effects       ScenarioEffects

	// PeakHour is descriptive metadata only. The computed effect curve
	// always peaks at Duration/2; see core.CurveIntensity.
	PeakHour int

	// Duration is the simulation horizon for this scenario, in hours.
	Duration int
}

// Affects reports whether zones of type t are touched by this scenario.
func (s *ScenarioDefinition) Affects(t ZoneType) bool {
	if s == nil {
		return false
	}
	if s.AffectsAll {
		return true
	}
	for _, at := range s.AffectedTypes {
		if at == t {
			return true
		}
	}
	return false
}

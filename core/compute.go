package core

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/gridsignals/urbangrid-simulator/model"
)

// Base risk constants. Hospitals carry a flat standing-criticality baseline;
// every other zone starts lower and, when unaffected, draws a small jitter
// for visual variety on the dashboard.
const (
	hospitalBaseRisk   = 12
	defaultBaseRisk    = 5
	baselineNoiseRange = 10
	maxRiskScore       = 100
)

// NoiseSource supplies the pseudo-random jitter added to unaffected zones'
// baseline risk. Values must be uniform in [0,1). *rand.Rand satisfies it,
// so tests can inject a seeded generator for deterministic output.
type NoiseSource interface {
	Float64() float64
}

// ZoneStateComputer derives per-zone snapshots from the zone catalog, a
// scenario, the operator intensity, and the current simulated hour. It holds
// no mutable state beyond the injected noise source, so the same inputs
// always produce the same demand/AQI/risk values.
type ZoneStateComputer struct {
	noise NoiseSource
}

// NewZoneStateComputer constructs a computer. A nil noise source gets a
// time-seeded generator, matching the dashboard's "visual noise" behaviour.
func NewZoneStateComputer(noise NoiseSource) *ZoneStateComputer {
	if noise == nil {
		noise = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return &ZoneStateComputer{noise: noise}
}

// Compute derives the snapshot entry for a single zone at the given
// (scenario, intensity, hour) triple.
//
// At hour 0, or when the scenario does not touch the zone's type, the zone
// is returned at baseline. Otherwise the scenario's coefficients are scaled
// by the effect curve and the operator intensity and applied on top of the
// zone's baseline values. Coefficients are not validated here; the catalog
// loader is responsible for rejecting malformed scenarios.
func (c *ZoneStateComputer) Compute(zone *model.Zone, sc *model.ScenarioDefinition, intensityPct, hour int) model.ZoneSnapshot {
	if sc == nil || hour <= 0 || !sc.Affects(zone.Type) {
		return c.baseline(zone)
	}

	curve := CurveIntensity(hour, sc.Duration)
	factor := float64(intensityPct) / 100

	multiplier := demandMultiplier(zone.Type, sc.Effects, curve, factor)

	deltaAQI := aqiDelta(sc.Effects) * curve * factor
	deltaRisk := sc.Effects.RiskIncrease * curve * factor

	baseRisk := defaultBaseRisk
	if zone.HasHospital {
		baseRisk = hospitalBaseRisk
	}
	risk := int(math.Round(float64(baseRisk) + deltaRisk))
	if risk > maxRiskScore {
		risk = maxRiskScore
	}

	aqi := math.Round(zone.BaselineAQI + deltaAQI)
	if aqi < 0 {
		aqi = 0
	}

	return model.ZoneSnapshot{
		ZoneID:          zone.ID,
		Demand:          math.Round(zone.BaselineDemand * multiplier),
		AQI:             aqi,
		RiskScore:       risk,
		RiskLevel:       ClassifyRisk(risk),
		IsAffected:      true,
		DemandChangePct: int(math.Round((multiplier - 1) * 100)),
		AQIChange:       int(math.Round(deltaAQI)),
	}
}

// ComputeAll derives the snapshot entries for every zone, keyed by zone ID.
func (c *ZoneStateComputer) ComputeAll(zones []*model.Zone, sc *model.ScenarioDefinition, intensityPct, hour int) map[string]model.ZoneSnapshot {
	out := make(map[string]model.ZoneSnapshot, len(zones))
	for _, z := range zones {
		out[z.ID] = c.Compute(z, sc, intensityPct, hour)
	}
	return out
}

// baseline returns the zone untouched by any scenario. Hospitals get the
// flat standing-criticality score; everyone else draws jitter in [0,10).
func (c *ZoneStateComputer) baseline(zone *model.Zone) model.ZoneSnapshot {
	risk := hospitalBaseRisk
	if !zone.HasHospital {
		risk = int(c.noise.Float64() * baselineNoiseRange)
	}
	return model.ZoneSnapshot{
		ZoneID:    zone.ID,
		Demand:    zone.BaselineDemand,
		AQI:       zone.BaselineAQI,
		RiskScore: risk,
		RiskLevel: ClassifyRisk(risk),
	}
}

// demandMultiplier picks the demand scaling for a zone. Type-specific
// multipliers win over the general one for matching zones; at most one
// multiplier is ever applied.
func demandMultiplier(t model.ZoneType, eff model.ScenarioEffects, curve, factor float64) float64 {
	switch {
	case t == model.ZoneResidential && eff.ResidentialMultiplier != 0:
		return 1 + (eff.ResidentialMultiplier-1)*curve*factor
	case t == model.ZoneCommercial && eff.CommercialMultiplier != 0:
		return 1 + (eff.CommercialMultiplier-1)*curve*factor
	case eff.DemandMultiplier != 0:
		return 1 + (eff.DemandMultiplier-1)*curve*factor
	default:
		return 1
	}
}

// aqiDelta picks the AQI coefficient: AQIIncrease is a positive excursion,
// AQIChange may be signed. Catalog validation guarantees a scenario defines
// at most one of the two.
func aqiDelta(eff model.ScenarioEffects) float64 {
	if eff.AQIIncrease != 0 {
		return eff.AQIIncrease
	}
	return eff.AQIChange
}

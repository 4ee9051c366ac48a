// core/catalog_loader.go
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gridsignals/urbangrid-simulator/catalog"
	"github.com/gridsignals/urbangrid-simulator/model"
)

var ErrInvalidScenario = errors.New("invalid scenario")

// GridCatalogSummary is a small summary of what was loaded from the zone/edge
// JSON. It's mainly useful for logging or debugging from main().
type GridCatalogSummary struct {
	ZoneIDs      []string
	EdgeCount    int
	SkippedEdges []string
}

// internal JSON shapes - keep them unexported so we're free to evolve them.
type gridCatalogJSON struct {
	Zones []zoneJSON `json:"zones"`
	Edges []edgeJSON `json:"edges"`
}

type zoneJSON struct {
	ID             string  `json:"id"`
	Type           string  `json:"type"`
	District       string  `json:"district"`
	Population     int     `json:"population"`
	BaselineDemand float64 `json:"baseline_demand"`
	BaselineAQI    float64 `json:"baseline_aqi"`
	HasHospital    bool    `json:"has_hospital"`
	HasPowerPlant  bool    `json:"has_power_plant"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
}

type edgeJSON struct {
	FromZone string `json:"from_zone"`
	ToZone   string `json:"to_zone"`
}

type scenarioCatalogJSON struct {
	Scenarios []scenarioJSON `json:"scenarios"`
}

type scenarioJSON struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	AffectedTypes json.RawMessage `json:"affected_types"` // "all" or ["residential", ...]
	Effects       effectsJSON     `json:"effects"`
	PeakHour      int             `json:"peak_hour"`
	Duration      int             `json:"duration"`
}

type effectsJSON struct {
	DemandMultiplier      float64 `json:"demand_multiplier"`
	ResidentialMultiplier float64 `json:"residential_multiplier"`
	CommercialMultiplier  float64 `json:"commercial_multiplier"`
	AQIIncrease           float64 `json:"aqi_increase"`
	AQIChange             float64 `json:"aqi_change"`
	RiskIncrease          float64 `json:"risk_increase"`
	SupplyReduction       float64 `json:"supply_reduction"`
	OutageChance          float64 `json:"outage_chance"`
}

// LoadGridCatalog reads a JSON zone/edge document from r, populates the
// ZoneCatalog, and builds the adjacency graph over the loaded zones.
//
// Zones fail the whole load on any validation error (duplicate ID, unknown
// type): a half-loaded catalog must never be offered to operators. Edges use
// the lenient policy instead: an edge referencing an unknown zone is skipped
// and reported in the summary's SkippedEdges, never silently kept.
func LoadGridCatalog(cat *catalog.ZoneCatalog, r io.Reader) (*ZoneGraph, *GridCatalogSummary, error) {
	if cat == nil {
		return nil, nil, fmt.Errorf("LoadGridCatalog: catalog is nil")
	}

	var payload gridCatalogJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("LoadGridCatalog: decode failed: %w", err)
	}

	summary := &GridCatalogSummary{
		ZoneIDs: make([]string, 0, len(payload.Zones)),
	}

	for _, jz := range payload.Zones {
		zone := &model.Zone{
			ID:             jz.ID,
			Type:           model.ZoneType(strings.ToLower(strings.TrimSpace(jz.Type))),
			District:       jz.District,
			Population:     jz.Population,
			BaselineDemand: jz.BaselineDemand,
			BaselineAQI:    jz.BaselineAQI,
			HasHospital:    jz.HasHospital,
			HasPowerPlant:  jz.HasPowerPlant,
			X:              jz.X,
			Y:              jz.Y,
		}
		if err := cat.AddZone(zone); err != nil {
			return nil, nil, fmt.Errorf("LoadGridCatalog: %w", err)
		}
		summary.ZoneIDs = append(summary.ZoneIDs, jz.ID)
	}

	edges := make([]model.GridEdge, 0, len(payload.Edges))
	for _, je := range payload.Edges {
		edges = append(edges, model.GridEdge{FromZone: je.FromZone, ToZone: je.ToZone})
	}

	graph, warnings := NewZoneGraphLenient(cat.ZoneIDs(), edges)
	summary.EdgeCount = len(edges) - len(warnings)
	summary.SkippedEdges = warnings

	return graph, summary, nil
}

// LoadScenarioCatalog reads the scenario table from r and returns it keyed
// by scenario ID. Scenarios are validated at load time: a non-positive
// duration or an unknown affected type rejects the scenario catalog with
// ErrInvalidScenario, so a broken entry can never be selected later.
func LoadScenarioCatalog(r io.Reader) (map[string]*model.ScenarioDefinition, error) {
	var payload scenarioCatalogJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadScenarioCatalog: decode failed: %w", err)
	}

	out := make(map[string]*model.ScenarioDefinition, len(payload.Scenarios))
	for _, js := range payload.Scenarios {
		if js.ID == "" {
			return nil, fmt.Errorf("%w: scenario with empty id", ErrInvalidScenario)
		}
		if _, dup := out[js.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate scenario %q", ErrInvalidScenario, js.ID)
		}
		if js.Duration <= 0 {
			return nil, fmt.Errorf("%w: %q has duration %d", ErrInvalidScenario, js.ID, js.Duration)
		}

		affectsAll, types, err := parseAffectedTypes(js.AffectedTypes)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidScenario, js.ID, err)
		}

		sc := &model.ScenarioDefinition{
			ID:            js.ID,
			Name:          js.Name,
			AffectedTypes: types,
			AffectsAll:    affectsAll,
			Effects: model.ScenarioEffects{
				DemandMultiplier:      js.Effects.DemandMultiplier,
				ResidentialMultiplier: js.Effects.ResidentialMultiplier,
				CommercialMultiplier:  js.Effects.CommercialMultiplier,
				AQIIncrease:           js.Effects.AQIIncrease,
				AQIChange:             js.Effects.AQIChange,
				RiskIncrease:          js.Effects.RiskIncrease,
				SupplyReduction:       js.Effects.SupplyReduction,
				OutageChance:          js.Effects.OutageChance,
			},
			PeakHour: js.PeakHour,
			Duration: js.Duration,
		}
		out[js.ID] = sc
	}
	return out, nil
}

// parseAffectedTypes accepts either the string sentinel "all" or an array of
// zone type names. An empty/absent value is treated as "all", which is what
// most catalog entries in the dashboard used.
func parseAffectedTypes(raw json.RawMessage) (bool, []model.ZoneType, error) {
	if len(raw) == 0 {
		return true, nil, nil
	}

	var sentinel string
	if err := json.Unmarshal(raw, &sentinel); err == nil {
		if strings.EqualFold(strings.TrimSpace(sentinel), model.AffectedAll) {
			return true, nil, nil
		}
		return false, nil, fmt.Errorf("unsupported affected_types value %q", sentinel)
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return false, nil, fmt.Errorf("affected_types must be %q or an array", model.AffectedAll)
	}

	types := make([]model.ZoneType, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == model.AffectedAll {
			return true, nil, nil
		}
		if !model.KnownZoneType(n) {
			return false, nil, fmt.Errorf("unknown zone type %q", n)
		}
		types = append(types, model.ZoneType(n))
	}
	return false, types, nil
}

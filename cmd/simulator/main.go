package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gridsignals/urbangrid-simulator/catalog"
	"github.com/gridsignals/urbangrid-simulator/core"
	"github.com/gridsignals/urbangrid-simulator/internal/logging"
	"github.com/gridsignals/urbangrid-simulator/internal/sim/session"
	"github.com/gridsignals/urbangrid-simulator/model"
	"github.com/gridsignals/urbangrid-simulator/timectrl"
)

func main() {
	zonesPath := flag.String("zones", "configs/zones.json", "Path to the zone/edge catalog JSON")
	scenariosPath := flag.String("scenarios", "configs/scenarios.json", "Path to the scenario catalog JSON")
	scenarioID := flag.String("scenario", "heatwave", "Scenario ID to play back")
	intensity := flag.Int("intensity", 70, "Operator intensity (0-100)")
	tick := flag.Duration("tick", 250*time.Millisecond, "wall-clock tick interval at speed 1")
	speed := flag.Float64("speed", 2, "playback speed multiplier")
	cascadeFrom := flag.String("cascade-from", "", "run a cascade from this zone ID instead of a scenario")
	cascadeTicks := flag.Int("cascade-ticks", 10, "number of cascade steps to play before exiting")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cat := catalog.NewZoneCatalog()
	graph, summary := loadGrid(cat, *zonesPath)
	for _, warning := range summary.SkippedEdges {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	fmt.Printf("Loaded grid catalog: %d zones, %d edges (%d skipped)\n",
		len(summary.ZoneIDs), summary.EdgeCount, len(summary.SkippedEdges))

	scenarios := loadScenarios(*scenariosPath)
	fmt.Printf("Loaded %d scenarios\n", len(scenarios))

	engine := core.NewSimulationEngine(cat, scenarios, graph, nil)
	clock := timectrl.NewSimulationClock(*tick)
	sess := session.New(engine, clock, session.WithLogger(log))
	if err := sess.SetSpeed(*speed); err != nil {
		panic(err)
	}
	sess.SetIntensity(*intensity)

	done := make(chan struct{})
	ticks := 0
	sess.Subscribe(func(snap *model.Snapshot) {
		printSummary(snap)
		ticks++
		if *cascadeFrom != "" {
			if ticks > *cascadeTicks {
				close(done)
			}
			return
		}
		if st := sess.State(); st.Phase == timectrl.Complete.String() {
			close(done)
		}
	})

	if *cascadeFrom != "" {
		if err := sess.StartCascade(ctx, *cascadeFrom); err != nil {
			panic(fmt.Errorf("failed to start cascade: %w", err))
		}
	} else {
		if err := sess.SelectScenario(ctx, *scenarioID); err != nil {
			panic(fmt.Errorf("failed to select scenario: %w", err))
		}
		if err := sess.Start(); err != nil {
			panic(err)
		}
	}

	<-done
	sess.Reset()
	fmt.Println("Simulation finished")
}

func loadGrid(cat *catalog.ZoneCatalog, path string) (*core.ZoneGraph, *core.GridCatalogSummary) {
	f, err := os.Open(path)
	if err != nil {
		panic(fmt.Errorf("failed to open zone catalog %q: %w", path, err))
	}
	defer f.Close()

	graph, summary, err := core.LoadGridCatalog(cat, f)
	if err != nil {
		panic(fmt.Errorf("failed to load zone catalog: %w", err))
	}
	return graph, summary
}

func loadScenarios(path string) map[string]*model.ScenarioDefinition {
	f, err := os.Open(path)
	if err != nil {
		panic(fmt.Errorf("failed to open scenario catalog %q: %w", path, err))
	}
	defer f.Close()

	scenarios, err := core.LoadScenarioCatalog(f)
	if err != nil {
		panic(fmt.Errorf("failed to load scenario catalog: %w", err))
	}
	return scenarios
}

func printSummary(snap *model.Snapshot) {
	affected, highRisk, peakDemand := 0, 0, 0.0
	for _, zs := range snap.Zones {
		if zs.IsAffected {
			affected++
		}
		if zs.RiskLevel == model.RiskHigh {
			highRisk++
		}
		if zs.Demand > peakDemand {
			peakDemand = zs.Demand
		}
	}

	if snap.Cascade != nil {
		fmt.Printf("step %d: source=%s affected=%d\n",
			snap.Cascade.Step, snap.Cascade.SourceZone, len(snap.Cascade.AffectedZones))
		return
	}
	fmt.Printf("hour %3d: affected=%-3d high_risk=%-3d peak_demand=%.0f kW\n",
		snap.Hour, affected, highRisk, peakDemand)
}

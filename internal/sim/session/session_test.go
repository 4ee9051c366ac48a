package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gridsignals/urbangrid-simulator/catalog"
	"github.com/gridsignals/urbangrid-simulator/core"
	"github.com/gridsignals/urbangrid-simulator/model"
	"github.com/gridsignals/urbangrid-simulator/timectrl"
)

// zeroNoise pins the baseline risk noise to 0 so assertions are exact.
type zeroNoise struct{}

func (zeroNoise) Float64() float64 { return 0 }

// testSession builds a session over four zones in a line
// (Z_001 - Z_002 - Z_003 - Z_004) and one all-types scenario.
func testSession(t *testing.T) (*Session, *timectrl.SimulationClock) {
	t.Helper()

	cat := catalog.NewZoneCatalog()
	zones := []*model.Zone{
		{ID: "Z_001", Type: model.ZoneResidential, BaselineDemand: 2000, BaselineAQI: 60},
		{ID: "Z_002", Type: model.ZoneCommercial, BaselineDemand: 3500, BaselineAQI: 70},
		{ID: "Z_003", Type: model.ZoneIndustrial, BaselineDemand: 6000, BaselineAQI: 95},
		{ID: "Z_004", Type: model.ZoneMedical, BaselineDemand: 2500, BaselineAQI: 55, HasHospital: true},
	}
	for _, z := range zones {
		if err := cat.AddZone(z); err != nil {
			t.Fatalf("AddZone(%s): %v", z.ID, err)
		}
	}

	edges := []model.GridEdge{
		{FromZone: "Z_001", ToZone: "Z_002"},
		{FromZone: "Z_002", ToZone: "Z_001"},
		{FromZone: "Z_002", ToZone: "Z_003"},
		{FromZone: "Z_003", ToZone: "Z_002"},
		{FromZone: "Z_003", ToZone: "Z_004"},
		{FromZone: "Z_004", ToZone: "Z_003"},
	}
	graph, err := core.NewZoneGraph(cat.ZoneIDs(), edges)
	if err != nil {
		t.Fatalf("NewZoneGraph: %v", err)
	}

	scenarios := map[string]*model.ScenarioDefinition{
		"heatwave": {
			ID:         "heatwave",
			Name:       "Heatwave",
			AffectsAll: true,
			Effects: model.ScenarioEffects{
				DemandMultiplier: 1.8,
				AQIIncrease:      35,
				RiskIncrease:     45,
			},
			PeakHour: 3,
			Duration: 6,
		},
	}

	engine := core.NewSimulationEngine(cat, scenarios, graph, zeroNoise{})
	clock := timectrl.NewSimulationClock(time.Hour)
	return New(engine, clock), clock
}

func TestSelectScenario(t *testing.T) {
	s, _ := testSession(t)
	ctx := context.Background()

	var published []*model.Snapshot
	s.Subscribe(func(snap *model.Snapshot) { published = append(published, snap) })

	if err := s.SelectScenario(ctx, "heatwave"); err != nil {
		t.Fatalf("SelectScenario: %v", err)
	}

	st := s.State()
	if st.ScenarioID != "heatwave" || st.Mode != "scenario" {
		t.Fatalf("state = %+v, want heatwave scenario mode", st)
	}
	if st.Hour != 0 || st.Duration != 6 {
		t.Fatalf("state hour=%d duration=%d, want 0 and 6", st.Hour, st.Duration)
	}
	if st.Phase != "ready" {
		t.Fatalf("phase = %q, want ready", st.Phase)
	}

	if len(published) != 1 {
		t.Fatalf("got %d published snapshots, want 1", len(published))
	}
	if published[0].Hour != 0 || published[0].ScenarioID != "heatwave" {
		t.Fatalf("published snapshot = %+v", published[0])
	}
}

func TestSelectScenario_Unknown(t *testing.T) {
	s, _ := testSession(t)
	if err := s.SelectScenario(context.Background(), "blizzard"); !errors.Is(err, ErrUnknownScenario) {
		t.Fatalf("err = %v, want ErrUnknownScenario", err)
	}
}

func TestScenarioTicks(t *testing.T) {
	s, clock := testSession(t)
	ctx := context.Background()

	var hours []int
	s.Subscribe(func(snap *model.Snapshot) { hours = append(hours, snap.Hour) })

	if err := s.SelectScenario(ctx, "heatwave"); err != nil {
		t.Fatalf("SelectScenario: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 3; i++ {
		clock.Tick()
	}
	// selection publish at hour 0, then the three ticks.
	want := []int{0, 1, 2, 3}
	if len(hours) != len(want) {
		t.Fatalf("published hours = %v, want %v", hours, want)
	}
	for i := range want {
		if hours[i] != want[i] {
			t.Fatalf("published hours = %v, want %v", hours, want)
		}
	}

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Hour != 3 {
		t.Fatalf("last snapshot at hour %d, want 3", snap.Hour)
	}
	// Hour 3 of a 6-hour run is the curve peak: full effect at intensity 50.
	zs := snap.Zones["Z_001"]
	if !zs.IsAffected {
		t.Fatalf("Z_001 not marked affected at peak hour")
	}
	if zs.Demand <= 2000 {
		t.Fatalf("Z_001 demand = %v at peak, want above baseline", zs.Demand)
	}
}

func TestScenarioRunsToCompletion(t *testing.T) {
	s, clock := testSession(t)

	if err := s.SelectScenario(context.Background(), "heatwave"); err != nil {
		t.Fatalf("SelectScenario: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 10; i++ {
		clock.Tick()
	}

	st := s.State()
	if st.Phase != "complete" {
		t.Fatalf("phase = %q after over-ticking, want complete", st.Phase)
	}
	if st.Hour != 6 {
		t.Fatalf("hour = %d, want clamp at duration 6", st.Hour)
	}
}

func TestStartWithoutSelection(t *testing.T) {
	s, _ := testSession(t)
	if err := s.Start(); !errors.Is(err, ErrNoScenario) {
		t.Fatalf("Start: err = %v, want ErrNoScenario", err)
	}
	if err := s.Seek(3); !errors.Is(err, ErrNoScenario) {
		t.Fatalf("Seek: err = %v, want ErrNoScenario", err)
	}
}

func TestSeekRepublishes(t *testing.T) {
	s, _ := testSession(t)

	if err := s.SelectScenario(context.Background(), "heatwave"); err != nil {
		t.Fatalf("SelectScenario: %v", err)
	}

	var last *model.Snapshot
	s.Subscribe(func(snap *model.Snapshot) { last = snap })

	if err := s.Seek(4); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if last == nil || last.Hour != 4 {
		t.Fatalf("seek did not republish at hour 4: %+v", last)
	}
	if s.State().Phase != "ready" {
		t.Fatalf("seek flipped phase to %q", s.State().Phase)
	}
}

func TestCascadePlayback(t *testing.T) {
	s, clock := testSession(t)
	ctx := context.Background()

	if err := s.StartCascade(ctx, "Z_404"); !errors.Is(err, ErrUnknownZone) {
		t.Fatalf("unknown source: err = %v, want ErrUnknownZone", err)
	}

	var steps []int
	s.Subscribe(func(snap *model.Snapshot) { steps = append(steps, snap.Hour) })

	if err := s.StartCascade(ctx, "Z_001"); err != nil {
		t.Fatalf("StartCascade: %v", err)
	}
	st := s.State()
	if st.Mode != "cascade" || st.CascadeSource != "Z_001" {
		t.Fatalf("state = %+v, want cascade from Z_001", st)
	}
	if st.Phase != "playing" {
		t.Fatalf("phase = %q, want playing (cascade auto-starts)", st.Phase)
	}

	// Seven ticks: the step counter wraps modulo 5.
	for i := 0; i < 7; i++ {
		clock.Tick()
	}
	want := []int{0, 1, 2, 3, 4, 0, 1, 2}
	if len(steps) != len(want) {
		t.Fatalf("published steps = %v, want %v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("published steps = %v, want %v", steps, want)
		}
	}

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Cascade == nil {
		t.Fatalf("cascade snapshot missing overlay")
	}
	if snap.Cascade.SourceZone != "Z_001" || snap.Cascade.Step != 2 {
		t.Fatalf("cascade overlay = %+v, want source Z_001 at step 2", snap.Cascade)
	}
	// Two hops down the line: Z_001, Z_002, Z_003 affected, Z_004 not yet.
	for _, id := range []string{"Z_001", "Z_002", "Z_003"} {
		if !snap.Zones[id].IsAffected {
			t.Fatalf("zone %s not marked affected at step 2", id)
		}
	}
	if snap.Zones["Z_004"].IsAffected {
		t.Fatalf("Z_004 marked affected at step 2, it is three hops out")
	}
}

func TestCascadeMemoisedStepsMatchFresh(t *testing.T) {
	s, clock := testSession(t)

	if err := s.StartCascade(context.Background(), "Z_001"); err != nil {
		t.Fatalf("StartCascade: %v", err)
	}

	// First pass computes, second pass serves the same steps from the memo.
	firstPass := make(map[int]*model.Snapshot)
	s.Subscribe(func(snap *model.Snapshot) {
		if _, seen := firstPass[snap.Hour]; !seen {
			firstPass[snap.Hour] = snap
			return
		}
		prev := firstPass[snap.Hour]
		if len(snap.Cascade.AffectedZones) != len(prev.Cascade.AffectedZones) {
			t.Errorf("step %d: memoised affected set differs", snap.Hour)
		}
		for id, hop := range prev.Cascade.HopDistance {
			if snap.Cascade.HopDistance[id] != hop {
				t.Errorf("step %d: zone %s hop %d, want %d", snap.Hour, id, snap.Cascade.HopDistance[id], hop)
			}
		}
		for id := range snap.Cascade.HopDistance {
			if !snap.Zones[id].IsAffected {
				t.Errorf("step %d: memoised snapshot lost affected flag on %s", snap.Hour, id)
			}
		}
	})

	for i := 0; i < 10; i++ {
		clock.Tick()
	}
}

func TestSetIntensityClamps(t *testing.T) {
	s, _ := testSession(t)

	s.SetIntensity(150)
	if got := s.State().Intensity; got != 100 {
		t.Fatalf("intensity = %d, want clamp at 100", got)
	}
	s.SetIntensity(-10)
	if got := s.State().Intensity; got != 0 {
		t.Fatalf("intensity = %d, want clamp at 0", got)
	}
}

func TestReset(t *testing.T) {
	s, clock := testSession(t)
	ctx := context.Background()

	if err := s.SelectScenario(ctx, "heatwave"); err != nil {
		t.Fatalf("SelectScenario: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.Tick()
	s.SetIntensity(90)

	s.Reset()

	st := s.State()
	if st.Mode != "" || st.ScenarioID != "" || st.Hour != 0 {
		t.Fatalf("state after Reset = %+v, want idle", st)
	}
	if st.Intensity != 50 {
		t.Fatalf("intensity after Reset = %d, want default 50", st.Intensity)
	}

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.ScenarioID != "" || snap.Cascade != nil {
		t.Fatalf("idle snapshot = %+v, want plain baseline", snap)
	}
	if len(snap.Zones) != 4 {
		t.Fatalf("idle snapshot has %d zones, want 4", len(snap.Zones))
	}
}

type fakeRecorder struct {
	ticks int
	snaps int
}

func (f *fakeRecorder) ObserveTick(string, time.Duration) { f.ticks++ }
func (f *fakeRecorder) RecordSnapshot(*model.Snapshot)    { f.snaps++ }

func TestMetricsRecorderObservesPublishes(t *testing.T) {
	cat := catalog.NewZoneCatalog()
	if err := cat.AddZone(&model.Zone{ID: "Z_001", Type: model.ZonePark, BaselineDemand: 10, BaselineAQI: 10}); err != nil {
		t.Fatalf("AddZone: %v", err)
	}
	graph, err := core.NewZoneGraph(cat.ZoneIDs(), nil)
	if err != nil {
		t.Fatalf("NewZoneGraph: %v", err)
	}
	scenarios := map[string]*model.ScenarioDefinition{
		"drill": {ID: "drill", AffectsAll: true, Duration: 2},
	}
	engine := core.NewSimulationEngine(cat, scenarios, graph, zeroNoise{})
	clock := timectrl.NewSimulationClock(time.Hour)

	rec := &fakeRecorder{}
	s := New(engine, clock, WithMetricsRecorder(rec))

	if err := s.SelectScenario(context.Background(), "drill"); err != nil {
		t.Fatalf("SelectScenario: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.Tick()

	if rec.ticks != 2 || rec.snaps != 2 {
		t.Fatalf("recorder saw %d ticks / %d snapshots, want 2 / 2", rec.ticks, rec.snaps)
	}
}

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gridsignals/urbangrid-simulator/catalog"
	"github.com/gridsignals/urbangrid-simulator/core"
	"github.com/gridsignals/urbangrid-simulator/internal/sim/session"
	"github.com/gridsignals/urbangrid-simulator/model"
	"github.com/gridsignals/urbangrid-simulator/timectrl"
)

type flatNoise struct{}

func (flatNoise) Float64() float64 { return 0 }

// testServer builds a server over three zones in a line and one all-types
// scenario, with a clock that only advances when a test ticks it.
func testServer(t *testing.T) (*Server, *timectrl.SimulationClock) {
	t.Helper()

	cat := catalog.NewZoneCatalog()
	zones := []*model.Zone{
		{ID: "Z_001", Type: model.ZoneResidential, District: "north", BaselineDemand: 2000, BaselineAQI: 60},
		{ID: "Z_002", Type: model.ZoneCommercial, District: "center", BaselineDemand: 3500, BaselineAQI: 70},
		{ID: "Z_003", Type: model.ZoneMedical, District: "center", BaselineDemand: 2500, BaselineAQI: 55, HasHospital: true},
	}
	for _, z := range zones {
		if err := cat.AddZone(z); err != nil {
			t.Fatalf("AddZone(%s): %v", z.ID, err)
		}
	}
	graph, err := core.NewZoneGraph(cat.ZoneIDs(), []model.GridEdge{
		{FromZone: "Z_001", ToZone: "Z_002"},
		{FromZone: "Z_002", ToZone: "Z_001"},
		{FromZone: "Z_002", ToZone: "Z_003"},
		{FromZone: "Z_003", ToZone: "Z_002"},
	})
	if err != nil {
		t.Fatalf("NewZoneGraph: %v", err)
	}

	scenarios := map[string]*model.ScenarioDefinition{
		"heatwave": {
			ID:         "heatwave",
			Name:       "Heatwave",
			AffectsAll: true,
			Effects:    model.ScenarioEffects{DemandMultiplier: 1.8, AQIIncrease: 35, RiskIncrease: 45},
			PeakHour:   12,
			Duration:   24,
		},
	}

	engine := core.NewSimulationEngine(cat, scenarios, graph, flatNoise{})
	clock := timectrl.NewSimulationClock(time.Hour)
	sess := session.New(engine, clock)
	return NewServer(sess, nil, nil), clock
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func TestScenariosEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	rec := do(t, srv, http.MethodGet, "/api/scenarios", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("content type = %q", got)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("response missing X-Request-Id header")
	}

	var views []scenarioView
	decode(t, rec, &views)
	if len(views) != 1 || views[0].ID != "heatwave" {
		t.Fatalf("scenarios = %+v", views)
	}
	if len(views[0].AffectedTypes) != 1 || views[0].AffectedTypes[0] != "all" {
		t.Fatalf("affected types = %v, want [all]", views[0].AffectedTypes)
	}
}

func TestZonesEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	rec := do(t, srv, http.MethodGet, "/api/zones", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var views []zoneView
	decode(t, rec, &views)
	if len(views) != 3 {
		t.Fatalf("got %d zones, want 3", len(views))
	}
	if views[0].ID != "Z_001" || views[2].ID != "Z_003" {
		t.Fatalf("zones out of order: %+v", views)
	}
	if !views[2].HasHospital {
		t.Fatalf("Z_003 lost hospital flag in view")
	}
}

func TestSelectStartAndState(t *testing.T) {
	srv, clock := testServer(t)

	rec := do(t, srv, http.MethodPost, "/api/control/select", `{"scenario_id": "heatwave"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("select status = %d: %s", rec.Code, rec.Body.String())
	}
	var st stateView
	decode(t, rec, &st)
	if st.ScenarioID != "heatwave" || st.Phase != "ready" || st.Duration != 24 {
		t.Fatalf("state after select = %+v", st)
	}

	rec = do(t, srv, http.MethodPost, "/api/control/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}

	clock.Tick()
	clock.Tick()

	rec = do(t, srv, http.MethodGet, "/api/state", "")
	decode(t, rec, &st)
	if st.Hour != 2 || st.Phase != "playing" {
		t.Fatalf("state after two ticks = %+v", st)
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	srv, clock := testServer(t)

	do(t, srv, http.MethodPost, "/api/control/select", `{"scenario_id": "heatwave"}`)
	do(t, srv, http.MethodPost, "/api/control/intensity", `{"intensity": 70}`)
	do(t, srv, http.MethodPost, "/api/control/start", "")
	for i := 0; i < 12; i++ {
		clock.Tick()
	}

	rec := do(t, srv, http.MethodGet, "/api/snapshot", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap snapshotView
	decode(t, rec, &snap)
	if snap.Hour != 12 || snap.Intensity != 70 {
		t.Fatalf("snapshot hour=%d intensity=%d, want 12 and 70", snap.Hour, snap.Intensity)
	}

	// Hour 12 of 24 is the curve peak at intensity 70:
	// 2000 * (1 + 0.8*1.0*0.7) = 3120.
	z := snap.Zones["Z_001"]
	if z.Demand != 3120 {
		t.Fatalf("Z_001 demand = %v, want 3120", z.Demand)
	}
	if !z.IsAffected || z.DemandChangePct != 56 {
		t.Fatalf("Z_001 view = %+v", z)
	}
	if snap.Cascade != nil {
		t.Fatalf("scenario snapshot carries a cascade overlay")
	}
}

func TestCascadeEndpoint(t *testing.T) {
	srv, clock := testServer(t)

	rec := do(t, srv, http.MethodPost, "/api/control/cascade", `{"zone_id": "Z_001"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("cascade status = %d: %s", rec.Code, rec.Body.String())
	}
	var st stateView
	decode(t, rec, &st)
	if st.Mode != "cascade" || st.CascadeSource != "Z_001" || st.Phase != "playing" {
		t.Fatalf("state after cascade = %+v", st)
	}

	clock.Tick()
	clock.Tick()

	rec = do(t, srv, http.MethodGet, "/api/snapshot", "")
	var snap snapshotView
	decode(t, rec, &snap)
	if snap.Cascade == nil {
		t.Fatalf("snapshot missing cascade overlay")
	}
	if snap.Cascade.Step != 2 || len(snap.Cascade.AffectedZones) != 3 {
		t.Fatalf("cascade = %+v, want all three zones at step 2", snap.Cascade)
	}
	if snap.Cascade.Severity["Z_001"] != "critical" {
		t.Fatalf("source severity = %q, want critical", snap.Cascade.Severity["Z_001"])
	}
	if snap.Cascade.Severity["Z_002"] != "mild" {
		t.Fatalf("hop-1 severity = %q, want mild", snap.Cascade.Severity["Z_002"])
	}
}

func TestErrorStatuses(t *testing.T) {
	srv, _ := testServer(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown scenario", http.MethodPost, "/api/control/select", `{"scenario_id": "blizzard"}`, http.StatusNotFound},
		{"unknown cascade zone", http.MethodPost, "/api/control/cascade", `{"zone_id": "Z_404"}`, http.StatusNotFound},
		{"start before select", http.MethodPost, "/api/control/start", "", http.StatusConflict},
		{"seek before select", http.MethodPost, "/api/control/seek", `{"hour": 5}`, http.StatusConflict},
		{"malformed body", http.MethodPost, "/api/control/select", `{"scenario_id": `, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/control/select", `{"scenario": "heatwave"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, srv, tc.method, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.status, rec.Body.String())
			}
		})
	}
}

func TestPauseSeekSpeed(t *testing.T) {
	srv, clock := testServer(t)

	do(t, srv, http.MethodPost, "/api/control/select", `{"scenario_id": "heatwave"}`)
	do(t, srv, http.MethodPost, "/api/control/start", "")
	clock.Tick()

	rec := do(t, srv, http.MethodPost, "/api/control/pause", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("pause status = %d", rec.Code)
	}
	var st stateView
	decode(t, rec, &st)
	if st.Phase != "paused" || st.Hour != 1 {
		t.Fatalf("state after pause = %+v", st)
	}

	rec = do(t, srv, http.MethodPost, "/api/control/seek", `{"hour": 18}`)
	decode(t, rec, &st)
	if st.Hour != 18 {
		t.Fatalf("hour after seek = %d, want 18", st.Hour)
	}

	rec = do(t, srv, http.MethodPost, "/api/control/speed", `{"speed": 2}`)
	decode(t, rec, &st)
	if st.Speed != 2 {
		t.Fatalf("speed = %v, want 2", st.Speed)
	}

	rec = do(t, srv, http.MethodPost, "/api/control/reset", "")
	st = stateView{}
	decode(t, rec, &st)
	if st.Phase != "idle" || st.Mode != "" {
		t.Fatalf("state after reset = %+v", st)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "req-42" {
		t.Fatalf("request id = %q, want req-42 echoed back", got)
	}
}

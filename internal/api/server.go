package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gridsignals/urbangrid-simulator/core"
	"github.com/gridsignals/urbangrid-simulator/internal/logging"
	"github.com/gridsignals/urbangrid-simulator/internal/observability"
	"github.com/gridsignals/urbangrid-simulator/internal/sim/session"
	"github.com/gridsignals/urbangrid-simulator/model"
)

// Server is the dashboard-facing HTTP surface: catalog browsing, the
// operator control endpoints, and the snapshot hand-off that renderers poll.
type Server struct {
	session   *session.Session
	log       logging.Logger
	collector *observability.EngineCollector
	mux       *http.ServeMux
}

// NewServer wires the API routes over a session.
func NewServer(sess *session.Session, log logging.Logger, collector *observability.EngineCollector) *Server {
	if log == nil {
		log = logging.Noop()
	}
	s := &Server{
		session:   sess,
		log:       log,
		collector: collector,
		mux:       http.NewServeMux(),
	}

	s.route("GET /api/scenarios", s.handleScenarios)
	s.route("GET /api/zones", s.handleZones)
	s.route("GET /api/state", s.handleState)
	s.route("GET /api/snapshot", s.handleSnapshot)
	s.route("POST /api/control/select", s.handleSelect)
	s.route("POST /api/control/intensity", s.handleIntensity)
	s.route("POST /api/control/start", s.handleStart)
	s.route("POST /api/control/pause", s.handlePause)
	s.route("POST /api/control/reset", s.handleReset)
	s.route("POST /api/control/seek", s.handleSeek)
	s.route("POST /api/control/speed", s.handleSpeed)
	s.route("POST /api/control/cascade", s.handleCascade)

	return s
}

// Handler returns the root handler for mounting into an http.Server.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) route(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, instrument(s.log, s.collector, pattern, h))
}

//
// ---------- JSON views ----------
//

type scenarioView struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	AffectedTypes []string `json:"affected_types"`
	PeakHour      int      `json:"peak_hour"`
	Duration      int      `json:"duration"`
}

type zoneView struct {
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

type stateView struct {
	ScenarioID    string  `json:"scenario_id,omitempty"`
	CascadeSource string  `json:"cascade_source,omitempty"`
	Mode          string  `json:"mode,omitempty"`
	Hour          int     `json:"hour"`
	Duration      int     `json:"duration"`
	Intensity     int     `json:"intensity"`
	Phase         string  `json:"phase"`
	Speed         float64 `json:"speed"`
}

type zoneSnapshotView struct {
	Demand          float64 `json:"demand"`
	AQI             float64 `json:"aqi"`
	RiskScore       int     `json:"risk_score"`
	RiskLevel       string  `json:"risk_level"`
	IsAffected      bool    `json:"is_affected"`
	DemandChangePct int     `json:"demand_change_pct"`
	AQIChange       int     `json:"aqi_change"`
}

type cascadeView struct {
	SourceZone    string            `json:"source_zone"`
	Step          int               `json:"step"`
	AffectedZones []string          `json:"affected_zones"`
	HopDistance   map[string]int    `json:"hop_distance"`
	Severity      map[string]string `json:"severity"`
}

type snapshotView struct {
	ScenarioID string                      `json:"scenario_id,omitempty"`
	Hour       int                         `json:"hour"`
	Intensity  int                         `json:"intensity"`
	Zones      map[string]zoneSnapshotView `json:"zones"`
	Cascade    *cascadeView                `json:"cascade,omitempty"`
}

func toSnapshotView(snap *model.Snapshot) snapshotView {
	view := snapshotView{
		ScenarioID: snap.ScenarioID,
		Hour:       snap.Hour,
		Intensity:  snap.Intensity,
		Zones:      make(map[string]zoneSnapshotView, len(snap.Zones)),
	}
	for id, zs := range snap.Zones {
		view.Zones[id] = zoneSnapshotView{
			Demand:          zs.Demand,
			AQI:             zs.AQI,
			RiskScore:       zs.RiskScore,
			RiskLevel:       string(zs.RiskLevel),
			IsAffected:      zs.IsAffected,
			DemandChangePct: zs.DemandChangePct,
			AQIChange:       zs.AQIChange,
		}
	}
	if c := snap.Cascade; c != nil {
		view.Cascade = &cascadeView{
			SourceZone:    c.SourceZone,
			Step:          c.Step,
			AffectedZones: c.AffectedZones,
			HopDistance:   c.HopDistance,
			Severity:      severityMap(c),
		}
	}
	return view
}

// severityMap derives the per-zone display tier from hop distances.
func severityMap(c *model.CascadeState) map[string]string {
	out := make(map[string]string, len(c.HopDistance))
	for id, hop := range c.HopDistance {
		out[id] = string(core.HopSeverity(c.Step, hop))
	}
	return out
}

//
// ---------- Read endpoints ----------
//

func (s *Server) handleScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios := s.session.Scenarios()
	views := make([]scenarioView, 0, len(scenarios))
	for _, sc := range scenarios {
		types := make([]string, 0, len(sc.AffectedTypes))
		if sc.AffectsAll {
			types = append(types, model.AffectedAll)
		} else {
			for _, t := range sc.AffectedTypes {
				types = append(types, string(t))
			}
		}
		views = append(views, scenarioView{
			ID:            sc.ID,
			Name:          sc.Name,
			AffectedTypes: types,
			PeakHour:      sc.PeakHour,
			Duration:      sc.Duration,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	zones := s.session.Zones()
	views := make([]zoneView, 0, len(zones))
	for _, z := range zones {
		views = append(views, zoneView{
			ID:             z.ID,
			Type:           string(z.Type),
			District:       z.District,
			Population:     z.Population,
			BaselineDemand: z.BaselineDemand,
			BaselineAQI:    z.BaselineAQI,
			HasHospital:    z.HasHospital,
			HasPowerPlant:  z.HasPowerPlant,
			X:              z.X,
			Y:              z.Y,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st := s.session.State()
	writeJSON(w, http.StatusOK, stateView{
		ScenarioID:    st.ScenarioID,
		CascadeSource: st.CascadeSource,
		Mode:          st.Mode,
		Hour:          st.Hour,
		Duration:      st.Duration,
		Intensity:     st.Intensity,
		Phase:         st.Phase,
		Speed:         st.Speed,
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Snapshot()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotView(snap))
}

//
// ---------- Control endpoints ----------
//

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.session.SelectScenario(r.Context(), req.ScenarioID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleState(w, r)
}

func (s *Server) handleIntensity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Intensity int `json:"intensity"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.session.SetIntensity(req.Intensity)
	s.handleState(w, r)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Start(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleState(w, r)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Pause(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleState(w, r)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.session.Reset()
	s.handleState(w, r)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hour int `json:"hour"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.session.Seek(req.Hour); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleState(w, r)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed float64 `json:"speed"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.session.SetSpeed(req.Speed); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleState(w, r)
}

func (s *Server) handleCascade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ZoneID string `json:"zone_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.session.StartCascade(r.Context(), req.ZoneID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleState(w, r)
}

//
// ---------- Helpers ----------
//

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrUnknownScenario), errors.Is(err, session.ErrUnknownZone):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, session.ErrNoScenario):
		status = http.StatusConflict
	}

	if log := logging.LoggerFromContext(r.Context()); log != nil {
		log.Warn(r.Context(), "request failed",
			logging.Int("status", status),
			logging.String("error", err.Error()),
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

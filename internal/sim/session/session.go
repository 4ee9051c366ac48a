// internal/sim/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gridsignals/urbangrid-simulator/core"
	"github.com/gridsignals/urbangrid-simulator/internal/logging"
	"github.com/gridsignals/urbangrid-simulator/model"
	"github.com/gridsignals/urbangrid-simulator/timectrl"
)

// Re-export engine sentinel errors so callers can depend on session.*
// instead of core.* directly if they want to.
var (
	// ErrUnknownScenario indicates a scenario ID not present in the catalog.
	ErrUnknownScenario = core.ErrUnknownScenario
	// ErrUnknownZone indicates a zone ID not present in the grid.
	ErrUnknownZone = core.ErrUnknownZone
	// ErrInvalidTransition indicates a control operation rejected by the clock.
	ErrInvalidTransition = timectrl.ErrInvalidTransition
	// ErrNoScenario indicates a playback control arrived before any selection.
	ErrNoScenario = errors.New("no scenario selected")
)

// playback modes.
const (
	modeScenario = "scenario"
	modeCascade  = "cascade"
)

const (
	defaultIntensity = 50
	cascadeCacheSize = 64
)

// MetricsRecorder receives tick and snapshot observations. The observability
// EngineCollector satisfies it; tests may supply fakes.
type MetricsRecorder interface {
	ObserveTick(mode string, elapsed time.Duration)
	RecordSnapshot(snap *model.Snapshot)
}

// cascadeKey indexes the memoised cascade BFS results. The propagator is a
// pure function of (source, step), so the cache never goes stale within a
// session; it is dropped whenever the source changes.
type cascadeKey struct {
	source string
	step   int
}

// Session owns one open simulation view: the engine, the clock, the mutable
// SimulationState (scenario, intensity, mode), and the snapshot fan-out to
// renderers. All control operations and tick handling are serialised on one
// mutex, so subscribers always see complete snapshots in hour order.
type Session struct {
	mu      sync.Mutex
	engine  *core.SimulationEngine
	clock   *timectrl.SimulationClock
	log     logging.Logger
	metrics MetricsRecorder

	scenarioID    string
	cascadeSource string
	mode          string
	intensity     int

	cascadeCache *lru.Cache[cascadeKey, *model.CascadeState]

	subscribers  []func(*model.Snapshot)
	lastSnapshot *model.Snapshot
}

// Option customises Session construction.
type Option func(*Session)

// WithLogger attaches a structured logger.
func WithLogger(log logging.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetricsRecorder wires tick/snapshot metrics.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Session) { s.metrics = rec }
}

// New constructs a session over an engine and a clock. The session registers
// itself as the clock's tick listener; callers should not add their own
// listeners to the same clock.
func New(engine *core.SimulationEngine, clock *timectrl.SimulationClock, opts ...Option) *Session {
	s := &Session{
		engine:    engine,
		clock:     clock,
		log:       logging.Noop(),
		intensity: defaultIntensity,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Construction only fails on a non-positive size.
	s.cascadeCache, _ = lru.New[cascadeKey, *model.CascadeState](cascadeCacheSize)

	clock.AddListener(s.onTick)
	return s
}

// Subscribe registers a renderer callback receiving every published
// snapshot. Register subscribers before starting playback.
func (s *Session) Subscribe(fn func(*model.Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// SelectScenario arms the session for hour-stepped playback of the given
// scenario: the hour resets to 0 and playback stops. Selecting mid-playback
// is normal operation, not an error. Unknown or load-rejected scenarios are
// refused with ErrUnknownScenario.
func (s *Session) SelectScenario(ctx context.Context, id string) error {
	sc, err := s.engine.Scenario(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.scenarioID = id
	s.cascadeSource = ""
	s.mode = modeScenario
	if err := s.clock.Arm(sc.Duration, timectrl.HourMode); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.log.Info(ctx, "scenario selected",
		logging.String("scenario_id", id),
		logging.Int("duration", sc.Duration),
	)
	return s.publish(modeScenario)
}

// StartCascade arms cascade playback from the given source zone and begins
// the cyclic hop counter: step advances (step+1) mod 5 on every tick.
func (s *Session) StartCascade(ctx context.Context, zoneID string) error {
	if !s.engine.Graph().Contains(zoneID) {
		return fmt.Errorf("%w: %q", ErrUnknownZone, zoneID)
	}

	s.mu.Lock()
	if s.cascadeSource != zoneID {
		s.cascadeCache.Purge()
	}
	s.scenarioID = ""
	s.cascadeSource = zoneID
	s.mode = modeCascade
	if err := s.clock.Arm(timectrl.CascadeCycle, timectrl.CycleMode); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.clock.Start(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.log.Info(ctx, "cascade started", logging.String("source_zone", zoneID))
	return s.publish(modeCascade)
}

// SetIntensity sets the operator intensity, clamped into [0,100]. The next
// published snapshot reflects it.
func (s *Session) SetIntensity(pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	s.mu.Lock()
	s.intensity = pct
	s.mu.Unlock()
}

// Start resumes or begins playback.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == "" {
		return ErrNoScenario
	}
	return s.clock.Start()
}

// Pause halts playback, keeping the current hour.
func (s *Session) Pause() error { return s.clock.Pause() }

// Seek jumps the hour counter (clamped by the clock) and republishes the
// snapshot so renderers redraw immediately.
func (s *Session) Seek(hour int) error {
	s.mu.Lock()
	mode := s.mode
	s.mu.Unlock()
	if mode == "" {
		return ErrNoScenario
	}
	// The clock notifies its tick listener, which publishes.
	return s.clock.Seek(hour)
}

// SetSpeed adjusts playback speed.
func (s *Session) SetSpeed(mult float64) error { return s.clock.SetSpeed(mult) }

// Reset abandons the current run and returns the session to idle. The last
// snapshot is cleared; catalogs are untouched.
func (s *Session) Reset() {
	s.clock.Reset()
	s.mu.Lock()
	s.scenarioID = ""
	s.cascadeSource = ""
	s.mode = ""
	s.intensity = defaultIntensity
	s.cascadeCache.Purge()
	s.lastSnapshot = nil
	s.mu.Unlock()
}

// State is a point-in-time view of the mutable simulation state, for the
// dashboard's status endpoint.
type State struct {
	ScenarioID    string
	CascadeSource string
	Mode          string
	Hour          int
	Duration      int
	Intensity     int
	Phase         string
	Speed         float64
}

// State returns the current control-surface view.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		ScenarioID:    s.scenarioID,
		CascadeSource: s.cascadeSource,
		Mode:          s.mode,
		Hour:          s.clock.Hour(),
		Duration:      s.clock.Duration(),
		Intensity:     s.intensity,
		Phase:         s.clock.CurrentPhase().String(),
		Speed:         s.clock.Speed(),
	}
}

// Snapshot returns the most recently published snapshot, computing a fresh
// one if none has been published yet.
func (s *Session) Snapshot() (*model.Snapshot, error) {
	s.mu.Lock()
	last := s.lastSnapshot
	mode := s.mode
	s.mu.Unlock()

	if last != nil {
		return last, nil
	}
	if mode == "" {
		// Idle sessions still serve a baseline view of the grid.
		return s.engine.Snapshot("", defaultIntensity, 0)
	}
	return s.recompute(mode)
}

// Scenarios lists the loaded scenario catalog.
func (s *Session) Scenarios() []*model.ScenarioDefinition { return s.engine.Scenarios() }

// Zones lists the zone catalog.
func (s *Session) Zones() []*model.Zone { return s.engine.Catalog().Zones() }

// onTick is the clock listener: it recomputes the full snapshot from scratch
// and fans it out. The hour argument is implied by the clock state.
func (s *Session) onTick(int) {
	s.mu.Lock()
	mode := s.mode
	s.mu.Unlock()
	if mode == "" {
		return
	}
	if err := s.publish(mode); err != nil {
		s.log.Error(context.Background(), "snapshot recompute failed",
			logging.String("mode", mode),
			logging.String("error", err.Error()),
		)
	}
}

// publish recomputes the snapshot for the current state and delivers it to
// all subscribers.
func (s *Session) publish(mode string) error {
	start := time.Now()
	snap, err := s.recompute(mode)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.lastSnapshot = snap
	subs := append([]func(*model.Snapshot){}, s.subscribers...)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ObserveTick(mode, time.Since(start))
		s.metrics.RecordSnapshot(snap)
	}
	for _, fn := range subs {
		fn(snap)
	}
	return nil
}

func (s *Session) recompute(mode string) (*model.Snapshot, error) {
	s.mu.Lock()
	scenarioID := s.scenarioID
	source := s.cascadeSource
	intensity := s.intensity
	s.mu.Unlock()
	hour := s.clock.Hour()

	if mode == modeCascade {
		return s.cascadeSnapshot(source, hour, intensity)
	}
	return s.engine.Snapshot(scenarioID, intensity, hour)
}

// cascadeSnapshot serves the cascade overlay through the LRU memo. The
// propagator is pure, so a hit is byte-for-byte what a recompute would
// produce; the step counter cycles every five ticks, which makes the memo
// worthwhile on long-running views.
func (s *Session) cascadeSnapshot(source string, step, intensity int) (*model.Snapshot, error) {
	key := cascadeKey{source: source, step: step}
	if cached, ok := s.cascadeCache.Get(key); ok {
		snap, err := s.engine.Snapshot("", intensity, 0)
		if err != nil {
			return nil, err
		}
		snap.Hour = step
		snap.Cascade = cached
		for id := range cached.HopDistance {
			zs := snap.Zones[id]
			zs.IsAffected = true
			snap.Zones[id] = zs
		}
		return snap, nil
	}

	snap, err := s.engine.CascadeSnapshot(source, step, intensity)
	if err != nil {
		return nil, err
	}
	s.cascadeCache.Add(key, snap.Cascade)
	return snap, nil
}

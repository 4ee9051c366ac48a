package timectrl

import (
	"errors"
	"sync"
	"time"
)

// Phase describes where the clock is in its lifecycle.
type Phase int

const (
	// Idle means no scenario is selected.
	Idle Phase = iota
	// Ready means a scenario is selected and the hour counter is at 0.
	Ready
	// Playing means the ticker loop is advancing the counter.
	Playing
	// Paused means ticking stopped with the counter retained.
	Paused
	// Complete means the counter reached the scenario duration; playing is
	// forced off and further ticks are ignored.
	Complete
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Mode describes how Tick advances the counter.
type Mode int

const (
	// HourMode advances a monotonic hour counter that clamps at the
	// scenario duration and completes the clock.
	HourMode Mode = iota
	// CycleMode wraps the counter modulo the armed duration and never
	// completes; cascade playback uses it for its hop-step counter.
	CycleMode
)

// CascadeCycle is the cycle length armed for cascade playback: steps 0..4,
// then back to 0.
const CascadeCycle = 5

// ErrInvalidTransition is returned when a control operation is not allowed
// from the clock's current phase.
var ErrInvalidTransition = errors.New("invalid clock transition")

// SimulationClock owns the only mutable simulation state the engine has:
// the current hour (or cascade step), play/pause phase, and speed. It drives
// ticks from a wall-clock timer whose period is basePeriod divided by the
// speed multiplier; simulated hours are just a monotonic counter, never real
// hours.
//
// Control operations and ticks are serialised on one mutex, so a seek or
// pause always lands between ticks and listeners never observe a partial
// update.
type SimulationClock struct {
	mu         sync.Mutex
	basePeriod time.Duration
	phase      Phase
	mode       Mode
	hour       int
	duration   int
	speed      float64
	stop       chan struct{}

	listeners []func(hour int)
}

// NewSimulationClock constructs an idle clock. basePeriod is the wall-clock
// interval between ticks at speed 1.
func NewSimulationClock(basePeriod time.Duration) *SimulationClock {
	if basePeriod <= 0 {
		basePeriod = time.Second
	}
	return &SimulationClock{
		basePeriod: basePeriod,
		phase:      Idle,
		speed:      1,
	}
}

// AddListener registers a callback invoked with the counter value after
// every advance (tick or seek). Register listeners before starting playback.
func (c *SimulationClock) AddListener(fn func(hour int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Arm selects a new run: the clock moves to Ready with the counter at 0 from
// any phase, stopping playback if it was running. duration must be positive.
// HourMode runs a scenario horizon; CycleMode wraps for cascade stepping.
func (c *SimulationClock) Arm(duration int, mode Mode) error {
	if duration <= 0 {
		return errors.New("arm: duration must be positive")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.phase = Ready
	c.mode = mode
	c.duration = duration
	c.hour = 0
	return nil
}

// Start begins playback. Valid only from Ready or Paused.
func (c *SimulationClock) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != Ready && c.phase != Paused {
		return invalidFrom("start", c.phase)
	}
	c.phase = Playing
	c.stop = make(chan struct{})
	go c.run(c.stop)
	return nil
}

// Pause stops playback, retaining the counter. Pausing an already-paused
// clock is a no-op; pausing from any other non-Playing phase is invalid.
func (c *SimulationClock) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.phase {
	case Playing:
		c.stopLocked()
		c.phase = Paused
		return nil
	case Paused:
		return nil
	default:
		return invalidFrom("pause", c.phase)
	}
}

// Tick advances the counter by one if the clock is Playing; ticks arriving
// in any other phase (including after Complete) are ignored. In HourMode the
// counter clamps at the duration and the clock auto-pauses into Complete; in
// CycleMode it wraps.
func (c *SimulationClock) Tick() {
	c.tick()
}

// Seek moves the counter to hour, clamped into [0, duration]. Valid from any
// non-Idle phase. Seeking never flips play/pause, with one exception: a
// Complete clock seeked strictly below the duration drops back to Paused so
// it can be resumed.
func (c *SimulationClock) Seek(hour int) error {
	c.mu.Lock()
	if c.phase == Idle {
		c.mu.Unlock()
		return invalidFrom("seek", c.phase)
	}

	if hour < 0 {
		hour = 0
	}
	if hour > c.duration {
		hour = c.duration
	}
	c.hour = hour
	if c.phase == Complete && hour < c.duration {
		c.phase = Paused
	}
	listeners, h := c.snapshotListenersLocked()
	c.mu.Unlock()

	notify(listeners, h)
	return nil
}

// Reset abandons the current run from any phase and returns to Idle.
func (c *SimulationClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.phase = Idle
	c.mode = HourMode
	c.hour = 0
	c.duration = 0
}

// SetSpeed changes the playback speed multiplier (typically 0.5, 1, or 2).
// The ticker loop picks the new period up on its next iteration.
func (c *SimulationClock) SetSpeed(mult float64) error {
	if mult <= 0 {
		return errors.New("set speed: multiplier must be positive")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = mult
	return nil
}

// Hour returns the current counter value.
func (c *SimulationClock) Hour() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hour
}

// CurrentPhase returns the clock's phase.
func (c *SimulationClock) CurrentPhase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Speed returns the playback speed multiplier.
func (c *SimulationClock) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// Duration returns the armed horizon (scenario duration or cycle length).
func (c *SimulationClock) Duration() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// IsPlaying reports whether the ticker loop is running.
func (c *SimulationClock) IsPlaying() bool {
	return c.CurrentPhase() == Playing
}

// tick performs one advance and reports whether the clock is still Playing.
func (c *SimulationClock) tick() bool {
	c.mu.Lock()
	if c.phase != Playing {
		c.mu.Unlock()
		return false
	}

	playing := true
	switch c.mode {
	case CycleMode:
		c.hour = (c.hour + 1) % c.duration
	default:
		c.hour++
		if c.hour >= c.duration {
			c.hour = c.duration
			c.phase = Complete
			c.stopLocked()
			playing = false
		}
	}
	listeners, h := c.snapshotListenersLocked()
	c.mu.Unlock()

	notify(listeners, h)
	return playing
}

// run is the ticker loop. It recomputes the period every iteration so speed
// changes apply without restarting the loop.
func (c *SimulationClock) run(stop chan struct{}) {
	for {
		c.mu.Lock()
		period := time.Duration(float64(c.basePeriod) / c.speed)
		c.mu.Unlock()

		timer := time.NewTimer(period)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
			if !c.tick() {
				return
			}
		}
	}
}

// stopLocked halts the ticker loop if one is running. Caller holds c.mu.
func (c *SimulationClock) stopLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

// snapshotListenersLocked copies the listener slice and the counter so
// callbacks run outside the lock. Caller holds c.mu.
func (c *SimulationClock) snapshotListenersLocked() ([]func(int), int) {
	return append([]func(int){}, c.listeners...), c.hour
}

func notify(listeners []func(int), hour int) {
	for _, fn := range listeners {
		fn(hour)
	}
}

func invalidFrom(op string, p Phase) error {
	return errors.Join(ErrInvalidTransition, errors.New(op+" from "+p.String()))
}

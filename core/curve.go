package core

import "math"

// CurveIntensity maps an elapsed simulated hour within a scenario of the
// given duration to a normalised [0,1] effect strength.
//
// The shape is a half-sine bell: sin(pi * hour/duration), zero at hour 0 and
// at hour == duration, peaking at exactly 1.0 at the midpoint. Scenarios
// escalate, peak mid-course, and fully resolve by their duration.
//
// Note that ScenarioDefinition.PeakHour is not consulted here: the curve
// always peaks at duration/2 regardless of the declared peak hour, matching
// the dashboard's historical behaviour. PeakHour stays descriptive metadata.
//
// hour is clamped into [0, duration]. A non-positive duration describes a
// no-op scenario and always yields 0.
func CurveIntensity(hour, duration int) float64 {
	if duration <= 0 {
		return 0
	}
	if hour <= 0 || hour >= duration {
		return 0
	}
	return math.Sin(math.Pi * float64(hour) / float64(duration))
}

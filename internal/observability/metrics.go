package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridsignals/urbangrid-simulator/model"
)

// EngineCollector bundles Prometheus metrics for the simulation engine and
// the dashboard HTTP surface, and provides helpers to wire them into HTTP
// handlers.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	TicksTotal     *prometheus.CounterVec
	TickDuration   prometheus.Histogram
	SimulationHour prometheus.Gauge
	ZonesAffected  prometheus.Gauge
	ZonesHighRisk  prometheus.Gauge
	CascadeFront   prometheus.Gauge
}

// NewEngineCollector registers engine Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when nil.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_http_requests_total",
		Help: "Total number of handled dashboard HTTP requests, labeled by handler, method, and status code.",
	}, []string{"handler", "method", "code"})
	requests, err := registerCounterVec(reg, requests, "dashboard_http_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashboard_http_request_duration_seconds",
		Help:    "Dashboard HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"handler"})
	durations, err = registerHistogramVec(reg, durations, "dashboard_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	ticks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simulation_ticks_total",
		Help: "Total number of simulation ticks processed, labeled by playback mode.",
	}, []string{"mode"})
	ticks, err = registerCounterVec(reg, ticks, "simulation_ticks_total")
	if err != nil {
		return nil, err
	}

	tickDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "simulation_tick_duration_seconds",
		Help:    "Duration of a full snapshot recompute for one tick.",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	})
	tickDuration, err = registerHistogram(reg, tickDuration, "simulation_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	hour, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simulation_hour",
		Help: "Current simulated hour (or cascade step) of the active session.",
	}), "simulation_hour")
	if err != nil {
		return nil, err
	}
	affected, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simulation_zones_affected",
		Help: "Number of zones affected in the latest snapshot.",
	}), "simulation_zones_affected")
	if err != nil {
		return nil, err
	}
	highRisk, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simulation_zones_high_risk",
		Help: "Number of zones classified high risk in the latest snapshot.",
	}), "simulation_zones_high_risk")
	if err != nil {
		return nil, err
	}
	front, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cascade_affected_zones",
		Help: "Size of the cascade's affected-zone set in the latest snapshot (0 outside cascade mode).",
	}), "cascade_affected_zones")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:       gatherer,
		HTTPRequests:   requests,
		HTTPDurations:  durations,
		TicksTotal:     ticks,
		TickDuration:   tickDuration,
		SimulationHour: hour,
		ZonesAffected:  affected,
		ZonesHighRisk:  highRisk,
		CascadeFront:   front,
	}, nil
}

// Middleware records request counts and durations for an HTTP handler,
// labeled by the given handler name.
func (c *EngineCollector) Middleware(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if c.HTTPRequests != nil {
			c.HTTPRequests.WithLabelValues(handler, r.Method, fmt.Sprintf("%d", rec.status)).Inc()
		}
		if c.HTTPDurations != nil {
			c.HTTPDurations.WithLabelValues(handler).Observe(time.Since(start).Seconds())
		}
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveTick records one processed tick and its recompute duration.
func (c *EngineCollector) ObserveTick(mode string, elapsed time.Duration) {
	if c == nil {
		return
	}
	if c.TicksTotal != nil {
		c.TicksTotal.WithLabelValues(mode).Inc()
	}
	if c.TickDuration != nil {
		c.TickDuration.Observe(elapsed.Seconds())
	}
}

// RecordSnapshot satisfies the session's MetricsRecorder interface so gauge
// values track the latest published snapshot.
func (c *EngineCollector) RecordSnapshot(snap *model.Snapshot) {
	if c == nil || snap == nil {
		return
	}

	affected, highRisk := 0, 0
	for _, zs := range snap.Zones {
		if zs.IsAffected {
			affected++
		}
		if zs.RiskLevel == model.RiskHigh {
			highRisk++
		}
	}

	if c.SimulationHour != nil {
		c.SimulationHour.Set(float64(snap.Hour))
	}
	if c.ZonesAffected != nil {
		c.ZonesAffected.Set(float64(affected))
	}
	if c.ZonesHighRisk != nil {
		c.ZonesHighRisk.Set(float64(highRisk))
	}
	if c.CascadeFront != nil {
		front := 0
		if snap.Cascade != nil {
			front = len(snap.Cascade.AffectedZones)
		}
		c.CascadeFront.Set(float64(front))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

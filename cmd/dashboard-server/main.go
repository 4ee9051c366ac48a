package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gridsignals/urbangrid-simulator/catalog"
	"github.com/gridsignals/urbangrid-simulator/core"
	"github.com/gridsignals/urbangrid-simulator/internal/api"
	"github.com/gridsignals/urbangrid-simulator/internal/logging"
	"github.com/gridsignals/urbangrid-simulator/internal/observability"
	"github.com/gridsignals/urbangrid-simulator/internal/sim/session"
	"github.com/gridsignals/urbangrid-simulator/model"
	"github.com/gridsignals/urbangrid-simulator/timectrl"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP address the dashboard API listens on")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	zonesPath := flag.String("zones", "configs/zones.json", "Path to the zone/edge catalog JSON")
	scenariosPath := flag.String("scenarios", "configs/scenarios.json", "Path to the scenario catalog JSON")
	tick := flag.Duration("tick", time.Second, "wall-clock tick interval at speed 1")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewEngineCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.String("error", err.Error()))
		os.Exit(1)
	}

	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	cat := catalog.NewZoneCatalog()
	graph, scenarios, err := loadCatalogs(cat, *zonesPath, *scenariosPath, log)
	if err != nil {
		// Fail closed: a broken catalog must never be offered to operators.
		log.Error(ctx, "catalog load failed", logging.String("error", err.Error()))
		os.Exit(1)
	}

	engine := core.NewSimulationEngine(cat, scenarios, graph, nil)
	clock := timectrl.NewSimulationClock(*tick)
	sess := session.New(engine, clock,
		session.WithLogger(log),
		session.WithMetricsRecorder(collector),
	)

	server := api.NewServer(sess, log, collector)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info(ctx, "starting dashboard API server",
		logging.String("addr", *addr),
		logging.Int("zones", cat.Len()),
		logging.Int("scenarios", len(scenarios)),
	)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "dashboard server exited", logging.String("error", err.Error()))
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	<-stopCtx.Done()

	log.Info(ctx, "shutting down dashboard server")
	sess.Reset()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

func loadCatalogs(cat *catalog.ZoneCatalog, zonesPath, scenariosPath string, log logging.Logger) (*core.ZoneGraph, map[string]*model.ScenarioDefinition, error) {
	zf, err := os.Open(zonesPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open zone catalog %q: %w", zonesPath, err)
	}
	defer zf.Close()

	graph, summary, err := core.LoadGridCatalog(cat, zf)
	if err != nil {
		return nil, nil, err
	}
	for _, warning := range summary.SkippedEdges {
		log.Warn(context.Background(), "skipped grid edge", logging.String("edge", warning))
	}

	sf, err := os.Open(scenariosPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open scenario catalog %q: %w", scenariosPath, err)
	}
	defer sf.Close()

	scenarios, err := core.LoadScenarioCatalog(sf)
	if err != nil {
		return nil, nil, err
	}
	return graph, scenarios, nil
}

func serveMetrics(addr string, collector *observability.EngineCollector, log logging.Logger) *http.Server {
	if collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()
	return srv
}

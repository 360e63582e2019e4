package collab

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromExporter serves a /metrics endpoint gauging fleet-wide bogo-ops
// and instance counts. It is independent of the Adapter set: the gauges
// hold whatever the caller last passed to Set (`loadbreaker run` sets
// them once before the fleet starts and once after it has been reaped),
// so they are not updated while workers run.
// Off by default; a caller opts in by giving Start a listen address.
type PromExporter struct {
	reg          *prometheus.Registry
	bogoOpsTotal prometheus.Gauge
	instancesUp  prometheus.Gauge
	srv          *http.Server
}

// NewPromExporter builds an exporter with its own registry, so it never
// collides with the default global one a host process might also use.
func NewPromExporter() *PromExporter {
	reg := prometheus.NewRegistry()
	bogo := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loadbreaker_bogo_ops_total",
		Help: "Cumulative bogo-ops counted across all worker instances in the current run.",
	})
	inst := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loadbreaker_instances_started",
		Help: "Number of worker instances started in the current run.",
	})
	reg.MustRegister(bogo, inst)
	return &PromExporter{reg: reg, bogoOpsTotal: bogo, instancesUp: inst}
}

// Set publishes the latest fleet-wide counters.
func (p *PromExporter) Set(bogoOps uint64, instancesStarted int) {
	p.bogoOpsTotal.Set(float64(bogoOps))
	p.instancesUp.Set(float64(instancesStarted))
}

// Start begins serving /metrics on addr in the background. Listen
// failures are reported on the returned channel rather than a panic,
// since a busy port shouldn't take down the run it's reporting on.
func (p *PromExporter) Start(addr string) <-chan error {
	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{}))
	p.srv = &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := p.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// Stop shuts the exporter down, if it was started.
func (p *PromExporter) Stop(ctx context.Context) error {
	if p.srv == nil {
		return nil
	}
	return p.srv.Shutdown(ctx)
}

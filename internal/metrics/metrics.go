// Package metrics exposes the Prometheus collectors shared across the
// three components, registered against a single registry per process the
// way the teacher wires prometheus/client_golang (SPEC_FULL.md §2).
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	NoncesIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vericare",
		Name:      "nonces_issued_total",
		Help:      "Nonces issued, by issuing component (verifier or dap).",
	}, []string{"component"})

	AttestationOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vericare",
		Name:      "attestation_outcomes_total",
		Help:      "Attestation requests by outcome.",
	}, []string{"outcome"})

	QueryLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vericare",
		Name:      "query_duration_seconds",
		Help:      "End-to-end query handling latency on the DAP.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	AttestationRequiredReleases = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vericare",
		Name:      "attestation_required_total",
		Help:      "Field releases that required a mutual-attestation round trip.",
	}, []string{"route"})
)

// Register adds every collector in this package to reg. Called once at
// process startup by each cmd/* entrypoint.
func Register(reg *prometheus.Registry) {
	reg.MustRegister(NoncesIssued, AttestationOutcomes, QueryLatency, AttestationRequiredReleases)
}

// Serve exposes reg on addr at /metrics until ctx is cancelled, the same
// promhttp.HandlerFor/http.Server pairing pkg/observability/prometheus.go
// and pkg/verification/metrics.Collector.ServeHTTP use in the teacher repo.
// A listen failure is returned to the caller; shutdown on ctx cancellation
// is best-effort and its error is discarded, matching the teacher's own
// ServeHTTP shutdown handling.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

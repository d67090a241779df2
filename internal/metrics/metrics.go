// Package metrics exposes service counters in Prometheus format. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"primetime/internal/logger"
	"primetime/internal/types"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "primetime"

// Answer outcomes for RequestsTotal.
const (
	ResultPrime      = "prime"
	ResultComposite  = "composite"
	ResultNonInteger = "non_integer"
)

type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal       *prometheus.CounterVec
	ProtocolViolations  prometheus.Counter
	OracleLookups       *prometheus.CounterVec
	FallbackDuration    prometheus.Histogram
	ConnectionsActive   prometheus.Gauge
	ConnectionsAccepted prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Answered isPrime requests by outcome.",
		}, []string{"result"}),
		ProtocolViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_violations_total",
			Help:      "Request lines rejected with an error response.",
		}),
		OracleLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_lookups_total",
			Help:      "Primality checks by the path that answered them.",
		}, []string{"path"}),
		FallbackDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fallback_seconds",
			Help:      "Time spent in trial division above the index bound.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Open client connections.",
		}),
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Client connections accepted.",
		}),
	}
	m.registry.MustRegister(
		m.RequestsTotal,
		m.ProtocolViolations,
		m.OracleLookups,
		m.FallbackDuration,
		m.ConnectionsActive,
		m.ConnectionsAccepted,
		collectors.NewGoCollector(),
	)
	return m
}

// RegisterQueueDepth exports the compute pool backlog, sampled at scrape time.
func (m *Metrics) RegisterQueueDepth(depth func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Primality requests waiting for a compute worker.",
	}, func() float64 { return float64(depth()) }))
}

// ObserveLookup implements oracle.Observer.
func (m *Metrics) ObserveLookup(path types.LookupPath, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.OracleLookups.WithLabelValues(path.String()).Inc()
	if path == types.PathFallback {
		m.FallbackDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) Answered(prime, integer bool) {
	if m == nil {
		return
	}
	switch {
	case !integer:
		m.RequestsTotal.WithLabelValues(ResultNonInteger).Inc()
	case prime:
		m.RequestsTotal.WithLabelValues(ResultPrime).Inc()
	default:
		m.RequestsTotal.WithLabelValues(ResultComposite).Inc()
	}
}

func (m *Metrics) Violation() {
	if m == nil {
		return
	}
	m.ProtocolViolations.Inc()
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.ConnectionsAccepted.Inc()
	m.ConnectionsActive.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

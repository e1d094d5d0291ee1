package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/careportal/pkg/httpx"
	"github.com/aussiebroadwan/careportal/pkg/securecore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "careportal"

// Metrics holds the portal's Prometheus collectors.
type Metrics struct {
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	Decisions    *prometheus.CounterVec
	KeyRotations *prometheus.CounterVec
	SweepRemoved *prometheus.CounterVec
	Sessions     prometheus.Gauge
	KeyVersion   prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. A nil reg uses a fresh registry.
// Collectors already registered under the same name are reused.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		RequestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "decisions_total",
			Help:      "Authorization decisions by outcome and failure kind",
		}, []string{"outcome", "kind"}),
		KeyRotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keys",
			Name:      "rotations_total",
			Help:      "Encryption key rotations by reason",
		}, []string{"reason"}),
		SweepRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "housekeeping",
			Name:      "removed_total",
			Help:      "Entries removed by housekeeping sweeps",
		}, []string{"kind"}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "active_sessions",
			Help:      "Sessions currently live",
		}),
		KeyVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keys",
			Name:      "current_version",
			Help:      "Version of the current encryption key",
		}),
		gatherer: reg,
	}

	m.RequestCount = register(reg, m.RequestCount)
	m.RequestDuration = register(reg, m.RequestDuration)
	m.Decisions = register(reg, m.Decisions)
	m.KeyRotations = register(reg, m.KeyRotations)
	m.SweepRemoved = register(reg, m.SweepRemoved)
	m.Sessions = register(reg, m.Sessions)
	m.KeyVersion = register(reg, m.KeyVersion)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveSweep adds a housekeeping pass to the removal counters.
func (m *Metrics) ObserveSweep(r securecore.SweepResult, revocationRows int64) {
	m.SweepRemoved.WithLabelValues("csrf_token").Add(float64(r.CSRFTokens))
	m.SweepRemoved.WithLabelValues("session").Add(float64(r.Sessions))
	m.SweepRemoved.WithLabelValues("rate_key").Add(float64(r.RateKeys))
	m.SweepRemoved.WithLabelValues("revocation").Add(float64(r.Revoked))
	m.SweepRemoved.WithLabelValues("revocation_row").Add(float64(revocationRows))
}

// ObserveRotation counts a key rotation and records the new version.
func (m *Metrics) ObserveRotation(reason string, version int) {
	m.KeyRotations.WithLabelValues(reason).Inc()
	m.KeyVersion.Set(float64(version))
}

// Middleware records request counts and latency. route should be the
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(wrapped, r)

		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		m.RequestCount.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// InstrumentAuthorizer counts every decision a made.
func (m *Metrics) InstrumentAuthorizer(a httpx.Authorizer) httpx.Authorizer {
	return &instrumented{Authorizer: a, m: m}
}

type instrumented struct {
	httpx.Authorizer
	m *Metrics
}

func (i *instrumented) AuthorizeMutatingRequest(ctx context.Context, req securecore.AuthRequest) securecore.Decision {
	d := i.Authorizer.AuthorizeMutatingRequest(ctx, req)
	i.m.Decisions.WithLabelValues(string(d.Outcome), d.Kind.String()).Inc()
	return d
}

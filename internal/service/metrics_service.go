package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/ano-letivo-api/internal/models"
)

// MetricsSnapshot is a lightweight view of collected metrics.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	TransitionsTotal         uint64    `json:"transitions_total"`
	TransitionsFailed        uint64    `json:"transitions_failed"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService encapsulates Prometheus instrumentation for the API and the transition engine.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	transitionTotal    *prometheus.CounterVec
	transitionDuration *prometheus.HistogramVec
	enrollments        *prometheus.CounterVec
	outcomes           *prometheus.CounterVec
	preconditionFails  *prometheus.CounterVec
	auditFailures      prometheus.Counter

	requestCount         uint64
	requestDurationTotal uint64
	transitionCount      uint64
	transitionFailed     uint64
}

// NewMetricsService registers the Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	transitionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transicao_execucoes_total",
		Help: "Academic year transition runs by outcome status",
	}, []string{"status", "dry_run"})

	transitionDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "transicao_duracao_segundos",
		Help:    "Duration of academic year transition runs",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"dry_run"})

	enrollments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transicao_matriculas_total",
		Help: "Enrollments closed and created by committed transitions",
	}, []string{"operation"})

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transicao_alunos_total",
		Help: "Students classified by committed transitions",
	}, []string{"outcome"})

	preconditionFails := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transicao_precondicoes_recusadas_total",
		Help: "Transition runs refused by a precondition",
	}, []string{"reason"})

	auditFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transicao_auditoria_falhas_total",
		Help: "Audit rows that could not be written",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitionTotal, transitionDuration, enrollments, outcomes, preconditionFails, auditFailures, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		transitionTotal:    transitionTotal,
		transitionDuration: transitionDuration,
		enrollments:        enrollments,
		outcomes:           outcomes,
		preconditionFails:  preconditionFails,
		auditFailures:      auditFailures,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics disabled", http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveTransition records a finished run. Enrollment and outcome counters only move for committed runs.
func (m *MetricsService) ObserveTransition(result *models.TransitionResult) {
	if m == nil || result == nil {
		return
	}
	dryRun := fmt.Sprintf("%t", result.DryRun)
	m.transitionTotal.WithLabelValues(string(result.Status), dryRun).Inc()
	m.transitionDuration.WithLabelValues(dryRun).Observe(result.DurationSeconds)
	atomic.AddUint64(&m.transitionCount, 1)
	if result.Status == models.AuditStatusError {
		atomic.AddUint64(&m.transitionFailed, 1)
	}
	if result.DryRun || result.Status != models.AuditStatusSuccess {
		return
	}
	c := result.Counters
	m.enrollments.WithLabelValues("encerradas").Add(float64(c.ClosedEnrollments))
	m.enrollments.WithLabelValues("criadas").Add(float64(c.CreatedEnrollments))
	m.outcomes.WithLabelValues(string(models.OutcomePromoted)).Add(float64(c.Promoted))
	m.outcomes.WithLabelValues(string(models.OutcomeRetained)).Add(float64(c.Retained))
	m.outcomes.WithLabelValues(string(models.OutcomeGraduate)).Add(float64(c.Graduates))
	m.outcomes.WithLabelValues(string(models.OutcomeExcluded)).Add(float64(c.Excluded))
}

// ObservePreconditionRefusal counts runs refused before any write.
func (m *MetricsService) ObservePreconditionRefusal(reason string) {
	if m == nil {
		return
	}
	m.preconditionFails.WithLabelValues(reason).Inc()
}

// ObserveAuditFailure counts audit rows lost to write errors.
func (m *MetricsService) ObserveAuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

// Snapshot returns aggregated metrics.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		TransitionsTotal:         atomic.LoadUint64(&m.transitionCount),
		TransitionsFailed:        atomic.LoadUint64(&m.transitionFailed),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

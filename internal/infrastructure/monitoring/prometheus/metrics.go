// Package prometheus exposes pipeline metrics: per-stage durations, model
// build outcomes by failure reason, and screening outcomes by failure reason.
// A dedicated registry keeps the exposition free of default-collector noise
// except the standard process and Go collectors.
package prometheus

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/standardseed/pharmscreen/internal/config"
	"github.com/standardseed/pharmscreen/internal/infrastructure/monitoring/logging"
)

// Metrics is the pipeline metrics collection.  Nil-safe: a nil *Metrics turns
// every record call into a no-op so disabled metrics need no call-site checks.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	modelsTotal   *prometheus.CounterVec
	modelDuration prometheus.Histogram
	pairsTotal    *prometheus.CounterVec
	pairDuration  prometheus.Histogram
	skippedTotal  *prometheus.CounterVec
}

// New builds the metric set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pharmscreen",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
		}, []string{"stage"}),
		modelsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmscreen",
			Name:      "models_total",
			Help:      "Model build outcomes by status and failure reason.",
		}, []string{"status", "reason"}),
		modelDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pharmscreen",
			Name:      "model_build_duration_seconds",
			Help:      "Duration of individual pharmacophore model builds.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		pairsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmscreen",
			Name:      "screening_pairs_total",
			Help:      "Screening pair outcomes by status and failure reason.",
		}, []string{"status", "reason"}),
		pairDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pharmscreen",
			Name:      "scoring_duration_seconds",
			Help:      "Duration of individual chemical-target scoring calls.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		skippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmscreen",
			Name:      "units_skipped_total",
			Help:      "Units of work skipped by idempotent resume, per stage.",
		}, []string{"stage"}),
	}
	reg.MustRegister(m.stageDuration, m.modelsTotal, m.modelDuration,
		m.pairsTotal, m.pairDuration, m.skippedTotal)
	return m
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveModel records one model build outcome.
func (m *Metrics) ObserveModel(status, reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.modelsTotal.WithLabelValues(status, reason).Inc()
	m.modelDuration.Observe(d.Seconds())
}

// ObservePair records one screening pair outcome.
func (m *Metrics) ObservePair(status, reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.pairsTotal.WithLabelValues(status, reason).Inc()
	m.pairDuration.Observe(d.Seconds())
}

// ObserveSkipped records one unit skipped by idempotent resume.
func (m *Metrics) ObserveSkipped(stage string) {
	if m == nil {
		return
	}
	m.skippedTotal.WithLabelValues(stage).Inc()
}

// Serve exposes the registry over HTTP until ctx is cancelled.  It blocks;
// run it in its own goroutine.
func (m *Metrics) Serve(ctx context.Context, cfg config.MetricsConfig, logger logging.Logger) error {
	if m == nil {
		return nil
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.Listen, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics exposition started",
		logging.String("listen", cfg.Listen),
		logging.String("path", cfg.Path))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

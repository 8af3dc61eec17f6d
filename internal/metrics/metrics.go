// Package metrics exposes Prometheus collectors for corruption runs. A CLI
// run is too short-lived to scrape, so the registry is written to a
// node_exporter textfile after each job instead.
package metrics

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"vdcrpt/internal/effects"
	"vdcrpt/internal/pipeline"
)

const namespace = "vdcrpt"

// Recorder implements pipeline.Recorder on a private registry. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	registry      *prometheus.Registry
	jobs          *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	effects       *prometheus.CounterVec
	buffer        prometheus.Gauge
}

// New registers the vdcrpt collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Corruption jobs by outcome and failure kind (none on success).",
		}, []string{"outcome", "kind"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Intermediate cache lookups by result.",
		}, []string{"result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
		}, []string{"stage"}),
		effects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "effects_applied_total",
			Help:      "Effects applied by kind.",
		}, []string{"kind"}),
		buffer: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_bytes",
			Help:      "Size of the most recent corrupted buffer.",
		}),
	}
	r.registry.MustRegister(r.jobs, r.cacheLookups, r.stageDuration, r.effects, r.buffer)
	return r
}

// Registry returns the registry holding the collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveStage implements pipeline.Recorder.
func (r *Recorder) ObserveStage(stage pipeline.Stage, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

// ObserveCacheLookup implements pipeline.Recorder.
func (r *Recorder) ObserveCacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveEffect implements pipeline.Recorder.
func (r *Recorder) ObserveEffect(kind effects.Kind) {
	if r == nil {
		return
	}
	r.effects.WithLabelValues(string(kind)).Inc()
}

// ObserveBuffer implements pipeline.Recorder.
func (r *Recorder) ObserveBuffer(size int) {
	if r == nil {
		return
	}
	r.buffer.Set(float64(size))
}

// ObserveJob implements pipeline.Recorder.
func (r *Recorder) ObserveJob(kind pipeline.Kind) {
	if r == nil {
		return
	}
	outcome, label := "done", "none"
	if kind != "" {
		outcome, label = "failed", string(kind)
	}
	r.jobs.WithLabelValues(outcome, label).Inc()
}

// WriteTextfile writes the registry in text exposition format, replacing
// path atomically. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if !strings.HasSuffix(path, ".prom") {
		return errors.New("metrics: textfile must end in .prom")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metrics: create textfile directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("metrics: write textfile: %w", err)
	}
	return nil
}

var _ pipeline.Recorder = (*Recorder)(nil)

// Package metrics defines the exporter's Prometheus instruments on an
// explicitly constructed registry, so tests can build a fresh one instead
// of sharing the process-global default.
package metrics

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ollama"

// Histogram label values for the per-endpoint scrape timings.
const (
	OpListModels  = "list_models"
	OpListRunning = "list_running"
)

// Counter label values for the per-cycle outcome.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics holds every instrument the exporter writes, registered on one
// private registry. All fields are safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	BuildInfo        *prometheus.GaugeVec
	Up               prometheus.Gauge
	ServerVersion    *prometheus.GaugeVec
	ModelsTotal      prometheus.Gauge
	ModelInfo        *prometheus.GaugeVec
	ModelSizeBytes   *prometheus.GaugeVec
	ModelModifiedAt  *prometheus.GaugeVec
	RunningModels    *prometheus.GaugeVec
	ModelMemoryBytes *prometheus.GaugeVec
	ScrapeDuration   *prometheus.HistogramVec
	ScrapesTotal     *prometheus.CounterVec
	LastScrape       prometheus.Gauge
}

// New builds a registry with all exporter instruments registered and the
// build-info gauge already set to 1 for this binary.
func New(version, ollamaHost string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "exporter",
				Name:      "build_info",
				Help:      "Build information about the exporter, constant 1",
			},
			[]string{"version", "ollama_host", "go_version"},
		),
		Up: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "up",
				Help:      "1 if the last Ollama health probe succeeded, 0 otherwise",
			},
		),
		ServerVersion: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "server_version_info",
				Help:      "Reported Ollama server version, constant 1",
			},
			[]string{"version"},
		),
		ModelsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "models_total",
				Help:      "Number of models installed on the Ollama server",
			},
		),
		ModelInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "model_info",
				Help:      "Metadata of an installed model, constant 1",
			},
			[]string{"name", "family", "format", "parameter_size", "quantization_level", "parent_model"},
		),
		ModelSizeBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "model_size_bytes",
				Help:      "On-disk size of an installed model in bytes",
			},
			[]string{"name"},
		),
		ModelModifiedAt: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "model_modified_timestamp_seconds",
				Help:      "Last modification time of an installed model as unix seconds",
			},
			[]string{"name"},
		),
		RunningModels: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "running_models",
				Help:      "1 for each model currently loaded in memory",
			},
			[]string{"name"},
		),
		ModelMemoryBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "model_memory_bytes",
				Help:      "VRAM used by a currently loaded model in bytes",
			},
			[]string{"name"},
		),
		ScrapeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scrape_duration_seconds",
				Help:      "Duration of individual Ollama API calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ScrapesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scrapes_total",
				Help:      "Total scrape cycles by outcome",
			},
			[]string{"status"},
		),
		LastScrape: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_scrape_timestamp_seconds",
				Help:      "Unix time of the most recent fully successful scrape cycle",
			},
		),
	}

	m.registry.MustRegister(
		m.BuildInfo,
		m.Up,
		m.ServerVersion,
		m.ModelsTotal,
		m.ModelInfo,
		m.ModelSizeBytes,
		m.ModelModifiedAt,
		m.RunningModels,
		m.ModelMemoryBytes,
		m.ScrapeDuration,
		m.ScrapesTotal,
		m.LastScrape,
	)

	m.BuildInfo.WithLabelValues(version, ollamaHost, runtime.Version()).Set(1)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the exposition handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

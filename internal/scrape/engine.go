package scrape

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"ollama-exporter/internal/metrics"
	"ollama-exporter/internal/ollama"
)

// unknownLabel is the fallback for absent model detail fields, keeping label
// cardinality bounded without rejecting any metric write.
const unknownLabel = "unknown"

// Client is the subset of the Ollama API the engine polls. Satisfied by
// *ollama.Client; tests substitute fakes.
type Client interface {
	Version(ctx context.Context) (string, error)
	ListModels(ctx context.Context) ([]ollama.Model, error)
	ListRunning(ctx context.Context) ([]ollama.RunningModel, error)
}

// Engine performs one scrape cycle at a time: probe the server, refresh the
// inventory metrics, refresh the loaded-model metrics, record the outcome.
// It is not safe for concurrent cycles; the Scheduler drives it from a single
// goroutine.
type Engine struct {
	client  Client
	metrics *metrics.Metrics
	log     zerolog.Logger

	// lastModels maps model name to the record observed by the most recent
	// successful inventory fetch.
	lastModels map[string]ollama.Model
	// lastRunning holds the names observed by the most recent successful
	// loaded-model fetch.
	lastRunning map[string]struct{}
}

// NewEngine builds an Engine with empty snapshots.
func NewEngine(client Client, m *metrics.Metrics, log zerolog.Logger) *Engine {
	return &Engine{
		client:      client,
		metrics:     m,
		log:         log,
		lastModels:  make(map[string]ollama.Model),
		lastRunning: make(map[string]struct{}),
	}
}

// Scrape runs one full cycle. Every failure mode, including a panic while
// transforming a response, is absorbed here: the cycle is counted as an error
// and control returns to the caller.
func (e *Engine) Scrape(ctx context.Context) {
	start := time.Now()
	ok, nModels, nRunning := e.runCycle(ctx)
	if ok {
		e.metrics.LastScrape.SetToCurrentTime()
		e.metrics.ScrapesTotal.WithLabelValues(metrics.StatusSuccess).Inc()
		e.log.Info().
			Int("models", nModels).
			Int("running", nRunning).
			Dur("dur", time.Since(start)).
			Msg("scrape cycle ok")
		return
	}
	e.metrics.ScrapesTotal.WithLabelValues(metrics.StatusError).Inc()
}

func (e *Engine) runCycle(ctx context.Context) (ok bool, nModels, nRunning int) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("scrape cycle panicked")
			ok = false
		}
	}()

	version, err := e.client.Version(ctx)
	if err != nil {
		e.metrics.Up.Set(0)
		e.log.Warn().Err(err).Msg("ollama health probe failed")
		return false, 0, 0
	}
	e.metrics.Up.Set(1)
	// A version change leaves the previous version's series in place; with
	// one upstream server that is a single stale series per upgrade.
	e.metrics.ServerVersion.WithLabelValues(version).Set(1)

	ok = true
	if n, err := e.updateInventory(ctx); err != nil {
		e.log.Warn().Err(err).Msg("model inventory update failed")
		ok = false
	} else {
		nModels = n
	}
	if n, err := e.updateRunning(ctx); err != nil {
		e.log.Warn().Err(err).Msg("running models update failed")
		ok = false
	} else {
		nRunning = n
	}
	return ok, nModels, nRunning
}

// updateInventory refreshes the installed-model metrics. Removal is
// diff-based: only series for names absent from the new inventory are
// dropped. On fetch failure the previous snapshot and all inventory
// metrics are left untouched.
func (e *Engine) updateInventory(ctx context.Context) (int, error) {
	start := time.Now()
	list, err := e.client.ListModels(ctx)
	e.metrics.ScrapeDuration.WithLabelValues(metrics.OpListModels).Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, err
	}

	current := make(map[string]ollama.Model, len(list))
	for _, m := range list {
		current[m.Name] = m
	}
	// Name is the series identity, so removal must catch every ModelInfo
	// series carrying it, whatever detail labels it was written with.
	for name := range e.lastModels {
		if _, still := current[name]; still {
			continue
		}
		e.metrics.ModelInfo.DeletePartialMatch(prometheus.Labels{"name": name})
		e.metrics.ModelSizeBytes.DeleteLabelValues(name)
		e.metrics.ModelModifiedAt.DeleteLabelValues(name)
	}

	e.metrics.ModelsTotal.Set(float64(len(list)))
	for _, m := range list {
		if prev, seen := e.lastModels[m.Name]; seen && prev.Details != m.Details {
			// Re-pulled model with changed metadata: retire the series
			// written under the old detail labels before setting the new one.
			e.metrics.ModelInfo.DeletePartialMatch(prometheus.Labels{"name": m.Name})
		}
		d := m.Details
		e.metrics.ModelInfo.WithLabelValues(
			m.Name,
			orUnknown(d.Family),
			orUnknown(d.Format),
			orUnknown(d.ParameterSize),
			orUnknown(d.QuantizationLevel),
			orUnknown(d.ParentModel),
		).Set(1)
		e.metrics.ModelSizeBytes.WithLabelValues(m.Name).Set(float64(m.Size))
		e.setModifiedAt(m)
	}
	e.lastModels = current
	return len(list), nil
}

// setModifiedAt records the modification timestamp when present and
// parseable. An unparseable value skips the metric without failing the cycle.
func (e *Engine) setModifiedAt(m ollama.Model) {
	if m.ModifiedAt == "" {
		return
	}
	t, err := time.Parse(time.RFC3339Nano, m.ModifiedAt)
	if err != nil {
		e.log.Debug().
			Str("model", m.Name).
			Str("modified_at", m.ModifiedAt).
			Msg("unparseable modified_at, skipping timestamp metric")
		return
	}
	e.metrics.ModelModifiedAt.WithLabelValues(m.Name).Set(float64(t.Unix()))
}

// updateRunning refreshes the loaded-model metrics. Unlike the inventory,
// removal here is unconditional: every previously observed series is dropped
// and the current set rebuilt, even when identical. The cardinality is small
// enough that the churn is cheaper than a diff.
func (e *Engine) updateRunning(ctx context.Context) (int, error) {
	start := time.Now()
	list, err := e.client.ListRunning(ctx)
	e.metrics.ScrapeDuration.WithLabelValues(metrics.OpListRunning).Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, err
	}

	for name := range e.lastRunning {
		e.metrics.RunningModels.DeleteLabelValues(name)
		e.metrics.ModelMemoryBytes.DeleteLabelValues(name)
	}
	current := make(map[string]struct{}, len(list))
	for _, m := range list {
		current[m.Name] = struct{}{}
		e.metrics.RunningModels.WithLabelValues(m.Name).Set(1)
		if m.SizeVRAM > 0 {
			e.metrics.ModelMemoryBytes.WithLabelValues(m.Name).Set(float64(m.SizeVRAM))
		}
	}
	e.lastRunning = current
	return len(list), nil
}

func orUnknown(s string) string {
	if s == "" {
		return unknownLabel
	}
	return s
}

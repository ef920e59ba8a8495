// Package scrape drives the exporter's poll-transform-expose pipeline. It is
// structured into small files by concern:
//
//   - engine.go: the Engine, one scrape cycle against the Ollama API and the
//     reconciliation of metric series against the previous cycle's state.
//   - scheduler.go: the Scheduler, firing cycles on a fixed period.
//
// The Engine owns the last-observed snapshots of the model inventory and of
// the loaded-model set. They exist only to compute which label series must be
// dropped from the registry when a model disappears between cycles.
package scrape

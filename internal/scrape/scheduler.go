package scrape

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Cycler runs one scrape cycle. Implemented by *Engine; tests substitute a
// counting fake.
type Cycler interface {
	Scrape(ctx context.Context)
}

// Scheduler fires scrape cycles on a fixed period. One cycle runs eagerly
// before the periodic loop starts, so metrics are populated before the first
// interval elapses.
type Scheduler struct {
	engine   Cycler
	interval time.Duration
	log      zerolog.Logger
}

// NewScheduler builds a Scheduler driving the given engine.
func NewScheduler(engine Cycler, interval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{engine: engine, interval: interval, log: log}
}

// Run blocks until ctx is cancelled. Cycles execute on this goroutine only,
// so they never overlap; the interval is assumed to be much longer than a
// typical cycle.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("scrape scheduler started")
	s.engine.Scrape(ctx)

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scrape scheduler stopped")
			return
		case <-t.C:
			s.engine.Scrape(ctx)
		}
	}
}

// Package sweeper periodically removes expired sessions, remember-me tokens and idle rate limit keys.
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/mangawatch/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultInterval is how often expired rows are removed.
const DefaultInterval = time.Hour

// SweepFunc deletes stale entries and returns how many were removed.
type SweepFunc func(ctx context.Context) (int, error)

// Task is a named sweep target.
type Task struct {
	Name  string
	Sweep SweepFunc
}

// Sweeper runs every task on a fixed interval until Stop is called.
type Sweeper struct {
	tasks    []Task
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start runs one sweep synchronously and then keeps sweeping every interval in the background.
func Start(ctx context.Context, interval time.Duration, tasks ...Task) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}

	sweepCtx, cancel := context.WithCancel(ctx)

	s := &Sweeper{
		tasks:    tasks,
		interval: interval,
		ctx:      sweepCtx,
		cancel:   cancel,
	}

	s.wg.Add(1)
	go s.loop()

	s.RunOnce(ctx)

	return s
}

// Stop cancels the background loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			log.Info().Msg("Sweeper stopped")
			return

		case <-ticker.C:
			s.RunOnce(s.ctx)
		}
	}
}

// RunOnce runs every task once. A failing task is logged and does not stop the others.
// Returns the total number of removed entries.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	metrics := telemetry.GetMetrics()
	started := time.Now()
	total := 0

	for _, task := range s.tasks {
		count, err := task.Sweep(ctx)
		if err != nil {
			log.Error().Err(err).Str("task", task.Name).Msg("Sweep failed")
			continue
		}

		total += count
		if count > 0 {
			metrics.SweptTotal.Add(ctx, int64(count), metric.WithAttributes(attribute.String("task", task.Name)))
		}
	}

	metrics.SweepDuration.Record(ctx, float64(time.Since(started).Milliseconds()))

	log.Debug().Int("count", total).Dur("duration", time.Since(started)).Msg("Sweep finished")
	return total
}

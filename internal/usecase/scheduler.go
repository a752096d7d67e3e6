package usecase

import (
	"context"
	"time"

	"PaperDigest/internal/ports"
)

// Scheduler wires the three pipeline stages to their cron-like drivers. The
// timers are independent: stages may overlap in time, which is safe because
// each stage is idempotent by construction.
type Scheduler struct {
	fetch    ports.Scheduler
	generate ports.Scheduler
	send     ports.Scheduler
	pipeline *Pipeline
}

// NewScheduler returns a helper to start/stop the recurring stage jobs.
func NewScheduler(fetch, generate, send ports.Scheduler, pipeline *Pipeline) *Scheduler {
	return &Scheduler{fetch: fetch, generate: generate, send: send, pipeline: pipeline}
}

// Start registers each stage with its driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.pipeline == nil {
		return nil
	}

	if s.fetch != nil {
		if err := s.fetch.Start(ctx, func(time.Time) {
			_ = s.pipeline.RunFetch(ctx)
		}); err != nil {
			return err
		}
	}

	if s.generate != nil {
		if err := s.generate.Start(ctx, func(time.Time) {
			_ = s.pipeline.RunGenerate(ctx)
		}); err != nil {
			return err
		}
	}

	if s.send != nil {
		if err := s.send.Start(ctx, func(time.Time) {
			_ = s.pipeline.RunSend(ctx)
		}); err != nil {
			return err
		}
	}

	return nil
}

// Stop gracefully tears down the underlying drivers.
func (s *Scheduler) Stop(ctx context.Context) error {
	for _, driver := range []ports.Scheduler{s.fetch, s.generate, s.send} {
		if driver == nil {
			continue
		}
		if err := driver.Stop(ctx); err != nil {
			return err
		}
	}
	return nil
}

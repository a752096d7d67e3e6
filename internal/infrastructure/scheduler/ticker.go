package scheduler

import (
	"context"
	"sync"
	"time"

	"PaperDigest/internal/ports"
)

// TickerScheduler drives a job at a fixed interval. The first run fires an
// initial delay after Start, so the three stage timers can be staggered
// (fetch before generate before send). Start and Stop are safe to call from
// different goroutines.
type TickerScheduler struct {
	interval time.Duration
	delay    time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

var _ ports.Scheduler = (*TickerScheduler)(nil)

// NewTickerScheduler builds a scheduler with the given cadence and initial
// delay.
func NewTickerScheduler(interval, delay time.Duration) *TickerScheduler {
	return &TickerScheduler{interval: interval, delay: delay}
}

// Start begins ticking; Start on a running scheduler is a no-op.
func (t *TickerScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	t.mu.Lock()
	if t.stop != nil {
		t.mu.Unlock()
		return nil
	}
	stop := make(chan struct{})
	t.stop = stop
	t.mu.Unlock()

	go func() {
		timer := time.NewTimer(t.delay)
		defer timer.Stop()

		select {
		case first := <-timer.C:
			job(first)
		case <-ctx.Done():
			return
		case <-stop:
			return
		}

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case tick := <-ticker.C:
				job(tick)
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine; Stop on an idle scheduler is a no-op.
func (t *TickerScheduler) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stop == nil {
		return nil
	}
	close(t.stop)
	t.stop = nil
	return nil
}

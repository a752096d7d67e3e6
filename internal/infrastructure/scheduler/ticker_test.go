package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestTickerSchedulerRunsAndStops(t *testing.T) {
	t.Parallel()

	fired := make(chan time.Time, 64)
	s := NewTickerScheduler(10*time.Millisecond, 0)
	ctx := context.Background()

	if err := s.Start(ctx, func(ts time.Time) { fired <- ts }); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Starting again while running must not spawn a second loop.
	if err := s.Start(ctx, func(ts time.Time) { t.Error("second Start spawned a loop") }); err != nil {
		t.Fatalf("repeat start: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("repeat stop: %v", err)
	}

	// A tick in flight at Stop time may still land; wait it out, then the
	// loop must be silent.
	time.Sleep(50 * time.Millisecond)
	for len(fired) > 0 {
		<-fired
	}
	time.Sleep(100 * time.Millisecond)
	if len(fired) != 0 {
		t.Fatal("job fired after Stop")
	}
}

func TestTickerSchedulerRestartsAfterStop(t *testing.T) {
	t.Parallel()

	fired := make(chan time.Time, 64)
	s := NewTickerScheduler(10*time.Millisecond, 0)
	ctx := context.Background()

	if err := s.Start(ctx, func(ts time.Time) { fired <- ts }); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if err := s.Start(ctx, func(ts time.Time) { fired <- ts }); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer func() { _ = s.Stop(ctx) }()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("job never ran after restart")
	}
}

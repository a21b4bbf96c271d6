package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background())
	s.Go0("boom", func(ctx context.Context) { panic("boom") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatal("Wait() = nil, want panic error")
	}
	if got := s.Counters().Panics; got != 1 {
		t.Fatalf("Panics = %d, want 1", got)
	}
}

func TestCancelOnError(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background(), WithCancelOnError(true))
	s.Go0("waiter", func(ctx context.Context) { <-ctx.Done() })
	s.Go("failer", func(ctx context.Context) error { return errors.New("fail") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if err == nil || err.Error() != "failer: fail" {
		t.Fatalf("Wait() = %v, want failer: fail", err)
	}
}

func TestGoRestartRestartsUntilCancelled(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) >= 3 {
			<-ctx.Done()
			return ctx.Err()
		}
		return errors.New("transient")
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond))

	deadline := time.Now().Add(time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := runs.Load(); got < 3 {
		t.Fatalf("runs = %d, want >= 3", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
}

package workerpool_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"blockflow/internal/services"
	"blockflow/internal/workerpool"
)

func TestRunProcessesEveryBundle(t *testing.T) {
	bundles := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	var mu sync.Mutex
	seen := map[int]bool{}
	var sum atomic.Int64
	err := workerpool.Run(context.Background(), 3, bundles, func(_ context.Context, v int) error {
		mu.Lock()
		seen[v] = true
		mu.Unlock()
		sum.Add(int64(v))
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != len(bundles) || sum.Load() != 55 {
		t.Fatalf("expected every bundle once, seen=%v sum=%d", seen, sum.Load())
	}
}

func TestRunRespectsWorkerLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	bundles := make([]int, 20)
	err := workerpool.Run(context.Background(), 2, bundles, func(context.Context, int) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if peak.Load() > 2 {
		t.Fatalf("peak concurrency %d exceeds limit", peak.Load())
	}
}

func TestRunReturnsStageFatalOnError(t *testing.T) {
	boom := errors.New("boom")
	err := workerpool.Run(context.Background(), 4, []int{1, 2, 3}, func(_ context.Context, v int) error {
		if v == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) || !errors.Is(err, services.ErrStageFatal) {
		t.Fatalf("expected wrapped stage-fatal error, got %v", err)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	err := workerpool.Run(context.Background(), 1, []string{"x"}, func(context.Context, string) error {
		panic("worker crashed")
	})
	if !errors.Is(err, services.ErrStageFatal) {
		t.Fatalf("expected stage-fatal error from panic, got %v", err)
	}
}

func TestRunRejectsInvalidWorkerCount(t *testing.T) {
	err := workerpool.Run(context.Background(), 0, []int{1}, func(context.Context, int) error { return nil })
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32
	err := workerpool.Run(ctx, 2, []int{1, 2, 3}, func(context.Context, int) error {
		calls.Add(1)
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no bundles to run, got %d", calls.Load())
	}
}

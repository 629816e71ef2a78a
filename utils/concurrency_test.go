package utils

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	const maxWorkers = 3
	pool := NewWorkerPool(maxWorkers)

	var inFlight, peak atomic.Int64
	for i := 0; i < 30; i++ {
		pool.Submit(func() {
			current := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				max := peak.Load()
				if current <= max || peak.CompareAndSwap(max, current) {
					break
				}
			}
			time.Sleep(time.Millisecond)
		})
	}
	pool.Wait()

	if got := peak.Load(); got > maxWorkers {
		t.Errorf("peak concurrency %d exceeds limit %d", got, maxWorkers)
	}
	if got := inFlight.Load(); got != 0 {
		t.Errorf("jobs still in flight after Wait: %d", got)
	}
}

func TestWorkerPoolWaitRunsAllJobs(t *testing.T) {
	pool := NewWorkerPool(4)

	var done atomic.Int64
	for i := 0; i < 50; i++ {
		pool.Submit(func() { done.Add(1) })
	}
	pool.Wait()

	if got := done.Load(); got != 50 {
		t.Errorf("completed jobs: got %d, want 50", got)
	}
}

func TestWorkerPoolClampsWorkerCount(t *testing.T) {
	pool := NewWorkerPool(0)

	var ran atomic.Bool
	pool.Submit(func() { ran.Store(true) })
	pool.Wait()

	if !ran.Load() {
		t.Error("pool with clamped worker count never ran the job")
	}
}

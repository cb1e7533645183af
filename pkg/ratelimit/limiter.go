// Package ratelimit gates the launch of concurrent pagination chains.
// The default Unbounded limiter admits every chain immediately; a
// Semaphore caps how many chains may talk to the catalog at once.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"
)

// Prometheus metrics for chain admission.
var (
	inflightChains = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "radar_inflight_chains",
		Help: "Number of pagination chains currently admitted",
	})

	limiterWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radar_limiter_waits_total",
		Help: "Total number of chains that had to wait for a concurrency slot",
	})
)

// Limiter admits concurrent work. Every successful Acquire must be paired with Release.
type Limiter interface {
	Acquire(ctx context.Context) error
	Release()
}

// New returns a Semaphore when maxConcurrency > 0 and Unbounded otherwise.
func New(maxConcurrency int) Limiter {
	if maxConcurrency <= 0 {
		return Unbounded{}
	}
	return NewSemaphore(maxConcurrency)
}

// Unbounded admits every caller immediately.
type Unbounded struct{}

// Acquire fails only if ctx is already done.
func (Unbounded) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	inflightChains.Inc()
	return nil
}

// Release implements Limiter.
func (Unbounded) Release() {
	inflightChains.Dec()
}

// Semaphore admits at most n callers at a time.
type Semaphore struct {
	sem *semaphore.Weighted
	n   int
}

// NewSemaphore creates a limiter with n slots. It panics if n < 1.
func NewSemaphore(n int) *Semaphore {
	if n < 1 {
		panic(fmt.Sprintf("ratelimit: semaphore size must be >= 1 (got %d)", n))
	}
	return &Semaphore{sem: semaphore.NewWeighted(int64(n)), n: n}
}

// Acquire blocks until a slot is free or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if !s.sem.TryAcquire(1) {
		limiterWaitsTotal.Inc()
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	inflightChains.Inc()
	return nil
}

// Release frees a slot.
func (s *Semaphore) Release() {
	inflightChains.Dec()
	s.sem.Release(1)
}

// Size returns the number of slots.
func (s *Semaphore) Size() int {
	return s.n
}

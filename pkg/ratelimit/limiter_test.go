package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		concurrency int
		wantSize    int
	}{
		{name: "zero is unbounded", concurrency: 0},
		{name: "negative is unbounded", concurrency: -3},
		{name: "positive is a semaphore", concurrency: 4, wantSize: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.concurrency)
			sem, ok := l.(*Semaphore)
			if tt.wantSize == 0 {
				if ok {
					t.Fatalf("New(%d) returned a semaphore", tt.concurrency)
				}
				return
			}
			if !ok {
				t.Fatalf("New(%d) = %T, want *Semaphore", tt.concurrency, l)
			}
			if sem.Size() != tt.wantSize {
				t.Errorf("Size() = %d, want %d", sem.Size(), tt.wantSize)
			}
		})
	}
}

func TestUnbounded_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := (Unbounded{}).Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}

func TestSemaphore_CapsConcurrency(t *testing.T) {
	const slots = 3
	sem := NewSemaphore(slots)

	var (
		current atomic.Int32
		peak    atomic.Int32
		wg      sync.WaitGroup
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			defer sem.Release()

			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > slots {
		t.Errorf("peak concurrency = %d, want <= %d", got, slots)
	}
}

func TestSemaphore_AcquireHonorsContext(t *testing.T) {
	sem := NewSemaphore(1)
	if err := sem.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer sem.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := sem.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestNewSemaphore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewSemaphore should panic with size 0")
		}
	}()
	NewSemaphore(0)
}

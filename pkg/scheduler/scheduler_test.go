package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNew_Capacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		want     int
	}{
		{"bounded", 10, 10},
		{"serial", 1, 1},
		{"zero is unbounded", 0, 0},
		{"negative is unbounded", -5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New("test", tt.capacity).Capacity(); got != tt.want {
				t.Errorf("Capacity() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScheduler_NeverExceedsCapacity(t *testing.T) {
	const capacity = 3
	s := New("bound-test", capacity)

	var mu sync.Mutex
	current, maxSeen := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Do(context.Background(), func() error {
				mu.Lock()
				current++
				if current > maxSeen {
					maxSeen = current
				}
				mu.Unlock()

				time.Sleep(10 * time.Millisecond)

				mu.Lock()
				current--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if maxSeen > capacity {
		t.Errorf("observed %d concurrent holders, capacity %d", maxSeen, capacity)
	}
	if s.Peak() > capacity {
		t.Errorf("Peak() = %d, capacity %d", s.Peak(), capacity)
	}
	if s.Peak() != capacity {
		t.Errorf("Peak() = %d, want saturation at %d", s.Peak(), capacity)
	}
	if s.InFlight() != 0 {
		t.Errorf("InFlight() = %d after completion, want 0", s.InFlight())
	}
}

func TestScheduler_Unbounded(t *testing.T) {
	s := New("unbounded-test", 0)

	releases := make([]func(), 0, 50)
	for i := 0; i < 50; i++ {
		release, err := s.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		releases = append(releases, release)
	}

	if s.InFlight() != 50 {
		t.Errorf("InFlight() = %d, want 50", s.InFlight())
	}
	for _, release := range releases {
		release()
	}
	if s.InFlight() != 0 {
		t.Errorf("InFlight() = %d, want 0", s.InFlight())
	}
}

func TestScheduler_ReleaseOnError(t *testing.T) {
	s := New("error-test", 1)
	boom := errors.New("boom")

	if err := s.Do(context.Background(), func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Do() error = %v, want boom", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := s.Do(ctx, func() error { return nil }); err != nil {
		t.Errorf("slot was not released after error: %v", err)
	}
}

func TestScheduler_ReleaseOnPanic(t *testing.T) {
	s := New("panic-test", 1)

	func() {
		defer func() { _ = recover() }()
		_ = s.Do(context.Background(), func() error { panic("boom") })
	}()

	if s.InFlight() != 0 {
		t.Errorf("InFlight() = %d after panic, want 0", s.InFlight())
	}
}

func TestScheduler_ReleaseIsIdempotent(t *testing.T) {
	s := New("idempotent-test", 2)

	release, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	release()
	release()

	if s.InFlight() != 0 {
		t.Errorf("InFlight() = %d, want 0", s.InFlight())
	}

	r1, _ := s.Acquire(context.Background())
	r2, _ := s.Acquire(context.Background())
	if s.InFlight() != 2 {
		t.Errorf("InFlight() = %d, want 2 (double release must not free extra slots)", s.InFlight())
	}
	r1()
	r2()
}

func TestScheduler_AcquireHonoursContext(t *testing.T) {
	s := New("ctx-test", 1)

	release, _ := s.Acquire(context.Background())
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := s.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want DeadlineExceeded", err)
	}
	if s.InFlight() != 1 {
		t.Errorf("InFlight() = %d, want 1", s.InFlight())
	}
}

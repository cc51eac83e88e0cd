// Package scheduler provides the counting semaphore that bounds how many
// network operations of one stage are in flight at once.
//
// A Scheduler is constructed once per stage and passed explicitly to every
// component that needs a slot; there is no package-level gate. Tests can
// build one with capacity 1 to serialize work or capacity 0 for no limit.
package scheduler

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"
)

var schedulerInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "harvester_scheduler_in_flight",
	Help: "Slots currently held per scheduler",
}, []string{"scheduler"})

// DefaultCapacity is the asset-stage concurrency ceiling.
const DefaultCapacity = 10

// Scheduler is a fixed-capacity counting semaphore with instrumentation.
type Scheduler struct {
	name     string
	capacity int64
	sem      *semaphore.Weighted

	inFlight atomic.Int64
	peak     atomic.Int64
	gauge    prometheus.Gauge
}

// New creates a scheduler admitting at most capacity concurrent holders.
// A capacity <= 0 means unbounded.
func New(name string, capacity int) *Scheduler {
	weight := int64(capacity)
	if capacity <= 0 {
		weight = math.MaxInt64
		capacity = 0
	}

	return &Scheduler{
		name:     name,
		capacity: int64(capacity),
		sem:      semaphore.NewWeighted(weight),
		gauge:    schedulerInFlight.WithLabelValues(name),
	}
}

// Acquire blocks until a slot is free or ctx is done. The returned release
// is safe to call more than once; only the first call frees the slot.
func (s *Scheduler) Acquire(ctx context.Context) (release func(), err error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return func() {}, err
	}

	n := s.inFlight.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	s.gauge.Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.inFlight.Add(-1)
			s.gauge.Dec()
			s.sem.Release(1)
		})
	}, nil
}

// Do runs fn while holding a slot. The slot is released on every exit path,
// including a panic in fn.
func (s *Scheduler) Do(ctx context.Context, fn func() error) error {
	release, err := s.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return fn()
}

// Name returns the label used for metrics.
func (s *Scheduler) Name() string {
	return s.name
}

// Capacity returns the configured ceiling, 0 when unbounded.
func (s *Scheduler) Capacity() int {
	return int(s.capacity)
}

// InFlight returns the number of slots currently held.
func (s *Scheduler) InFlight() int {
	return int(s.inFlight.Load())
}

// Peak returns the highest number of slots held simultaneously.
func (s *Scheduler) Peak() int {
	return int(s.peak.Load())
}

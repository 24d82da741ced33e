package estimator

import (
	"sync/atomic"
	"time"

	"github.com/viderstv/displaysync/errors"
	"github.com/viderstv/displaysync/utils/ring"
)

const DefaultHistoryDepth = 8

// Snapshot is the read side of the estimator. Samples is zero until the first
// vsync has been observed.
type Snapshot struct {
	LastVsync       int64
	AverageInterval time.Duration
	Samples         uint64
}

// Estimator keeps a trimmed moving average of the vsync interval.
//
// Observe must be called from a single goroutine. Snapshot may be called from
// any goroutine.
type Estimator struct {
	history  *ring.Ring
	nominal  time.Duration
	previous int64
	hasPrev  bool
	samples  uint64

	snap atomic.Pointer[Snapshot]
}

// New returns an estimator with depth history slots seeded with nominal.
// A depth of 2 or less is replaced by DefaultHistoryDepth.
func New(depth int, nominal time.Duration) *Estimator {
	if depth <= 2 {
		depth = DefaultHistoryDepth
	}
	e := &Estimator{
		history: ring.New(depth, nominal),
		nominal: nominal,
	}
	e.snap.Store(&Snapshot{})
	return e
}

// Observe records one vsync edge. Timestamps that do not advance past the
// previous one are rejected with ErrNonMonotonicVsync and leave the state as is.
func (e *Estimator) Observe(timestamp int64) error {
	if e.hasPrev && timestamp <= e.previous {
		return errors.ErrNonMonotonicVsync
	}

	if e.hasPrev {
		e.history.Push(time.Duration(timestamp - e.previous))
	}
	e.previous = timestamp
	e.hasPrev = true
	e.samples++

	e.snap.Store(&Snapshot{
		LastVsync:       timestamp,
		AverageInterval: e.trimmedMean(),
		Samples:         e.samples,
	})
	return nil
}

// trimmedMean drops one maximum and one minimum entry and averages the rest.
func (e *Estimator) trimmedMean() time.Duration {
	first := e.history.At(0)
	sum, hi, lo := first, first, first
	for i := 1; i < e.history.Size(); i++ {
		v := e.history.At(i)
		sum += v
		if v > hi {
			hi = v
		} else if v < lo {
			lo = v
		}
	}
	return (sum - hi - lo) / time.Duration(e.history.Size()-2)
}

func (e *Estimator) Snapshot() Snapshot {
	return *e.snap.Load()
}

// History returns the interval history in slot order and the next write slot.
// It must be called from the goroutine that calls Observe.
func (e *Estimator) History() ([]time.Duration, int) {
	return e.history.Values(), e.history.Index()
}

// Reset forgets every observed vsync and reseeds the history. It must not run
// concurrently with Observe.
func (e *Estimator) Reset() {
	e.history.Fill(e.nominal)
	e.previous = 0
	e.hasPrev = false
	e.samples = 0
	e.snap.Store(&Snapshot{})
}

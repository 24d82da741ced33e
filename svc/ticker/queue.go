package ticker

import (
	"sync"
	"sync/atomic"

	"github.com/viderstv/displaysync/errors"
	"github.com/viderstv/displaysync/structures"
)

// maxPending bounds the events a queue holds for a slow reader; the oldest go first.
const maxPending = 64

type queue struct {
	display *Display
	id      string
	rate    atomic.Int32

	mtx     sync.Mutex
	pending []structures.DisplayEvent
	ready   chan struct{}
}

func (q *queue) InitCheck() error {
	if q.display.isDead() {
		return errors.ErrServiceDied
	}
	return nil
}

func (q *queue) SetVsyncRate(count int32) error {
	if err := checkRate(count); err != nil {
		return err
	}
	q.rate.Store(count)
	return nil
}

func (q *queue) Ready() <-chan struct{} {
	return q.ready
}

func (q *queue) GetEvents(buf []structures.DisplayEvent) (int, error) {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	n := copy(buf, q.pending)
	q.pending = q.pending[n:]
	return n, nil
}

func (q *queue) Close() error {
	q.display.detach(q.id)
	return nil
}

func (q *queue) push(ev structures.DisplayEvent) {
	if !ev.Wanted(q.rate.Load()) {
		return
	}

	q.mtx.Lock()
	if len(q.pending) >= maxPending {
		q.pending = q.pending[1:]
	}
	q.pending = append(q.pending, ev)
	q.mtx.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

package ticker

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/viderstv/displaysync/instance"
	"github.com/viderstv/displaysync/structures"
)

type receiver struct {
	display *Display
	id      string
	rate    atomic.Int32

	mtx      sync.Mutex
	callback instance.EventCallback
}

func (r *receiver) Init(callback instance.EventCallback) error {
	if callback == nil {
		return fmt.Errorf("nil event callback")
	}
	r.mtx.Lock()
	r.callback = callback
	r.mtx.Unlock()
	return nil
}

func (r *receiver) SetVsyncRate(count int32) error {
	if err := checkRate(count); err != nil {
		return err
	}
	r.rate.Store(count)
	return nil
}

func (r *receiver) Close() error {
	r.display.detach(r.id)
	return nil
}

func (r *receiver) deliver(ev structures.DisplayEvent) {
	r.mtx.Lock()
	cb := r.callback
	r.mtx.Unlock()
	if cb == nil {
		return
	}
	instance.Dispatch(ev, r.rate.Load(), cb)
}

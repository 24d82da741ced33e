package instance

import (
	"context"

	"github.com/viderstv/displaysync/structures"
)

// EventCallback receives display events. Calls for one receiver are serialized.
type EventCallback interface {
	OnVsync(timestamp int64, count uint32)
	OnHotplug(timestamp int64, connected bool)
}

type DisplayEventReceiver interface {
	// Init registers the callback. Events are only delivered once a
	// non-zero vsync rate has been set.
	Init(callback EventCallback) error
	// SetVsyncRate delivers every count-th vsync, 0 stops delivery.
	SetVsyncRate(count int32) error
	Close() error
}

type DisplayService interface {
	GetEventReceiver(ctx context.Context) (DisplayEventReceiver, error)
	// LinkToDeath runs fn at most once, on its own goroutine, when the
	// service goes away. unlink stops the watch.
	LinkToDeath(fn func()) (unlink func(), err error)
}

// DisplayEventQueue is a pollable source of display events.
type DisplayEventQueue interface {
	InitCheck() error
	SetVsyncRate(count int32) error
	// Ready is signalled when events may be pending.
	Ready() <-chan struct{}
	// GetEvents copies pending events into buf and returns how many were copied.
	GetEvents(buf []structures.DisplayEvent) (int, error)
	Close() error
}

// Dispatch hands ev to callback if a receiver running at rate wants it.
func Dispatch(ev structures.DisplayEvent, rate int32, callback EventCallback) {
	if !ev.Wanted(rate) {
		return
	}
	switch ev.Type {
	case structures.DisplayEventTypeVsync:
		callback.OnVsync(ev.Timestamp, ev.Count)
	case structures.DisplayEventTypeHotplug:
		callback.OnHotplug(ev.Timestamp, ev.Connected)
	}
}

package display

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viderstv/displaysync/display/estimator"
	"github.com/viderstv/displaysync/errors"
	"github.com/viderstv/displaysync/instance"
	"github.com/viderstv/displaysync/structures"
)

const eventBufferSize = 4

// Looper feeds a Timing from a pollable display event queue on its own goroutine.
type Looper struct {
	queue  instance.DisplayEventQueue
	timing *Timing
	config Config

	exit atomic.Bool
	wg   sync.WaitGroup
	once sync.Once
}

// NewLooper checks the queue, enables vsync delivery and starts polling.
// A queue that fails its checks yields ErrSourceUnavailable and no looper.
func NewLooper(queue instance.DisplayEventQueue, timing *Timing, config Config) (*Looper, error) {
	config = config.fill()

	if err := queue.InitCheck(); err != nil {
		config.Logger.WithError(err).Error("initialization of display event queue failed")
		return nil, fmt.Errorf("%w: %v", errors.ErrSourceUnavailable, err)
	}
	if err := queue.SetVsyncRate(1); err != nil {
		config.Logger.WithError(err).Error("failed to start vsync events")
		return nil, fmt.Errorf("%w: %v", errors.ErrSourceUnavailable, err)
	}

	l := &Looper{
		queue:  queue,
		timing: timing,
		config: config,
	}
	l.wg.Add(1)
	go l.run()

	return l, nil
}

func (l *Looper) run() {
	defer l.wg.Done()

	buf := make([]structures.DisplayEvent, eventBufferSize)
	timer := time.NewTimer(l.config.VsyncWait)
	defer timer.Stop()

	for !l.exit.Load() {
		select {
		case <-l.queue.Ready():
			l.drain(buf)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}
		timer.Reset(l.config.VsyncWait)
	}
}

func (l *Looper) drain(buf []structures.DisplayEvent) {
	for {
		n, err := l.queue.GetEvents(buf)
		if err != nil {
			l.config.Logger.WithError(err).Warn("reading display events")
			return
		}
		for _, ev := range buf[:n] {
			switch ev.Type {
			case structures.DisplayEventTypeVsync:
				l.timing.OnVsync(ev.Timestamp)
			case structures.DisplayEventTypeHotplug:
				l.config.Logger.WithFields(logrus.Fields{
					"timestamp": ev.Timestamp,
					"connected": ev.Connected,
				}).Info("display hotplug")
			}
		}
		if n < len(buf) {
			return
		}
	}
}

// IsSyncing reports whether the looper is still polling.
func (l *Looper) IsSyncing() bool {
	return !l.exit.Load()
}

// ComputePresentationTimestamp returns 0 once the looper has been closed.
func (l *Looper) ComputePresentationTimestamp(frameTimestamp int64) int64 {
	if !l.IsSyncing() {
		return 0
	}
	return l.timing.PresentationTimestamp(frameTimestamp)
}

func (l *Looper) Snapshot() estimator.Snapshot {
	return l.timing.Snapshot()
}

// Close stops polling, waits for the goroutine and releases the queue.
func (l *Looper) Close() error {
	var err error
	l.once.Do(func() {
		l.exit.Store(true)
		l.wg.Wait()
		if e := l.queue.SetVsyncRate(0); e != nil {
			l.config.Logger.WithError(e).Warn("failed to stop vsync events")
		}
		err = l.queue.Close()
	})
	return err
}

package display

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/viderstv/displaysync/display/estimator"
	"github.com/viderstv/displaysync/errors"
	"github.com/viderstv/displaysync/instance"
)

// Display tracks vsync through a display service subscription.
//
// The zero session is Uninitialized. Init moves it to Active; Close or the
// death of the service moves it back in one step.
type Display struct {
	service instance.DisplayService
	timing  *Timing
	config  Config

	mtx     sync.Mutex
	session atomic.Pointer[session]
}

type session struct {
	receiver instance.DisplayEventReceiver
	unlink   func()
	syncing  atomic.Bool
}

func New(service instance.DisplayService, config Config) *Display {
	config = config.fill()
	return &Display{
		service: service,
		timing:  NewTiming(config),
		config:  config,
	}
}

// Init subscribes to the display service. It is a no-op while Active.
func (d *Display) Init(ctx context.Context) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.session.Load() != nil {
		return nil
	}

	receiver, err := d.service.GetEventReceiver(ctx)
	if err != nil || receiver == nil {
		d.config.Logger.WithError(err).Error("failed to get display event receiver")
		return fmt.Errorf("%w: event receiver: %v", errors.ErrSourceUnavailable, err)
	}

	s := &session{receiver: receiver}
	if err := receiver.Init(&callback{display: d, session: s}); err != nil {
		d.config.Logger.WithError(err).Error("failed to register display vsync callback")
		_ = receiver.Close()
		return fmt.Errorf("%w: register callback: %v", errors.ErrSourceUnavailable, err)
	}

	unlink, err := d.service.LinkToDeath(func() { d.serviceDied(s) })
	if err != nil {
		d.config.Logger.WithError(err).Error("failed to link to display service death")
		_ = receiver.Close()
		return fmt.Errorf("%w: link to death: %v", errors.ErrSourceUnavailable, err)
	}
	s.unlink = unlink

	// intervals from an earlier session would span the outage
	d.timing.resetHistory()
	d.session.Store(s)
	d.config.Logger.Info("display event receiver registered")

	return nil
}

// Initialized reports whether the display is Active.
func (d *Display) Initialized() bool {
	return d.session.Load() != nil
}

// StartSync starts or stops vsync delivery. It returns false if the display
// is not Active or the service refused the change.
func (d *Display) StartSync(enable bool) bool {
	s := d.session.Load()
	if s == nil {
		d.config.Logger.WithError(errors.ErrNotInitialized).Error("cannot change display sync")
		return false
	}

	var rate int32
	if enable {
		rate = 1
	}

	if err := s.receiver.SetVsyncRate(rate); err != nil {
		d.config.Logger.WithError(err).WithField("enable", enable).Error("failed to change vsync rate")
		return false
	}

	s.syncing.Store(enable)
	d.config.Logger.WithField("syncing", enable).Info("display sync changed")

	return true
}

func (d *Display) IsSyncing() bool {
	s := d.session.Load()
	return s != nil && s.syncing.Load()
}

// ComputePresentationTimestamp returns the presentation time for a frame, or
// 0 when the display is not syncing or no vsync has been observed yet.
func (d *Display) ComputePresentationTimestamp(frameTimestamp int64) int64 {
	if !d.IsSyncing() {
		return 0
	}
	return d.timing.PresentationTimestamp(frameTimestamp)
}

func (d *Display) Snapshot() estimator.Snapshot {
	return d.timing.Snapshot()
}

// Close releases the current session, if any.
func (d *Display) Close() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	s := d.session.Swap(nil)
	if s == nil {
		return nil
	}
	return s.release()
}

func (d *Display) serviceDied(s *session) {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if !d.session.CompareAndSwap(s, nil) {
		return
	}
	d.config.Logger.WithError(errors.ErrServiceDied).Warn("display service died, releasing receiver")
	if err := s.release(); err != nil {
		d.config.Logger.WithError(err).Debug("closing receiver of dead service")
	}
}

func (s *session) release() error {
	s.syncing.Store(false)
	if s.unlink != nil {
		s.unlink()
	}
	return s.receiver.Close()
}

type callback struct {
	display *Display
	session *session
}

func (c *callback) OnVsync(timestamp int64, count uint32) {
	// a receiver that has been replaced may still deliver a late event
	if c.display.session.Load() != c.session {
		return
	}
	c.display.timing.OnVsync(timestamp)
}

func (c *callback) OnHotplug(timestamp int64, connected bool) {
	c.display.config.Logger.WithFields(logrus.Fields{
		"timestamp": timestamp,
		"connected": connected,
	}).Info("display hotplug")
}

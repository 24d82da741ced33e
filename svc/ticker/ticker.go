package ticker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viderstv/displaysync/errors"
	"github.com/viderstv/displaysync/instance"
	"github.com/viderstv/displaysync/structures"
	"github.com/viderstv/displaysync/utils/uid"
)

type SetupOptions struct {
	FPS int
	// Jitter displaces every edge by up to +/- Jitter. It is capped at a
	// quarter of the interval so edges stay ordered.
	Jitter time.Duration
	Logger logrus.FieldLogger
}

// Display is an in-process display that produces vsync edges from a
// time.Ticker. It serves both the callback and the polling style of source.
type Display struct {
	interval time.Duration
	jitter   time.Duration
	logger   logrus.FieldLogger
	start    time.Time

	mtx       sync.Mutex
	count     uint32
	dead      bool
	receivers map[string]*receiver
	queues    map[string]*queue
	deaths    map[string]func()

	stop chan struct{}
	wg   sync.WaitGroup
}

func New(opts SetupOptions) *Display {
	if opts.FPS <= 0 {
		opts.FPS = 60
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	interval := time.Second / time.Duration(opts.FPS)
	if opts.Jitter > interval/4 {
		opts.Jitter = interval / 4
	}

	return &Display{
		interval:  interval,
		jitter:    opts.Jitter,
		logger:    opts.Logger,
		start:     time.Now(),
		receivers: map[string]*receiver{},
		queues:    map[string]*queue{},
		deaths:    map[string]func(){},
	}
}

// Start begins emitting vsync edges until Stop is called.
func (d *Display) Start() {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if d.stop != nil {
		return
	}
	d.stop = make(chan struct{})

	d.wg.Add(1)
	go d.loop(d.stop)
}

func (d *Display) loop(stop chan struct{}) {
	defer d.wg.Done()

	tk := time.NewTicker(d.interval)
	defer tk.Stop()

	var last int64
	for {
		select {
		case <-stop:
			return
		case <-tk.C:
			// late ticks plus jitter can land behind the previous edge
			ts := d.now()
			if ts <= last {
				ts = last + 1
			}
			last = ts
			d.Emit(ts)
		}
	}
}

func (d *Display) Stop() {
	d.mtx.Lock()
	stop := d.stop
	d.stop = nil
	d.mtx.Unlock()

	if stop != nil {
		close(stop)
		d.wg.Wait()
	}
}

func (d *Display) now() int64 {
	ts := int64(time.Since(d.start)) + int64(d.interval)
	if d.jitter > 0 {
		ts += rand.Int63n(2*int64(d.jitter)+1) - int64(d.jitter)
	}
	return ts
}

// Emit delivers one vsync edge stamped timestamp to every receiver and queue.
// Calls must not overlap.
func (d *Display) Emit(timestamp int64) {
	d.mtx.Lock()
	d.count++
	ev := structures.DisplayEvent{
		Type:      structures.DisplayEventTypeVsync,
		Timestamp: timestamp,
		Count:     d.count,
	}
	receivers, queues := d.targets()
	d.mtx.Unlock()

	d.deliver(ev, receivers, queues)
}

// Hotplug delivers a hotplug event.
func (d *Display) Hotplug(connected bool) {
	d.mtx.Lock()
	receivers, queues := d.targets()
	d.mtx.Unlock()

	d.deliver(structures.DisplayEvent{
		Type:      structures.DisplayEventTypeHotplug,
		Timestamp: int64(time.Since(d.start)),
		Connected: connected,
	}, receivers, queues)
}

func (d *Display) targets() ([]*receiver, []*queue) {
	receivers := make([]*receiver, 0, len(d.receivers))
	for _, r := range d.receivers {
		receivers = append(receivers, r)
	}
	queues := make([]*queue, 0, len(d.queues))
	for _, q := range d.queues {
		queues = append(queues, q)
	}
	return receivers, queues
}

func (d *Display) deliver(ev structures.DisplayEvent, receivers []*receiver, queues []*queue) {
	for _, r := range receivers {
		r.deliver(ev)
	}
	for _, q := range queues {
		q.push(ev)
	}
}

// Kill simulates the death of the display service. Linked death functions
// run on their own goroutines and no new receivers are handed out.
func (d *Display) Kill() {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.dead {
		return
	}
	d.dead = true
	for id, fn := range d.deaths {
		delete(d.deaths, id)
		go fn()
	}
	d.logger.Warn("ticker display killed")
}

// Revive lets a killed display hand out receivers again.
func (d *Display) Revive() {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.dead = false
}

func (d *Display) GetEventReceiver(ctx context.Context) (instance.DisplayEventReceiver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mtx.Lock()
	defer d.mtx.Unlock()
	if d.dead {
		return nil, errors.ErrServiceDied
	}

	r := &receiver{display: d, id: uid.NewId()}
	d.receivers[r.id] = r
	return r, nil
}

func (d *Display) LinkToDeath(fn func()) (func(), error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if d.dead {
		return nil, errors.ErrServiceDied
	}

	id := uid.NewId()
	d.deaths[id] = fn
	return func() {
		d.mtx.Lock()
		delete(d.deaths, id)
		d.mtx.Unlock()
	}, nil
}

// Queue returns a new pollable event queue attached to the display.
func (d *Display) Queue() instance.DisplayEventQueue {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	q := &queue{
		display: d,
		id:      uid.NewId(),
		ready:   make(chan struct{}, 1),
	}
	d.queues[q.id] = q
	return q
}

func (d *Display) detach(id string) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	delete(d.receivers, id)
	delete(d.queues, id)
}

func (d *Display) isDead() bool {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.dead
}

func checkRate(count int32) error {
	if count < 0 {
		return fmt.Errorf("invalid vsync rate %d", count)
	}
	return nil
}

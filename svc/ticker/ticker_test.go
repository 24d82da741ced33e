package ticker

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/viderstv/displaysync/errors"
	"github.com/viderstv/displaysync/structures"
)

type recorder struct {
	mtx      sync.Mutex
	vsyncs   []int64
	counts   []uint32
	hotplugs []bool
}

func (r *recorder) OnVsync(timestamp int64, count uint32) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.vsyncs = append(r.vsyncs, timestamp)
	r.counts = append(r.counts, count)
}

func (r *recorder) OnHotplug(timestamp int64, connected bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.hotplugs = append(r.hotplugs, connected)
}

func (r *recorder) snapshot() []int64 {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]int64(nil), r.vsyncs...)
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestReceiverRate(t *testing.T) {
	d := New(SetupOptions{FPS: 60, Logger: quiet()})
	r, err := d.GetEventReceiver(context.Background())
	require.NoError(t, err)

	rec := &recorder{}
	require.NoError(t, r.Init(rec))

	d.Emit(10)
	require.Empty(t, rec.snapshot())

	require.NoError(t, r.SetVsyncRate(2))
	for ts := int64(20); ts <= 60; ts += 10 {
		d.Emit(ts)
	}
	require.Equal(t, []int64{20, 40, 60}, rec.snapshot())
	require.Equal(t, []uint32{2, 4, 6}, rec.counts)

	d.Hotplug(false)
	require.Equal(t, []bool{false}, rec.hotplugs)

	require.Error(t, r.SetVsyncRate(-1))
	require.Error(t, r.Init(nil))

	require.NoError(t, r.Close())
	d.Emit(80)
	require.Len(t, rec.snapshot(), 3)
}

func TestRunningTickerIsMonotonic(t *testing.T) {
	d := New(SetupOptions{FPS: 250, Jitter: time.Millisecond, Logger: quiet()})
	r, err := d.GetEventReceiver(context.Background())
	require.NoError(t, err)

	rec := &recorder{}
	require.NoError(t, r.Init(rec))
	require.NoError(t, r.SetVsyncRate(1))

	d.Start()
	d.Start()
	require.Eventually(t, func() bool { return len(rec.snapshot()) >= 10 }, 2*time.Second, time.Millisecond)
	d.Stop()
	d.Stop()

	got := rec.snapshot()
	for i := 1; i < len(got); i++ {
		require.Greater(t, got[i], got[i-1])
	}
}

func TestKillAndRevive(t *testing.T) {
	d := New(SetupOptions{Logger: quiet()})

	died := make(chan struct{})
	_, err := d.LinkToDeath(func() { close(died) })
	require.NoError(t, err)

	unlinked := false
	unlink, err := d.LinkToDeath(func() { unlinked = true })
	require.NoError(t, err)
	unlink()

	d.Kill()
	d.Kill()
	select {
	case <-died:
	case <-time.After(time.Second):
		t.Fatal("death function not called")
	}
	require.False(t, unlinked)

	_, err = d.GetEventReceiver(context.Background())
	require.ErrorIs(t, err, errors.ErrServiceDied)
	_, err = d.LinkToDeath(func() {})
	require.ErrorIs(t, err, errors.ErrServiceDied)
	require.ErrorIs(t, d.Queue().InitCheck(), errors.ErrServiceDied)

	d.Revive()
	_, err = d.GetEventReceiver(context.Background())
	require.NoError(t, err)
}

func TestGetEventReceiverCanceled(t *testing.T) {
	d := New(SetupOptions{Logger: quiet()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.GetEventReceiver(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestQueue(t *testing.T) {
	d := New(SetupOptions{Logger: quiet()})
	q := d.Queue()
	require.NoError(t, q.InitCheck())

	d.Emit(1)
	buf := make([]structures.DisplayEvent, 4)
	n, err := q.GetEvents(buf)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	require.NoError(t, q.SetVsyncRate(1))
	for ts := int64(2); ts < 2+maxPending+6; ts++ {
		d.Emit(ts)
	}

	select {
	case <-q.Ready():
	default:
		t.Fatal("queue not ready")
	}

	var got []int64
	for {
		n, err := q.GetEvents(buf)
		require.NoError(t, err)
		for _, ev := range buf[:n] {
			got = append(got, ev.Timestamp)
		}
		if n == 0 {
			break
		}
	}

	// the oldest six were dropped
	require.Len(t, got, maxPending)
	require.Equal(t, int64(8), got[0])
	require.Equal(t, int64(2+maxPending+5), got[len(got)-1])

	require.NoError(t, q.Close())
}

package display

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/viderstv/displaysync/errors"
	"github.com/viderstv/displaysync/svc/ticker"
)

func TestLooperSourceUnavailable(t *testing.T) {
	src := ticker.New(ticker.SetupOptions{FPS: 60})
	src.Kill()

	l, err := NewLooper(src.Queue(), NewTiming(testConfig()), testConfig())
	require.ErrorIs(t, err, errors.ErrSourceUnavailable)
	require.Nil(t, l)
}

func TestLooperFeedsTiming(t *testing.T) {
	src := ticker.New(ticker.SetupOptions{FPS: 60})
	timing := NewTiming(testConfig())

	l, err := NewLooper(src.Queue(), timing, testConfig())
	require.NoError(t, err)
	require.True(t, l.IsSyncing())

	src.Hotplug(true)
	emitUntil(src, 1_000_000_000, 10)
	require.Eventually(t, func() bool {
		return l.Snapshot().LastVsync == 1_000_000_000
	}, time.Second, time.Millisecond)

	require.Equal(t, uint64(10), l.Snapshot().Samples)
	require.Equal(t, int64(1_014_666_667), l.ComputePresentationTimestamp(940_000_000))

	start := time.Now()
	require.NoError(t, l.Close())
	require.Less(t, time.Since(start), time.Second)
	require.False(t, l.IsSyncing())
	require.Equal(t, int64(0), l.ComputePresentationTimestamp(940_000_000))
	require.NoError(t, l.Close())
}

func TestLooperWithRunningTicker(t *testing.T) {
	src := ticker.New(ticker.SetupOptions{FPS: 200})
	cfg := testConfig()
	cfg.FPS = 200

	l, err := NewLooper(src.Queue(), NewTiming(cfg), cfg)
	require.NoError(t, err)
	defer l.Close()

	src.Start()
	defer src.Stop()

	require.Eventually(t, func() bool {
		return l.Snapshot().Samples >= 12
	}, 2*time.Second, 5*time.Millisecond)
	require.NotZero(t, l.ComputePresentationTimestamp(int64(time.Millisecond)))
}

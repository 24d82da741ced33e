package predictor

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viderstv/displaysync/display/estimator"
)

const (
	avg60     = 16_666_667 * time.Nanosecond
	lastVsync = int64(1_000_000_000)
)

var defaultTuning = Tuning{
	VsyncLookahead:  4,
	LeadTime:        2 * time.Millisecond,
	WiggleFilterMax: 2 * time.Millisecond,
	WiggleFilterMin: 4 * time.Millisecond,
}

// hysteresisTuning opens a dead zone between avg-4ms and avg-2ms.
var hysteresisTuning = Tuning{
	VsyncLookahead:  4,
	LeadTime:        2 * time.Millisecond,
	WiggleFilterMax: 4 * time.Millisecond,
	WiggleFilterMin: 2 * time.Millisecond,
}

var snap60 = estimator.Snapshot{
	LastVsync:       lastVsync,
	AverageInterval: avg60,
	Samples:         100,
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}

// frameAt returns a frame timestamp whose projection lands offset past lastVsync.
func frameAt(tuning Tuning, offset time.Duration) int64 {
	return lastVsync + int64(offset) - int64(tuning.VsyncLookahead)*int64(avg60)
}

func TestPredictUnavailable(t *testing.T) {
	p := New(defaultTuning, quiet())

	require.Equal(t, int64(0), p.Predict(940_000_000, estimator.Snapshot{}))
	require.Equal(t, int64(0), p.Predict(940_000_000, estimator.Snapshot{LastVsync: lastVsync, Samples: 3}))
	require.Equal(t, int64(0), p.Predict(940_000_000, estimator.Snapshot{AverageInterval: avg60}))
}

func TestPredict60HzScenario(t *testing.T) {
	p := New(defaultTuning, quiet())

	got := p.Predict(940_000_000, snap60)

	// base 1,006,666,668 plus expected offset 7,999,999
	require.Equal(t, int64(1_006_666_668+7_999_999), got)
	require.Equal(t, time.Duration(0), p.Wiggle())
	require.Equal(t, lastVsync+int64(avg60)-int64(2*time.Millisecond), got)
}

func TestPredictBehindLastVsync(t *testing.T) {
	p := New(defaultTuning, quiet())

	frame := int64(900_000_000)
	base := frame + 4*int64(avg60)
	require.Less(t, base, lastVsync)
	require.Equal(t, base, p.Predict(frame, snap60))

	// a base exactly on the last vsync is not corrected either
	frame = lastVsync - 4*int64(avg60)
	require.Equal(t, lastVsync, p.Predict(frame, snap60))
}

func TestPredictBehindLastVsyncKeepsWiggle(t *testing.T) {
	p := New(defaultTuning, quiet())

	p.Predict(frameAt(defaultTuning, 15*time.Millisecond), snap60)
	require.Equal(t, avg60, p.Wiggle())

	frame := int64(900_000_000)
	require.Equal(t, frame+4*int64(avg60)+int64(avg60), p.Predict(frame, snap60))
	require.Equal(t, avg60, p.Wiggle())
}

func TestPredictLandsBeforeTargetVsync(t *testing.T) {
	p := New(defaultTuning, quiet())
	target := lastVsync + int64(avg60) - int64(2*time.Millisecond)

	for _, offset := range []time.Duration{0, time.Millisecond, 6 * time.Millisecond, 12 * time.Millisecond} {
		got := p.Predict(frameAt(defaultTuning, offset+time.Nanosecond), snap60)
		assert.Equal(t, target, got, "offset %v", offset)
	}

	// further whole periods ahead land on the same phase of a later vsync
	got := p.Predict(frameAt(defaultTuning, 3*avg60+5*time.Millisecond), snap60)
	assert.Equal(t, target+3*int64(avg60), got)
}

func TestDefaultThresholdsHaveNoDeadZone(t *testing.T) {
	p := New(defaultTuning, quiet())

	// avg-4ms < 13.5ms < avg-2ms: moving to the next vsync wins
	p.Predict(frameAt(defaultTuning, 13500*time.Microsecond), snap60)
	require.Equal(t, avg60, p.Wiggle())

	p.Predict(frameAt(defaultTuning, 12*time.Millisecond), snap60)
	require.Equal(t, time.Duration(0), p.Wiggle())
}

func TestWiggleStabilizesUnderStablePhase(t *testing.T) {
	tests := []struct {
		name   string
		offset time.Duration
		want   time.Duration
	}{
		{name: "early phase", offset: 5 * time.Millisecond, want: 0},
		{name: "late phase", offset: 16 * time.Millisecond, want: avg60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(hysteresisTuning, quiet())
			transitions := 0
			prev := p.Wiggle()
			var first int64

			for k := 0; k < 20; k++ {
				frame := frameAt(hysteresisTuning, tt.offset) + int64(k)*int64(avg60)
				got := p.Predict(frame, snap60) - int64(k)*int64(avg60)
				if k == 0 {
					first = got
				}
				require.Equal(t, first, got)
				if p.Wiggle() != prev {
					transitions++
					prev = p.Wiggle()
				}
			}

			require.LessOrEqual(t, transitions, 1)
			require.Equal(t, tt.want, p.Wiggle())
		})
	}
}

func TestHysteresisDoesNotChatter(t *testing.T) {
	p := New(hysteresisTuning, quiet())
	keepInCurrent := avg60 - hysteresisTuning.WiggleFilterMax
	moveToNext := avg60 - hysteresisTuning.WiggleFilterMin
	require.Less(t, keepInCurrent, moveToNext)

	steps := []struct {
		offset time.Duration
		want   time.Duration
	}{
		{offset: 10 * time.Millisecond, want: 0},
		{offset: 13 * time.Millisecond, want: 0},
		{offset: 15 * time.Millisecond, want: avg60},
		{offset: 13500 * time.Microsecond, want: avg60},
		{offset: 15 * time.Millisecond, want: avg60},
		{offset: 12700 * time.Microsecond, want: avg60},
		{offset: keepInCurrent, want: avg60},
		{offset: keepInCurrent - 1, want: 0},
		{offset: 13500 * time.Microsecond, want: 0},
		{offset: moveToNext, want: 0},
		{offset: moveToNext + 1, want: avg60},
	}

	for i, step := range steps {
		got := p.Predict(frameAt(hysteresisTuning, step.offset), snap60)
		require.Equal(t, step.want, p.Wiggle(), "step %d offset %v", i, step.offset)

		want := lastVsync + int64(avg60) - int64(hysteresisTuning.LeadTime) + int64(step.want)
		require.Equal(t, want, got, "step %d", i)
	}
}

func TestReset(t *testing.T) {
	p := New(defaultTuning, quiet())
	p.Predict(frameAt(defaultTuning, 16*time.Millisecond), snap60)
	require.Equal(t, avg60, p.Wiggle())

	p.Reset()
	require.Equal(t, time.Duration(0), p.Wiggle())
}

func TestNilLoggerUsesStandardLogger(t *testing.T) {
	p := New(defaultTuning, nil)
	require.NotNil(t, p.logger)
}

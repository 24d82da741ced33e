package predictor

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viderstv/displaysync/display/estimator"
)

// Tuning holds the nanosecond form of the display tuning.
type Tuning struct {
	// VsyncLookahead is the number of vsync periods between the frame
	// timestamp and the vsync it should be shown on.
	VsyncLookahead int
	// LeadTime places the result this long before the target vsync.
	LeadTime        time.Duration
	WiggleFilterMax time.Duration
	WiggleFilterMin time.Duration
}

// Predictor maps frame timestamps onto future vsync boundaries.
//
// A Predictor carries hysteresis state between calls and is not safe for
// concurrent use.
type Predictor struct {
	tuning Tuning
	wiggle time.Duration
	logger logrus.FieldLogger
}

func New(tuning Tuning, logger logrus.FieldLogger) *Predictor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Predictor{
		tuning: tuning,
		logger: logger,
	}
}

// Predict returns the presentation timestamp for a frame captured at
// frameTimestamp, or 0 when snap carries no usable interval.
func (p *Predictor) Predict(frameTimestamp int64, snap estimator.Snapshot) int64 {
	avg := snap.AverageInterval
	if avg == 0 || snap.Samples == 0 {
		return 0
	}

	presentation := frameTimestamp + int64(p.tuning.VsyncLookahead)*int64(avg)

	var expectedVsyncOffset time.Duration
	if presentation > snap.LastVsync {
		timeDifference := time.Duration(presentation - snap.LastVsync)
		moveToNextVsync := avg - p.tuning.WiggleFilterMin
		keepInCurrentVsync := avg - p.tuning.WiggleFilterMax
		vsyncOffset := timeDifference % avg
		expectedVsyncOffset = avg - p.tuning.LeadTime - vsyncOffset

		if vsyncOffset > moveToNextVsync {
			p.wiggle = avg
		} else if vsyncOffset < keepInCurrentVsync {
			p.wiggle = 0
		}

		p.logger.WithFields(logrus.Fields{
			"vsync_timestamp":       snap.LastVsync,
			"presentation":          presentation,
			"expected_vsync_offset": int64(expectedVsyncOffset),
			"time_difference":       int64(timeDifference),
			"vsync_offset":          int64(vsyncOffset),
			"avg_vsync":             int64(avg),
			"wiggle":                int64(p.wiggle),
		}).Debug("presentation timestamp")
	}

	return presentation + int64(expectedVsyncOffset) + int64(p.wiggle)
}

// Wiggle is the bias currently added to every prediction.
func (p *Predictor) Wiggle() time.Duration {
	return p.wiggle
}

func (p *Predictor) Reset() {
	p.wiggle = 0
}

package display

import (
	"github.com/sirupsen/logrus"
	"github.com/viderstv/displaysync/display/estimator"
	"github.com/viderstv/displaysync/display/predictor"
)

// Timing couples the interval estimator with a predictor. OnVsync is called
// by exactly one event source goroutine; PresentationTimestamp by one camera
// goroutine at a time.
type Timing struct {
	estimator *estimator.Estimator
	predictor *predictor.Predictor
	logger    logrus.FieldLogger
}

func NewTiming(config Config) *Timing {
	config = config.fill()

	config.Logger.WithFields(logrus.Fields{
		"num_vsync":     config.VsyncLookahead,
		"ms_to_vsync":   config.LeadTimeMs,
		"filter_max_ms": config.WiggleFilterMaxMs,
		"filter_min_ms": config.WiggleFilterMinMs,
		"fps":           config.FPS,
		"history_depth": config.HistoryDepth,
	}).Debug("display jitter tuning")

	return &Timing{
		estimator: estimator.New(config.HistoryDepth, config.NominalInterval()),
		predictor: predictor.New(config.Tuning(), config.Logger),
		logger:    config.Logger,
	}
}

func (t *Timing) OnVsync(timestamp int64) {
	if err := t.estimator.Observe(timestamp); err != nil {
		t.logger.WithFields(logrus.Fields{
			"timestamp": timestamp,
			"last":      t.estimator.Snapshot().LastVsync,
		}).WithError(err).Warn("dropping vsync")
	}
}

// PresentationTimestamp returns the vsync aligned presentation time for a
// frame captured at frameTimestamp, or 0 while no vsync has been observed.
func (t *Timing) PresentationTimestamp(frameTimestamp int64) int64 {
	return t.predictor.Predict(frameTimestamp, t.estimator.Snapshot())
}

func (t *Timing) Snapshot() estimator.Snapshot {
	return t.estimator.Snapshot()
}

// resetHistory drops every observed vsync. No event source may be feeding t.
func (t *Timing) resetHistory() {
	t.estimator.Reset()
}

package display

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viderstv/displaysync/display/estimator"
	"github.com/viderstv/displaysync/display/predictor"
	"github.com/viderstv/displaysync/structures"
)

type Config struct {
	// VsyncLookahead is the number of vsyncs between the end of the sensor
	// pipeline and the vsync the frame is meant for.
	VsyncLookahead    int
	LeadTimeMs        int
	WiggleFilterMaxMs int
	WiggleFilterMinMs int
	FPS               int
	HistoryDepth      int
	// VsyncWait bounds how long the looper blocks before rechecking its exit flag.
	VsyncWait time.Duration
	Logger    logrus.FieldLogger
}

var DefaultConfig = Config{
	VsyncLookahead:    4,
	LeadTimeMs:        2,
	WiggleFilterMaxMs: 2,
	WiggleFilterMinMs: 4,
	FPS:               60,
	HistoryDepth:      estimator.DefaultHistoryDepth,
	VsyncWait:         33 * time.Millisecond,
	Logger:            logrus.StandardLogger(),
}

func (c Config) fill() Config {
	if c.VsyncLookahead <= 0 {
		c.VsyncLookahead = DefaultConfig.VsyncLookahead
	}
	if c.LeadTimeMs <= 0 {
		c.LeadTimeMs = DefaultConfig.LeadTimeMs
	}
	if c.WiggleFilterMaxMs <= 0 {
		c.WiggleFilterMaxMs = DefaultConfig.WiggleFilterMaxMs
	}
	if c.WiggleFilterMinMs <= 0 {
		c.WiggleFilterMinMs = DefaultConfig.WiggleFilterMinMs
	}
	if c.FPS <= 0 {
		c.FPS = DefaultConfig.FPS
	}
	if c.HistoryDepth <= 2 {
		c.HistoryDepth = DefaultConfig.HistoryDepth
	}
	if c.VsyncWait <= 0 {
		c.VsyncWait = DefaultConfig.VsyncWait
	}
	if c.Logger == nil {
		c.Logger = DefaultConfig.Logger
	}

	return c
}

// NominalInterval is the vsync interval the history is seeded with.
func (c Config) NominalInterval() time.Duration {
	return time.Second / time.Duration(c.fill().FPS)
}

func (c Config) Tuning() predictor.Tuning {
	c = c.fill()
	return predictor.Tuning{
		VsyncLookahead:  c.VsyncLookahead,
		LeadTime:        time.Duration(c.LeadTimeMs) * time.Millisecond,
		WiggleFilterMax: time.Duration(c.WiggleFilterMaxMs) * time.Millisecond,
		WiggleFilterMin: time.Duration(c.WiggleFilterMinMs) * time.Millisecond,
	}
}

// ConfigFromTuning builds a Config from a stored tuning document. Fields the
// document leaves at zero keep their defaults.
func ConfigFromTuning(t structures.DisplayTuning) Config {
	return Config{
		VsyncLookahead:    t.VsyncLookahead,
		LeadTimeMs:        t.LeadTimeMs,
		WiggleFilterMaxMs: t.WiggleFilterMaxMs,
		WiggleFilterMinMs: t.WiggleFilterMinMs,
		FPS:               t.FPS,
		HistoryDepth:      t.HistoryDepth,
	}.fill()
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viderstv/displaysync/display/estimator"
)

type fakeTracker struct {
	syncing bool
	snap    estimator.Snapshot
	offset  int64
	calls   int
}

func (f *fakeTracker) ComputePresentationTimestamp(frameTimestamp int64) int64 {
	f.calls++
	if !f.syncing {
		return 0
	}
	return frameTimestamp + f.offset
}

func (f *fakeTracker) IsSyncing() bool              { return f.syncing }
func (f *fakeTracker) Snapshot() estimator.Snapshot { return f.snap }

func serve(s *Server, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	return w
}

func TestStatus(t *testing.T) {
	tr := &fakeTracker{
		syncing: true,
		snap: estimator.Snapshot{
			LastVsync:       1_000_000_000,
			AverageInterval: 16_666_667,
			Samples:         12,
		},
	}
	s := NewServer(":0", tr, nil, logrus.New())

	w := serve(s, "/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	resp := statusResponse{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Syncing)
	assert.Equal(t, int64(1_000_000_000), resp.LastVsync)
	assert.Equal(t, int64(16_666_667), resp.AverageInterval)
	assert.Equal(t, uint64(12), resp.Samples)
	assert.InDelta(t, 60.0, resp.RefreshHz, 0.01)
}

func TestStatusBeforeFirstVsync(t *testing.T) {
	s := NewServer(":0", &fakeTracker{}, nil, logrus.New())

	resp := statusResponse{}
	require.NoError(t, json.NewDecoder(serve(s, "/status").Body).Decode(&resp))
	assert.False(t, resp.Syncing)
	assert.Zero(t, resp.RefreshHz)
}

func TestPredict(t *testing.T) {
	tr := &fakeTracker{syncing: true, offset: 80 * int64(time.Millisecond)}
	s := NewServer(":0", tr, nil, logrus.New())

	w := serve(s, "/predict/1000")
	require.Equal(t, http.StatusOK, w.Code)

	resp := predictResponse{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, int64(1000), resp.FrameTimestamp)
	assert.Equal(t, 1000+80*int64(time.Millisecond), resp.PresentationTimestamp)
}

func TestPredictRoutes(t *testing.T) {
	s := NewServer(":0", &fakeTracker{syncing: true}, nil, logrus.New())

	assert.Equal(t, http.StatusNotFound, serve(s, "/predict/-5").Code)
	assert.Equal(t, http.StatusNotFound, serve(s, "/predict/abc").Code)
	assert.Equal(t, http.StatusBadRequest, serve(s, "/predict/99999999999999999999").Code)
}

func TestPredictUnavailable(t *testing.T) {
	s := NewServer(":0", &fakeTracker{}, nil, logrus.New())

	w := serve(s, "/predict/1000")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	resp := errorResponse{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "prediction unavailable", resp.Error)
}

func TestPredictReinitializes(t *testing.T) {
	tr := &fakeTracker{}
	attempts := 0
	reinit := func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return fmt.Errorf("still down")
		}
		tr.syncing = true
		return nil
	}
	s := NewServer(":0", tr, reinit, logrus.New())

	assert.Equal(t, http.StatusServiceUnavailable, serve(s, "/predict/10").Code)
	assert.Equal(t, http.StatusOK, serve(s, "/predict/10").Code)
	assert.Equal(t, 2, attempts)

	// syncing again, so no further attempts
	assert.Equal(t, http.StatusOK, serve(s, "/predict/10").Code)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 3, tr.calls)
}

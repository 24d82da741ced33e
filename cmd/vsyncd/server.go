package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/viderstv/displaysync/display/estimator"
)

// tracker is satisfied by both *display.Display and *display.Looper.
type tracker interface {
	ComputePresentationTimestamp(frameTimestamp int64) int64
	IsSyncing() bool
	Snapshot() estimator.Snapshot
}

type Server struct {
	httpServer *http.Server
	tracker    tracker
	// reinit brings a dead subscription back on the next prediction request.
	reinit func(ctx context.Context) error
	logger logrus.FieldLogger

	// predictions share one hysteresis state
	predictMtx sync.Mutex
}

type statusResponse struct {
	Syncing         bool    `json:"syncing"`
	LastVsync       int64   `json:"last_vsync"`
	AverageInterval int64   `json:"average_interval_ns"`
	RefreshHz       float64 `json:"refresh_hz"`
	Samples         uint64  `json:"samples"`
}

type predictResponse struct {
	FrameTimestamp        int64 `json:"frame_timestamp"`
	PresentationTimestamp int64 `json:"presentation_timestamp"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewServer(bind string, t tracker, reinit func(ctx context.Context) error, logger logrus.FieldLogger) *Server {
	r := mux.NewRouter()
	s := &Server{
		httpServer: &http.Server{
			Addr:              bind,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		tracker: t,
		reinit:  reinit,
		logger:  logger,
	}
	r.HandleFunc("/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/predict/{ts:[0-9]+}", s.handlePredict).Methods("GET")
	return s
}

func (s *Server) ListenAndServe() error              { return s.httpServer.ListenAndServe() }
func (s *Server) Shutdown(ctx context.Context) error { return s.httpServer.Shutdown(ctx) }

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	resp := statusResponse{
		Syncing:         s.tracker.IsSyncing(),
		LastVsync:       snap.LastVsync,
		AverageInterval: int64(snap.AverageInterval),
		Samples:         snap.Samples,
	}
	if snap.AverageInterval > 0 {
		resp.RefreshHz = float64(time.Second) / float64(snap.AverageInterval)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	ts, err := strconv.ParseInt(mux.Vars(r)["ts"], 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad timestamp"})
		return
	}

	if s.reinit != nil && !s.tracker.IsSyncing() {
		if err := s.reinit(r.Context()); err != nil {
			s.logger.WithError(err).Warn("display re-initialization failed")
		}
	}

	s.predictMtx.Lock()
	presentation := s.tracker.ComputePresentationTimestamp(ts)
	s.predictMtx.Unlock()

	if presentation == 0 {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "prediction unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, predictResponse{
		FrameTimestamp:        ts,
		PresentationTimestamp: presentation,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Debug("writing response")
	}
}

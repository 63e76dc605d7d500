package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	SessionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shelfscan_session_active",
		Help: "1 while a scan session is acquiring the camera or scanning",
	})
	EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shelfscan_event_subscribers",
		Help: "Number of connected event websocket clients",
	})
)

// Counters
var (
	SessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shelfscan_sessions_started_total",
		Help: "Total scan sessions started",
	})
	CameraErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shelfscan_camera_errors_total",
		Help: "Camera acquisition failures by cause",
	}, []string{"cause"})
	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shelfscan_frames_total",
		Help: "Frames submitted to the decoder by decode result",
	}, []string{"result"})
	FrameErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shelfscan_frame_errors_total",
		Help: "Frames that could not be read from the camera stream",
	})
	DetectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shelfscan_detections_total",
		Help: "Accepted detections",
	})
	DiscardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shelfscan_detections_discarded_total",
		Help: "Decoded codes dropped by de-duplication, by reason",
	}, []string{"reason"})
	LookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shelfscan_lookups_total",
		Help: "Inventory lookups by outcome",
	}, []string{"outcome"})
	LookupCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shelfscan_lookup_cache_total",
		Help: "Lookup cache hits and misses",
	}, []string{"result"})
)

// Histograms
var (
	DecodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shelfscan_decode_duration_seconds",
		Help:    "Time spent decoding one frame",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
	})
	LookupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shelfscan_lookup_duration_seconds",
		Help:    "Inventory lookup latency by source",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 15},
	}, []string{"source"})
)

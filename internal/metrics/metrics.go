// Package metrics holds the Prometheus collectors shared by the dashboard
// components. Collectors register with the default registry, which the
// server exposes at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fit outcomes.
const (
	OutcomeApplied      = "applied"
	OutcomeStale        = "stale"
	OutcomeFailed       = "failed"
	OutcomePrecondition = "precondition"
	OutcomeSuperseded   = "superseded"
)

var (
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainscope_commands_total",
		Help: "Dashboard commands handled, by type",
	}, []string{"type"})

	CommandErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainscope_command_errors_total",
		Help: "Dashboard commands that returned an error, by type",
	}, []string{"type"})

	BoundaryFitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainscope_boundary_fits_total",
		Help: "Boundary fit requests, by outcome",
	}, []string{"outcome"})

	BoundaryFitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trainscope_boundary_fit_duration_seconds",
		Help:    "Duration of boundary service fits",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	ContourExtractDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trainscope_contour_extract_duration_seconds",
		Help:    "Duration of contour extraction from scalar fields",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	PlaybackStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainscope_playback_steps_total",
		Help: "Playback steps applied to a store, by mode",
	}, []string{"mode"})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trainscope_sessions_active",
		Help: "Dashboard sessions currently open",
	})

	FramesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainscope_frames_dropped_total",
		Help: "Outbound or inbound frames dropped, by reason",
	}, []string{"reason"})
)

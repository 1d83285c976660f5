// Package metrics holds the Prometheus collectors for the interview service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "interview_sessions_active",
		Help: "Currently active interview sessions",
	})

	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_sessions_started_total",
		Help: "Total interview sessions started",
	})

	SessionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_sessions_completed_total",
		Help: "Sessions that reached completion",
	})

	SessionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_session_errors_total",
		Help: "Session failures by cause",
	}, []string{"cause"})

	UtterancesCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_utterances_committed_total",
		Help: "Finalized utterances appended to transcripts",
	}, []string{"role"})

	FarewellRearms = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_farewell_rearms_total",
		Help: "Farewell debounce timer re-arms",
	})

	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_data_publish_failures_total",
		Help: "Failed data-channel publishes",
	})

	SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_session_duration_seconds",
		Help:    "Wall-clock duration of completed sessions",
		Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
	})
)

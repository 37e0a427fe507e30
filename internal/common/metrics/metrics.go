package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelineRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_requests_total",
			Help: "Pipeline requests by route and outcome",
		},
		[]string{"route", "outcome"},
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommender_request_duration_seconds",
			Help:    "End-to-end pipeline duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"route"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "recommender_stage_duration_seconds",
			Help: "Duration of a single pipeline stage in seconds",
		},
		[]string{"stage"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_stage_failures_total",
			Help: "Stage failures by error code",
		},
		[]string{"stage", "error_code"},
	)

	StageRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_stage_retries_total",
			Help: "Retries spent inside a stage",
		},
		[]string{"stage", "reason"},
	)

	SourceFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_source_fetches_total",
			Help: "Retrieval source fetches by result",
		},
		[]string{"source", "result"},
	)

	RetrievalCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommender_retrieval_candidates",
			Help:    "Candidates remaining after each retrieval step",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"step"},
	)

	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recommender_requests_in_flight",
			Help: "Pipeline requests currently executing",
		},
	)
)

// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failure categories shared by logs and metrics.
const (
	CategoryStore    = "store"
	CategoryArtifact = "artifact"
	CategoryScoring  = "scoring"
	CategoryNotify   = "notify"
	CategoryGate     = "gate"
)

var (
	// MatchRunsTotal tracks matching runs by outcome
	MatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "runs_total",
			Help:      "Total number of matching runs by outcome",
		},
		[]string{"outcome"},
	)

	// MatchRunDuration tracks matching run duration in seconds
	MatchRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "run_duration_seconds",
			Help:      "Duration of matching runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// QueriesScoredTotal tracks per-query scoring by status
	QueriesScoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "queries_total",
			Help:      "Total number of queries scored by status",
		},
		[]string{"status"},
	)

	// PairsScoredTotal tracks scored (query, candidate) pairs
	PairsScoredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "pairs_total",
			Help:      "Total number of scored query/candidate pairs",
		},
	)

	// MatchesFoundTotal tracks queries with a predicted match
	MatchesFoundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "matches_total",
			Help:      "Total number of predicted matches by multi-phase flag",
		},
		[]string{"multi_phase"},
	)

	// FailuresTotal tracks recovered failures by category
	FailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Name:      "failures_total",
			Help:      "Total number of recovered failures by category and stage",
		},
		[]string{"category", "stage"},
	)

	// FeedbackRecordsTotal tracks recorded feedback
	FeedbackRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "feedback",
			Name:      "records_total",
			Help:      "Total number of feedback records by source and ground truth",
		},
		[]string{"source", "ground_truth"},
	)

	// LifecycleStagesTotal tracks lifecycle stage executions
	LifecycleStagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "lifecycle",
			Name:      "stages_total",
			Help:      "Total number of lifecycle stage executions by stage and status",
		},
		[]string{"stage", "status"},
	)

	// GateDecisionsTotal tracks promotion gate outcomes
	GateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "lifecycle",
			Name:      "gate_decisions_total",
			Help:      "Total number of promotion gate decisions",
		},
		[]string{"decision"},
	)

	// KafkaMessagesPublished tracks messages published to Kafka
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaMessagesConsumed tracks messages consumed from Kafka
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of messages consumed from Kafka",
		},
		[]string{"topic", "status"},
	)

	// LockAcquisitions tracks run lock attempts
	LockAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "lock",
			Name:      "acquisitions_total",
			Help:      "Total number of run lock attempts by lock and result",
		},
		[]string{"lock", "result"},
	)
)

// RecordMatchRun records a matching run
func RecordMatchRun(outcome string, durationSeconds float64) {
	MatchRunsTotal.WithLabelValues(outcome).Inc()
	MatchRunDuration.Observe(durationSeconds)
}

// RecordQuery records one query's scoring outcome
func RecordQuery(status string, pairs int) {
	QueriesScoredTotal.WithLabelValues(status).Inc()
	PairsScoredTotal.Add(float64(pairs))
}

// RecordMatch records a predicted match
func RecordMatch(multiPhase bool) {
	label := "false"
	if multiPhase {
		label = "true"
	}
	MatchesFoundTotal.WithLabelValues(label).Inc()
}

// RecordFailure records a recovered failure
func RecordFailure(category, stage string) {
	FailuresTotal.WithLabelValues(category, stage).Inc()
}

// RecordFeedback records a feedback write
func RecordFeedback(source string, groundTruth int) {
	label := "0"
	if groundTruth == 1 {
		label = "1"
	}
	FeedbackRecordsTotal.WithLabelValues(source, label).Inc()
}

// RecordLifecycleStage records a lifecycle stage execution
func RecordLifecycleStage(stage, status string) {
	LifecycleStagesTotal.WithLabelValues(stage, status).Inc()
}

// RecordGateDecision records a promotion gate outcome
func RecordGateDecision(decision string) {
	GateDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}

// RecordKafkaConsume records a consumed Kafka message
func RecordKafkaConsume(topic, status string) {
	KafkaMessagesConsumed.WithLabelValues(topic, status).Inc()
}

// RecordLock records a run lock attempt
func RecordLock(lock, result string) {
	LockAcquisitions.WithLabelValues(lock, result).Inc()
}

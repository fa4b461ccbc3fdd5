// Package metrics exposes Prometheus instrumentation for the delivery
// subsystem. Counters are recorded at the point of action; queue-depth
// gauges are refreshed by the health reporter's collection loop.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// dispatchesTotal tracks broker submissions by queue and outcome.
	dispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskservice_dispatches_total",
		Help: "Total task submissions to the execution transport by queue and outcome",
	}, []string{"queue", "outcome"}) // outcome: submitted, rejected, unavailable

	// dispatchDuration tracks the broker submit round trip.
	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskservice_dispatch_duration_seconds",
		Help:    "Time taken to hand one task to the execution transport",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"queue"})

	// classifierDecisions tracks classifier verdicts by action.
	classifierDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskservice_classifier_decisions_total",
		Help: "Total failure classification decisions by action",
	}, []string{"action"}) // action: retry, dead_letter, archive

	// quarantines tracks new dead letter records by queue type.
	quarantines = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskservice_quarantines_total",
		Help: "Total envelopes quarantined into the dead letter archive by queue type",
	}, []string{"queue_type"})

	// replays tracks manual recovery attempts by outcome.
	replays = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskservice_manual_replays_total",
		Help: "Total manual replay attempts by outcome",
	}, []string{"outcome"}) // outcome: accepted, rejected

	// transportUnavailable tracks broker connectivity failures.
	transportUnavailable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskservice_transport_unavailable_total",
		Help: "Total scheduler ticks that found the execution transport unreachable",
	})

	// retentionDeletions tracks rows removed by the retention sweep.
	retentionDeletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskservice_retention_deletions_total",
		Help: "Total rows removed by the retention sweep by entity",
	}, []string{"entity"}) // entity: dead_letter_record, envelope

	// staleClaimsReleased tracks dispatching claims swept back to retrying.
	staleClaimsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskservice_stale_claims_released_total",
		Help: "Total envelopes released from a stale dispatching claim",
	})

	// envelopesByStatus is refreshed by the health reporter.
	envelopesByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "taskservice_envelopes",
		Help: "Current envelope count by status",
	}, []string{"status"})

	// unresolvedDeadLetters is refreshed by the health reporter.
	unresolvedDeadLetters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskservice_unresolved_dead_letters",
		Help: "Dead letter records awaiting operator resolution",
	})

	// oldestPendingAge is refreshed by the health reporter.
	oldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskservice_oldest_pending_age_seconds",
		Help: "Age of the oldest due but unclaimed envelope",
	})
)

// Recorder provides methods to record delivery metrics.
type Recorder struct{}

// NewRecorder creates a new metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordDispatch records one broker submission.
func (r *Recorder) RecordDispatch(queue, outcome string, duration time.Duration) {
	dispatchesTotal.WithLabelValues(queue, outcome).Inc()
	dispatchDuration.WithLabelValues(queue).Observe(duration.Seconds())
}

// RecordDecision records one classifier verdict.
func (r *Recorder) RecordDecision(action string) {
	classifierDecisions.WithLabelValues(action).Inc()
}

// RecordQuarantine records one new dead letter record.
func (r *Recorder) RecordQuarantine(queueType string) {
	quarantines.WithLabelValues(queueType).Inc()
}

// RecordReplay records one manual replay attempt.
func (r *Recorder) RecordReplay(accepted bool) {
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	replays.WithLabelValues(outcome).Inc()
}

// RecordTransportUnavailable records one tick against an unreachable broker.
func (r *Recorder) RecordTransportUnavailable() {
	transportUnavailable.Inc()
}

// RecordRetentionDeletions records rows removed by the retention sweep.
func (r *Recorder) RecordRetentionDeletions(entity string, count int64) {
	retentionDeletions.WithLabelValues(entity).Add(float64(count))
}

// RecordStaleClaimsReleased records envelopes swept out of dispatching.
func (r *Recorder) RecordStaleClaimsReleased(count int64) {
	staleClaimsReleased.Add(float64(count))
}

// SetEnvelopeCount refreshes the envelope gauge for one status.
func (r *Recorder) SetEnvelopeCount(status string, count int64) {
	envelopesByStatus.WithLabelValues(status).Set(float64(count))
}

// SetUnresolvedDeadLetters refreshes the unresolved dead letter gauge.
func (r *Recorder) SetUnresolvedDeadLetters(count int64) {
	unresolvedDeadLetters.Set(float64(count))
}

// SetOldestPendingAge refreshes the oldest pending age gauge.
func (r *Recorder) SetOldestPendingAge(age time.Duration) {
	oldestPendingAge.Set(age.Seconds())
}

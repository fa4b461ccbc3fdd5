// Package health aggregates read-only operational counts over the store.
// Reports never mutate anything, so any number of callers may poll them.
package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bookline/task-service/internal/envelope"
)

// Store is the read-only aggregation surface the reporter polls.
type Store interface {
	CountEnvelopesByStatus(ctx context.Context) (map[envelope.Status]int64, error)
	CountUnresolvedDeadLetters(ctx context.Context) (int64, error)
	CountDeadLettersByQueue(ctx context.Context) (map[envelope.QueueType]int64, error)
	OldestPendingAge(ctx context.Context, now time.Time) (time.Duration, bool, error)
}

// Recorder is the gauge surface refreshed on each collection tick.
type Recorder interface {
	SetEnvelopeCount(status string, count int64)
	SetUnresolvedDeadLetters(count int64)
	SetOldestPendingAge(age time.Duration)
}

// Report is one snapshot of subsystem state.
type Report struct {
	Envelopes               map[envelope.Status]int64    `json:"envelopes"`
	UnresolvedDeadLetters   int64                        `json:"unresolved_dead_letters"`
	DeadLettersByQueue      map[envelope.QueueType]int64 `json:"dead_letters_by_queue"`
	OldestPendingAgeSeconds float64                      `json:"oldest_pending_age_seconds"`
	GeneratedAt             time.Time                    `json:"generated_at"`
}

type Reporter struct {
	store    Store
	logger   *zerolog.Logger
	metrics  Recorder
	interval time.Duration
	stopChan chan struct{}
}

func NewReporter(st Store, logger *zerolog.Logger, metrics Recorder, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reporter{
		store:    st,
		logger:   logger,
		metrics:  metrics,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Report assembles a fresh snapshot.
func (r *Reporter) Report(ctx context.Context) (*Report, error) {
	now := time.Now()

	byStatus, err := r.store.CountEnvelopesByStatus(ctx)
	if err != nil {
		return nil, err
	}
	unresolved, err := r.store.CountUnresolvedDeadLetters(ctx)
	if err != nil {
		return nil, err
	}
	byQueue, err := r.store.CountDeadLettersByQueue(ctx)
	if err != nil {
		return nil, err
	}
	oldest, _, err := r.store.OldestPendingAge(ctx, now)
	if err != nil {
		return nil, err
	}

	return &Report{
		Envelopes:               byStatus,
		UnresolvedDeadLetters:   unresolved,
		DeadLettersByQueue:      byQueue,
		OldestPendingAgeSeconds: oldest.Seconds(),
		GeneratedAt:             now,
	}, nil
}

// Start refreshes the Prometheus gauges on a fixed interval. Blocks until
// stopped.
func (r *Reporter) Start(ctx context.Context) {
	r.logger.Info().
		Dur("interval", r.interval).
		Msg("Starting health collector")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Health collector stopping (context cancelled)")
			return
		case <-r.stopChan:
			r.logger.Info().Msg("Health collector stopping (stop signal)")
			return
		case <-ticker.C:
			r.collect(ctx)
		}
	}
}

// Stop signals the collector to stop.
func (r *Reporter) Stop() {
	close(r.stopChan)
}

func (r *Reporter) collect(ctx context.Context) {
	report, err := r.Report(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to collect health snapshot")
		return
	}

	// Statuses absent from the snapshot must still reset to zero.
	for _, status := range []envelope.Status{
		envelope.StatusPending, envelope.StatusDispatching, envelope.StatusRetrying,
		envelope.StatusFailed, envelope.StatusCompleted, envelope.StatusCancelled,
		envelope.StatusDeadLetter,
	} {
		r.metrics.SetEnvelopeCount(string(status), report.Envelopes[status])
	}
	r.metrics.SetUnresolvedDeadLetters(report.UnresolvedDeadLetters)
	r.metrics.SetOldestPendingAge(time.Duration(report.OldestPendingAgeSeconds * float64(time.Second)))
}

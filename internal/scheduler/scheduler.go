// Package scheduler polls the store for due envelopes and hands them to
// the execution transport. Any number of scheduler replicas may run at
// once: a replica claims an envelope with the store's conditional status
// transition and silently skips rows another replica claimed first.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/bookline/task-service/internal/classifier"
	"github.com/bookline/task-service/internal/envelope"
	"github.com/bookline/task-service/internal/store"
	"github.com/bookline/task-service/internal/transport"
)

// Store is the persistence surface the scheduler drives.
type Store interface {
	FetchDue(ctx context.Context, statuses []envelope.Status, now time.Time, limit int) ([]envelope.TaskEnvelope, error)
	Transition(ctx context.Context, id string, from, to envelope.Status, fields store.TransitionFields) (bool, error)
	RecordFailure(ctx context.Context, id, errorMessage string, errorTraceback *string) (*envelope.TaskEnvelope, bool, error)
	CompleteEnvelope(ctx context.Context, id string) (bool, error)
	ReleaseStaleDispatching(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Quarantiner is the archive operation the scheduler applies dead letter
// decisions through.
type Quarantiner interface {
	Quarantine(ctx context.Context, e *envelope.TaskEnvelope, reason string) (*envelope.DeadLetterRecord, error)
}

// Recorder is the metrics surface the scheduler reports into.
type Recorder interface {
	RecordDispatch(queue, outcome string, duration time.Duration)
	RecordDecision(action string)
	RecordTransportUnavailable()
	RecordStaleClaimsReleased(count int64)
}

type Config struct {
	TickInterval        time.Duration
	RetryBatchSize      int
	DispatchConcurrency int
	// RedeliveryTimeout is how long a submitted envelope waits for an
	// executor report before the scheduler offers it to the broker again.
	RedeliveryTimeout time.Duration
	// StaleClaimAge is how long a dispatching claim may sit before it is
	// treated as abandoned by a dead replica.
	StaleClaimAge time.Duration
	// UnavailableAlertThreshold is how many consecutive broker failures
	// raise the alert log.
	UnavailableAlertThreshold int
}

type Scheduler struct {
	store      Store
	classifier *classifier.Classifier
	transport  transport.Transport
	routes     *transport.RouteTable
	archive    Quarantiner
	cfg        Config
	logger     *zerolog.Logger
	metrics    Recorder

	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	stopChan chan struct{}

	// Consecutive broker connectivity failures, reset by any success.
	// Replica-local by design: each replica alerts on its own view of the
	// broker, while envelope state stays untouched in the store.
	unavailableStreak atomic.Int64
}

func New(st Store, cl *classifier.Classifier, tr transport.Transport, routes *transport.RouteTable, archive Quarantiner, cfg Config, logger *zerolog.Logger, metrics Recorder) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	if cfg.RetryBatchSize <= 0 {
		cfg.RetryBatchSize = 25
	}
	if cfg.DispatchConcurrency <= 0 {
		cfg.DispatchConcurrency = 8
	}
	if cfg.RedeliveryTimeout <= 0 {
		cfg.RedeliveryTimeout = 15 * time.Minute
	}
	if cfg.StaleClaimAge <= 0 {
		cfg.StaleClaimAge = 5 * time.Minute
	}
	if cfg.UnavailableAlertThreshold <= 0 {
		cfg.UnavailableAlertThreshold = 5
	}
	return &Scheduler{
		store:      st,
		classifier: cl,
		transport:  tr,
		routes:     routes,
		archive:    archive,
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		sem:        semaphore.NewWeighted(int64(cfg.DispatchConcurrency)),
		stopChan:   make(chan struct{}),
	}
}

// Start begins the polling loop. Blocks until stopped.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.cfg.TickInterval).
		Int("batch_size", s.cfg.RetryBatchSize).
		Int("concurrency", s.cfg.DispatchConcurrency).
		Msg("Starting retry scheduler")

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Retry scheduler stopping (context cancelled)")
			s.wg.Wait()
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Retry scheduler stopping (stop signal)")
			s.wg.Wait()
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Stop signals the scheduler to stop and waits for in-flight dispatches.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

// Tick runs one scheduling pass: release abandoned claims, fetch due
// envelopes and dispatch each one the replica manages to claim. Store
// errors abort the pass; the next tick starts over, so an unreachable
// store costs time, never envelope state.
func (s *Scheduler) Tick(ctx context.Context) {
	released, err := s.store.ReleaseStaleDispatching(ctx, s.cfg.StaleClaimAge)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to release stale dispatching claims")
		return
	}
	if released > 0 {
		s.metrics.RecordStaleClaimsReleased(released)
		s.logger.Warn().Int64("count", released).Msg("Released stale dispatching claims")
	}

	due, err := s.store.FetchDue(ctx,
		[]envelope.Status{envelope.StatusPending, envelope.StatusRetrying},
		time.Now(), s.cfg.RetryBatchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to fetch due envelopes")
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Debug().Int("count", len(due)).Msg("Fetched due envelopes")

	for i := range due {
		e := due[i]

		claimed, err := s.store.Transition(ctx, e.ID, e.Status, envelope.StatusDispatching, store.TransitionFields{})
		if err != nil {
			s.logger.Error().Err(err).Str("envelope_id", e.ID).Msg("Failed to claim envelope")
			return
		}
		if !claimed {
			// Another replica got there first.
			continue
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sem.Release(1)
			s.dispatch(ctx, &e, e.Status)
		}()
	}
}

// dispatch hands one claimed envelope to the broker and applies the
// outcome. claimedFrom is the status the claim transition consumed, used
// to put the envelope back untouched when the broker is unreachable.
func (s *Scheduler) dispatch(ctx context.Context, e *envelope.TaskEnvelope, claimedFrom envelope.Status) {
	ctx, span := otel.Tracer("scheduler").Start(ctx, "scheduler.dispatch",
		trace.WithAttributes(
			attribute.String("envelope.id", e.ID),
			attribute.String("task.name", e.TaskName),
		))
	defer span.End()

	queue := s.routes.Resolve(e.TaskName, e.QueueType)
	idempotencyKey := ""
	if e.IdempotencyKey != nil {
		idempotencyKey = *e.IdempotencyKey
	}

	start := time.Now()
	err := s.transport.Submit(ctx, transport.SubmitRequest{
		EnvelopeID:     e.ID,
		CorrelationID:  e.CorrelationID,
		IdempotencyKey: idempotencyKey,
		TaskName:       e.TaskName,
		Args:           e.TaskArgs,
		Kwargs:         e.TaskKwargs,
		Queue:          queue,
	})
	elapsed := time.Since(start)

	switch {
	case err == nil:
		s.metrics.RecordDispatch(queue, "submitted", elapsed)
		s.unavailableStreak.Store(0)

		// At-least-once: schedule a redelivery in case no executor report
		// ever comes back. A completion report cancels it by moving the
		// envelope to a terminal status first.
		next := time.Now().Add(s.cfg.RedeliveryTimeout)
		if _, err := s.store.Transition(ctx, e.ID, envelope.StatusDispatching, envelope.StatusRetrying,
			store.TransitionFields{ScheduledFor: &next}); err != nil {
			s.logger.Error().Err(err).Str("envelope_id", e.ID).Msg("Failed to schedule redelivery")
			return
		}
		s.logger.Debug().
			Str("envelope_id", e.ID).
			Str("task", e.TaskName).
			Str("queue", queue).
			Time("redelivery_at", next).
			Msg("Envelope dispatched")

	case errors.Is(err, transport.ErrUnavailable):
		// Infrastructure failure: put the envelope back exactly as it was
		// and try again on a later tick. Nothing is written into its state.
		s.metrics.RecordDispatch(queue, "unavailable", elapsed)
		s.metrics.RecordTransportUnavailable()
		if _, err := s.store.Transition(ctx, e.ID, envelope.StatusDispatching, claimedFrom, store.TransitionFields{}); err != nil {
			s.logger.Error().Err(err).Str("envelope_id", e.ID).Msg("Failed to unclaim envelope")
		}

		streak := s.unavailableStreak.Add(1)
		evt := s.logger.Warn()
		if streak >= int64(s.cfg.UnavailableAlertThreshold) {
			evt = s.logger.Error().Bool("alert", true)
		}
		evt.Err(err).
			Str("envelope_id", e.ID).
			Int64("consecutive_failures", streak).
			Msg("Execution transport unavailable")

	default:
		// The broker answered and said no: an application failure for this
		// task, recorded and classified like any executor-reported one.
		s.metrics.RecordDispatch(queue, "rejected", elapsed)
		s.unavailableStreak.Store(0)
		if err := s.ReportFailure(ctx, e.ID, err.Error(), nil); err != nil {
			s.logger.Error().Err(err).Str("envelope_id", e.ID).Msg("Failed to record dispatch rejection")
		}
	}
}

// ReportSuccess closes an envelope after the executor reported completion.
func (s *Scheduler) ReportSuccess(ctx context.Context, envelopeID string) (bool, error) {
	return s.store.CompleteEnvelope(ctx, envelopeID)
}

// ReportFailure is the failure intake: record the error against the
// envelope, classify the failure and apply the verdict. Reports against
// envelopes already in a terminal status are ignored.
func (s *Scheduler) ReportFailure(ctx context.Context, envelopeID, errorMessage string, errorTraceback *string) error {
	e, applied, err := s.store.RecordFailure(ctx, envelopeID, errorMessage, errorTraceback)
	if err != nil {
		return err
	}
	if !applied {
		s.logger.Debug().
			Str("envelope_id", envelopeID).
			Str("status", string(e.Status)).
			Msg("Ignoring failure report for settled envelope")
		return nil
	}
	return s.applyDecision(ctx, e)
}

func (s *Scheduler) applyDecision(ctx context.Context, e *envelope.TaskEnvelope) error {
	decision := s.classifier.Classify(e, time.Now())
	s.metrics.RecordDecision(string(decision.Action))

	s.logger.Info().
		Str("envelope_id", e.ID).
		Str("task", e.TaskName).
		Str("action", string(decision.Action)).
		Str("reason", decision.Reason).
		Int("attempts", e.Attempts).
		Int("max_retries", e.MaxRetries).
		Str("vocabulary", s.classifier.Version()).
		Msg("Failure classified")

	switch decision.Action {
	case classifier.ActionRetry:
		next := time.Now().Add(decision.Delay)
		_, err := s.store.Transition(ctx, e.ID, envelope.StatusFailed, envelope.StatusRetrying,
			store.TransitionFields{ScheduledFor: &next})
		return err

	case classifier.ActionDeadLetter:
		_, err := s.archive.Quarantine(ctx, e, decision.Reason)
		return err

	case classifier.ActionArchive:
		// Expired: too old to be worth running, not broken enough for the
		// dead letter queue. Cancelled is its terminal state.
		_, err := s.store.Transition(ctx, e.ID, envelope.StatusFailed, envelope.StatusCancelled, store.TransitionFields{})
		return err
	}
	return nil
}

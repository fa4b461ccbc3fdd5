// Package deadletter quarantines envelopes that must not be retried
// automatically and supports their audited manual replay. A record is
// written once per envelope and, once resolved, never changes again: it is
// evidence, not working state.
package deadletter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bookline/task-service/internal/envelope"
	"github.com/bookline/task-service/internal/store"
)

var (
	// ErrNotRetryable rejects replay of a record whose task cannot be
	// safely re-executed.
	ErrNotRetryable = errors.New("record cannot be retried")

	// ErrAlreadyResolved rejects operations on a closed record.
	ErrAlreadyResolved = errors.New("record already resolved")
)

// Store is the persistence surface the archive needs.
type Store interface {
	GetEnvelope(ctx context.Context, id string) (*envelope.TaskEnvelope, error)
	EnqueueEnvelope(ctx context.Context, e *envelope.TaskEnvelope) (string, error)
	Transition(ctx context.Context, id string, from, to envelope.Status, fields store.TransitionFields) (bool, error)
	InsertDeadLetter(ctx context.Context, r *envelope.DeadLetterRecord) (bool, error)
	GetDeadLetter(ctx context.Context, id string) (*envelope.DeadLetterRecord, error)
	GetDeadLetterByEnvelope(ctx context.Context, envelopeID string) (*envelope.DeadLetterRecord, error)
	ResolveDeadLetter(ctx context.Context, id string, res store.Resolution) (bool, error)
	DeleteResolvedDeadLettersBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	DeleteTerminalEnvelopesBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	DeleteOrphanedDeadLetterEnvelopesBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// Recorder is the metrics surface the archive reports into.
type Recorder interface {
	RecordQuarantine(queueType string)
	RecordRetentionDeletions(entity string, count int64)
}

type Config struct {
	RetentionDays int
	BatchSize     int
	Policy        Policy
}

type Archive struct {
	store   Store
	cfg     Config
	logger  *zerolog.Logger
	metrics Recorder
}

func New(st Store, cfg Config, logger *zerolog.Logger, metrics Recorder) *Archive {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Policy.ManualReviewAttempts <= 0 {
		cfg.Policy.ManualReviewAttempts = 3
	}
	return &Archive{store: st, cfg: cfg, logger: logger, metrics: metrics}
}

// Quarantine freezes a failed envelope in dead_letter status and writes
// its archive record. Safe to repeat: the record insert is keyed on the
// original envelope ID and the status transition is conditional, so a
// crashed first attempt just resumes.
func (a *Archive) Quarantine(ctx context.Context, e *envelope.TaskEnvelope, reason string) (*envelope.DeadLetterRecord, error) {
	ctx, span := otel.Tracer("deadletter").Start(ctx, "deadletter.quarantine",
		trace.WithAttributes(
			attribute.String("envelope.id", e.ID),
			attribute.String("task.name", e.TaskName),
		))
	defer span.End()

	record := &envelope.DeadLetterRecord{
		OriginalEnvelopeID:   e.ID,
		TaskName:             e.TaskName,
		TaskArgs:             e.TaskArgs,
		TaskKwargs:           e.TaskKwargs,
		QueueType:            e.QueueType,
		Priority:             e.Priority,
		CorrelationID:        e.CorrelationID,
		IdempotencyKey:       e.IdempotencyKey,
		FailureReason:        reason,
		ErrorMessage:         e.ErrorMessage,
		ErrorTraceback:       e.ErrorTraceback,
		TotalAttempts:        e.Attempts,
		ManualReviewRequired: a.cfg.Policy.ManualReviewRequired(e),
		CanBeRetried:         a.cfg.Policy.CanBeRetried(e),
		DLQStatus:            envelope.DLQStatusQuarantined,
	}

	inserted, err := a.store.InsertDeadLetter(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to quarantine envelope %s: %w", e.ID, err)
	}

	if _, err := a.store.Transition(ctx, e.ID, e.Status, envelope.StatusDeadLetter, store.TransitionFields{}); err != nil {
		return nil, fmt.Errorf("failed to freeze envelope %s: %w", e.ID, err)
	}

	if !inserted {
		// Someone quarantined this envelope before us; theirs is the record.
		return a.store.GetDeadLetterByEnvelope(ctx, e.ID)
	}

	a.metrics.RecordQuarantine(string(e.QueueType))
	a.logger.Warn().
		Str("envelope_id", e.ID).
		Str("record_id", record.ID).
		Str("task", e.TaskName).
		Str("queue_type", string(e.QueueType)).
		Str("reason", reason).
		Int("attempts", e.Attempts).
		Bool("manual_review", record.ManualReviewRequired).
		Bool("retryable", record.CanBeRetried).
		Msg("Envelope quarantined")
	return record, nil
}

// ReplayOverrides adjusts the replacement envelope. Zero values keep the
// archive defaults: elevated priority and the original retry budget.
type ReplayOverrides struct {
	Priority     envelope.Priority
	MaxRetries   *int
	ScheduleFor  time.Time
	ResolveNotes *string
}

// Replay creates a brand-new envelope from a quarantined record and marks
// the record resolved. The record itself is never re-run: attempts start
// at zero on the replacement and history stays intact. Rejections are
// typed (store.ErrNotFound, ErrAlreadyResolved, ErrNotRetryable) so
// callers can answer precondition failures without string matching.
func (a *Archive) Replay(ctx context.Context, recordID, actor string, ov ReplayOverrides) (*envelope.TaskEnvelope, error) {
	record, err := a.store.GetDeadLetter(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.Resolved() {
		return nil, fmt.Errorf("record %s: %w", recordID, ErrAlreadyResolved)
	}
	if !record.CanBeRetried {
		return nil, fmt.Errorf("record %s: %w", recordID, ErrNotRetryable)
	}

	priority := record.Priority.Elevated()
	if ov.Priority != "" {
		if !ov.Priority.Valid() {
			return nil, fmt.Errorf("unknown priority %q", ov.Priority)
		}
		priority = ov.Priority
	}

	replacement := &envelope.TaskEnvelope{
		CorrelationID:  record.CorrelationID,
		IdempotencyKey: record.IdempotencyKey,
		QueueType:      record.QueueType,
		Priority:       priority,
		TaskName:       record.TaskName,
		TaskArgs:       record.TaskArgs,
		TaskKwargs:     record.TaskKwargs,
		MaxRetries:     3,
		ScheduledFor:   ov.ScheduleFor,
		Source:         "manual_retry",
	}
	if ov.MaxRetries != nil {
		replacement.MaxRetries = *ov.MaxRetries
	}
	if err := replacement.Validate(); err != nil {
		return nil, fmt.Errorf("invalid replay overrides: %w", err)
	}

	id, err := a.store.EnqueueEnvelope(ctx, replacement)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue replacement for record %s: %w", recordID, err)
	}
	replacement.ID = id

	// A concurrent replay can slip between the read above and this update;
	// the conditional resolve makes exactly one of them win. The loser's
	// replacement envelope still exists, which is why replay requires an
	// idempotency key in the first place.
	resolved, err := a.store.ResolveDeadLetter(ctx, recordID, store.Resolution{
		Action: envelope.ResolutionManualRetry,
		By:     actor,
		Notes:  ov.ResolveNotes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve record %s: %w", recordID, err)
	}
	if !resolved {
		return nil, fmt.Errorf("record %s: %w", recordID, ErrAlreadyResolved)
	}

	a.logger.Info().
		Str("record_id", recordID).
		Str("new_envelope_id", id).
		Str("task", record.TaskName).
		Str("actor", actor).
		Msg("Dead letter replayed")
	return replacement, nil
}

// Discard closes a record without re-running the task.
func (a *Archive) Discard(ctx context.Context, recordID, actor string, notes *string) error {
	record, err := a.store.GetDeadLetter(ctx, recordID)
	if err != nil {
		return err
	}
	if record.Resolved() {
		return fmt.Errorf("record %s: %w", recordID, ErrAlreadyResolved)
	}

	resolved, err := a.store.ResolveDeadLetter(ctx, recordID, store.Resolution{
		Action: envelope.ResolutionDiscarded,
		By:     actor,
		Notes:  notes,
	})
	if err != nil {
		return fmt.Errorf("failed to discard record %s: %w", recordID, err)
	}
	if !resolved {
		return fmt.Errorf("record %s: %w", recordID, ErrAlreadyResolved)
	}
	return nil
}

// RetentionResult reports what one retention pass removed.
type RetentionResult struct {
	DeadLetterRecords int64 `json:"dead_letter_records"`
	Envelopes         int64 `json:"envelopes"`
}

// ArchiveOld is the garbage collection pass: resolved records and terminal
// envelopes older than the retention window are deleted in batches.
// Unresolved records survive regardless of age, and so do their frozen
// envelopes, so a second consecutive run removes nothing.
func (a *Archive) ArchiveOld(ctx context.Context) (RetentionResult, error) {
	cutoff := time.Now().AddDate(0, 0, -a.cfg.RetentionDays)
	var result RetentionResult

	for {
		n, err := a.store.DeleteResolvedDeadLettersBefore(ctx, cutoff, a.cfg.BatchSize)
		if err != nil {
			return result, fmt.Errorf("retention pass failed: %w", err)
		}
		result.DeadLetterRecords += n
		if n < int64(a.cfg.BatchSize) {
			break
		}
	}

	for {
		n, err := a.store.DeleteTerminalEnvelopesBefore(ctx, cutoff, a.cfg.BatchSize)
		if err != nil {
			return result, fmt.Errorf("retention pass failed: %w", err)
		}
		result.Envelopes += n
		if n < int64(a.cfg.BatchSize) {
			break
		}
	}

	// Frozen dead_letter envelopes whose record was purged above.
	for {
		n, err := a.store.DeleteOrphanedDeadLetterEnvelopesBefore(ctx, cutoff, a.cfg.BatchSize)
		if err != nil {
			return result, fmt.Errorf("retention pass failed: %w", err)
		}
		result.Envelopes += n
		if n < int64(a.cfg.BatchSize) {
			break
		}
	}

	a.metrics.RecordRetentionDeletions("dead_letter_record", result.DeadLetterRecords)
	a.metrics.RecordRetentionDeletions("envelope", result.Envelopes)
	if result.DeadLetterRecords > 0 || result.Envelopes > 0 {
		a.logger.Info().
			Int64("dead_letter_records", result.DeadLetterRecords).
			Int64("envelopes", result.Envelopes).
			Int("retention_days", a.cfg.RetentionDays).
			Msg("Retention pass deleted expired rows")
	}
	return result, nil
}

package envelope

import (
	"encoding/json"
	"time"
)

type DLQStatus string

const (
	DLQStatusQuarantined DLQStatus = "quarantined"
	DLQStatusResolved    DLQStatus = "resolved"
)

type ResolutionAction string

const (
	ResolutionManualRetry ResolutionAction = "manual_retry"
	ResolutionDiscarded   ResolutionAction = "discarded"
)

// Well-known failure reasons written by the classifier and archive.
const (
	ReasonMaxRetriesExceeded = "max retries exceeded"
	ReasonExpired            = "expired"
	ReasonPermanentError     = "permanent error"
)

// DeadLetterRecord preserves a quarantined task. The task fields are copies
// taken at quarantine time; the original envelope row stays frozen in
// dead_letter status and is never rewritten from here.
type DeadLetterRecord struct {
	ID                   string            `db:"id"`
	OriginalEnvelopeID   string            `db:"original_envelope_id"`
	TaskName             string            `db:"task_name"`
	TaskArgs             json.RawMessage   `db:"task_args"`
	TaskKwargs           json.RawMessage   `db:"task_kwargs"`
	QueueType            QueueType         `db:"queue_type"`
	Priority             Priority          `db:"priority"`
	CorrelationID        string            `db:"correlation_id"`
	IdempotencyKey       *string           `db:"idempotency_key"`
	FailureReason        string            `db:"failure_reason"`
	ErrorMessage         *string           `db:"error_message"`
	ErrorTraceback       *string           `db:"error_traceback"`
	TotalAttempts        int               `db:"total_attempts"`
	ManualReviewRequired bool              `db:"manual_review_required"`
	CanBeRetried         bool              `db:"can_be_retried"`
	DLQStatus            DLQStatus         `db:"dlq_status"`
	ResolutionAction     *ResolutionAction `db:"resolution_action"`
	ResolutionNotes      *string           `db:"resolution_notes"`
	ResolvedBy           *string           `db:"resolved_by"`
	ResolvedAt           *time.Time        `db:"resolved_at"`
	CreatedAt            time.Time         `db:"created_at"`
}

// Resolved reports whether the record has been closed by an operator.
func (r *DeadLetterRecord) Resolved() bool {
	return r.DLQStatus == DLQStatusResolved
}

type RecoveryAction string

const (
	RecoveryActionRetry    RecoveryAction = "retry"
	RecoveryActionDiscard  RecoveryAction = "discard"
	RecoveryActionAnnotate RecoveryAction = "annotate"
)

// RecoveryAudit is one entry in the append-only trail of manual operations
// against a dead letter record. Rejected attempts are recorded too.
type RecoveryAudit struct {
	ID            string         `db:"id"`
	RecordID      string         `db:"record_id"`
	Action        RecoveryAction `db:"action"`
	Actor         string         `db:"actor"`
	Outcome       string         `db:"outcome"`
	Notes         *string        `db:"notes"`
	NewEnvelopeID *string        `db:"new_envelope_id"`
	CreatedAt     time.Time      `db:"created_at"`
}

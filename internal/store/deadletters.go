package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bookline/task-service/internal/envelope"
	"github.com/bookline/task-service/internal/pkg/cuid2"
)

const deadLetterColumns = `
	id, original_envelope_id, task_name, task_args, task_kwargs,
	queue_type, priority, correlation_id, idempotency_key,
	failure_reason, error_message, error_traceback, total_attempts,
	manual_review_required, can_be_retried, dlq_status,
	resolution_action, resolution_notes, resolved_by, resolved_at, created_at`

func scanDeadLetter(row rowScanner) (*envelope.DeadLetterRecord, error) {
	var r envelope.DeadLetterRecord
	err := row.Scan(
		&r.ID, &r.OriginalEnvelopeID, &r.TaskName, &r.TaskArgs, &r.TaskKwargs,
		&r.QueueType, &r.Priority, &r.CorrelationID, &r.IdempotencyKey,
		&r.FailureReason, &r.ErrorMessage, &r.ErrorTraceback, &r.TotalAttempts,
		&r.ManualReviewRequired, &r.CanBeRetried, &r.DLQStatus,
		&r.ResolutionAction, &r.ResolutionNotes, &r.ResolvedBy, &r.ResolvedAt, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// InsertDeadLetter stores a quarantine record. One record per envelope: a
// second insert for the same original envelope is a no-op and returns
// false, which makes quarantine safe to repeat after partial failures.
func (s *Store) InsertDeadLetter(ctx context.Context, r *envelope.DeadLetterRecord) (bool, error) {
	if r.ID == "" {
		r.ID = cuid2.New("dlr")
	}
	if r.TaskArgs == nil {
		r.TaskArgs = []byte("[]")
	}
	if r.TaskKwargs == nil {
		r.TaskKwargs = []byte("{}")
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO dead_letter_records (
			id, original_envelope_id, task_name, task_args, task_kwargs,
			queue_type, priority, correlation_id, idempotency_key,
			failure_reason, error_message, error_traceback, total_attempts,
			manual_review_required, can_be_retried, dlq_status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 'quarantined')
		ON CONFLICT (original_envelope_id) DO NOTHING
	`, r.ID, r.OriginalEnvelopeID, r.TaskName, r.TaskArgs, r.TaskKwargs,
		r.QueueType, r.Priority, r.CorrelationID, r.IdempotencyKey,
		r.FailureReason, r.ErrorMessage, r.ErrorTraceback, r.TotalAttempts,
		r.ManualReviewRequired, r.CanBeRetried)
	if err != nil {
		return false, fmt.Errorf("failed to insert dead letter record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetDeadLetter loads one record by ID.
func (s *Store) GetDeadLetter(ctx context.Context, id string) (*envelope.DeadLetterRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+deadLetterColumns+`
		FROM dead_letter_records
		WHERE id = $1
	`, id)

	r, err := scanDeadLetter(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("dead letter record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dead letter record: %w", err)
	}
	return r, nil
}

// GetDeadLetterByEnvelope loads the record quarantining a given envelope.
func (s *Store) GetDeadLetterByEnvelope(ctx context.Context, envelopeID string) (*envelope.DeadLetterRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+deadLetterColumns+`
		FROM dead_letter_records
		WHERE original_envelope_id = $1
	`, envelopeID)

	r, err := scanDeadLetter(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("dead letter record for envelope %s: %w", envelopeID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dead letter record: %w", err)
	}
	return r, nil
}

// DeadLetterFilter narrows ListDeadLetters. Zero values mean "any".
type DeadLetterFilter struct {
	Status           envelope.DLQStatus
	QueueType        envelope.QueueType
	ManualReviewOnly bool
	RetryableOnly    bool
	Limit            int
	Offset           int
}

// ListDeadLetters returns a filtered page of records, newest first, plus
// the total count for pagination.
func (s *Store) ListDeadLetters(ctx context.Context, f DeadLetterFilter) ([]envelope.DeadLetterRecord, int, error) {
	where := []string{"TRUE"}
	args := []any{}

	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("dlq_status = $%d", len(args)))
	}
	if f.QueueType != "" {
		args = append(args, f.QueueType)
		where = append(where, fmt.Sprintf("queue_type = $%d", len(args)))
	}
	if f.ManualReviewOnly {
		where = append(where, "manual_review_required = TRUE")
	}
	if f.RetryableOnly {
		where = append(where, "can_be_retried = TRUE")
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_records WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count dead letter records: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM dead_letter_records
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, deadLetterColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list dead letter records: %w", err)
	}
	defer rows.Close()

	out := make([]envelope.DeadLetterRecord, 0)
	for rows.Next() {
		r, err := scanDeadLetter(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan dead letter record: %w", err)
		}
		out = append(out, *r)
	}
	return out, total, rows.Err()
}

// Resolution closes a dead letter record.
type Resolution struct {
	Action envelope.ResolutionAction
	By     string
	Notes  *string
}

// ResolveDeadLetter marks a quarantined record resolved. Returns false when
// the record was already resolved; resolution fields are written once and
// never overwritten.
func (s *Store) ResolveDeadLetter(ctx context.Context, id string, res Resolution) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dead_letter_records
		SET dlq_status = 'resolved',
		    resolution_action = $2,
		    resolved_by = $3,
		    resolution_notes = COALESCE($4, resolution_notes),
		    resolved_at = NOW()
		WHERE id = $1 AND dlq_status = 'quarantined'
	`, id, res.Action, res.By, res.Notes)
	if err != nil {
		return false, fmt.Errorf("failed to resolve dead letter record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AnnotateDeadLetter replaces the working notes on a quarantined record.
// Resolved records are immutable.
func (s *Store) AnnotateDeadLetter(ctx context.Context, id, notes string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dead_letter_records
		SET resolution_notes = $2
		WHERE id = $1 AND dlq_status = 'quarantined'
	`, id, notes)
	if err != nil {
		return false, fmt.Errorf("failed to annotate dead letter record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountUnresolvedDeadLetters returns how many records await an operator.
func (s *Store) CountUnresolvedDeadLetters(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM dead_letter_records
		WHERE dlq_status = 'quarantined'
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unresolved dead letter records: %w", err)
	}
	return n, nil
}

// CountDeadLettersByQueue returns unresolved record counts per queue type.
func (s *Store) CountDeadLettersByQueue(ctx context.Context) (map[envelope.QueueType]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT queue_type, COUNT(*)
		FROM dead_letter_records
		WHERE dlq_status = 'quarantined'
		GROUP BY queue_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count dead letter records: %w", err)
	}
	defer rows.Close()

	counts := make(map[envelope.QueueType]int64)
	for rows.Next() {
		var q envelope.QueueType
		var n int64
		if err := rows.Scan(&q, &n); err != nil {
			return nil, fmt.Errorf("failed to scan queue count: %w", err)
		}
		counts[q] = n
	}
	return counts, rows.Err()
}

// DeleteResolvedDeadLettersBefore removes resolved records created before
// the cutoff, at most limit per call. Unresolved records are never touched
// here regardless of age.
func (s *Store) DeleteResolvedDeadLettersBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM dead_letter_records
		WHERE id IN (
			SELECT id FROM dead_letter_records
			WHERE dlq_status = 'resolved' AND created_at < $1
			LIMIT $2
		)
	`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old dead letter records: %w", err)
	}
	return tag.RowsAffected(), nil
}

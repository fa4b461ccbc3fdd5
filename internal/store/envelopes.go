package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bookline/task-service/internal/envelope"
	"github.com/bookline/task-service/internal/pkg/cuid2"
)

const envelopeColumns = `
	id, correlation_id, idempotency_key, queue_type, priority, task_name,
	task_args, task_kwargs, status, attempts, max_retries, retry_delay_seconds,
	scheduled_for, error_message, error_traceback, source,
	created_at, updated_at, completed_at`

// Dispatch order: priority first, then earliest due.
const dueOrder = `
	CASE priority
		WHEN 'critical' THEN 3
		WHEN 'high' THEN 2
		WHEN 'normal' THEN 1
		ELSE 0
	END DESC,
	scheduled_for ASC`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnvelope(row rowScanner) (*envelope.TaskEnvelope, error) {
	var e envelope.TaskEnvelope
	err := row.Scan(
		&e.ID, &e.CorrelationID, &e.IdempotencyKey, &e.QueueType, &e.Priority, &e.TaskName,
		&e.TaskArgs, &e.TaskKwargs, &e.Status, &e.Attempts, &e.MaxRetries, &e.RetryDelaySeconds,
		&e.ScheduledFor, &e.ErrorMessage, &e.ErrorTraceback, &e.Source,
		&e.CreatedAt, &e.UpdatedAt, &e.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// EnqueueEnvelope persists a new envelope in pending status and returns its
// ID. Missing identifiers are generated here; producer fields must already
// be validated.
func (s *Store) EnqueueEnvelope(ctx context.Context, e *envelope.TaskEnvelope) (string, error) {
	if e.ID == "" {
		e.ID = cuid2.New("task")
	}
	if e.CorrelationID == "" {
		e.CorrelationID = uuid.NewString()
	}
	if e.TaskArgs == nil {
		e.TaskArgs = []byte("[]")
	}
	if e.TaskKwargs == nil {
		e.TaskKwargs = []byte("{}")
	}

	scheduledFor := e.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = time.Now()
	}

	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO task_envelopes (
			id, correlation_id, idempotency_key, queue_type, priority, task_name,
			task_args, task_kwargs, status, attempts, max_retries, retry_delay_seconds,
			scheduled_for, source
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', 0, $9, $10, $11, $12)
		RETURNING id
	`, e.ID, e.CorrelationID, e.IdempotencyKey, e.QueueType, e.Priority, e.TaskName,
		e.TaskArgs, e.TaskKwargs, e.MaxRetries, e.RetryDelaySeconds, scheduledFor, e.Source,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue envelope: %w", err)
	}
	return id, nil
}

// GetEnvelope loads one envelope by ID.
func (s *Store) GetEnvelope(ctx context.Context, id string) (*envelope.TaskEnvelope, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+envelopeColumns+`
		FROM task_envelopes
		WHERE id = $1
	`, id)

	e, err := scanEnvelope(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("envelope %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get envelope: %w", err)
	}
	return e, nil
}

// FetchDue returns envelopes in the given statuses whose scheduled_for has
// passed, highest priority first. It only reads; claiming a row is a
// separate Transition call that may lose against another scheduler.
func (s *Store) FetchDue(ctx context.Context, statuses []envelope.Status, now time.Time, limit int) ([]envelope.TaskEnvelope, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+envelopeColumns+`
		FROM task_envelopes
		WHERE status = ANY($1) AND scheduled_for <= $2
		ORDER BY `+dueOrder+`
		LIMIT $3
	`, statusStrings(statuses), now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due envelopes: %w", err)
	}
	defer rows.Close()

	out := make([]envelope.TaskEnvelope, 0)
	for rows.Next() {
		e, err := scanEnvelope(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan envelope: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// TransitionFields are column updates applied together with a status change.
// Nil fields are left untouched.
type TransitionFields struct {
	ScheduledFor   *time.Time
	ErrorMessage   *string
	ErrorTraceback *string
	CompletedAt    *time.Time
}

// Transition moves an envelope from one status to another with a single
// conditional UPDATE. It returns false when the envelope was no longer in
// the expected status, meaning another worker got there first; callers
// treat that as a skip, not an error.
func (s *Store) Transition(ctx context.Context, id string, from, to envelope.Status, fields TransitionFields) (bool, error) {
	set := []string{"status = $3", "updated_at = NOW()"}
	args := []any{id, from, to}

	if fields.ScheduledFor != nil {
		args = append(args, *fields.ScheduledFor)
		set = append(set, fmt.Sprintf("scheduled_for = $%d", len(args)))
	}
	if fields.ErrorMessage != nil {
		args = append(args, *fields.ErrorMessage)
		set = append(set, fmt.Sprintf("error_message = $%d", len(args)))
	}
	if fields.ErrorTraceback != nil {
		args = append(args, *fields.ErrorTraceback)
		set = append(set, fmt.Sprintf("error_traceback = $%d", len(args)))
	}
	if fields.CompletedAt != nil {
		args = append(args, *fields.CompletedAt)
		set = append(set, fmt.Sprintf("completed_at = $%d", len(args)))
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE task_envelopes
		SET `+strings.Join(set, ", ")+`
		WHERE id = $1 AND status = $2
	`, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition envelope: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordFailure moves an active envelope to failed status, increments its
// attempt counter and stores the reported error. Attempts are clamped at
// max_retries. Returns the updated envelope and whether the update applied;
// envelopes already in a terminal status are returned unchanged with
// applied=false.
func (s *Store) RecordFailure(ctx context.Context, id, errorMessage string, errorTraceback *string) (*envelope.TaskEnvelope, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE task_envelopes
		SET status = 'failed',
		    attempts = LEAST(attempts + 1, max_retries),
		    error_message = $2,
		    error_traceback = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'dispatching', 'retrying', 'failed')
		RETURNING `+envelopeColumns+`
	`, id, errorMessage, errorTraceback)

	e, err := scanEnvelope(row)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, getErr := s.GetEnvelope(ctx, id)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to record failure: %w", err)
	}
	return e, true, nil
}

// CompleteEnvelope closes an active envelope after the executor reported
// success. Returns false when the envelope was already terminal.
func (s *Store) CompleteEnvelope(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE task_envelopes
		SET status = 'completed', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'dispatching', 'retrying', 'failed')
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to complete envelope: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CancelEnvelope stops future scheduling of an envelope. Work already handed
// to the broker cannot be recalled; a later failure report for a cancelled
// envelope is ignored upstream.
func (s *Store) CancelEnvelope(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE task_envelopes
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'dispatching', 'retrying', 'failed')
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to cancel envelope: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseStaleDispatching requeues envelopes stuck in dispatching longer
// than maxAge. Covers schedulers that died between claiming and submitting.
func (s *Store) ReleaseStaleDispatching(ctx context.Context, maxAge time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE task_envelopes
		SET status = 'retrying', scheduled_for = NOW(), updated_at = NOW()
		WHERE status = 'dispatching' AND updated_at < $1
	`, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("failed to release stale dispatching envelopes: %w", err)
	}
	return tag.RowsAffected(), nil
}

// EnvelopeFilter narrows ListEnvelopes. Zero values mean "any".
type EnvelopeFilter struct {
	Status    envelope.Status
	QueueType envelope.QueueType
	Limit     int
	Offset    int
}

// ListEnvelopes returns a filtered page of envelopes plus the total count.
func (s *Store) ListEnvelopes(ctx context.Context, f EnvelopeFilter) ([]envelope.TaskEnvelope, int, error) {
	where := []string{"TRUE"}
	args := []any{}

	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.QueueType != "" {
		args = append(args, f.QueueType)
		where = append(where, fmt.Sprintf("queue_type = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM task_envelopes WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count envelopes: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM task_envelopes
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, envelopeColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list envelopes: %w", err)
	}
	defer rows.Close()

	out := make([]envelope.TaskEnvelope, 0)
	for rows.Next() {
		e, err := scanEnvelope(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan envelope: %w", err)
		}
		out = append(out, *e)
	}
	return out, total, rows.Err()
}

// CountEnvelopesByStatus returns envelope counts grouped by status.
func (s *Store) CountEnvelopesByStatus(ctx context.Context) (map[envelope.Status]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM task_envelopes
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count envelopes: %w", err)
	}
	defer rows.Close()

	counts := make(map[envelope.Status]int64)
	for rows.Next() {
		var status envelope.Status
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// OldestPendingAge reports how long the oldest due-but-unclaimed envelope
// has been waiting. The second return is false when nothing is waiting.
func (s *Store) OldestPendingAge(ctx context.Context, now time.Time) (time.Duration, bool, error) {
	var oldest *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT MIN(scheduled_for)
		FROM task_envelopes
		WHERE status = 'pending' AND scheduled_for <= $1
	`, now).Scan(&oldest)
	if err != nil {
		return 0, false, fmt.Errorf("failed to find oldest pending envelope: %w", err)
	}
	if oldest == nil {
		return 0, false, nil
	}
	return now.Sub(*oldest), true, nil
}

// DeleteTerminalEnvelopesBefore removes completed and cancelled envelopes
// created before the cutoff, at most limit per call. Dead letter envelopes
// are kept; their lifecycle belongs to the archive.
func (s *Store) DeleteTerminalEnvelopesBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM task_envelopes
		WHERE id IN (
			SELECT id FROM task_envelopes
			WHERE status IN ('completed', 'cancelled') AND created_at < $1
			LIMIT $2
		)
	`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old envelopes: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteOrphanedDeadLetterEnvelopesBefore removes frozen dead_letter
// envelopes whose archive record has already been purged. The foreign key
// from dead_letter_records guarantees the record goes first.
func (s *Store) DeleteOrphanedDeadLetterEnvelopesBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM task_envelopes
		WHERE id IN (
			SELECT e.id FROM task_envelopes e
			WHERE e.status = 'dead_letter'
			  AND e.created_at < $1
			  AND NOT EXISTS (
				  SELECT 1 FROM dead_letter_records r
				  WHERE r.original_envelope_id = e.id
			  )
			LIMIT $2
		)
	`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphaned dead letter envelopes: %w", err)
	}
	return tag.RowsAffected(), nil
}

func statusStrings(statuses []envelope.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

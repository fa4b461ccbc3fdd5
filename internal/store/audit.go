package store

import (
	"context"
	"fmt"

	"github.com/bookline/task-service/internal/envelope"
	"github.com/bookline/task-service/internal/pkg/cuid2"
)

// InsertRecoveryAudit appends one entry to the recovery audit trail. The
// trail is append-only; there are no update or delete paths.
func (s *Store) InsertRecoveryAudit(ctx context.Context, a *envelope.RecoveryAudit) error {
	if a.ID == "" {
		a.ID = cuid2.New("aud")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO dead_letter_audit (id, record_id, action, actor, outcome, notes, new_envelope_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.RecordID, a.Action, a.Actor, a.Outcome, a.Notes, a.NewEnvelopeID)
	if err != nil {
		return fmt.Errorf("failed to insert recovery audit entry: %w", err)
	}
	return nil
}

// ListRecoveryAudits returns the audit trail for one record, oldest first.
func (s *Store) ListRecoveryAudits(ctx context.Context, recordID string) ([]envelope.RecoveryAudit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, record_id, action, actor, outcome, notes, new_envelope_id, created_at
		FROM dead_letter_audit
		WHERE record_id = $1
		ORDER BY created_at ASC
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recovery audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]envelope.RecoveryAudit, 0)
	for rows.Next() {
		var a envelope.RecoveryAudit
		if err := rows.Scan(&a.ID, &a.RecordID, &a.Action, &a.Actor, &a.Outcome, &a.Notes, &a.NewEnvelopeID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recovery audit entry: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

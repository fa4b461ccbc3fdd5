// Package recovery is the operator-facing gateway over the dead letter
// archive. Every call, accepted or rejected, leaves a durable audit row;
// the gateway itself never touches envelope or record state directly.
package recovery

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bookline/task-service/internal/deadletter"
	"github.com/bookline/task-service/internal/envelope"
)

// Archive is the part of the dead letter archive the gateway drives.
type Archive interface {
	Replay(ctx context.Context, recordID, actor string, ov deadletter.ReplayOverrides) (*envelope.TaskEnvelope, error)
	Discard(ctx context.Context, recordID, actor string, notes *string) error
}

// AuditStore persists and reads the audit trail.
type AuditStore interface {
	InsertRecoveryAudit(ctx context.Context, a *envelope.RecoveryAudit) error
	ListRecoveryAudits(ctx context.Context, recordID string) ([]envelope.RecoveryAudit, error)
	AnnotateDeadLetter(ctx context.Context, id, notes string) (bool, error)
}

// Recorder is the metrics surface the gateway reports into.
type Recorder interface {
	RecordReplay(accepted bool)
}

type Gateway struct {
	archive Archive
	audit   AuditStore
	logger  *zerolog.Logger
	metrics Recorder
}

func New(archive Archive, audit AuditStore, logger *zerolog.Logger, metrics Recorder) *Gateway {
	return &Gateway{archive: archive, audit: audit, logger: logger, metrics: metrics}
}

// Retry replays a quarantined record as a fresh envelope. The returned
// error carries the archive's typed rejection when the precondition
// fails; either way the attempt lands in the audit trail.
func (g *Gateway) Retry(ctx context.Context, recordID, actor string, ov deadletter.ReplayOverrides) (*envelope.TaskEnvelope, error) {
	replayed, err := g.archive.Replay(ctx, recordID, actor, ov)

	audit := &envelope.RecoveryAudit{
		RecordID: recordID,
		Action:   envelope.RecoveryActionRetry,
		Actor:    actor,
		Notes:    ov.ResolveNotes,
	}
	if err != nil {
		audit.Outcome = fmt.Sprintf("rejected: %v", err)
	} else {
		audit.Outcome = "accepted"
		audit.NewEnvelopeID = &replayed.ID
	}
	g.recordAudit(ctx, audit)
	g.metrics.RecordReplay(err == nil)

	if err != nil {
		return nil, err
	}
	return replayed, nil
}

// Discard closes a record without replaying it.
func (g *Gateway) Discard(ctx context.Context, recordID, actor string, notes *string) error {
	err := g.archive.Discard(ctx, recordID, actor, notes)

	audit := &envelope.RecoveryAudit{
		RecordID: recordID,
		Action:   envelope.RecoveryActionDiscard,
		Actor:    actor,
		Notes:    notes,
		Outcome:  "accepted",
	}
	if err != nil {
		audit.Outcome = fmt.Sprintf("rejected: %v", err)
	}
	g.recordAudit(ctx, audit)
	return err
}

// Annotate replaces the working notes on a quarantined record. Returns
// false when the record was already resolved and therefore immutable.
func (g *Gateway) Annotate(ctx context.Context, recordID, actor, notes string) (bool, error) {
	updated, err := g.audit.AnnotateDeadLetter(ctx, recordID, notes)
	if err != nil {
		return false, err
	}

	outcome := "accepted"
	if !updated {
		outcome = "rejected: record already resolved"
	}
	g.recordAudit(ctx, &envelope.RecoveryAudit{
		RecordID: recordID,
		Action:   envelope.RecoveryActionAnnotate,
		Actor:    actor,
		Notes:    &notes,
		Outcome:  outcome,
	})
	return updated, nil
}

// History returns the audit trail for one record, oldest first.
func (g *Gateway) History(ctx context.Context, recordID string) ([]envelope.RecoveryAudit, error) {
	return g.audit.ListRecoveryAudits(ctx, recordID)
}

// A lost audit row must not fail the operation it describes: the archive
// state change already committed, so log loudly and move on.
func (g *Gateway) recordAudit(ctx context.Context, a *envelope.RecoveryAudit) {
	if err := g.audit.InsertRecoveryAudit(ctx, a); err != nil {
		g.logger.Error().Err(err).
			Str("record_id", a.RecordID).
			Str("action", string(a.Action)).
			Str("actor", a.Actor).
			Msg("Failed to write recovery audit entry")
	}
}

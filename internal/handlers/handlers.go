// Package handlers exposes the internal HTTP API: envelope intake and
// executor callbacks on one side, the operator dead letter surface on the
// other. Handlers hold no state of their own; everything routes through
// the store-backed components.
package handlers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bookline/task-service/internal/deadletter"
	"github.com/bookline/task-service/internal/envelope"
	"github.com/bookline/task-service/internal/health"
	"github.com/bookline/task-service/internal/store"
)

// EnvelopeStore is the envelope persistence surface the API needs.
type EnvelopeStore interface {
	EnqueueEnvelope(ctx context.Context, e *envelope.TaskEnvelope) (string, error)
	GetEnvelope(ctx context.Context, id string) (*envelope.TaskEnvelope, error)
	ListEnvelopes(ctx context.Context, f store.EnvelopeFilter) ([]envelope.TaskEnvelope, int, error)
	CancelEnvelope(ctx context.Context, id string) (bool, error)
}

// DeadLetterStore is the read side of the operator surface.
type DeadLetterStore interface {
	ListDeadLetters(ctx context.Context, f store.DeadLetterFilter) ([]envelope.DeadLetterRecord, int, error)
	GetDeadLetter(ctx context.Context, id string) (*envelope.DeadLetterRecord, error)
}

// Intake receives executor outcome reports.
type Intake interface {
	ReportSuccess(ctx context.Context, envelopeID string) (bool, error)
	ReportFailure(ctx context.Context, envelopeID, errorMessage string, errorTraceback *string) error
}

// RecoveryGateway is the audited manual recovery surface.
type RecoveryGateway interface {
	Retry(ctx context.Context, recordID, actor string, ov deadletter.ReplayOverrides) (*envelope.TaskEnvelope, error)
	Discard(ctx context.Context, recordID, actor string, notes *string) error
	Annotate(ctx context.Context, recordID, actor, notes string) (bool, error)
	History(ctx context.Context, recordID string) ([]envelope.RecoveryAudit, error)
}

// Reporter assembles operational snapshots.
type Reporter interface {
	Report(ctx context.Context) (*health.Report, error)
}

// Pinger checks broker reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	envelopes   EnvelopeStore
	deadLetters DeadLetterStore
	intake      Intake
	recovery    RecoveryGateway
	reporter    Reporter
	broker      Pinger
	logger      *zerolog.Logger
}

func New(envelopes EnvelopeStore, deadLetters DeadLetterStore, intake Intake, recovery RecoveryGateway, reporter Reporter, broker Pinger, logger *zerolog.Logger) *Handlers {
	return &Handlers{
		envelopes:   envelopes,
		deadLetters: deadLetters,
		intake:      intake,
		recovery:    recovery,
		reporter:    reporter,
		broker:      broker,
		logger:      logger,
	}
}

const healthPingTimeout = 2 * time.Second

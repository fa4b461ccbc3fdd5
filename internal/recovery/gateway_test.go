package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookline/task-service/internal/deadletter"
	"github.com/bookline/task-service/internal/envelope"
)

// fakeArchive scripts Replay and Discard outcomes.
type fakeArchive struct {
	replayEnvelope *envelope.TaskEnvelope
	replayErr      error
	discardErr     error
}

func (f *fakeArchive) Replay(_ context.Context, _, _ string, _ deadletter.ReplayOverrides) (*envelope.TaskEnvelope, error) {
	return f.replayEnvelope, f.replayErr
}

func (f *fakeArchive) Discard(_ context.Context, _, _ string, _ *string) error {
	return f.discardErr
}

// fakeAuditStore records inserted audit rows in memory.
type fakeAuditStore struct {
	entries     []envelope.RecoveryAudit
	insertErr   error
	annotateOK  bool
	annotateErr error
}

func (f *fakeAuditStore) InsertRecoveryAudit(_ context.Context, a *envelope.RecoveryAudit) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.entries = append(f.entries, *a)
	return nil
}

func (f *fakeAuditStore) ListRecoveryAudits(_ context.Context, recordID string) ([]envelope.RecoveryAudit, error) {
	out := make([]envelope.RecoveryAudit, 0)
	for _, a := range f.entries {
		if a.RecordID == recordID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAuditStore) AnnotateDeadLetter(_ context.Context, _, _ string) (bool, error) {
	return f.annotateOK, f.annotateErr
}

type fakeRecorder struct {
	accepted, rejected int
}

func (f *fakeRecorder) RecordReplay(accepted bool) {
	if accepted {
		f.accepted++
	} else {
		f.rejected++
	}
}

func testGateway(archive *fakeArchive, audit *fakeAuditStore) (*Gateway, *fakeRecorder) {
	logger := zerolog.Nop()
	rec := &fakeRecorder{}
	return New(archive, audit, &logger, rec), rec
}

func TestRetryAuditsAcceptedAttempt(t *testing.T) {
	replayed := &envelope.TaskEnvelope{ID: "task_new1"}
	audit := &fakeAuditStore{}
	g, rec := testGateway(&fakeArchive{replayEnvelope: replayed}, audit)

	got, err := g.Retry(context.Background(), "dlr_1", "ops@bookline", deadletter.ReplayOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "task_new1", got.ID)
	assert.Equal(t, 1, rec.accepted)

	require.Len(t, audit.entries, 1)
	entry := audit.entries[0]
	assert.Equal(t, "dlr_1", entry.RecordID)
	assert.Equal(t, envelope.RecoveryActionRetry, entry.Action)
	assert.Equal(t, "ops@bookline", entry.Actor)
	assert.Equal(t, "accepted", entry.Outcome)
	require.NotNil(t, entry.NewEnvelopeID)
	assert.Equal(t, "task_new1", *entry.NewEnvelopeID)
}

func TestRetryAuditsRejectedAttempt(t *testing.T) {
	audit := &fakeAuditStore{}
	replayErr := fmt.Errorf("record dlr_1: %w", deadletter.ErrNotRetryable)
	g, rec := testGateway(&fakeArchive{replayErr: replayErr}, audit)

	_, err := g.Retry(context.Background(), "dlr_1", "ops@bookline", deadletter.ReplayOverrides{})
	assert.ErrorIs(t, err, deadletter.ErrNotRetryable)
	assert.Equal(t, 1, rec.rejected)

	require.Len(t, audit.entries, 1)
	entry := audit.entries[0]
	assert.Contains(t, entry.Outcome, "rejected")
	assert.Contains(t, entry.Outcome, "cannot be retried")
	assert.Nil(t, entry.NewEnvelopeID)
}

func TestRetrySurvivesAuditFailure(t *testing.T) {
	replayed := &envelope.TaskEnvelope{ID: "task_new1"}
	audit := &fakeAuditStore{insertErr: errors.New("audit table unreachable")}
	g, _ := testGateway(&fakeArchive{replayEnvelope: replayed}, audit)

	got, err := g.Retry(context.Background(), "dlr_1", "ops@bookline", deadletter.ReplayOverrides{})
	require.NoError(t, err, "a lost audit row must not fail the replay itself")
	assert.Equal(t, "task_new1", got.ID)
}

func TestDiscardAudited(t *testing.T) {
	audit := &fakeAuditStore{}
	g, _ := testGateway(&fakeArchive{}, audit)

	notes := "stale marketing blast, not worth replaying"
	require.NoError(t, g.Discard(context.Background(), "dlr_1", "ops@bookline", &notes))

	require.Len(t, audit.entries, 1)
	assert.Equal(t, envelope.RecoveryActionDiscard, audit.entries[0].Action)
	assert.Equal(t, "accepted", audit.entries[0].Outcome)
}

func TestAnnotateResolvedRecordRejected(t *testing.T) {
	audit := &fakeAuditStore{annotateOK: false}
	g, _ := testGateway(&fakeArchive{}, audit)

	updated, err := g.Annotate(context.Background(), "dlr_1", "ops@bookline", "looking into it")
	require.NoError(t, err)
	assert.False(t, updated)

	require.Len(t, audit.entries, 1)
	assert.Contains(t, audit.entries[0].Outcome, "rejected")
}

func TestHistoryFiltersByRecord(t *testing.T) {
	audit := &fakeAuditStore{}
	g, _ := testGateway(&fakeArchive{replayEnvelope: &envelope.TaskEnvelope{ID: "task_new1"}}, audit)

	_, _ = g.Retry(context.Background(), "dlr_1", "ops@bookline", deadletter.ReplayOverrides{})
	_ = g.Discard(context.Background(), "dlr_2", "ops@bookline", nil)

	history, err := g.History(context.Background(), "dlr_1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, envelope.RecoveryActionRetry, history[0].Action)
}

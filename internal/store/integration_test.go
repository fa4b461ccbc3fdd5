package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bookline/task-service/internal/envelope"
)

// setupTestStore starts a disposable PostgreSQL container, applies the
// embedded migrations and returns a connected store.
func setupTestStore(ctx context.Context, t testing.TB) (*Store, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "start postgres container")

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "get connection string")

	require.NoError(t, Migrate(ctx, connString), "migrate")

	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err, "connect")

	cleanup := func() {
		pool.Close()
		testcontainers.TerminateContainer(container)
	}
	return New(pool), cleanup
}

func enqueueTestEnvelope(ctx context.Context, t testing.TB, st *Store, mutate func(*envelope.TaskEnvelope)) *envelope.TaskEnvelope {
	t.Helper()
	e := &envelope.TaskEnvelope{
		QueueType:  envelope.QueueNotification,
		Priority:   envelope.PriorityNormal,
		TaskName:   "notifications.send_booking_email",
		MaxRetries: 3,
		Source:     "api",
	}
	if mutate != nil {
		mutate(e)
	}
	id, err := st.EnqueueEnvelope(ctx, e)
	require.NoError(t, err)

	stored, err := st.GetEnvelope(ctx, id)
	require.NoError(t, err)
	return stored
}

func TestEnvelopeLifecycleIntegration(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(ctx, t)
	defer cleanup()

	t.Run("enqueue assigns identifiers and pending status", func(t *testing.T) {
		e := enqueueTestEnvelope(ctx, t, st, nil)
		assert.Contains(t, e.ID, "task_")
		assert.NotEmpty(t, e.CorrelationID)
		assert.Equal(t, envelope.StatusPending, e.Status)
		assert.Equal(t, 0, e.Attempts)
		assert.JSONEq(t, "[]", string(e.TaskArgs))
		assert.JSONEq(t, "{}", string(e.TaskKwargs))
	})

	t.Run("only one claim wins", func(t *testing.T) {
		e := enqueueTestEnvelope(ctx, t, st, nil)

		first, err := st.Transition(ctx, e.ID, envelope.StatusPending, envelope.StatusDispatching, TransitionFields{})
		require.NoError(t, err)
		second, err := st.Transition(ctx, e.ID, envelope.StatusPending, envelope.StatusDispatching, TransitionFields{})
		require.NoError(t, err)

		assert.True(t, first)
		assert.False(t, second)

		claimed, err := st.GetEnvelope(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, envelope.StatusDispatching, claimed.Status)
	})

	t.Run("record failure clamps attempts at max retries", func(t *testing.T) {
		e := enqueueTestEnvelope(ctx, t, st, func(e *envelope.TaskEnvelope) {
			e.MaxRetries = 2
		})

		for i := 0; i < 4; i++ {
			_, applied, err := st.RecordFailure(ctx, e.ID, "connection timeout", nil)
			require.NoError(t, err)
			assert.True(t, applied)
		}

		failed, err := st.GetEnvelope(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, envelope.StatusFailed, failed.Status)
		assert.Equal(t, 2, failed.Attempts)
		require.NotNil(t, failed.ErrorMessage)
		assert.Equal(t, "connection timeout", *failed.ErrorMessage)
	})

	t.Run("failure report after completion is not applied", func(t *testing.T) {
		e := enqueueTestEnvelope(ctx, t, st, nil)

		done, err := st.CompleteEnvelope(ctx, e.ID)
		require.NoError(t, err)
		assert.True(t, done)

		stored, applied, err := st.RecordFailure(ctx, e.ID, "late report", nil)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, envelope.StatusCompleted, stored.Status)
		assert.Nil(t, stored.ErrorMessage)
	})

	t.Run("complete is idempotent on terminal envelopes", func(t *testing.T) {
		e := enqueueTestEnvelope(ctx, t, st, nil)

		done, err := st.CompleteEnvelope(ctx, e.ID)
		require.NoError(t, err)
		assert.True(t, done)

		again, err := st.CompleteEnvelope(ctx, e.ID)
		require.NoError(t, err)
		assert.False(t, again)
	})

	t.Run("cancel refuses settled envelopes", func(t *testing.T) {
		e := enqueueTestEnvelope(ctx, t, st, nil)

		_, err := st.CompleteEnvelope(ctx, e.ID)
		require.NoError(t, err)

		cancelled, err := st.CancelEnvelope(ctx, e.ID)
		require.NoError(t, err)
		assert.False(t, cancelled)
	})
}

func TestFetchDueOrderingIntegration(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(ctx, t)
	defer cleanup()

	past := time.Now().Add(-time.Minute)
	low := enqueueTestEnvelope(ctx, t, st, func(e *envelope.TaskEnvelope) {
		e.Priority = envelope.PriorityLow
		e.ScheduledFor = past
	})
	critical := enqueueTestEnvelope(ctx, t, st, func(e *envelope.TaskEnvelope) {
		e.Priority = envelope.PriorityCritical
		e.ScheduledFor = past
	})
	normal := enqueueTestEnvelope(ctx, t, st, func(e *envelope.TaskEnvelope) {
		e.ScheduledFor = past
	})
	// Not yet due, must be excluded.
	enqueueTestEnvelope(ctx, t, st, func(e *envelope.TaskEnvelope) {
		e.ScheduledFor = time.Now().Add(time.Hour)
	})

	due, err := st.FetchDue(ctx, []envelope.Status{envelope.StatusPending, envelope.StatusRetrying}, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, critical.ID, due[0].ID)
	assert.Equal(t, normal.ID, due[1].ID)
	assert.Equal(t, low.ID, due[2].ID)
}

func TestReleaseStaleDispatchingIntegration(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(ctx, t)
	defer cleanup()

	e := enqueueTestEnvelope(ctx, t, st, nil)
	claimed, err := st.Transition(ctx, e.ID, envelope.StatusPending, envelope.StatusDispatching, TransitionFields{})
	require.NoError(t, err)
	require.True(t, claimed)

	// Fresh claims are left alone.
	released, err := st.ReleaseStaleDispatching(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, released)

	// A zero max age makes every claim stale.
	released, err = st.ReleaseStaleDispatching(ctx, -time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	reclaimed, err := st.GetEnvelope(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusRetrying, reclaimed.Status)
}

func TestDeadLetterRecordIntegration(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(ctx, t)
	defer cleanup()

	quarantine := func(t *testing.T, e *envelope.TaskEnvelope) *envelope.DeadLetterRecord {
		t.Helper()
		r := &envelope.DeadLetterRecord{
			OriginalEnvelopeID: e.ID,
			TaskName:           e.TaskName,
			QueueType:          e.QueueType,
			Priority:           e.Priority,
			CorrelationID:      e.CorrelationID,
			FailureReason:      "max_retries_exceeded",
			TotalAttempts:      e.MaxRetries,
		}
		inserted, err := st.InsertDeadLetter(ctx, r)
		require.NoError(t, err)
		require.True(t, inserted)
		return r
	}

	t.Run("one record per envelope", func(t *testing.T) {
		e := enqueueTestEnvelope(ctx, t, st, nil)
		quarantine(t, e)

		duplicate := &envelope.DeadLetterRecord{
			OriginalEnvelopeID: e.ID,
			TaskName:           e.TaskName,
			QueueType:          e.QueueType,
			Priority:           e.Priority,
			FailureReason:      "max_retries_exceeded",
		}
		inserted, err := st.InsertDeadLetter(ctx, duplicate)
		require.NoError(t, err)
		assert.False(t, inserted)

		existing, err := st.GetDeadLetterByEnvelope(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, envelope.DLQStatusQuarantined, existing.DLQStatus)
	})

	t.Run("resolution is written once", func(t *testing.T) {
		e := enqueueTestEnvelope(ctx, t, st, nil)
		r := quarantine(t, e)

		notes := "replayed after executor fix"
		resolved, err := st.ResolveDeadLetter(ctx, r.ID, Resolution{
			Action: envelope.ResolutionManualRetry,
			By:     "ana",
			Notes:  &notes,
		})
		require.NoError(t, err)
		assert.True(t, resolved)

		again, err := st.ResolveDeadLetter(ctx, r.ID, Resolution{
			Action: envelope.ResolutionDiscarded,
			By:     "marko",
		})
		require.NoError(t, err)
		assert.False(t, again)

		stored, err := st.GetDeadLetter(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, envelope.DLQStatusResolved, stored.DLQStatus)
		require.NotNil(t, stored.ResolutionAction)
		assert.Equal(t, envelope.ResolutionManualRetry, *stored.ResolutionAction)
		require.NotNil(t, stored.ResolvedBy)
		assert.Equal(t, "ana", *stored.ResolvedBy)
	})

	t.Run("resolved records reject annotations", func(t *testing.T) {
		e := enqueueTestEnvelope(ctx, t, st, nil)
		r := quarantine(t, e)

		updated, err := st.AnnotateDeadLetter(ctx, r.ID, "looking into it")
		require.NoError(t, err)
		assert.True(t, updated)

		_, err = st.ResolveDeadLetter(ctx, r.ID, Resolution{Action: envelope.ResolutionDiscarded, By: "ana"})
		require.NoError(t, err)

		updated, err = st.AnnotateDeadLetter(ctx, r.ID, "too late")
		require.NoError(t, err)
		assert.False(t, updated)
	})

	t.Run("audit trail is ordered and append only", func(t *testing.T) {
		e := enqueueTestEnvelope(ctx, t, st, nil)
		r := quarantine(t, e)

		require.NoError(t, st.InsertRecoveryAudit(ctx, &envelope.RecoveryAudit{
			RecordID: r.ID,
			Action:   envelope.RecoveryActionRetry,
			Actor:    "ana",
			Outcome:  "rejected: record cannot be retried",
		}))
		require.NoError(t, st.InsertRecoveryAudit(ctx, &envelope.RecoveryAudit{
			RecordID: r.ID,
			Action:   envelope.RecoveryActionDiscard,
			Actor:    "ana",
			Outcome:  "accepted",
		}))

		trail, err := st.ListRecoveryAudits(ctx, r.ID)
		require.NoError(t, err)
		require.Len(t, trail, 2)
		assert.Equal(t, envelope.RecoveryActionRetry, trail[0].Action)
		assert.Equal(t, envelope.RecoveryActionDiscard, trail[1].Action)
	})
}

func TestRetentionIntegration(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(ctx, t)
	defer cleanup()

	// A completed envelope, a resolved record and its frozen envelope.
	done := enqueueTestEnvelope(ctx, t, st, nil)
	_, err := st.CompleteEnvelope(ctx, done.ID)
	require.NoError(t, err)

	frozen := enqueueTestEnvelope(ctx, t, st, nil)
	record := &envelope.DeadLetterRecord{
		OriginalEnvelopeID: frozen.ID,
		TaskName:           frozen.TaskName,
		QueueType:          frozen.QueueType,
		Priority:           frozen.Priority,
		FailureReason:      "permanent_error",
	}
	_, err = st.InsertDeadLetter(ctx, record)
	require.NoError(t, err)
	_, err = st.Transition(ctx, frozen.ID, envelope.StatusPending, envelope.StatusDeadLetter, TransitionFields{})
	require.NoError(t, err)
	_, err = st.ResolveDeadLetter(ctx, record.ID, Resolution{Action: envelope.ResolutionDiscarded, By: "ana"})
	require.NoError(t, err)

	// An unresolved record that retention must not touch.
	kept := enqueueTestEnvelope(ctx, t, st, nil)
	_, err = st.InsertDeadLetter(ctx, &envelope.DeadLetterRecord{
		OriginalEnvelopeID: kept.ID,
		TaskName:           kept.TaskName,
		QueueType:          kept.QueueType,
		Priority:           kept.Priority,
		FailureReason:      "max_retries_exceeded",
	})
	require.NoError(t, err)
	_, err = st.Transition(ctx, kept.ID, envelope.StatusPending, envelope.StatusDeadLetter, TransitionFields{})
	require.NoError(t, err)

	cutoff := time.Now().Add(time.Minute)

	deleted, err := st.DeleteResolvedDeadLettersBefore(ctx, cutoff, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = st.DeleteTerminalEnvelopesBefore(ctx, cutoff, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = st.DeleteOrphanedDeadLetterEnvelopesBefore(ctx, cutoff, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// A second sweep finds nothing; the unresolved record survives.
	deleted, err = st.DeleteResolvedDeadLettersBefore(ctx, cutoff, 100)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	unresolved, err := st.CountUnresolvedDeadLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unresolved)

	_, err = st.GetEnvelope(ctx, kept.ID)
	assert.NoError(t, err)
}

func TestHealthCountsIntegration(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(ctx, t)
	defer cleanup()

	enqueueTestEnvelope(ctx, t, st, func(e *envelope.TaskEnvelope) {
		e.ScheduledFor = time.Now().Add(-2 * time.Hour)
	})
	enqueueTestEnvelope(ctx, t, st, nil)
	done := enqueueTestEnvelope(ctx, t, st, nil)
	_, err := st.CompleteEnvelope(ctx, done.ID)
	require.NoError(t, err)

	counts, err := st.CountEnvelopesByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[envelope.StatusPending])
	assert.Equal(t, int64(1), counts[envelope.StatusCompleted])

	age, found, err := st.OldestPendingAge(ctx, time.Now())
	require.NoError(t, err)
	assert.True(t, found)
	assert.GreaterOrEqual(t, age, 2*time.Hour-time.Minute)
}

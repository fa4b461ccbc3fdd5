package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookline/task-service/internal/envelope"
)

type fakeStore struct {
	byStatus   map[envelope.Status]int64
	unresolved int64
	byQueue    map[envelope.QueueType]int64
	oldest     time.Duration
	hasOldest  bool
	err        error
}

func (f *fakeStore) CountEnvelopesByStatus(context.Context) (map[envelope.Status]int64, error) {
	return f.byStatus, f.err
}

func (f *fakeStore) CountUnresolvedDeadLetters(context.Context) (int64, error) {
	return f.unresolved, f.err
}

func (f *fakeStore) CountDeadLettersByQueue(context.Context) (map[envelope.QueueType]int64, error) {
	return f.byQueue, f.err
}

func (f *fakeStore) OldestPendingAge(context.Context, time.Time) (time.Duration, bool, error) {
	return f.oldest, f.hasOldest, f.err
}

type fakeRecorder struct {
	statuses   map[string]int64
	unresolved int64
	oldest     time.Duration
}

func (f *fakeRecorder) SetEnvelopeCount(status string, count int64) {
	if f.statuses == nil {
		f.statuses = make(map[string]int64)
	}
	f.statuses[status] = count
}

func (f *fakeRecorder) SetUnresolvedDeadLetters(count int64) { f.unresolved = count }

func (f *fakeRecorder) SetOldestPendingAge(age time.Duration) { f.oldest = age }

func TestReportAggregates(t *testing.T) {
	st := &fakeStore{
		byStatus: map[envelope.Status]int64{
			envelope.StatusPending:  4,
			envelope.StatusRetrying: 11,
		},
		unresolved: 3,
		byQueue: map[envelope.QueueType]int64{
			envelope.QueuePaymentWebhook: 2,
			envelope.QueueNotification:   1,
		},
		oldest:    90 * time.Second,
		hasOldest: true,
	}
	logger := zerolog.Nop()
	r := NewReporter(st, &logger, &fakeRecorder{}, time.Minute)

	report, err := r.Report(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(11), report.Envelopes[envelope.StatusRetrying])
	assert.Equal(t, int64(3), report.UnresolvedDeadLetters)
	assert.Equal(t, int64(2), report.DeadLettersByQueue[envelope.QueuePaymentWebhook])
	assert.InDelta(t, 90, report.OldestPendingAgeSeconds, 0.001)
	assert.False(t, report.GeneratedAt.IsZero())
}

func TestReportPropagatesStoreError(t *testing.T) {
	st := &fakeStore{err: errors.New("database unreachable")}
	logger := zerolog.Nop()
	r := NewReporter(st, &logger, &fakeRecorder{}, time.Minute)

	_, err := r.Report(context.Background())
	assert.Error(t, err)
}

func TestCollectResetsAbsentStatuses(t *testing.T) {
	st := &fakeStore{
		byStatus: map[envelope.Status]int64{envelope.StatusRetrying: 5},
	}
	rec := &fakeRecorder{}
	logger := zerolog.Nop()
	r := NewReporter(st, &logger, rec, time.Minute)

	r.collect(context.Background())

	assert.Equal(t, int64(5), rec.statuses[string(envelope.StatusRetrying)])
	assert.Equal(t, int64(0), rec.statuses[string(envelope.StatusDeadLetter)], "absent statuses reset to zero")
	assert.Len(t, rec.statuses, 7)
}

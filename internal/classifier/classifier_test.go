package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bookline/task-service/internal/envelope"
)

func testClassifier() *Classifier {
	return New(Config{
		VocabularyVersion: "test-1",
		BaseRetryDelay:    300 * time.Second,
		MaxRetryDelay:     3600 * time.Second,
		MaxTaskAge:        168 * time.Hour,
		Permanent:         Vocabulary{"validation", "unauthorized", "not found"},
		Transient:         Vocabulary{"timeout", "timed out", "connection", "rate limit"},
	})
}

func failedEnvelope(attempts, maxRetries int, message string, age time.Duration, now time.Time) *envelope.TaskEnvelope {
	e := &envelope.TaskEnvelope{
		ID:         "task_test",
		QueueType:  envelope.QueueWebhook,
		Priority:   envelope.PriorityNormal,
		TaskName:   "deliver_webhook",
		Status:     envelope.StatusFailed,
		Attempts:   attempts,
		MaxRetries: maxRetries,
		CreatedAt:  now.Add(-age),
	}
	if message != "" {
		e.ErrorMessage = &message
	}
	return e
}

func TestClassifyRuleOrder(t *testing.T) {
	c := testClassifier()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		env        *envelope.TaskEnvelope
		wantAction Action
		wantReason string
	}{
		{
			"budget exhausted quarantines regardless of message",
			failedEnvelope(3, 3, "ConnectionError: timed out after 30s", time.Hour, now),
			ActionDeadLetter,
			envelope.ReasonMaxRetriesExceeded,
		},
		{
			"budget exhausted beats expiry",
			failedEnvelope(3, 3, "timeout", 400*time.Hour, now),
			ActionDeadLetter,
			envelope.ReasonMaxRetriesExceeded,
		},
		{
			"expired envelope is archived",
			failedEnvelope(1, 3, "timeout", 169*time.Hour, now),
			ActionArchive,
			envelope.ReasonExpired,
		},
		{
			"permanent keyword quarantines",
			failedEnvelope(0, 3, "ValidationError: missing required field 'email'", time.Hour, now),
			ActionDeadLetter,
			"validation",
		},
		{
			"permanent beats transient when both match",
			failedEnvelope(1, 3, "validation failed: upstream connection dropped", time.Hour, now),
			ActionDeadLetter,
			"validation",
		},
		{
			"transient keyword retries",
			failedEnvelope(1, 3, "ConnectionError: timed out after 30s", time.Hour, now),
			ActionRetry,
			"transient error",
		},
		{
			"unknown message falls back to retry",
			failedEnvelope(1, 3, "panic: something odd", time.Hour, now),
			ActionRetry,
			"unrecognized error",
		},
		{
			"empty message falls back to retry",
			failedEnvelope(1, 3, "", time.Hour, now),
			ActionRetry,
			"unrecognized error",
		},
		{
			"matching is case insensitive",
			failedEnvelope(1, 3, "REQUEST TIMEOUT", time.Hour, now),
			ActionRetry,
			"transient error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := c.Classify(tt.env, now)
			assert.Equal(t, tt.wantAction, d.Action)
			assert.Contains(t, d.Reason, tt.wantReason)
		})
	}
}

func TestClassifyBackoffDoubling(t *testing.T) {
	c := testClassifier()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		attempts int
		expected time.Duration
	}{
		{0, 300 * time.Second},
		{1, 600 * time.Second},
		{2, 1200 * time.Second},
		{3, 2400 * time.Second},
		{4, 3600 * time.Second},  // capped
		{10, 3600 * time.Second}, // still capped
	}

	for _, tt := range tests {
		d := c.Classify(failedEnvelope(tt.attempts, 20, "connection refused", time.Hour, now), now)
		assert.Equal(t, ActionRetry, d.Action)
		assert.Equal(t, tt.expected, d.Delay, "attempts=%d", tt.attempts)
	}
}

// Second delivery failure of a webhook task: two attempts consumed out of
// three, transient error, so the third try waits 300*2^2 seconds.
func TestClassifySecondTransientFailure(t *testing.T) {
	c := testClassifier()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	d := c.Classify(failedEnvelope(2, 3, "ConnectionError: timed out after 30s", time.Hour, now), now)

	assert.Equal(t, ActionRetry, d.Action)
	assert.Equal(t, 1200*time.Second, d.Delay)
}

func TestClassifyDefaultDelayHonorsEnvelope(t *testing.T) {
	c := testClassifier()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	e := failedEnvelope(1, 3, "some novel failure", time.Hour, now)
	e.RetryDelaySeconds = 45
	d := c.Classify(e, now)
	assert.Equal(t, ActionRetry, d.Action)
	assert.Equal(t, 45*time.Second, d.Delay)

	e.RetryDelaySeconds = 0
	d = c.Classify(e, now)
	assert.Equal(t, 300*time.Second, d.Delay)
}

func TestClassifyDeterministic(t *testing.T) {
	c := testClassifier()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := failedEnvelope(2, 5, "rate limit exceeded", 2*time.Hour, now)

	first := c.Classify(e, now)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Classify(e, now))
	}
}

func TestClassifyZeroMaxRetries(t *testing.T) {
	c := testClassifier()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// No retry budget at all: first failure goes straight to quarantine.
	d := c.Classify(failedEnvelope(0, 0, "timeout", time.Minute, now), now)
	assert.Equal(t, ActionDeadLetter, d.Action)
}

func TestVocabularyMatch(t *testing.T) {
	v := Vocabulary{"timeout", "connection"}

	kw, ok := v.Match("upstream CONNECTION reset")
	assert.True(t, ok)
	assert.Equal(t, "connection", kw)

	_, ok = v.Match("invalid signature")
	assert.False(t, ok)

	// First keyword in list order wins, not longest match.
	kw, _ = Vocabulary{"timed out", "timeout"}.Match("request timeout: timed out")
	assert.Equal(t, "timed out", kw)
}

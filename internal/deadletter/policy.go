package deadletter

import (
	"strings"

	"github.com/bookline/task-service/internal/envelope"
)

// Policy decides how a quarantined task is flagged for operators. The
// inputs are configuration, not code: financial queue classes, the manual
// review attempt threshold and the unsafe-to-replay keyword list are all
// tunable without a redeploy.
type Policy struct {
	FinancialQueueTypes  []envelope.QueueType
	ManualReviewAttempts int
	UnsafeTaskKeywords   []string
}

// ManualReviewRequired is true for financial queue classes, critical
// priority tasks and tasks that burned three or more attempts.
func (p Policy) ManualReviewRequired(e *envelope.TaskEnvelope) bool {
	for _, q := range p.FinancialQueueTypes {
		if e.QueueType == q {
			return true
		}
	}
	if e.Priority == envelope.PriorityCritical {
		return true
	}
	return e.Attempts >= p.ManualReviewAttempts
}

// CanBeRetried is true only when the envelope carries an idempotency key
// and the task name contains no unsafe-to-replay keyword. Without a key a
// replay could duplicate the side effect; money movement is never replayed
// automatically regardless.
func (p Policy) CanBeRetried(e *envelope.TaskEnvelope) bool {
	if e.IdempotencyKey == nil || *e.IdempotencyKey == "" {
		return false
	}
	lower := strings.ToLower(e.TaskName)
	for _, kw := range p.UnsafeTaskKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}

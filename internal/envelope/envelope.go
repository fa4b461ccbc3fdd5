// Package envelope defines the persistent task envelope and dead letter
// records shared by the store, scheduler and recovery layers.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusDispatching Status = "dispatching"
	StatusRetrying    Status = "retrying"
	StatusFailed      Status = "failed"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusDeadLetter  Status = "dead_letter"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusDeadLetter:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank orders priorities; higher values dispatch first.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityNormal:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	}
	return -1
}

func (p Priority) Valid() bool {
	return p.Rank() >= 0
}

// Elevated returns the priority a replayed task is re-enqueued at.
func (p Priority) Elevated() Priority {
	if p.Rank() >= PriorityHigh.Rank() {
		return p
	}
	return PriorityHigh
}

type QueueType string

const (
	QueueNotification   QueueType = "notification"
	QueueWebhook        QueueType = "webhook"
	QueuePayment        QueueType = "payment"
	QueuePaymentWebhook QueueType = "payment_webhook"
	QueueSync           QueueType = "sync"
	QueueExport         QueueType = "export"
)

func (q QueueType) Valid() bool {
	switch q {
	case QueueNotification, QueueWebhook, QueuePayment, QueuePaymentWebhook, QueueSync, QueueExport:
		return true
	}
	return false
}

// TaskEnvelope is the durable record of one logical task delivery. The
// broker message is disposable; this row is the source of truth.
type TaskEnvelope struct {
	ID                string          `db:"id"`
	CorrelationID     string          `db:"correlation_id"`
	IdempotencyKey    *string         `db:"idempotency_key"`
	QueueType         QueueType       `db:"queue_type"`
	Priority          Priority        `db:"priority"`
	TaskName          string          `db:"task_name"`
	TaskArgs          json.RawMessage `db:"task_args"`
	TaskKwargs        json.RawMessage `db:"task_kwargs"`
	Status            Status          `db:"status"`
	Attempts          int             `db:"attempts"`
	MaxRetries        int             `db:"max_retries"`
	RetryDelaySeconds int             `db:"retry_delay_seconds"`
	ScheduledFor      time.Time       `db:"scheduled_for"`
	ErrorMessage      *string         `db:"error_message"`
	ErrorTraceback    *string         `db:"error_traceback"`
	Source            string          `db:"source"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
	CompletedAt       *time.Time      `db:"completed_at"`
}

// Age is the time since the envelope was first persisted.
func (e *TaskEnvelope) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

const MaxRetriesCeiling = 10

// Validate checks the producer-controlled fields before persistence.
func (e *TaskEnvelope) Validate() error {
	if e.TaskName == "" {
		return fmt.Errorf("task_name is required")
	}
	if !e.QueueType.Valid() {
		return fmt.Errorf("unknown queue_type %q", e.QueueType)
	}
	if !e.Priority.Valid() {
		return fmt.Errorf("unknown priority %q", e.Priority)
	}
	if e.MaxRetries < 0 || e.MaxRetries > MaxRetriesCeiling {
		return fmt.Errorf("max_retries must be between 0 and %d", MaxRetriesCeiling)
	}
	if e.RetryDelaySeconds < 0 {
		return fmt.Errorf("retry_delay_seconds must not be negative")
	}
	if e.IdempotencyKey != nil && *e.IdempotencyKey == "" {
		return fmt.Errorf("idempotency_key must not be empty when set")
	}
	return nil
}

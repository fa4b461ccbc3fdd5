package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bookline/task-service/internal/envelope"
	"github.com/bookline/task-service/internal/store"
)

var (
	enqueueQueue          string
	enqueuePriority       string
	enqueueArgs           string
	enqueueKwargs         string
	enqueueCorrelationID  string
	enqueueIdempotencyKey string
	enqueueMaxRetries     int
	enqueueRetryDelay     int
	enqueueDelay          time.Duration
)

// enqueueCmd represents the enqueue command
var enqueueCmd = &cobra.Command{
	Use:   "enqueue <task-name>",
	Short: "Enqueue a task envelope",
	Long: `Persist a new task envelope in pending status. The scheduler picks it
up on its next tick and offers it to the broker.`,
	Example: `  task-service enqueue notifications.send_booking_email --queue notification
  task-service enqueue webhooks.deliver --queue webhook --kwargs '{"url":"https://example.com/hook"}'
  task-service enqueue exports.generate_report --queue export --priority low --delay 1h`,
	Args: cobra.ExactArgs(1),
	RunE: runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)

	enqueueCmd.Flags().StringVar(&enqueueQueue, "queue", "notification", "Queue type (notification, webhook, payment, payment_webhook, sync, export)")
	enqueueCmd.Flags().StringVar(&enqueuePriority, "priority", "normal", "Priority (low, normal, high, critical)")
	enqueueCmd.Flags().StringVar(&enqueueArgs, "args", "[]", "Positional task arguments as a JSON array")
	enqueueCmd.Flags().StringVar(&enqueueKwargs, "kwargs", "{}", "Keyword task arguments as a JSON object")
	enqueueCmd.Flags().StringVar(&enqueueCorrelationID, "correlation-id", "", "Correlation ID (generated when empty)")
	enqueueCmd.Flags().StringVar(&enqueueIdempotencyKey, "idempotency-key", "", "Idempotency key; required for a task to be replayable")
	enqueueCmd.Flags().IntVar(&enqueueMaxRetries, "max-retries", 3, "Retry budget")
	enqueueCmd.Flags().IntVar(&enqueueRetryDelay, "retry-delay", 0, "Producer retry delay hint in seconds (0 uses classifier backoff)")
	enqueueCmd.Flags().DurationVar(&enqueueDelay, "delay", 0, "Delay before the first dispatch")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st := store.New(store.Pool())

	if !json.Valid([]byte(enqueueArgs)) {
		return fmt.Errorf("--args is not valid JSON")
	}
	if !json.Valid([]byte(enqueueKwargs)) {
		return fmt.Errorf("--kwargs is not valid JSON")
	}

	e := &envelope.TaskEnvelope{
		TaskName:          args[0],
		QueueType:         envelope.QueueType(enqueueQueue),
		Priority:          envelope.Priority(enqueuePriority),
		TaskArgs:          json.RawMessage(enqueueArgs),
		TaskKwargs:        json.RawMessage(enqueueKwargs),
		CorrelationID:     enqueueCorrelationID,
		MaxRetries:        enqueueMaxRetries,
		RetryDelaySeconds: enqueueRetryDelay,
		Source:            "cli",
	}
	if enqueueIdempotencyKey != "" {
		e.IdempotencyKey = &enqueueIdempotencyKey
	}
	if enqueueDelay > 0 {
		e.ScheduledFor = time.Now().Add(enqueueDelay)
	}

	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}

	id, err := st.EnqueueEnvelope(ctx, e)
	if err != nil {
		return fmt.Errorf("failed to enqueue envelope: %w", err)
	}

	fmt.Printf("Enqueued envelope %s (queue %s, priority %s)\n", id, e.QueueType, e.Priority)
	return nil
}

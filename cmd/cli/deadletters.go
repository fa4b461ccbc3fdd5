package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bookline/task-service/internal/deadletter"
	"github.com/bookline/task-service/internal/envelope"
	"github.com/bookline/task-service/internal/store"
)

var (
	dlListStatus       string
	dlListQueue        string
	dlListManualReview bool
	dlListRetryable    bool
	dlListLimit        int
	dlOperator         string
	dlNotes            string
	dlRetryPriority    string
	dlRetryMaxRetries  int
)

// deadlettersCmd represents the deadletters command group
var deadlettersCmd = &cobra.Command{
	Use:   "deadletters",
	Short: "Inspect and resolve quarantined tasks",
	Long: `Operate on the dead letter archive: list quarantined records, replay
them as fresh envelopes, or discard them. Retry and discard are audited
under the operator name given with --operator.`,
}

var dlListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead letter records",
	Example: `  task-service deadletters list
  task-service deadletters list --status quarantined --queue payment
  task-service deadletters list --manual-review`,
	RunE: runDeadLetterList,
}

var dlRetryCmd = &cobra.Command{
	Use:   "retry <record-id>",
	Short: "Replay a quarantined task as a fresh envelope",
	Example: `  task-service deadletters retry dlr_8a3k... --operator ana
  task-service deadletters retry dlr_8a3k... --priority critical --max-retries 5`,
	Args: cobra.ExactArgs(1),
	RunE: runDeadLetterRetry,
}

var dlDiscardCmd = &cobra.Command{
	Use:     "discard <record-id>",
	Short:   "Close a dead letter record without replaying it",
	Example: `  task-service deadletters discard dlr_8a3k... --operator ana --notes "stale webhook target"`,
	Args:    cobra.ExactArgs(1),
	RunE:    runDeadLetterDiscard,
}

func init() {
	rootCmd.AddCommand(deadlettersCmd)
	deadlettersCmd.AddCommand(dlListCmd)
	deadlettersCmd.AddCommand(dlRetryCmd)
	deadlettersCmd.AddCommand(dlDiscardCmd)

	dlListCmd.Flags().StringVar(&dlListStatus, "status", "", "Filter by status (quarantined, resolved)")
	dlListCmd.Flags().StringVar(&dlListQueue, "queue", "", "Filter by queue type")
	dlListCmd.Flags().BoolVar(&dlListManualReview, "manual-review", false, "Only records flagged for manual review")
	dlListCmd.Flags().BoolVar(&dlListRetryable, "retryable", false, "Only records that can be replayed")
	dlListCmd.Flags().IntVar(&dlListLimit, "limit", 50, "Maximum records to list")

	dlRetryCmd.Flags().StringVar(&dlOperator, "operator", defaultOperator(), "Operator name recorded in the audit trail")
	dlRetryCmd.Flags().StringVar(&dlRetryPriority, "priority", "", "Priority for the replacement envelope (defaults to elevated original)")
	dlRetryCmd.Flags().IntVar(&dlRetryMaxRetries, "max-retries", -1, "Retry budget for the replacement envelope")
	dlRetryCmd.Flags().StringVar(&dlNotes, "notes", "", "Resolution notes")

	dlDiscardCmd.Flags().StringVar(&dlOperator, "operator", defaultOperator(), "Operator name recorded in the audit trail")
	dlDiscardCmd.Flags().StringVar(&dlNotes, "notes", "", "Resolution notes")
}

func defaultOperator() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown-operator"
}

func runDeadLetterList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st := store.New(store.Pool())

	records, total, err := st.ListDeadLetters(ctx, store.DeadLetterFilter{
		Status:           envelope.DLQStatus(dlListStatus),
		QueueType:        envelope.QueueType(dlListQueue),
		ManualReviewOnly: dlListManualReview,
		RetryableOnly:    dlListRetryable,
		Limit:            dlListLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list dead letters: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tTASK\tQUEUE\tSTATUS\tATTEMPTS\tREVIEW\tRETRYABLE\tREASON\tCREATED")
	fmt.Fprintln(w, "--\t----\t-----\t------\t--------\t------\t---------\t------\t-------")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%v\t%v\t%s\t%s\n",
			r.ID, r.TaskName, r.QueueType, r.DLQStatus, r.TotalAttempts,
			r.ManualReviewRequired, r.CanBeRetried, r.FailureReason,
			r.CreatedAt.Format(time.RFC3339))
	}
	w.Flush()

	fmt.Printf("\n%d of %d records\n", len(records), total)
	return nil
}

func runDeadLetterRetry(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st := store.New(store.Pool())
	gateway := buildGateway(st)

	ov := deadletter.ReplayOverrides{}
	if dlRetryPriority != "" {
		p := envelope.Priority(dlRetryPriority)
		if !p.Valid() {
			return fmt.Errorf("invalid priority %q", dlRetryPriority)
		}
		ov.Priority = p
	}
	if dlRetryMaxRetries >= 0 {
		ov.MaxRetries = &dlRetryMaxRetries
	}
	if dlNotes != "" {
		ov.ResolveNotes = &dlNotes
	}

	replacement, err := gateway.Retry(ctx, args[0], dlOperator, ov)
	if err != nil {
		return fmt.Errorf("retry rejected: %w", err)
	}

	logger.Info().
		Str("record_id", args[0]).
		Str("envelope_id", replacement.ID).
		Str("priority", string(replacement.Priority)).
		Msg("Replacement envelope enqueued")
	fmt.Printf("Enqueued replacement envelope %s (priority %s)\n", replacement.ID, replacement.Priority)
	return nil
}

func runDeadLetterDiscard(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st := store.New(store.Pool())
	gateway := buildGateway(st)

	var notes *string
	if dlNotes != "" {
		notes = &dlNotes
	}

	if err := gateway.Discard(ctx, args[0], dlOperator, notes); err != nil {
		return fmt.Errorf("discard rejected: %w", err)
	}

	fmt.Printf("Record %s discarded\n", args[0])
	return nil
}

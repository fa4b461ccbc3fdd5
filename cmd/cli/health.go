package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bookline/task-service/internal/envelope"
	"github.com/bookline/task-service/internal/health"
	"github.com/bookline/task-service/internal/metrics"
	"github.com/bookline/task-service/internal/store"
)

// healthCmd represents the health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Print a delivery subsystem snapshot",
	Long: `Print envelope counts by status, unresolved dead letter counts and the
age of the oldest pending task. The same numbers the /internal/stats
endpoint serves.`,
	RunE: runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st := store.New(store.Pool())

	reporter := health.NewReporter(st, logger, metrics.NewRecorder(), cfg.Health.CollectInterval)
	report, err := reporter.Report(ctx)
	if err != nil {
		return fmt.Errorf("failed to collect snapshot: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCOUNT")
	fmt.Fprintln(w, "------\t-----")
	for _, status := range []envelope.Status{
		envelope.StatusPending, envelope.StatusDispatching, envelope.StatusRetrying,
		envelope.StatusFailed, envelope.StatusCompleted, envelope.StatusCancelled,
		envelope.StatusDeadLetter,
	} {
		fmt.Fprintf(w, "%s\t%d\n", status, report.Envelopes[status])
	}
	w.Flush()

	fmt.Printf("\nUnresolved dead letters: %d\n", report.UnresolvedDeadLetters)
	if len(report.DeadLettersByQueue) > 0 {
		queues := make([]string, 0, len(report.DeadLettersByQueue))
		for q := range report.DeadLettersByQueue {
			queues = append(queues, string(q))
		}
		sort.Strings(queues)
		for _, q := range queues {
			fmt.Printf("  %s: %d\n", q, report.DeadLettersByQueue[envelope.QueueType(q)])
		}
	}
	fmt.Printf("Oldest pending task: %.0fs\n", report.OldestPendingAgeSeconds)
	return nil
}

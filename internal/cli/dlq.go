package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tcynic/resonant-sub007/internal/analysis/dlq"
	"github.com/tcynic/resonant-sub007/internal/infra/storage/postgres"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect the dead letter queue",
	Run:   runDLQ,
}

func init() {
	rootCmd.AddCommand(dlqCmd)
}

func runDLQ(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Database.URL == "" {
		slog.Error("dlq requires a configured database")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	handler := dlq.New(cfg.DeadLetter, postgres.NewDeadLetterRepo(db), postgres.NewJobRepo(db), nil, slog.Default())

	stats, err := handler.Stats(ctx)
	if err != nil {
		slog.Error("Failed to read dead letter stats", "error", err)
		os.Exit(1)
	}

	fmt.Printf("total dead-lettered jobs: %d\n", stats.Total)
	if stats.Oldest != nil {
		fmt.Printf("oldest: %s, newest: %s\n",
			stats.Oldest.Format("2006-01-02 15:04"), stats.Newest.Format("2006-01-02 15:04"))
	}

	if len(stats.ByClassification) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
		_, _ = fmt.Fprintln(w, "CLASSIFICATION\tJOBS")
		for class, n := range stats.ByClassification {
			_, _ = fmt.Fprintf(w, "%s\t%d\n", class, n)
		}
		_ = w.Flush()
	}

	notes, err := handler.Notifications(ctx)
	if err != nil {
		slog.Error("Failed to compute failure patterns", "error", err)
		os.Exit(1)
	}
	if len(notes) > 0 {
		fmt.Println("\nrecurring failure patterns:")
		for _, n := range notes {
			fmt.Printf("  %s\n", n.Message)
		}
	}
}

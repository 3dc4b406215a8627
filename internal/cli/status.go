package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tcynic/resonant-sub007/internal/analysis/breaker"
	"github.com/tcynic/resonant-sub007/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue depth and circuit breaker state",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Database.URL == "" {
		slog.Error("status requires a configured database")
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

	counts, err := postgres.NewJobRepo(db).CountByStatus(ctx)
	if err != nil {
		slog.Error("Failed to read queue depth", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "STATUS\tJOBS")
	for status, n := range counts {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", status, n)
	}
	_ = w.Flush()

	brkCfg := cfg.Breaker
	if brkCfg.Service == "" {
		brkCfg = breaker.DefaultConfig
	}
	state, err := postgres.NewBreakerRepo(db).Get(ctx, brkCfg.Service, brkCfg.FailureThreshold, brkCfg.Timeout)
	if err != nil {
		slog.Error("Failed to read breaker state", "error", err)
		os.Exit(1)
	}

	fmt.Printf("\nbreaker %s: %s (failures %d", state.Service, state.Status, state.FailureCount)
	if state.NextRetryAt != nil {
		fmt.Printf(", next retry %s", state.NextRetryAt.Format("15:04:05"))
	}
	fmt.Println(")")
}

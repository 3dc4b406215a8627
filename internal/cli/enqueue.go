package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tcynic/resonant-sub007/internal/analysis/queue"
	"github.com/tcynic/resonant-sub007/internal/analysis/retry"
	"github.com/tcynic/resonant-sub007/internal/core/domain"
	"github.com/tcynic/resonant-sub007/internal/infra/storage"
	"github.com/tcynic/resonant-sub007/internal/infra/storage/postgres"
)

var (
	enqueueOwner    string
	enqueuePriority string
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <entry-id>",
	Short: "Manually queue an entry for analysis",
	Args:  cobra.ExactArgs(1),
	Run:   runEnqueue,
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueOwner, "owner", "", "entry owner (looked up from the entry when omitted)")
	enqueueCmd.Flags().StringVar(&enqueuePriority, "priority", "high", "job priority: normal, high, urgent")
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Database.URL == "" {
		slog.Error("enqueue requires a configured database")
		os.Exit(1)
	}
	entryID := args[0]

	priority := domain.Priority(enqueuePriority)
	switch priority {
	case domain.PriorityNormal, domain.PriorityHigh, domain.PriorityUrgent:
	default:
		slog.Error("Invalid priority", "priority", enqueuePriority)
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

	owner := enqueueOwner
	if owner == "" {
		err := db.GetContext(ctx, &owner, `SELECT owner_id FROM journal_entries WHERE id = $1`, entryID)
		if err != nil {
			slog.Error("Failed to resolve entry owner; pass --owner", "entry_id", entryID, "error", err)
			os.Exit(1)
		}
	}

	jobs := postgres.NewJobRepo(db)
	mgr := queue.New(cfg.Queue, jobs, retry.New(cfg.Retry), nil, slog.Default())

	job, err := mgr.Enqueue(ctx, entryID, owner, priority)
	if errors.Is(err, storage.ErrDuplicateActiveJob) {
		slog.Warn("Entry already has an active job", "entry_id", entryID)
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to enqueue", "error", err)
		os.Exit(1)
	}

	fmt.Printf("queued job %s for entry %s at %s priority\n", job.ID, entryID, job.Priority)
}

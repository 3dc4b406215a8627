// Package control wires the repositories, the breaker, the queue, and the
// workers into one runnable service and manages its lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/robfig/cron/v3"

	"github.com/tcynic/resonant-sub007/internal/analysis/breaker"
	"github.com/tcynic/resonant-sub007/internal/analysis/compare"
	"github.com/tcynic/resonant-sub007/internal/analysis/dlq"
	"github.com/tcynic/resonant-sub007/internal/analysis/fallback"
	"github.com/tcynic/resonant-sub007/internal/analysis/metrics"
	"github.com/tcynic/resonant-sub007/internal/analysis/queue"
	"github.com/tcynic/resonant-sub007/internal/analysis/retry"
	"github.com/tcynic/resonant-sub007/internal/core/config"
	"github.com/tcynic/resonant-sub007/internal/core/domain"
	"github.com/tcynic/resonant-sub007/internal/infra/inference"
	redisclient "github.com/tcynic/resonant-sub007/internal/infra/redis"
	"github.com/tcynic/resonant-sub007/internal/infra/storage"
	"github.com/tcynic/resonant-sub007/internal/infra/storage/memory"
	"github.com/tcynic/resonant-sub007/internal/infra/storage/postgres"
)

// EntrySource fetches journal entry content for analysis. The journaling
// app's entry store implements it; tests use a stub.
type EntrySource interface {
	GetEntry(ctx context.Context, entryID string) (*inference.Entry, error)
}

// Service is the analysis reliability service: queue workers, the breaker,
// background sweeps, and the ops HTTP surface.
type Service struct {
	cfg     *config.AppConfig
	entries EntrySource

	jobs    storage.JobRepository
	results storage.ResultRepository

	queue    *queue.Manager
	breaker  *breaker.Breaker
	dead     *dlq.Handler
	fallback *fallback.Analyzer
	compare  *compare.Engine
	analyzer inference.Analyzer

	db          *postgres.DB
	redisClient *redisclient.Client
	events      dlq.Publisher

	server *Server
	cron   *cron.Cron
	pool   *workerPool
	log    *slog.Logger
}

// New creates a fully wired service. Postgres and Redis are optional: with
// no database URL everything runs on the in-memory store, and with no Redis
// URL events are logged instead of streamed.
func New(cfg *config.AppConfig, entries EntrySource, analyzer inference.Analyzer) (*Service, error) {
	log := slog.Default()

	var (
		jobs      storage.JobRepository
		breakerSt storage.BreakerRepository
		results   storage.ResultRepository
		deadmail  storage.DeadLetterRepository
		db        *postgres.DB
	)
	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		jobs = postgres.NewJobRepo(db)
		breakerSt = postgres.NewBreakerRepo(db)
		results = postgres.NewResultRepo(db)
		deadmail = postgres.NewDeadLetterRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		jobs = memory.NewJobRepo(store)
		breakerSt = memory.NewBreakerRepo(store)
		results = memory.NewResultRepo(store)
		deadmail = memory.NewDeadLetterRepo(store)
		log.Info("Using Memory storage")
	}

	var (
		redisClient *redisclient.Client
		events      dlq.Publisher
	)
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, event stream disabled", "error", err)
		} else {
			events = redisClient
		}
	}
	if events == nil {
		events = logPublisher{log: log}
	}

	if entries == nil {
		if db != nil {
			entries = postgres.NewEntrySource(db)
		} else {
			entries = noEntrySource{}
		}
	}

	if analyzer == nil {
		analyzer = inference.NewAnthropicAnalyzer(inference.Config{
			APIKey:         cfg.Inference.APIKey,
			Model:          cfg.Inference.Model,
			MaxTokens:      cfg.Inference.MaxTokens,
			RequestTimeout: cfg.Inference.RequestTimeout,
			CostPerCall:    cfg.Inference.CostPerCall,
		})
	}

	brk := breaker.New(cfg.Breaker, breakerSt, log)
	deadHandler := dlq.New(cfg.DeadLetter, deadmail, jobs, events, log)
	queueMgr := queue.New(cfg.Queue, jobs, retry.New(cfg.Retry), deadHandler, log)

	s := &Service{
		cfg:         cfg,
		entries:     entries,
		jobs:        jobs,
		results:     results,
		queue:       queueMgr,
		breaker:     brk,
		dead:        deadHandler,
		fallback:    fallback.New(cfg.Fallback),
		compare:     compare.New(cfg.Compare),
		analyzer:    analyzer,
		db:          db,
		redisClient: redisClient,
		events:      events,
		cron:        cron.New(),
		log:         log.With("component", "control"),
	}
	s.wireBreakerEvents()
	s.pool = newWorkerPool(s, cfg.Worker.Concurrency, cfg.Worker.PollInterval)
	s.server = NewServer(s, cfg.Server.Port)
	return s, nil
}

// wireBreakerEvents publishes breaker transitions to the event stream and
// keeps the state gauge current.
func (s *Service) wireBreakerEvents() {
	s.breaker.OnOpen(func(state *domain.BreakerState) {
		metrics.BreakerState.WithLabelValues(state.Service).Set(2)
		s.publishBreakerEvent(domain.EventBreakerOpened, state)
	})
	s.breaker.OnClose(func(state *domain.BreakerState) {
		metrics.BreakerState.WithLabelValues(state.Service).Set(0)
		s.publishBreakerEvent(domain.EventBreakerClosed, state)
	})
}

func (s *Service) publishBreakerEvent(kind domain.EventType, state *domain.BreakerState) {
	event := &domain.Event{
		ID:      newEventID(),
		Type:    kind,
		Service: state.Service,
		Fields: map[string]string{
			"failure_count": fmt.Sprintf("%d", state.FailureCount),
			"timeout":       state.Timeout.String(),
		},
		CreatedAt: state.UpdatedAt,
	}
	if err := s.events.Publish(context.Background(), event); err != nil {
		s.log.Error("Failed to publish breaker event", "type", kind, "error", err)
	}
}

// Enqueue exposes job admission to the ops surface and embedding callers.
func (s *Service) Enqueue(ctx context.Context, entryID, ownerID string, priority domain.Priority) (*domain.AnalysisJob, error) {
	return s.queue.Enqueue(ctx, entryID, ownerID, priority)
}

// Status exposes job status to the ops surface.
func (s *Service) Status(ctx context.Context, entryID string) (*domain.JobStatusReport, error) {
	return s.queue.Status(ctx, entryID)
}

// Start launches the workers, the schedules, and the ops server.
func (s *Service) Start(ctx context.Context) error {
	go func() {
		if err := s.server.Start(); err != nil {
			s.log.Error("Ops server failed", "error", err)
		}
	}()

	if _, err := s.cron.AddFunc(s.cfg.Worker.SweepSchedule, func() {
		if err := s.queue.AutoRequeue(ctx); err != nil {
			s.log.Error("Auto-requeue sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.Worker.DepthSchedule, func() {
		s.refreshDepth(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule depth refresh: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.Worker.UpgradeSchedule, func() {
		if err := s.ScanForUpgrades(ctx); err != nil {
			s.log.Error("Upgrade scan failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule upgrade scan: %w", err)
	}
	s.cron.Start()

	s.pool.Start(ctx)
	s.log.Info("Service started",
		"workers", s.cfg.Worker.Concurrency,
		"port", s.cfg.Server.Port)
	return nil
}

func (s *Service) refreshDepth(ctx context.Context) {
	if err := s.queue.RefreshDepthMetrics(ctx); err != nil {
		s.log.Error("Depth metric refresh failed", "error", err)
		return
	}
	if s.redisClient != nil {
		counts, err := s.jobs.CountByStatus(ctx)
		if err == nil {
			err = s.redisClient.SetQueueDepth(ctx, counts)
		}
		if err != nil {
			s.log.Error("Depth snapshot publish failed", "error", err)
		}
	}
}

// Stop drains the workers and shuts everything down.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping service...")

	cronCtx := s.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
	}

	s.pool.Stop()

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("Failed to close database", "error", err)
		}
	}
	return s.server.Stop(ctx)
}

func newEventID() string { return uuid.NewString() }

// noEntrySource is installed when no database backs the entry store; jobs
// fail as unprocessable instead of crashing the worker.
type noEntrySource struct{}

func (noEntrySource) GetEntry(ctx context.Context, entryID string) (*inference.Entry, error) {
	return nil, fmt.Errorf("no entry source configured")
}

// logPublisher is the event sink of last resort.
type logPublisher struct {
	log *slog.Logger
}

func (p logPublisher) Publish(ctx context.Context, event *domain.Event) error {
	p.log.Info("Event",
		"type", event.Type,
		"entry_id", event.EntryID,
		"service", event.Service,
		"reason", event.Reason)
	return nil
}

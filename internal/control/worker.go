package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tcynic/resonant-sub007/internal/analysis/fallback"
	"github.com/tcynic/resonant-sub007/internal/analysis/metrics"
	"github.com/tcynic/resonant-sub007/internal/core/domain"
	"github.com/tcynic/resonant-sub007/internal/infra/inference"
)

// workerPool runs the processing loops.
type workerPool struct {
	svc          *Service
	concurrency  int
	pollInterval time.Duration
	wg           sync.WaitGroup
	cancel       context.CancelFunc
}

func newWorkerPool(svc *Service, concurrency int, pollInterval time.Duration) *workerPool {
	if concurrency <= 0 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &workerPool{
		svc:          svc,
		concurrency:  concurrency,
		pollInterval: pollInterval,
	}
}

// Start launches the worker goroutines.
func (p *workerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
}

// Stop cancels the workers and waits for in-flight jobs to settle.
func (p *workerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *workerPool) run(ctx context.Context, id int) {
	log := p.svc.log.With("worker", id)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				worked, err := p.svc.ProcessNext(ctx)
				if err != nil {
					log.Error("Job processing failed", "error", err)
					break
				}
				if !worked {
					break // Queue drained, back to polling
				}
			}
		}
	}
}

// ProcessNext claims and processes one job. Returns false when nothing was
// due.
func (s *Service) ProcessNext(ctx context.Context) (bool, error) {
	job, err := s.queue.DequeueNext(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	return true, s.processJob(ctx, job)
}

// processJob runs one analysis attempt: fetch the entry, consult the
// breaker, call the real service or degrade to the fallback path, then
// settle the job and the breaker synchronously.
func (s *Service) processJob(ctx context.Context, job *domain.AnalysisJob) error {
	entry, err := s.entries.GetEntry(ctx, job.EntryID)
	if err != nil {
		return s.queue.Fail(ctx, job.EntryID, fmt.Errorf("validation failed: entry unavailable: %w", err))
	}

	allowed, err := s.breaker.CanExecute(ctx)
	if err != nil {
		return fmt.Errorf("breaker check: %w", err)
	}
	if !allowed {
		return s.serveFallback(ctx, job, entry, domain.TriggerCircuitBreakerOpen)
	}

	result, callErr := s.analyzer.Analyze(ctx, *entry)
	if callErr != nil {
		if err := s.breaker.RecordFailure(ctx, callErr); err != nil {
			s.log.Error("Failed to record breaker failure", "error", err)
		}
		return s.failOrDegrade(ctx, job, entry, callErr)
	}

	if err := s.breaker.RecordSuccess(ctx); err != nil {
		s.log.Error("Failed to record breaker success", "error", err)
	}
	if err := s.results.SaveAI(ctx, result); err != nil {
		return s.queue.Fail(ctx, job.EntryID, fmt.Errorf("failed to persist result: %w", err))
	}
	if err := s.queue.Complete(ctx, job.EntryID, result.ID); err != nil {
		return err
	}
	metrics.JobsCompleted.WithLabelValues("ai").Inc()
	return nil
}

// failOrDegrade records the failure through the retry machinery. When the
// job lands terminally failed, the user still gets an answer: the fallback
// result is generated and the job completes on the degraded path instead of
// leaving the entry unanalyzed.
func (s *Service) failOrDegrade(ctx context.Context, job *domain.AnalysisJob, entry *inference.Entry, callErr error) error {
	if err := s.queue.Fail(ctx, job.EntryID, callErr); err != nil {
		return err
	}

	current, err := s.jobs.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if current.Status != domain.JobStatusDeadLettered {
		return nil // Re-queued for another attempt
	}

	res := s.fallback.Generate(job.EntryID, entry.Content, fallback.Mood(entry.Mood), domain.TriggerRetryExhausted)
	if err := s.results.SaveFallback(ctx, res); err != nil {
		return fmt.Errorf("failed to persist fallback result: %w", err)
	}
	metrics.FallbacksServed.WithLabelValues(string(res.Trigger)).Inc()
	s.publishFallbackEvent(ctx, job, res)
	return nil
}

// serveFallback completes the job on the degraded path without touching the
// external service.
func (s *Service) serveFallback(ctx context.Context, job *domain.AnalysisJob, entry *inference.Entry, trigger domain.FallbackTrigger) error {
	res := s.fallback.Generate(job.EntryID, entry.Content, fallback.Mood(entry.Mood), trigger)
	if err := s.results.SaveFallback(ctx, res); err != nil {
		return s.queue.Fail(ctx, job.EntryID, fmt.Errorf("failed to persist fallback result: %w", err))
	}
	if err := s.queue.Complete(ctx, job.EntryID, res.ID); err != nil {
		return err
	}
	metrics.JobsCompleted.WithLabelValues("fallback").Inc()
	metrics.FallbacksServed.WithLabelValues(string(trigger)).Inc()
	s.publishFallbackEvent(ctx, job, res)
	return nil
}

func (s *Service) publishFallbackEvent(ctx context.Context, job *domain.AnalysisJob, res *domain.FallbackResult) {
	event := &domain.Event{
		ID:      newEventID(),
		Type:    domain.EventFallbackServed,
		EntryID: job.EntryID,
		OwnerID: job.OwnerID,
		Reason:  string(res.Trigger),
		Fields: map[string]string{
			"result_id":     res.ID,
			"sentiment":     string(res.Sentiment),
			"quality_score": fmt.Sprintf("%.2f", res.QualityScore),
		},
		CreatedAt: res.CreatedAt,
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Error("Failed to publish fallback event", "error", err)
	}
}

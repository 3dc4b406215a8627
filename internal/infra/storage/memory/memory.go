package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tcynic/resonant-sub007/internal/core/domain"
	"github.com/tcynic/resonant-sub007/internal/infra/storage"
)

// MemoryStorage backs all repositories with in-process maps. Used by tests
// and local development; semantics mirror the Postgres implementation,
// including the compare-and-set transitions.
type MemoryStorage struct {
	mu       sync.RWMutex
	jobs     map[string]*domain.AnalysisJob
	breakers map[string]*domain.BreakerState
	ai       map[string]*domain.AIResult
	fallback map[string]*domain.FallbackResult
	dead     []*domain.DeadLetterEntry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		jobs:     make(map[string]*domain.AnalysisJob),
		breakers: make(map[string]*domain.BreakerState),
		ai:       make(map[string]*domain.AIResult),
		fallback: make(map[string]*domain.FallbackResult),
	}
}

// -----------------------------------------------------------------------------
// Job Repository
// -----------------------------------------------------------------------------

type JobRepo struct {
	store *MemoryStorage
}

func NewJobRepo(store *MemoryStorage) *JobRepo {
	return &JobRepo{store: store}
}

func (r *JobRepo) Create(ctx context.Context, job *domain.AnalysisJob) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, j := range r.store.jobs {
		if j.EntryID == job.EntryID && j.Status.Active() {
			return storage.ErrDuplicateActiveJob
		}
	}
	cp := *job
	r.store.jobs[job.ID] = &cp
	return nil
}

func (r *JobRepo) GetByEntry(ctx context.Context, entryID string) (*domain.AnalysisJob, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var latest *domain.AnalysisJob
	for _, j := range r.store.jobs {
		if j.EntryID != entryID {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, storage.ErrJobNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *JobRepo) GetByID(ctx context.Context, id string) (*domain.AnalysisJob, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	j, ok := r.store.jobs[id]
	if !ok {
		return nil, storage.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *JobRepo) NextQueued(ctx context.Context, now time.Time) (*domain.AnalysisJob, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var next *domain.AnalysisJob
	for _, j := range r.store.jobs {
		if j.Status != domain.JobStatusQueued || j.NotBefore.After(now) {
			continue
		}
		if next == nil || dequeuesBefore(j, next) {
			next = j
		}
	}
	if next == nil {
		return nil, nil
	}

	next.Status = domain.JobStatusProcessing
	started := now
	next.ProcessingStartedAt = &started
	next.UpdatedAt = now
	cp := *next
	return &cp, nil
}

// dequeuesBefore reports whether a dequeues ahead of b: higher priority
// first, then earlier QueuedAt.
func dequeuesBefore(a, b *domain.AnalysisJob) bool {
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() > b.Priority.Rank()
	}
	return a.QueuedAt.Before(b.QueuedAt)
}

func (r *JobRepo) Transition(ctx context.Context, jobID string, from, to domain.JobStatus, update storage.JobUpdate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	j, ok := r.store.jobs[jobID]
	if !ok {
		return storage.ErrJobNotFound
	}
	if j.Status != from {
		return storage.ErrConflict
	}

	j.Status = to
	if update.Priority != nil {
		j.Priority = *update.Priority
	}
	if update.Attempts != nil {
		j.Attempts = *update.Attempts
	}
	if update.NotBefore != nil {
		j.NotBefore = *update.NotBefore
	}
	if update.ProcessingStartedAt != nil {
		j.ProcessingStartedAt = update.ProcessingStartedAt
	}
	if update.LastError != nil {
		j.LastError = *update.LastError
	}
	if update.LastErrorClass != nil {
		j.LastErrorClass = *update.LastErrorClass
	}
	if update.ResultRef != nil {
		j.ResultRef = *update.ResultRef
	}
	j.UpdatedAt = time.Now()
	return nil
}

func (r *JobRepo) CountAhead(ctx context.Context, job *domain.AnalysisJob) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	count := 0
	for _, j := range r.store.jobs {
		if j.ID == job.ID || j.Status != domain.JobStatusQueued {
			continue
		}
		if j.Priority.Rank() > job.Priority.Rank() {
			count++
			continue
		}
		if j.Priority.Rank() == job.Priority.Rank() && !j.QueuedAt.After(job.QueuedAt) {
			count++
		}
	}
	return count, nil
}

func (r *JobRepo) ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]*domain.AnalysisJob, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.AnalysisJob
	for _, j := range r.store.jobs {
		if j.Status == domain.JobStatusProcessing &&
			j.ProcessingStartedAt != nil && j.ProcessingStartedAt.Before(cutoff) {
			cp := *j
			out = append(out, &cp)
		}
	}
	sortByQueuedAt(out)
	return out, nil
}

func (r *JobRepo) ListRetryableFailed(ctx context.Context, now time.Time) ([]*domain.AnalysisJob, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.AnalysisJob
	for _, j := range r.store.jobs {
		if j.Status == domain.JobStatusFailed && !j.NotBefore.After(now) {
			cp := *j
			out = append(out, &cp)
		}
	}
	sortByQueuedAt(out)
	return out, nil
}

func (r *JobRepo) ListExpired(ctx context.Context, cutoff time.Time) ([]*domain.AnalysisJob, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.AnalysisJob
	for _, j := range r.store.jobs {
		if !j.Status.Terminal() && j.CreatedAt.Before(cutoff) {
			cp := *j
			out = append(out, &cp)
		}
	}
	sortByQueuedAt(out)
	return out, nil
}

func (r *JobRepo) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make(map[domain.JobStatus]int)
	for _, j := range r.store.jobs {
		out[j.Status]++
	}
	return out, nil
}

func sortByQueuedAt(jobs []*domain.AnalysisJob) {
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].QueuedAt.Before(jobs[k].QueuedAt)
	})
}

// -----------------------------------------------------------------------------
// Breaker Repository
// -----------------------------------------------------------------------------

type BreakerRepo struct {
	store *MemoryStorage
}

func NewBreakerRepo(store *MemoryStorage) *BreakerRepo {
	return &BreakerRepo{store: store}
}

func (r *BreakerRepo) Get(ctx context.Context, service string, threshold int, timeout time.Duration) (*domain.BreakerState, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.breakers[service]
	if !ok {
		s = &domain.BreakerState{
			Service:          service,
			Status:           domain.BreakerClosed,
			Timeout:          timeout,
			FailureThreshold: threshold,
			UpdatedAt:        time.Now(),
		}
		r.store.breakers[service] = s
	}
	cp := *s
	return &cp, nil
}

func (r *BreakerRepo) CompareAndSwap(ctx context.Context, state *domain.BreakerState) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cur, ok := r.store.breakers[state.Service]
	if !ok || cur.Version != state.Version {
		return storage.ErrConflict
	}
	cp := *state
	cp.Version = state.Version + 1
	r.store.breakers[state.Service] = &cp
	state.Version = cp.Version
	return nil
}

// -----------------------------------------------------------------------------
// Result Repository
// -----------------------------------------------------------------------------

type ResultRepo struct {
	store *MemoryStorage
}

func NewResultRepo(store *MemoryStorage) *ResultRepo {
	return &ResultRepo{store: store}
}

func (r *ResultRepo) SaveAI(ctx context.Context, res *domain.AIResult) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *res
	r.store.ai[res.ID] = &cp
	return nil
}

func (r *ResultRepo) SaveFallback(ctx context.Context, res *domain.FallbackResult) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *res
	r.store.fallback[res.ID] = &cp
	return nil
}

func (r *ResultRepo) GetFallback(ctx context.Context, id string) (*domain.FallbackResult, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	res, ok := r.store.fallback[id]
	if !ok {
		return nil, storage.ErrResultNotFound
	}
	cp := *res
	return &cp, nil
}

func (r *ResultRepo) RecentAIQuality(ctx context.Context, since time.Time, limit int) ([]float64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var results []*domain.AIResult
	for _, res := range r.store.ai {
		if res.CreatedAt.After(since) {
			results = append(results, res)
		}
	}
	sort.Slice(results, func(i, k int) bool {
		return results[i].CreatedAt.After(results[k].CreatedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	out := make([]float64, 0, len(results))
	for _, res := range results {
		out = append(out, res.Confidence)
	}
	return out, nil
}

func (r *ResultRepo) HasAISince(ctx context.Context, entryID string, since time.Time) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, res := range r.store.ai {
		if res.EntryID == entryID && res.CreatedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r *ResultRepo) ListFallbacksSince(ctx context.Context, since time.Time, limit int) ([]*domain.FallbackResult, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.FallbackResult
	for _, res := range r.store.fallback {
		if res.CreatedAt.After(since) {
			cp := *res
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Dead Letter Repository
// -----------------------------------------------------------------------------

type DeadLetterRepo struct {
	store *MemoryStorage
}

func NewDeadLetterRepo(store *MemoryStorage) *DeadLetterRepo {
	return &DeadLetterRepo{store: store}
}

func (r *DeadLetterRepo) Add(ctx context.Context, entry *domain.DeadLetterEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *entry
	r.store.dead = append(r.store.dead, &cp)
	return nil
}

func (r *DeadLetterRepo) Stats(ctx context.Context) (*domain.DeadLetterStats, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	stats := &domain.DeadLetterStats{
		ByClassification: make(map[string]int),
		ByReason:         make(map[string]int),
	}
	for _, e := range r.store.dead {
		stats.Total++
		stats.ByClassification[e.Classification]++
		stats.ByReason[e.Reason]++
		t := e.FailedAt
		if stats.Oldest == nil || t.Before(*stats.Oldest) {
			cp := t
			stats.Oldest = &cp
		}
		if stats.Newest == nil || t.After(*stats.Newest) {
			cp := t
			stats.Newest = &cp
		}
	}
	return stats, nil
}

func (r *DeadLetterRepo) ListRecent(ctx context.Context, since time.Time) ([]*domain.DeadLetterEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.DeadLetterEntry
	for _, e := range r.store.dead {
		if e.FailedAt.After(since) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tcynic/resonant-sub007/internal/analysis/retry"
	"github.com/tcynic/resonant-sub007/internal/core/domain"
	"github.com/tcynic/resonant-sub007/internal/infra/storage"
	"github.com/tcynic/resonant-sub007/internal/infra/storage/memory"
)

type fakeDeadLetterer struct {
	jobs    storage.JobRepository
	moved   []*domain.AnalysisJob
	reasons []string
}

func (f *fakeDeadLetterer) Move(ctx context.Context, job *domain.AnalysisJob, reason string) error {
	f.moved = append(f.moved, job)
	f.reasons = append(f.reasons, reason)
	return f.jobs.Transition(ctx, job.ID, domain.JobStatusFailed, domain.JobStatusDeadLettered, storage.JobUpdate{})
}

func newTestManager(t *testing.T) (*Manager, storage.JobRepository, *fakeDeadLetterer) {
	t.Helper()
	store := memory.NewMemoryStorage()
	jobs := memory.NewJobRepo(store)
	dead := &fakeDeadLetterer{jobs: jobs}
	m := New(Config{}, jobs, retry.New(retry.Config{}), dead, nil)
	return m, jobs, dead
}

func TestEnqueueRejectsDuplicateActiveJob(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Enqueue(ctx, "entry-1", "owner-1", domain.PriorityNormal); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	_, err := m.Enqueue(ctx, "entry-1", "owner-1", domain.PriorityNormal)
	if !errors.Is(err, storage.ErrDuplicateActiveJob) {
		t.Fatalf("second enqueue err = %v, want ErrDuplicateActiveJob", err)
	}

	// Still rejected while processing.
	if _, err := m.DequeueNext(ctx); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	_, err = m.Enqueue(ctx, "entry-1", "owner-1", domain.PriorityNormal)
	if !errors.Is(err, storage.ErrDuplicateActiveJob) {
		t.Fatalf("enqueue while processing err = %v, want ErrDuplicateActiveJob", err)
	}

	// Accepted again after the prior job reaches a terminal state.
	if err := m.Complete(ctx, "entry-1", "result-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := m.Enqueue(ctx, "entry-1", "owner-1", domain.PriorityNormal); err != nil {
		t.Fatalf("enqueue after completion: %v", err)
	}
}

func TestDequeueOrdersByPriorityThenFIFO(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	m.SetClock(func() time.Time { return clock })

	mustEnqueue := func(entry string, p domain.Priority) {
		t.Helper()
		if _, err := m.Enqueue(ctx, entry, "owner", p); err != nil {
			t.Fatalf("enqueue %s: %v", entry, err)
		}
		clock = clock.Add(time.Second)
	}

	mustEnqueue("normal-old", domain.PriorityNormal)
	mustEnqueue("normal-new", domain.PriorityNormal)
	mustEnqueue("urgent", domain.PriorityUrgent)
	mustEnqueue("high", domain.PriorityHigh)

	var order []string
	for {
		job, err := m.DequeueNext(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if job == nil {
			break
		}
		order = append(order, job.EntryID)
	}

	want := []string{"urgent", "high", "normal-old", "normal-new"}
	if len(order) != len(want) {
		t.Fatalf("dequeued %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("dequeued %v, want %v", order, want)
		}
	}
}

func TestDequeueRespectsNotBefore(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	clock := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return clock })

	if _, err := m.Enqueue(ctx, "entry-1", "owner", domain.PriorityNormal); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := m.DequeueNext(ctx); err != nil {
		t.Fatalf("dequeue: %v", err)
	}

	// Fail with a transient error: re-queued with backoff in the future.
	if err := m.Fail(ctx, "entry-1", errors.New("request timed out")); err != nil {
		t.Fatalf("fail: %v", err)
	}

	job, err := m.DequeueNext(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job != nil {
		t.Fatalf("dequeued %s before backoff elapsed", job.EntryID)
	}

	clock = clock.Add(2 * time.Second)
	job, err = m.DequeueNext(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job == nil || job.EntryID != "entry-1" {
		t.Fatalf("job = %+v, want entry-1 after backoff", job)
	}
	if job.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", job.Attempts)
	}
}

func TestFailTerminalGoesToDeadLetter(t *testing.T) {
	m, jobs, dead := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Enqueue(ctx, "entry-1", "owner", domain.PriorityNormal); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := m.DequeueNext(ctx); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := m.Fail(ctx, "entry-1", errors.New("validation failed: empty content")); err != nil {
		t.Fatalf("fail: %v", err)
	}

	if len(dead.moved) != 1 {
		t.Fatalf("dead lettered %d jobs, want 1", len(dead.moved))
	}
	job, err := jobs.GetByEntry(ctx, "entry-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != domain.JobStatusDeadLettered {
		t.Errorf("status = %v, want dead_lettered", job.Status)
	}
	if job.LastErrorClass != "validation" {
		t.Errorf("LastErrorClass = %q, want validation", job.LastErrorClass)
	}
}

func TestFailExhaustedRetriesGoesToDeadLetter(t *testing.T) {
	m, _, dead := newTestManager(t)
	ctx := context.Background()

	clock := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return clock })

	if _, err := m.Enqueue(ctx, "entry-1", "owner", domain.PriorityNormal); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Default budget is 3 retries; the 4th failure is terminal.
	for i := 0; i < 4; i++ {
		clock = clock.Add(time.Minute)
		job, err := m.DequeueNext(ctx)
		if err != nil {
			t.Fatalf("dequeue %d: %v", i, err)
		}
		if job == nil {
			t.Fatalf("dequeue %d: nothing due", i)
		}
		if err := m.Fail(ctx, "entry-1", errors.New("503 Service Unavailable")); err != nil {
			t.Fatalf("fail %d: %v", i, err)
		}
	}

	if len(dead.moved) != 1 {
		t.Fatalf("dead lettered %d jobs, want 1 after retry exhaustion", len(dead.moved))
	}
	if dead.moved[0].Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", dead.moved[0].Attempts)
	}
}

func TestStatusReportsPositionAndETA(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	clock := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return clock })

	for _, entry := range []string{"a", "b", "c"} {
		if _, err := m.Enqueue(ctx, entry, "owner", domain.PriorityNormal); err != nil {
			t.Fatalf("enqueue %s: %v", entry, err)
		}
		clock = clock.Add(time.Second)
	}

	report, err := m.Status(ctx, "c")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if report.Status != domain.JobStatusQueued {
		t.Errorf("status = %v, want queued", report.Status)
	}
	if report.QueuePosition != 2 {
		t.Errorf("QueuePosition = %d, want 2", report.QueuePosition)
	}
	if report.ETA <= 0 {
		t.Errorf("ETA = %v, want positive", report.ETA)
	}
}

func TestAutoRequeueRecoversOrphans(t *testing.T) {
	m, jobs, _ := newTestManager(t)
	ctx := context.Background()

	clock := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return clock })

	if _, err := m.Enqueue(ctx, "entry-1", "owner", domain.PriorityNormal); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := m.DequeueNext(ctx); err != nil {
		t.Fatalf("dequeue: %v", err)
	}

	// Worker dies. Sweep before staleness: nothing happens.
	clock = clock.Add(time.Minute)
	if err := m.AutoRequeue(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	job, _ := jobs.GetByEntry(ctx, "entry-1")
	if job.Status != domain.JobStatusProcessing {
		t.Fatalf("status = %v, want still processing", job.Status)
	}

	// Past the staleness threshold the sweep re-queues it.
	clock = clock.Add(10 * time.Minute)
	if err := m.AutoRequeue(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	job, _ = jobs.GetByEntry(ctx, "entry-1")
	if job.Status != domain.JobStatusQueued {
		t.Errorf("status = %v, want queued after sweep", job.Status)
	}
}

func TestAutoRequeueExpiresAncientJobs(t *testing.T) {
	m, jobs, dead := newTestManager(t)
	ctx := context.Background()

	clock := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return clock })

	if _, err := m.Enqueue(ctx, "entry-1", "owner", domain.PriorityNormal); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	clock = clock.Add(25 * time.Hour)
	if err := m.AutoRequeue(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if len(dead.moved) != 1 {
		t.Fatalf("dead lettered %d jobs, want 1 expired", len(dead.moved))
	}
	job, _ := jobs.GetByEntry(ctx, "entry-1")
	if job.Status != domain.JobStatusDeadLettered {
		t.Errorf("status = %v, want dead_lettered", job.Status)
	}
}

func TestETAMovingAverage(t *testing.T) {
	e := newETAEstimator(3)
	if e.Average() != defaultProcessingEstimate {
		t.Errorf("empty average = %v, want default", e.Average())
	}

	e.Record(2 * time.Second)
	e.Record(4 * time.Second)
	if e.Average() != 3*time.Second {
		t.Errorf("average = %v, want 3s", e.Average())
	}

	// Window slides: the oldest sample falls out.
	e.Record(6 * time.Second)
	e.Record(8 * time.Second)
	if e.Average() != 6*time.Second {
		t.Errorf("average = %v, want 6s", e.Average())
	}

	if e.Estimate(2) != 18*time.Second {
		t.Errorf("Estimate(2) = %v, want 18s", e.Estimate(2))
	}
}

package dlq

import (
	"context"
	"testing"
	"time"

	"github.com/tcynic/resonant-sub007/internal/core/domain"
	"github.com/tcynic/resonant-sub007/internal/infra/storage"
	"github.com/tcynic/resonant-sub007/internal/infra/storage/memory"
)

type fakePublisher struct {
	events []*domain.Event
}

func (p *fakePublisher) Publish(ctx context.Context, event *domain.Event) error {
	p.events = append(p.events, event)
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *memory.JobRepo, *fakePublisher) {
	t.Helper()
	store := memory.NewMemoryStorage()
	jobs := memory.NewJobRepo(store)
	pub := &fakePublisher{}
	h := New(Config{}, memory.NewDeadLetterRepo(store), jobs, pub, nil)
	return h, jobs, pub
}

func failedJob(t *testing.T, jobs *memory.JobRepo, id, entryID, ownerID, class string) *domain.AnalysisJob {
	t.Helper()
	job := &domain.AnalysisJob{
		ID:             id,
		EntryID:        entryID,
		OwnerID:        ownerID,
		Status:         domain.JobStatusQueued,
		Priority:       domain.PriorityNormal,
		Attempts:       4,
		LastError:      "503 Service Unavailable",
		LastErrorClass: class,
		QueuedAt:       time.Now(),
		CreatedAt:      time.Now(),
	}
	if err := jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
	for _, to := range []domain.JobStatus{domain.JobStatusProcessing, domain.JobStatusFailed} {
		if err := jobs.Transition(context.Background(), id, job.Status, to, storage.JobUpdate{}); err != nil {
			t.Fatalf("transition %s to %s: %v", id, to, err)
		}
		job.Status = to
	}
	return job
}

func TestMoveFinalizesJobAndEmitsEvent(t *testing.T) {
	h, jobs, pub := newTestHandler(t)
	ctx := context.Background()

	job := failedJob(t, jobs, "job-1", "entry-1", "owner-1", "service_error")
	if err := h.Move(ctx, job, "retry budget exhausted after 3 attempts"); err != nil {
		t.Fatalf("move: %v", err)
	}

	got, err := jobs.GetByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.JobStatusDeadLettered {
		t.Errorf("status = %v, want dead_lettered", got.Status)
	}

	stats, err := h.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("Total = %d, want 1", stats.Total)
	}
	if stats.ByClassification["service_error"] != 1 {
		t.Errorf("ByClassification = %v, want service_error:1", stats.ByClassification)
	}

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	event := pub.events[0]
	if event.Type != domain.EventJobDeadLettered {
		t.Errorf("event type = %v, want %v", event.Type, domain.EventJobDeadLettered)
	}
	if event.EntryID != "entry-1" || event.OwnerID != "owner-1" {
		t.Errorf("event = %+v, want entry-1/owner-1", event)
	}
	if event.Fields["classification"] != "service_error" {
		t.Errorf("classification field = %q, want service_error", event.Fields["classification"])
	}
}

func TestMoveRejectsNonFailedJob(t *testing.T) {
	h, jobs, _ := newTestHandler(t)
	ctx := context.Background()

	job := &domain.AnalysisJob{
		ID:        "job-1",
		EntryID:   "entry-1",
		OwnerID:   "owner-1",
		Status:    domain.JobStatusQueued,
		Priority:  domain.PriorityNormal,
		QueuedAt:  time.Now(),
		CreatedAt: time.Now(),
	}
	if err := jobs.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.Move(ctx, job, "premature"); err == nil {
		t.Fatal("move of a queued job succeeded, want conflict")
	}
}

func TestNotificationsRequireThreshold(t *testing.T) {
	h, jobs, _ := newTestHandler(t)
	ctx := context.Background()

	// Three same-class failures for owner-1, two for owner-2.
	for i, spec := range []struct{ id, entry, owner, class string }{
		{"job-1", "entry-1", "owner-1", "service_error"},
		{"job-2", "entry-2", "owner-1", "service_error"},
		{"job-3", "entry-3", "owner-1", "service_error"},
		{"job-4", "entry-4", "owner-2", "timeout"},
		{"job-5", "entry-5", "owner-2", "timeout"},
	} {
		job := failedJob(t, jobs, spec.id, spec.entry, spec.owner, spec.class)
		if err := h.Move(ctx, job, "retry budget exhausted"); err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
	}

	notes, err := h.Notifications(ctx)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("got %d notifications, want 1: %+v", len(notes), notes)
	}
	n := notes[0]
	if n.OwnerID != "owner-1" || n.Classification != "service_error" || n.Count != 3 {
		t.Errorf("notification = %+v, want owner-1/service_error/3", n)
	}
	if n.Message == "" {
		t.Error("notification message is empty")
	}
}

func TestNotificationsIgnoreOldFailures(t *testing.T) {
	h, jobs, _ := newTestHandler(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return base }

	for _, spec := range []struct{ id, entry string }{
		{"job-1", "entry-1"},
		{"job-2", "entry-2"},
		{"job-3", "entry-3"},
	} {
		job := failedJob(t, jobs, spec.id, spec.entry, "owner-1", "network")
		if err := h.Move(ctx, job, "retry budget exhausted"); err != nil {
			t.Fatalf("move %s: %v", spec.id, err)
		}
	}

	// Within the window the pattern is reported.
	notes, err := h.Notifications(ctx)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notes))
	}

	// Two days later the failures have aged out.
	h.now = func() time.Time { return base.Add(48 * time.Hour) }
	notes, err = h.Notifications(ctx)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("got %d notifications after window, want 0", len(notes))
	}
}

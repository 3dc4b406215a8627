package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tcynic/resonant-sub007/internal/core/domain"
	"github.com/tcynic/resonant-sub007/internal/infra/storage/memory"
)

var errUpstream = errors.New("503 Service Unavailable")

func newTestBreaker(t *testing.T) (*Breaker, *fakeClock) {
	t.Helper()
	store := memory.NewMemoryStorage()
	clock := &fakeClock{t: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	b := New(Config{
		Service:          "inference",
		FailureThreshold: 3,
		Timeout:          30 * time.Second,
		MaxTimeout:       5 * time.Minute,
		SuccessesToClose: 2,
	}, memory.NewBreakerRepo(store), nil)
	b.SetClock(clock.Now)
	return b, clock
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func mustState(t *testing.T, b *Breaker) *domain.BreakerState {
	t.Helper()
	s, err := b.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	return s
}

func TestBreakerStartsClosed(t *testing.T) {
	b, _ := newTestBreaker(t)
	ok, err := b.CanExecute(context.Background())
	if err != nil || !ok {
		t.Fatalf("CanExecute = %v, %v; want true, nil", ok, err)
	}
	if s := mustState(t, b); s.Status != domain.BreakerClosed {
		t.Errorf("status = %v, want closed", s.Status)
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.RecordFailure(ctx, errUpstream); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	s := mustState(t, b)
	if s.Status != domain.BreakerOpen {
		t.Fatalf("status = %v, want open after threshold", s.Status)
	}
	if s.NextRetryAt == nil || !s.NextRetryAt.After(s.UpdatedAt.Add(-time.Second)) {
		t.Error("open state must carry a future NextRetryAt")
	}

	ok, err := b.CanExecute(ctx)
	if err != nil {
		t.Fatalf("CanExecute: %v", err)
	}
	if ok {
		t.Error("CanExecute = true while open and cooling down")
	}
}

func TestBreakerClientErrorsNeverTrip(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := b.RecordFailure(ctx, errors.New("validation failed: empty content")); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
		if err := b.RecordFailure(ctx, errors.New("401 Unauthorized")); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	s := mustState(t, b)
	if s.Status != domain.BreakerClosed || s.FailureCount != 0 {
		t.Errorf("state = %v/%d, want closed/0", s.Status, s.FailureCount)
	}
}

func TestBreakerHalfOpenSingleTrial(t *testing.T) {
	b, clock := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.RecordFailure(ctx, errUpstream)
	}
	clock.Advance(31 * time.Second)

	ok, err := b.CanExecute(ctx)
	if err != nil || !ok {
		t.Fatalf("trial admission: got %v, %v", ok, err)
	}
	if s := mustState(t, b); s.Status != domain.BreakerHalfOpen {
		t.Fatalf("status = %v, want half_open before the trial call completes", s.Status)
	}
}

func TestBreakerHalfOpenBoundsConcurrentTrials(t *testing.T) {
	b, clock := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.RecordFailure(ctx, errUpstream)
	}
	clock.Advance(31 * time.Second)

	if ok, _ := b.CanExecute(ctx); !ok {
		t.Fatal("first trial not admitted")
	}
	// The trial slot is taken: other workers must not hammer the service.
	for i := 0; i < 4; i++ {
		if ok, _ := b.CanExecute(ctx); ok {
			t.Fatalf("caller %d admitted while a trial is in flight", i)
		}
	}
	if s := mustState(t, b); s.TrialCount != 1 {
		t.Fatalf("TrialCount = %d, want 1", s.TrialCount)
	}

	// A resolved trial frees the slot for the next one.
	if err := b.RecordSuccess(ctx); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	if ok, _ := b.CanExecute(ctx); !ok {
		t.Fatal("second trial not admitted after the first resolved")
	}
	if ok, _ := b.CanExecute(ctx); ok {
		t.Fatal("third caller admitted while the second trial is in flight")
	}

	if err := b.RecordSuccess(ctx); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	s := mustState(t, b)
	if s.Status != domain.BreakerClosed {
		t.Fatalf("status = %v, want closed", s.Status)
	}
	if s.TrialCount != 0 {
		t.Errorf("TrialCount = %d, want 0 after close", s.TrialCount)
	}
}

func TestBreakerHalfOpenClientErrorFreesTrialSlot(t *testing.T) {
	b, clock := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.RecordFailure(ctx, errUpstream)
	}
	clock.Advance(31 * time.Second)
	if ok, _ := b.CanExecute(ctx); !ok {
		t.Fatal("trial not admitted")
	}

	// A validation error does not reopen the breaker, but the trial it
	// consumed must not stay claimed forever.
	if err := b.RecordFailure(ctx, errors.New("validation failed: empty content")); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	s := mustState(t, b)
	if s.Status != domain.BreakerHalfOpen {
		t.Fatalf("status = %v, want half_open after a client error", s.Status)
	}
	if s.TrialCount != 0 {
		t.Fatalf("TrialCount = %d, want 0 after the trial resolved", s.TrialCount)
	}
	if ok, _ := b.CanExecute(ctx); !ok {
		t.Error("next trial not admitted after the slot was freed")
	}
}

func TestBreakerClosesAfterConsecutiveSuccesses(t *testing.T) {
	b, clock := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.RecordFailure(ctx, errUpstream)
	}
	clock.Advance(31 * time.Second)
	if ok, _ := b.CanExecute(ctx); !ok {
		t.Fatal("trial not admitted")
	}

	if err := b.RecordSuccess(ctx); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	if s := mustState(t, b); s.Status != domain.BreakerHalfOpen {
		t.Fatalf("status = %v, want half_open after one success", s.Status)
	}

	if err := b.RecordSuccess(ctx); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	s := mustState(t, b)
	if s.Status != domain.BreakerClosed {
		t.Fatalf("status = %v, want closed after two successes", s.Status)
	}
	if s.FailureCount != 0 {
		t.Errorf("FailureCount = %d, want 0 after close", s.FailureCount)
	}
	if s.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want reset to base", s.Timeout)
	}
}

func TestBreakerHalfOpenFailureReopensLonger(t *testing.T) {
	b, clock := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.RecordFailure(ctx, errUpstream)
	}
	clock.Advance(31 * time.Second)
	if ok, _ := b.CanExecute(ctx); !ok {
		t.Fatal("trial not admitted")
	}

	if err := b.RecordFailure(ctx, errUpstream); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}

	s := mustState(t, b)
	if s.Status != domain.BreakerOpen {
		t.Fatalf("status = %v, want open after failed trial", s.Status)
	}
	if s.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v, want doubled to 60s", s.Timeout)
	}
	if ok, _ := b.CanExecute(ctx); ok {
		t.Error("CanExecute = true immediately after reopen")
	}

	// Cooldown doubles again on the next failed trial, capped at MaxTimeout.
	clock.Advance(61 * time.Second)
	if ok, _ := b.CanExecute(ctx); !ok {
		t.Fatal("second trial not admitted")
	}
	_ = b.RecordFailure(ctx, errUpstream)
	if s := mustState(t, b); s.Timeout != 120*time.Second {
		t.Errorf("Timeout = %v, want 120s", s.Timeout)
	}
}

func TestBreakerTimeoutCap(t *testing.T) {
	b, clock := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.RecordFailure(ctx, errUpstream)
	}
	for i := 0; i < 10; i++ {
		s := mustState(t, b)
		clock.Advance(s.Timeout + time.Second)
		if ok, _ := b.CanExecute(ctx); !ok {
			t.Fatalf("trial %d not admitted", i)
		}
		_ = b.RecordFailure(ctx, errUpstream)
	}

	if s := mustState(t, b); s.Timeout != 5*time.Minute {
		t.Errorf("Timeout = %v, want capped at 5m", s.Timeout)
	}
}

func TestBreakerOpenCallback(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx := context.Background()

	var opened int
	b.OnOpen(func(state *domain.BreakerState) { opened++ })

	for i := 0; i < 3; i++ {
		_ = b.RecordFailure(ctx, errUpstream)
	}
	if opened != 1 {
		t.Errorf("onOpen fired %d times, want 1", opened)
	}
}

// Package breaker implements a circuit breaker whose state lives in the
// shared durable store, so every worker and every restart sees the same
// record. All transitions are optimistic compare-and-swap; losing a race
// means another worker already applied the same discovery.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tcynic/resonant-sub007/internal/analysis/classify"
	"github.com/tcynic/resonant-sub007/internal/core/domain"
	"github.com/tcynic/resonant-sub007/internal/infra/storage"
)

// Config defines breaker thresholds for one external service.
type Config struct {
	Service          string        `yaml:"service"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxTimeout       time.Duration `yaml:"max_timeout"`
	SuccessesToClose int           `yaml:"successes_to_close"`
}

// DefaultConfig provides sensible defaults for the inference service.
var DefaultConfig = Config{
	Service:          "inference",
	FailureThreshold: 5,
	Timeout:          30 * time.Second,
	MaxTimeout:       10 * time.Minute,
	SuccessesToClose: 2,
}

// casAttempts bounds the CAS retry loop on contended transitions.
const casAttempts = 3

// halfOpenMaxTrials caps half_open trials in flight; further callers are
// rejected until an admitted trial resolves.
const halfOpenMaxTrials = 1

// Breaker gates calls to one external service.
type Breaker struct {
	cfg     Config
	repo    storage.BreakerRepository
	log     *slog.Logger
	now     func() time.Time
	onOpen  func(state *domain.BreakerState)
	onClose func(state *domain.BreakerState)
}

// New creates a breaker over the given state repository.
func New(cfg Config, repo storage.BreakerRepository, log *slog.Logger) *Breaker {
	if cfg.Service == "" {
		cfg.Service = DefaultConfig.Service
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	if cfg.MaxTimeout == 0 {
		cfg.MaxTimeout = DefaultConfig.MaxTimeout
	}
	if cfg.SuccessesToClose == 0 {
		cfg.SuccessesToClose = DefaultConfig.SuccessesToClose
	}
	if log == nil {
		log = slog.Default()
	}
	return &Breaker{
		cfg:  cfg,
		repo: repo,
		log:  log.With("component", "breaker", "service", cfg.Service),
		now:  time.Now,
	}
}

// OnOpen registers a callback fired when the breaker opens.
func (b *Breaker) OnOpen(fn func(state *domain.BreakerState)) { b.onOpen = fn }

// OnClose registers a callback fired when the breaker closes.
func (b *Breaker) OnClose(fn func(state *domain.BreakerState)) { b.onClose = fn }

// SetClock overrides the time source. Test hook.
func (b *Breaker) SetClock(now func() time.Time) { b.now = now }

// Service returns the gated service name.
func (b *Breaker) Service() string { return b.cfg.Service }

// State returns the current stored state.
func (b *Breaker) State(ctx context.Context) (*domain.BreakerState, error) {
	return b.repo.Get(ctx, b.cfg.Service, b.cfg.FailureThreshold, b.cfg.Timeout)
}

// CanExecute reports whether a call to the service may be attempted now.
//
// Closed admits everything. Open admits nothing until NextRetryAt; the call
// that finds NextRetryAt passed atomically moves the record to half_open
// before returning true, so exactly one caller wins the trial slot. In
// half_open, admission is limited to the trial budget still outstanding.
func (b *Breaker) CanExecute(ctx context.Context) (bool, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		state, err := b.State(ctx)
		if err != nil {
			return false, err
		}

		switch state.Status {
		case domain.BreakerClosed:
			return true, nil

		case domain.BreakerOpen:
			if state.NextRetryAt == nil || b.now().Before(*state.NextRetryAt) {
				return false, nil
			}
			// Cooldown elapsed. Claim the trial by moving to half_open;
			// losing the CAS means someone else claimed it first.
			state.Status = domain.BreakerHalfOpen
			state.SuccessCount = 0
			state.TrialCount = 1
			if err := b.swap(ctx, state); err != nil {
				if errors.Is(err, storage.ErrConflict) {
					continue
				}
				return false, err
			}
			b.log.Info("Breaker half-open, admitting trial call")
			return true, nil

		case domain.BreakerHalfOpen:
			// A crashed trial must not wedge the breaker: once the record
			// has sat untouched for a full cooldown, the slot is reclaimable.
			stale := b.now().Sub(state.UpdatedAt) >= state.Timeout
			if state.TrialCount >= halfOpenMaxTrials && !stale {
				return false, nil
			}
			if stale {
				state.TrialCount = 0
			}
			// Claim a trial slot; the CAS keeps concurrent workers from
			// exceeding the bound.
			state.TrialCount++
			if err := b.swap(ctx, state); err != nil {
				if errors.Is(err, storage.ErrConflict) {
					continue
				}
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// RecordSuccess records a successful call against the breaker.
func (b *Breaker) RecordSuccess(ctx context.Context) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		state, err := b.State(ctx)
		if err != nil {
			return err
		}

		now := b.now()
		state.LastSuccessAt = &now
		closed := false

		switch state.Status {
		case domain.BreakerHalfOpen:
			state.SuccessCount++
			if state.TrialCount > 0 {
				state.TrialCount--
			}
			if state.SuccessCount >= b.cfg.SuccessesToClose {
				state.Status = domain.BreakerClosed
				state.FailureCount = 0
				state.SuccessCount = 0
				state.TrialCount = 0
				state.NextRetryAt = nil
				state.Timeout = b.cfg.Timeout
				closed = true
			}
		case domain.BreakerClosed:
			state.FailureCount = 0
		case domain.BreakerOpen:
			// Late success from a call admitted before the trip; the
			// cooldown stands.
		}

		err = b.swap(ctx, state)
		if err == nil {
			if closed {
				b.log.Info("Breaker closed after successful trials")
				if b.onClose != nil {
					b.onClose(state)
				}
			}
			return nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("record success: %w", storage.ErrConflict)
}

// RecordFailure records a failed call. Only systemic failures count toward
// the threshold; client-caused errors leave the counters untouched.
func (b *Breaker) RecordFailure(ctx context.Context, callErr error) error {
	trips := callErr != nil && classify.ShouldTrip(callErr.Error())

	for attempt := 0; attempt < casAttempts; attempt++ {
		state, err := b.State(ctx)
		if err != nil {
			return err
		}

		if !trips {
			// Client-caused errors never move the counters, but a trial
			// admitted in half_open must still release its slot.
			if state.Status != domain.BreakerHalfOpen || state.TrialCount == 0 {
				return nil
			}
			state.TrialCount--
			err = b.swap(ctx, state)
			if err == nil {
				return nil
			}
			if !errors.Is(err, storage.ErrConflict) {
				return err
			}
			continue
		}

		now := b.now()
		state.LastFailureAt = &now
		opened := false

		switch state.Status {
		case domain.BreakerClosed:
			state.FailureCount++
			if state.FailureCount >= state.FailureThreshold {
				b.open(state, state.Timeout)
				opened = true
			}
		case domain.BreakerHalfOpen:
			// Trial failed: reopen with a longer cooldown, exponential on
			// the breaker itself.
			next := state.Timeout * 2
			if next > b.cfg.MaxTimeout {
				next = b.cfg.MaxTimeout
			}
			b.open(state, next)
			opened = true
		case domain.BreakerOpen:
			state.FailureCount++
		}

		err = b.swap(ctx, state)
		if err == nil {
			if opened {
				b.log.Warn("Breaker opened",
					"failure_count", state.FailureCount,
					"next_retry_at", state.NextRetryAt,
					"timeout", state.Timeout)
				if b.onOpen != nil {
					b.onOpen(state)
				}
			}
			return nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("record failure: %w", storage.ErrConflict)
}

func (b *Breaker) open(state *domain.BreakerState, timeout time.Duration) {
	next := b.now().Add(timeout)
	state.Status = domain.BreakerOpen
	state.Timeout = timeout
	state.NextRetryAt = &next
	state.SuccessCount = 0
	state.TrialCount = 0
}

func (b *Breaker) swap(ctx context.Context, state *domain.BreakerState) error {
	state.UpdatedAt = b.now()
	return b.repo.CompareAndSwap(ctx, state)
}

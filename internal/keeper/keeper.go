// Package keeper drives the round lifecycle: once genesis is started and
// locked it calls ExecuteRound as the owner on a fixed period.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// Slack is added to the market interval so each tick lands inside the
// buffer window after the lock timestamp.
const Slack = 5 * time.Second

// Market is the subset of *market.Market the keeper drives.
type Market interface {
	Config() domain.MarketConfig
	GenesisStatus(ctx context.Context) (domain.GenesisStatus, error)
	ExecuteRound(ctx context.Context, caller domain.Address) error
}

// Status is a snapshot of the keeper.
type Status struct {
	Running         bool      `json:"running"`
	IntervalSeconds uint64    `json:"interval_seconds"`
	Period          string    `json:"period"`
	Executed        uint64    `json:"executed"`
	Failed          uint64    `json:"failed"`
	LastRun         time.Time `json:"last_run"`
	LastError       string    `json:"last_error,omitempty"`
}

// Option configures a Keeper.
type Option func(*Keeper)

// WithLocker makes each tick take key on l first, so only one replica
// executes a round. A tick that cannot get the lock is skipped.
func WithLocker(l domain.LockManager, key string) Option {
	return func(k *Keeper) {
		k.locker = l
		k.lockKey = key
	}
}

// WithPeriod overrides the tick period derived from the market interval.
func WithPeriod(d time.Duration) Option {
	return func(k *Keeper) { k.period = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(k *Keeper) { k.logger = l }
}

// Keeper executes rounds on a timer.
type Keeper struct {
	market  Market
	owner   domain.Address
	period  time.Duration
	locker  domain.LockManager
	lockKey string
	logger  *slog.Logger

	mu       sync.Mutex
	base     context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	executed uint64
	failed   uint64
	lastRun  time.Time
	lastErr  string
}

// New creates a paused keeper acting as owner.
func New(m Market, owner domain.Address, opts ...Option) *Keeper {
	k := &Keeper{
		market:  m,
		owner:   owner,
		lockKey: "keeper:execute",
		base:    context.Background(),
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.period <= 0 {
		k.period = time.Duration(m.Config().IntervalSeconds)*time.Second + Slack
	}
	if k.logger == nil {
		k.logger = slog.Default()
	}
	k.logger = k.logger.With(slog.String("component", "keeper"))
	return k
}

// Run binds the keeper to ctx, starting it right away when autostart is
// set, and blocks until ctx is done. Loops started later through Start also
// stop with ctx.
func (k *Keeper) Run(ctx context.Context, autostart bool) error {
	k.mu.Lock()
	k.base = ctx
	k.mu.Unlock()

	if autostart {
		if err := k.Start(ctx); err != nil {
			k.logger.Warn("keeper autostart skipped", slog.String("error", err.Error()))
		}
	}
	<-ctx.Done()
	if err := k.Pause(); err != nil && !errors.Is(err, domain.ErrKeeperNotRunning) {
		return err
	}
	return ctx.Err()
}

// Start begins ticking. It fails with ErrKeeperRunning when already running
// and with ErrGenesisNotStarted or ErrGenesisNotLocked before genesis.
func (k *Keeper) Start(ctx context.Context) error {
	gs, err := k.market.GenesisStatus(ctx)
	if err != nil {
		return fmt.Errorf("keeper: start: %w", err)
	}
	switch {
	case !gs.Started:
		return fmt.Errorf("keeper: start: %w", domain.ErrGenesisNotStarted)
	case !gs.Locked:
		return fmt.Errorf("keeper: start: %w", domain.ErrGenesisNotLocked)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cancel != nil {
		return fmt.Errorf("keeper: start: %w", domain.ErrKeeperRunning)
	}
	loopCtx, cancel := context.WithCancel(k.base)
	done := make(chan struct{})
	k.cancel = cancel
	k.done = done
	go k.loop(loopCtx, done)

	k.logger.Info("keeper started", slog.Duration("period", k.period))
	return nil
}

// Pause stops ticking and waits for an in-flight tick to finish.
func (k *Keeper) Pause() error {
	k.mu.Lock()
	if k.cancel == nil {
		k.mu.Unlock()
		return fmt.Errorf("keeper: pause: %w", domain.ErrKeeperNotRunning)
	}
	done := k.stopLocked()
	k.mu.Unlock()

	<-done
	k.logger.Info("keeper paused")
	return nil
}

// Status reports whether the keeper is running and its counters.
func (k *Keeper) Status() Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	return Status{
		Running:         k.cancel != nil,
		IntervalSeconds: k.market.Config().IntervalSeconds,
		Period:          k.period.String(),
		Executed:        k.executed,
		Failed:          k.failed,
		LastRun:         k.lastRun,
		LastError:       k.lastErr,
	}
}

func (k *Keeper) stopLocked() chan struct{} {
	k.cancel()
	k.cancel = nil
	done := k.done
	k.done = nil
	return done
}

func (k *Keeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(k.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !k.tick(ctx, done) {
				return
			}
		}
	}
}

// tick executes one round and reports whether the loop should continue.
func (k *Keeper) tick(ctx context.Context, done chan struct{}) bool {
	gs, err := k.market.GenesisStatus(ctx)
	if err != nil {
		k.record(err)
		return true
	}
	if !gs.Started || !gs.Locked {
		k.logger.Warn("genesis not started or locked, pausing keeper")
		k.mu.Lock()
		if k.done == done {
			k.stopLocked()
		}
		k.mu.Unlock()
		return false
	}

	if k.locker != nil {
		unlock, err := k.locker.Acquire(ctx, k.lockKey, k.period)
		if err != nil {
			k.logger.Debug("keeper tick skipped, lock held elsewhere", slog.String("error", err.Error()))
			return true
		}
		defer unlock()
	}

	err = k.market.ExecuteRound(ctx, k.owner)
	k.record(err)
	if err == nil {
		k.logger.Info("round executed", slog.Uint64("epoch", gs.CurrentEpoch))
	}
	return true
}

func (k *Keeper) record(err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.lastRun = time.Now().UTC()
	if err != nil {
		k.failed++
		k.lastErr = err.Error()
		k.logger.Error("execute round failed", slog.String("error", err.Error()))
		return
	}
	k.executed++
	k.lastErr = ""
}

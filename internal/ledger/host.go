package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

var errTxDone = errors.New("ledger: transaction already finished")

// DefaultLockKey is the distributed lock guarding writers across replicas.
const DefaultLockKey = "lock:ledger:writer"

const lockPoll = 25 * time.Millisecond

type updateKey struct{}

// InUpdate reports whether ctx belongs to a running Update callback.
func InUpdate(ctx context.Context) bool {
	v, _ := ctx.Value(updateKey{}).(bool)
	return v
}

// Host serializes writers over a single store. Each Update runs on a fresh
// Tx and commits once. Readers go straight to the store.
type Host struct {
	store    domain.KVStore
	locker   domain.LockManager
	lockKey  string
	lockTTL  time.Duration
	lockWait time.Duration
	logger   *slog.Logger

	mu sync.Mutex
	// calling is set while Update's callback has handed control to code
	// outside this module. Any Update started meanwhile is refused, whichever
	// context it carries, instead of queueing behind mu.
	calling atomic.Bool
}

// HostOption customises a Host.
type HostOption func(*Host)

// WithLocker adds a distributed lock taken around every Update, for
// deployments where several processes share one backend.
func WithLocker(l domain.LockManager, key string, ttl time.Duration) HostOption {
	return func(h *Host) {
		h.locker = l
		if key != "" {
			h.lockKey = key
		}
		if ttl > 0 {
			h.lockTTL = ttl
		}
	}
}

// NewHost wraps store.
func NewHost(store domain.KVStore, logger *slog.Logger, opts ...HostOption) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Host{
		store:    store,
		lockKey:  DefaultLockKey,
		lockTTL:  30 * time.Second,
		lockWait: 5 * time.Second,
		logger:   logger.With(slog.String("component", "ledger")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Store returns the backing store for reads.
func (h *Host) Store() domain.KVStore { return h.store }

// Update runs fn inside a transaction and commits it when fn returns nil.
// Any error or panic discards every write fn made. Calling Update from
// inside fn (directly or through any component sharing this host) fails
// with domain.ErrReentrantCall, as does any Update issued while a CallOut
// is in progress.
func (h *Host) Update(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) (err error) {
	if InUpdate(ctx) || h.calling.Load() {
		return domain.ErrReentrantCall
	}

	if h.locker != nil {
		unlock, lerr := h.acquire(ctx)
		if lerr != nil {
			return fmt.Errorf("ledger: acquire writer lock: %w", lerr)
		}
		defer unlock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	tx := Begin(h.store)
	defer func() {
		if r := recover(); r != nil {
			tx.Discard()
			h.logger.Error("update panicked", slog.Any("panic", r))
			err = fmt.Errorf("ledger: update panicked: %v", r)
		}
	}()

	if err := fn(context.WithValue(ctx, updateKey{}, true), tx); err != nil {
		tx.Discard()
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ledger: commit: %w", err)
	}
	return nil
}

// CallOut runs fn, which calls external code from inside an Update callback.
// Until fn returns every Update on h fails with domain.ErrReentrantCall.
func (h *Host) CallOut(fn func() error) error {
	if !h.calling.CompareAndSwap(false, true) {
		return domain.ErrReentrantCall
	}
	defer h.calling.Store(false)
	return fn()
}

// acquire polls the distributed lock while another replica holds it, up to
// lockWait or ctx's deadline.
func (h *Host) acquire(ctx context.Context) (func(), error) {
	deadline := time.Now().Add(h.lockWait)
	for {
		unlock, err := h.locker.Acquire(ctx, h.lockKey, h.lockTTL)
		if !errors.Is(err, domain.ErrLockHeld) || time.Now().After(deadline) {
			return unlock, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPoll):
		}
	}
}

// Package flash holds flash loan receivers the service can run on behalf of
// API callers. The market only ever sees the domain.FlashLoanReceiver
// interface; this package maps a receiver address from a request onto one.
package flash

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// Registry maps receiver addresses to in-process receivers.
type Registry struct {
	mu        sync.RWMutex
	receivers map[domain.Address]domain.FlashLoanReceiver
}

func NewRegistry() *Registry {
	return &Registry{receivers: make(map[domain.Address]domain.FlashLoanReceiver)}
}

// Register adds r under its own address, replacing any previous entry.
func (r *Registry) Register(recv domain.FlashLoanReceiver) error {
	if recv == nil || recv.Address() == domain.ZeroAddress {
		return fmt.Errorf("flash: register: %w", domain.ErrInvalidAddress)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receivers[recv.Address()] = recv
	return nil
}

// Lookup returns the receiver at addr or ErrReceiverUnknown.
func (r *Registry) Lookup(addr domain.Address) (domain.FlashLoanReceiver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	recv, ok := r.receivers[addr]
	if !ok {
		return nil, fmt.Errorf("flash: %s: %w", addr.Hex(), domain.ErrReceiverUnknown)
	}
	return recv, nil
}

// Addresses lists registered receivers in byte order.
func (r *Registry) Addresses() []domain.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Address, 0, len(r.receivers))
	for a := range r.receivers {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

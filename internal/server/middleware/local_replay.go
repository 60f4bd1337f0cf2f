package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// LocalReplayGuard is an in-process domain.ReplayGuard for deployments
// without Redis. Expired ids are swept lazily.
type LocalReplayGuard struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	lastSweep time.Time
	now       func() time.Time
}

func NewLocalReplayGuard() *LocalReplayGuard {
	return &LocalReplayGuard{seen: make(map[string]time.Time), now: time.Now}
}

func (g *LocalReplayGuard) Seen(_ context.Context, id string, ttl time.Duration) (bool, error) {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if now.Sub(g.lastSweep) >= ttl {
		for k, exp := range g.seen {
			if !now.Before(exp) {
				delete(g.seen, k)
			}
		}
		g.lastSweep = now
	}
	if exp, ok := g.seen[id]; ok && now.Before(exp) {
		return true, nil
	}
	g.seen[id] = now.Add(ttl)
	return false, nil
}

// Len returns how many ids are currently remembered, expired or not.
func (g *LocalReplayGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

var _ domain.ReplayGuard = (*LocalReplayGuard)(nil)

package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// ReplayGuard implements domain.ReplayGuard with SET NX PX, so a signed
// request accepted by one API replica is refused by every other.
type ReplayGuard struct {
	c *Client
}

// NewReplayGuard creates a ReplayGuard backed by the given Client.
func NewReplayGuard(c *Client) *ReplayGuard {
	return &ReplayGuard{c: c}
}

// Seen marks id for ttl. It reports true when id was already marked.
func (g *ReplayGuard) Seen(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := g.c.rdb.SetNX(ctx, g.c.Key("replay", id), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: replay mark %s: %w", id, err)
	}
	return !ok, nil
}

// Compile-time interface check.
var _ domain.ReplayGuard = (*ReplayGuard)(nil)

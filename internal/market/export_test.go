package market

import (
	"context"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// SettleForTest runs calculateRewards for epoch in its own transaction.
func (m *Market) SettleForTest(ctx context.Context, epoch uint64) error {
	return m.update(ctx, "settle", func(ctx context.Context, s *session) error {
		return s.calculateRewards(ctx, epoch)
	})
}

// SafeStartForTest runs safeStartRound for epoch in its own transaction.
func (m *Market) SafeStartForTest(ctx context.Context, epoch uint64) error {
	return m.update(ctx, "safe start", func(ctx context.Context, s *session) error {
		return s.safeStartRound(ctx, epoch)
	})
}

// EmitThenFailForTest queues an event and then fails with err.
func (m *Market) EmitThenFailForTest(ctx context.Context, err error) error {
	return m.update(ctx, "emit then fail", func(ctx context.Context, s *session) error {
		if emitErr := s.emit(domain.TopicRoundStarted, 0, nil, domain.RoundStartedPayload{}); emitErr != nil {
			return emitErr
		}
		return err
	})
}

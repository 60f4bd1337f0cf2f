package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/ledger"
)

// emit queues an event; it is persisted and published only if the
// operation commits.
func (s *session) emit(topic domain.Topic, epoch uint64, account *domain.Address, payload any) error {
	raw, err := sonnet.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}
	s.state.EventSeq++
	s.events = append(s.events, domain.Event{
		Seq:       s.state.EventSeq,
		Topic:     topic,
		Epoch:     epoch,
		Account:   account,
		Payload:   raw,
		Timestamp: s.now,
	})
	return nil
}

// EventsSince returns up to limit events with Seq > since, oldest first.
func (m *Market) EventsSince(ctx context.Context, since uint64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []domain.Event
	for seq := since + 1; len(out) < limit; seq++ {
		var evt domain.Event
		err := ledger.Load(ctx, m.host.Store(), eventKey(seq), &evt)
		if errors.Is(err, domain.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("market: events since %d: %w", since, err)
		}
		out = append(out, evt)
	}
	return out, nil
}

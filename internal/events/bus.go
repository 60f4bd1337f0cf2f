package events

import (
	"context"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

const (
	// ChannelPrefix namespaces the per-topic pub/sub channels.
	ChannelPrefix = "events:"
	// Stream is the replayable event stream.
	Stream = "events"
)

// Channel is the pub/sub channel for topic.
func Channel(topic domain.Topic) string { return ChannelPrefix + string(topic) }

// BusSink republishes events on a SignalBus so other replicas and external
// consumers can follow the market.
type BusSink struct {
	bus domain.SignalBus
}

func NewBusSink(bus domain.SignalBus) *BusSink { return &BusSink{bus: bus} }

func (b *BusSink) Name() string { return "bus" }

func (b *BusSink) Deliver(ctx context.Context, events []domain.Event) error {
	for _, evt := range events {
		frame, err := Encode(evt)
		if err != nil {
			return err
		}
		if err := b.bus.StreamAppend(ctx, Stream, frame); err != nil {
			return err
		}
		if err := b.bus.Publish(ctx, Channel(evt.Topic), frame); err != nil {
			return err
		}
	}
	return nil
}

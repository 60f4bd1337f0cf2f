// Package notify sends operator alerts for market events. Notifications go
// to every registered sender (Telegram, Discord) and can be filtered by
// event topic so operators receive only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches notifications to one or more Senders. Deliver only
// forwards events whose topic is in the allowed set; NotifyAll bypasses the
// filter.
type Notifier struct {
	senders []Sender
	topics  map[domain.Topic]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for senders. An empty topics list allows
// every topic.
func NewNotifier(senders []Sender, topics []string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[domain.Topic]bool, len(topics))
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			allowed[domain.Topic(t)] = true
		}
	}
	return &Notifier{
		senders: senders,
		topics:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

func (n *Notifier) Name() string { return "notify" }

func (n *Notifier) allowed(topic domain.Topic) bool {
	return len(n.topics) == 0 || n.topics[topic]
}

// Deliver formats each allowed event and sends it.
func (n *Notifier) Deliver(ctx context.Context, events []domain.Event) error {
	var errs []string
	for _, evt := range events {
		if !n.allowed(evt.Topic) {
			continue
		}
		title, msg := Format(evt)
		if err := n.dispatch(ctx, title, msg); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %s", strings.Join(errs, "; "))
	}
	return nil
}

// NotifyAll sends a notification regardless of topic.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch sends to every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alanyoungcy/pavilion/internal/domain"
)

// EventSink adapts a Notifier to domain.Publisher so it can sit next to the
// Redis and Kafka publishers behind the engine.
type EventSink struct {
	notifier *Notifier
}

func NewEventSink(n *Notifier) *EventSink {
	return &EventSink{notifier: n}
}

func (s *EventSink) Publish(ctx context.Context, channel string, payload []byte) error {
	event := strings.TrimPrefix(channel, domain.EventChannelPrefix)
	if !s.notifier.Enabled(event) {
		return nil
	}
	var ev domain.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("notify: decode %s event: %w", event, err)
	}
	title, message := Format(ev)
	return s.notifier.Notify(ctx, event, title, message)
}

// Format renders an event as a chat title and body.
func Format(ev domain.Event) (title, message string) {
	title = "Pavilion: " + strings.ReplaceAll(string(ev.Type), "_", " ")

	var b strings.Builder
	if ev.GameID != 0 {
		fmt.Fprintf(&b, "game: %d\n", ev.GameID)
	}
	if ev.Caller != "" {
		fmt.Fprintf(&b, "caller: %s\n", ev.Caller)
	}
	if ev.Status != nil {
		fmt.Fprintf(&b, "status: %s\n", ev.Status)
	}
	if ev.Direction != nil {
		fmt.Fprintf(&b, "direction: %s\n", ev.Direction)
	}
	if ev.Quantity != 0 {
		fmt.Fprintf(&b, "quantity: %d\n", ev.Quantity)
	}
	if ev.Prices != nil {
		fmt.Fprintf(&b, "prices: %d / %d\n", ev.Prices.Positive, ev.Prices.Negative)
	}
	if ev.MaxQuantity != nil {
		fmt.Fprintf(&b, "max quantity: %d / %d\n", ev.MaxQuantity.Positive, ev.MaxQuantity.Negative)
	}
	if ev.Amount != "" {
		fmt.Fprintf(&b, "amount: %s\n", ev.Amount)
	}
	return title, strings.TrimSuffix(b.String(), "\n")
}

var _ domain.Publisher = (*EventSink)(nil)

// Package events delivers committed ledger events to every configured sink.
package events

import (
	"context"
	"errors"

	"github.com/alanyoungcy/pavilion/internal/domain"
)

// Fanout publishes each payload to every publisher in order. Every publisher
// is tried; their errors are joined.
type Fanout []domain.Publisher

// NewFanout drops nil publishers.
func NewFanout(pubs ...domain.Publisher) Fanout {
	out := make(Fanout, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (f Fanout) Publish(ctx context.Context, channel string, payload []byte) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, channel, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package live

import (
	"context"

	"github.com/five82/pulse/internal/realtime"
)

// Subscription is one open channel. Unsubscribe must be safe to call twice.
type Subscription interface {
	State() realtime.ChannelState
	Unsubscribe() error
}

// Subscriber opens change-feed channels.
type Subscriber interface {
	Subscribe(ctx context.Context, name string, bindings []realtime.Binding, onChange func(realtime.Change)) (Subscription, error)
}

type realtimeSubscriber struct {
	client *realtime.Client
}

// FromRealtime adapts a realtime client to Subscriber.
func FromRealtime(c *realtime.Client) Subscriber {
	return realtimeSubscriber{client: c}
}

func (r realtimeSubscriber) Subscribe(ctx context.Context, name string, bindings []realtime.Binding, onChange func(realtime.Change)) (Subscription, error) {
	ch, err := r.client.Subscribe(ctx, name, bindings, onChange)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

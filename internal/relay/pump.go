package relay

import (
	"context"
	"time"
)

// Writer is a stream connection able to carry events.
type Writer interface {
	WriteEvent(Event) error
	WriteKeepalive() error
}

// Pump is the single consumer of a subscription. It writes events to w in
// order until ctx is cancelled, the subscription is released or a write
// fails. A zero keepalive disables keepalive frames.
func Pump(ctx context.Context, sub *Subscription, w Writer, keepalive time.Duration) error {
	var tick <-chan time.Time
	if keepalive > 0 {
		ticker := time.NewTicker(keepalive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.Done():
			return nil
		case ev := <-sub.Events():
			if err := w.WriteEvent(ev); err != nil {
				return err
			}
		case <-tick:
			if err := w.WriteKeepalive(); err != nil {
				return err
			}
		}
	}
}

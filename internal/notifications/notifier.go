// Package notifications delivers credit workflow events to connected dashboards.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"creditflow/internal/observability"

	"github.com/redis/go-redis/v9"
)

// CreditEventsChannel is the Redis channel every instance publishes credit events to.
const CreditEventsChannel = "credit:events"

// Event is the envelope written to subscribers.
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Broadcaster receives serialized events for local delivery.
type Broadcaster interface {
	BroadcastAll(message string)
}

// Notifier publishes credit events into Redis so every instance's hub sees them. Without
// Redis it hands events straight to the local broadcaster.
type Notifier struct {
	rdb   *redis.Client
	local Broadcaster
}

// NewNotifier creates a Notifier. Either argument may be nil.
func NewNotifier(rdb *redis.Client, local Broadcaster) *Notifier {
	return &Notifier{rdb: rdb, local: local}
}

// PublishCreditEvent serializes an event and fans it out.
func (n *Notifier) PublishCreditEvent(ctx context.Context, eventType string, payload interface{}) error {
	data, err := json.Marshal(Event{Type: eventType, Payload: payload, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal credit event: %w", err)
	}

	if n.rdb == nil {
		if n.local != nil {
			n.local.BroadcastAll(string(data))
		}
		return nil
	}

	if err := n.rdb.Publish(ctx, CreditEventsChannel, string(data)).Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("publish").Inc()
		return err
	}
	return nil
}

// StartCreditSubscriber subscribes to CreditEventsChannel and calls onMessage for each
// payload until ctx is cancelled. It is a no-op without Redis.
func (n *Notifier) StartCreditSubscriber(ctx context.Context, onMessage func(payload string)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, CreditEventsChannel)
	// Wait for the subscription confirmation so no event published right after
	// startup is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", CreditEventsChannel, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.GlobalLogger.Error("panic in credit subscriber",
								"panic", r, "stack", string(debug.Stack()))
						}
					}()
					onMessage(msg.Payload)
				}()
			}
		}
	}()

	return nil
}

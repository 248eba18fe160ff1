// Package notifications provides real-time event delivery over WebSocket,
// fanned out through Redis pub/sub channels.
package notifications

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"

	"github.com/redis/go-redis/v9"
)

// Notifier provides helpers to publish events into Redis topic channels.
// Delivery is best-effort: if nobody is subscribed when an event is
// published, the event is dropped. Clients recover missed state through
// the REST endpoints.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishRoomEvent publishes an event to a chat room's topic channel.
func (n *Notifier) PublishRoomEvent(ctx context.Context, roomID uint, payload string) error {
	if n.rdb == nil {
		return nil
	}
	channel := fmt.Sprintf("room:%d", roomID)
	return n.rdb.Publish(ctx, channel, payload).Err()
}

// PublishFeedEvent publishes an event to the global content topic.
func (n *Notifier) PublishFeedEvent(ctx context.Context, payload string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, "posts", payload).Err()
}

// PublishPostEvent publishes an event to a single post's topic channel.
func (n *Notifier) PublishPostEvent(ctx context.Context, postID uint, payload string) error {
	if n.rdb == nil {
		return nil
	}
	channel := fmt.Sprintf("post:%d", postID)
	return n.rdb.Publish(ctx, channel, payload).Err()
}

// StartRoomSubscriber subscribes to the room:* pattern and calls onMessage
// for each incoming message. onMessage receives channel and payload.
func (n *Notifier) StartRoomSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	return n.startSubscriber(ctx, onMessage, "room:*")
}

// StartFeedSubscriber subscribes to the global content topic and the post:*
// pattern and calls onMessage for each incoming message.
func (n *Notifier) StartFeedSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	return n.startSubscriber(ctx, onMessage, "posts", "post:*")
}

func (n *Notifier) startSubscriber(
	ctx context.Context, onMessage func(channel string, payload string), patterns ...string,
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, patterns...)
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
							log.Printf("PANIC in subscriber (%v): %v\n%s", patterns, r, debug.Stack())
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

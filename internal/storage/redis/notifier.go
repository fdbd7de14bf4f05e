package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// channel carries new-mail events between instances.
const channel = "postdrop:new_message"

// event is the wire form of the produced notification.
type event struct {
	InboxID   string `json:"inboxId"`
	MessageID string `json:"messageId"`
}

// Notifier bridges new-mail notifications over Redis pub/sub so that a
// WebSocket viewer connected to one instance sees deliveries accepted by
// another. Publishing is fire-and-forget; a Redis outage never affects
// message persistence.
type Notifier struct {
	client *redis.Client
	log    *zap.Logger
}

// NewNotifier connects to Redis and verifies the connection.
func NewNotifier(address, password string, db int, log *zap.Logger) (*Notifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Notifier{client: client, log: log}, nil
}

// NotifyNewMessage publishes a {inboxId, messageId} event. Errors are logged
// and swallowed.
func (n *Notifier) NotifyNewMessage(inboxID, messageID string) {
	payload, err := json.Marshal(event{InboxID: inboxID, MessageID: messageID})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.client.Publish(ctx, channel, payload).Err(); err != nil {
		n.log.Warn("failed to publish new message event",
			zap.String("inbox_id", inboxID),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}

// Subscribe delivers remote events to handler until ctx is cancelled.
func (n *Notifier) Subscribe(ctx context.Context, handler func(inboxID, messageID string)) {
	sub := n.client.Subscribe(ctx, channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				n.log.Warn("malformed new message event", zap.Error(err))
				continue
			}
			handler(ev.InboxID, ev.MessageID)
		}
	}
}

// Close releases the Redis connection.
func (n *Notifier) Close() error {
	return n.client.Close()
}

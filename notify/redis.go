package notify

import (
	"context"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes messages on the Redis channel named after msg.Channel, so every
// server instance can relay them to its own websocket clients.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, msg.Channel, b).Err()
}

var relayPatterns = []string{ownerPrefix + "*", userPrefix + "*"}

// Relay forwards every owner and user message published on Redis to sink until ctx is done.
func Relay(ctx context.Context, client *redis.Client, sink Publisher, logger *slog.Logger) error {
	pubsub := client.PSubscribe(ctx, relayPatterns...)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed so messages published after Relay starts are seen.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				logger.WarnContext(ctx, "dropping undecodable notification", "channel", m.Channel, "error", err)
				continue
			}
			msg.Channel = m.Channel
			if err := sink.Publish(ctx, msg); err != nil {
				logger.WarnContext(ctx, "failed to relay notification", "channel", m.Channel, "error", err)
			}
		}
	}
}

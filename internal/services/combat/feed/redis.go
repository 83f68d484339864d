package feed

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "combat:feed:"

// RedisRelay bridges the feed hub over a Redis pub/sub channel so multiple
// server processes share one campaign feed.
type RedisRelay struct {
	client *redis.Client
	hub    *Hub
}

// NewRedisRelay connects to Redis and attaches itself as the hub's relay.
func NewRedisRelay(ctx context.Context, addr string, hub *Hub) (*RedisRelay, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if hub == nil {
		return nil, fmt.Errorf("hub is required")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	relay := &RedisRelay{client: client, hub: hub}
	hub.SetRelay(relay)
	return relay, nil
}

// Publish forwards an event to the campaign's Redis channel.
func (r *RedisRelay) Publish(ctx context.Context, event Event) error {
	frame, err := event.Encode()
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, redisChannelPrefix+event.CampaignID, frame).Err(); err != nil {
		return fmt.Errorf("publish feed event: %w", err)
	}
	return nil
}

// Run consumes the pattern subscription and delivers events to the hub until
// ctx is canceled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, redisChannelPrefix+"*")
	defer pubsub.Close()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			event, err := DecodeEvent([]byte(msg.Payload))
			if err != nil {
				log.Printf("decode relayed feed event: %v", err)
				continue
			}
			if err := r.hub.Deliver(ctx, event); err != nil {
				return err
			}
		}
	}
}

// Close releases the Redis connection.
func (r *RedisRelay) Close() error {
	return r.client.Close()
}

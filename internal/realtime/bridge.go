package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel carries cross-instance events when the API runs more than once.
const Channel = "taskflow:events"

type bridgeMessage struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// Bridge mirrors local events through Redis pub/sub so every API instance
// reaches its own SSE subscribers. Events published here go to the local
// broadcaster immediately and to Redis for the other instances; incoming
// Redis messages tagged with our own origin are dropped to avoid doubles.
type Bridge struct {
	local  *Broadcaster
	client *redis.Client
	origin string
}

func NewBridge(local *Broadcaster, client *redis.Client, origin string) *Bridge {
	return &Bridge{local: local, client: client, origin: origin}
}

func (b *Bridge) Publish(event Event) {
	b.local.Publish(event)

	msg := bridgeMessage{Origin: b.origin, Event: event}
	encoded, err := json.Marshal(msg)
	if err != nil {
		log.Printf("realtime bridge: marshal event: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.client.Publish(ctx, Channel, encoded).Err(); err != nil {
		log.Printf("realtime bridge: publish event: %v", err)
	}
}

// Run consumes the Redis channel until ctx is cancelled, reconnecting with a
// short delay when the subscription drops.
func (b *Bridge) Run(ctx context.Context) {
	for {
		sub := b.client.Subscribe(ctx, Channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var decoded bridgeMessage
				if err := json.Unmarshal([]byte(msg.Payload), &decoded); err != nil {
					log.Printf("realtime bridge: parse event: %v", err)
					continue
				}
				if decoded.Origin == b.origin {
					continue
				}
				b.local.Publish(decoded.Event)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		log.Print("realtime bridge: pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

// Ping reports whether the Redis side of the bridge is reachable.
func (b *Bridge) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping realtime bridge: %w", err)
	}
	return nil
}

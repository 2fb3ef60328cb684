// Package bus is an optional Redis pub/sub transport for normalized
// ticks, letting ingestion and detection run in separate processes.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/amirlehmam/flashloan/internal/market"
)

// wireTick is the channel payload; field names follow the normalized
// schema used across the system.
type wireTick struct {
	Source     string  `json:"exchange"`
	Asset      string  `json:"asset"`
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume"`
	ObservedAt int64   `json:"timestamp"` // unix seconds
}

func toWire(t market.Tick) wireTick {
	return wireTick{
		Source:     t.Source,
		Asset:      t.Asset,
		Price:      t.Price,
		Volume:     t.Volume,
		ObservedAt: t.ObservedAt.Unix(),
	}
}

func (w wireTick) tick() market.Tick {
	return market.Tick{
		Source:     w.Source,
		Asset:      w.Asset,
		Price:      w.Price,
		Volume:     w.Volume,
		ObservedAt: time.Unix(w.ObservedAt, 0),
	}
}

// Publisher pushes every tick onto a Redis channel.
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher wraps an existing Redis client.
func NewPublisher(client *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = "market_data"
	}
	return &Publisher{client: client, channel: channel}
}

// Publish serializes one tick onto the channel.
func (p *Publisher) Publish(ctx context.Context, tick market.Tick) error {
	payload, err := json.Marshal(toWire(tick))
	if err != nil {
		return fmt.Errorf("marshal tick: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish tick: %w", err)
	}
	return nil
}

// Subscriber feeds ticks from the Redis channel into the pipeline; it
// acts as one more producer alongside the in-process connectors.
type Subscriber struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

// NewSubscriber wraps an existing Redis client.
func NewSubscriber(client *redis.Client, channel string, log zerolog.Logger) *Subscriber {
	if channel == "" {
		channel = "market_data"
	}
	return &Subscriber{client: client, channel: channel, log: log}
}

// Run decodes messages onto out until ctx is canceled. Malformed
// payloads are logged and skipped; invalid field values are left for
// the store's validation to reject.
func (s *Subscriber) Run(ctx context.Context, out chan<- market.Tick) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription to %s closed", s.channel)
			}
			var w wireTick
			if err := json.Unmarshal([]byte(msg.Payload), &w); err != nil {
				s.log.Warn().Err(err).Msg("malformed tick on bus")
				continue
			}
			select {
			case out <- w.tick():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

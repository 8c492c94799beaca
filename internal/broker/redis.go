// Package broker fans hub events out across server nodes.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/rotawire/internal/core"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// RedisOptions configures the Redis broker.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Redis implements core.Broker on top of Redis Pub/Sub. Every node publishes
// to and subscribes on the same channel.
type Redis struct {
	client  *redis.Client
	channel string
	log     *zerolog.Logger
}

var _ core.Broker = (*Redis)(nil)

type wireEvent struct {
	ID        int64           `json:"id,omitempty"`
	Room      string          `json:"room"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, opts RedisOptions, logger *zerolog.Logger) (*Redis, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.Channel == "" {
		return nil, fmt.Errorf("redis broker: channel is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info().Str("addr", opts.Addr).Str("channel", opts.Channel).Msg("redis broker connected")

	return &Redis{client: client, channel: opts.Channel, log: logger}, nil
}

// Publish sends ev to every subscribed node, including this one.
func (r *Redis) Publish(ctx context.Context, ev *core.Event) error {
	payload, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe calls fn for every event published on the channel until ctx is
// canceled. Undecodable messages are logged and skipped.
func (r *Redis) Subscribe(ctx context.Context, fn func(*core.Event)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			ev, err := decodeEvent([]byte(msg.Payload))
			if err != nil {
				r.log.Warn().Err(err).Msg("dropping malformed broker message")
				continue
			}
			fn(ev)
		}
	}
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func encodeEvent(ev *core.Event) ([]byte, error) {
	payload, err := codec.Marshal(wireEvent{
		ID:        ev.ID,
		Room:      ev.Room,
		Type:      ev.Type,
		Data:      ev.Data,
		CreatedAt: ev.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return payload, nil
}

func decodeEvent(payload []byte) (*core.Event, error) {
	var w wireEvent
	if err := codec.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if w.Room == "" {
		return nil, fmt.Errorf("decode event: missing room")
	}
	return &core.Event{
		Kind:      core.EventBroadcast,
		ID:        w.ID,
		Room:      w.Room,
		Type:      w.Type,
		Data:      w.Data,
		CreatedAt: w.CreatedAt,
	}, nil
}

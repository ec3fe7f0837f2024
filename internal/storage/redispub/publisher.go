package redispub

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"contractScope/internal/model"
)

const (
	defaultChannel   = "contract-events"
	defaultKeyPrefix = "contractscope:latest"
)

// Config configures the Redis client.
type Config struct {
	Addr       string
	Username   string
	Password   string
	DB         int
	TLSEnabled bool
}

// NewClient returns a connected Redis client or nil when no address is provided.
func NewClient(ctx context.Context, cfg Config) (redis.UniversalClient, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	opts := &redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Options configure the publisher.
type Options struct {
	Client    redis.UniversalClient
	Channel   string
	KeyPrefix string
}

// Publisher broadcasts event records on a Redis channel and keeps the latest
// contract action per contract under a key.
type Publisher struct {
	client    redis.UniversalClient
	channel   string
	keyPrefix string
}

func NewPublisher(opts Options) *Publisher {
	channel := opts.Channel
	if channel == "" {
		channel = defaultChannel
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Publisher{client: opts.Client, channel: channel, keyPrefix: prefix}
}

// Channel returns the pub/sub channel records are published on.
func (p *Publisher) Channel() string {
	return p.channel
}

// LatestKey returns the key holding the last contract action for a contract.
func (p *Publisher) LatestKey(network, contract string) string {
	return fmt.Sprintf("%s:%s:%s", p.keyPrefix, network, contract)
}

// PutEventBatch publishes every record and updates the latest-action keys in
// one pipeline.
func (p *Publisher) PutEventBatch(ctx context.Context, records []model.EventRecord) error {
	if p.client == nil || len(records) == 0 {
		return nil
	}

	_, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, record := range records {
			payload, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("marshal event record: %w", err)
			}
			pipe.Publish(ctx, p.channel, payload)
			if record.IsContractAction() {
				pipe.Set(ctx, p.LatestKey(record.Network, record.Contract), payload, 0)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

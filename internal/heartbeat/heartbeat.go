// Package heartbeat publishes the run-as-service liveness beat to Redis so
// operators can see which service instances are alive and how far their
// clocks drift from the Redis server.
package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"

	"servicectl/internal/config"
	"servicectl/internal/logger"
	"servicectl/internal/network"
)

const closeTimeout = 5 * time.Second

// Record is the JSON value stored under the heartbeat key.
type Record struct {
	Service     string `json:"service"`
	PID         int    `json:"pid"`
	IP          string `json:"ip,omitempty"`
	Beat        int64  `json:"beat"`
	Timestamp   int64  `json:"timestamp"`
	ClockDiffMs int64  `json:"clock_diff_ms"`
}

// Publisher writes one Record per beat with a TTL, so the key disappears
// on its own when the process dies without a clean stop.
type Publisher struct {
	client  *redis.Client
	key     string
	ttl     time.Duration
	service string
	ip      string
	clock   clock.Clock
	diff    atomic.Int64
}

// New creates a Publisher for service from the Redis heartbeat settings.
// dial may be nil to connect directly.
func New(service string, cfg config.RedisConfig, dial network.ContextDialFunc) *Publisher {
	opts := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if dial != nil {
		opts.Dialer = dial
	}

	return &Publisher{
		client:  redis.NewClient(opts),
		key:     cfg.KeyPrefix + service,
		ttl:     cfg.TTL,
		service: service,
		ip:      network.HostIPv4(),
		clock:   clock.New(),
	}
}

// Key returns the Redis key the beats are written to.
func (p *Publisher) Key() string {
	return p.key
}

// ClockDiff returns the last measured local minus server time in milliseconds.
func (p *Publisher) ClockDiff() int64 {
	return p.diff.Load()
}

// Beat measures the clock difference against the Redis server and stores
// the heartbeat record.
func (p *Publisher) Beat(ctx context.Context, beat int64) error {
	serverTime, err := p.client.Time(ctx).Result()
	if err != nil {
		return fmt.Errorf("Redis TIME failed: %w", err)
	}

	now := p.clock.Now().UnixMilli()
	diff := now - serverTime.UnixMilli()
	p.diff.Store(diff)

	value, err := json.Marshal(Record{
		Service:     p.service,
		PID:         os.Getpid(),
		IP:          p.ip,
		Beat:        beat,
		Timestamp:   now,
		ClockDiffMs: diff,
	})
	if err != nil {
		return err
	}

	if err := p.client.Set(ctx, p.key, value, p.ttl).Err(); err != nil {
		return fmt.Errorf("Redis SET %s failed: %w", p.key, err)
	}

	log := logger.WithComponent("heartbeat")
	log.Debug().
		Str("key", p.key).
		Int64("beat", beat).
		Int64("diff", diff).
		Msg("Heartbeat published")
	return nil
}

// Close removes the heartbeat key and closes the client.
func (p *Publisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	delErr := p.client.Del(ctx, p.key).Err()
	if err := p.client.Close(); err != nil {
		return err
	}
	if delErr != nil {
		return fmt.Errorf("Redis DEL %s failed: %w", p.key, delErr)
	}
	return nil
}

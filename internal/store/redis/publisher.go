package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"smatrader/internal/circuit"
	"smatrader/internal/model"
)

const (
	ChannelPoint = "pub:sma:point"
	ChannelTrade = "pub:sma:trade"

	KeyLatestPoint = "sma:latest:point"
	KeyLatestTrade = "sma:latest:trade"

	defaultLatestTTL = 30 * time.Minute
	defaultBacklog   = 1000
)

// Config configures the Redis publisher.
type Config struct {
	Addr      string // Redis address, e.g. "localhost:6379"
	Password  string
	DB        int
	LatestTTL time.Duration
	Backlog   int // writes kept while the breaker is open
}

// Publisher fans price points and trades out to Redis PubSub and keeps the
// latest of each under a TTL key. Writes reach Redis in the order they were
// published, backlog included.
type Publisher struct {
	client *goredis.Client
	cb     *circuit.Breaker
	ttl    time.Duration

	mu      sync.Mutex // serializes publish and backlog replay
	backlog *backlog
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Dial creates a client from cfg, pings the server and wraps it in a Publisher.
func Dial(cfg Config, cb *circuit.Breaker) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewPublisher(client, cfg, cb), nil
}

// NewPublisher wraps an existing client. Writes rejected by an open breaker
// are kept in a bounded backlog; while it is non-empty every new write is
// queued behind it and the backlog is replayed oldest first.
func NewPublisher(client *goredis.Client, cfg Config, cb *circuit.Breaker) *Publisher {
	if cfg.LatestTTL <= 0 {
		cfg.LatestTTL = defaultLatestTTL
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = defaultBacklog
	}
	return &Publisher{
		client:  client,
		cb:      cb,
		ttl:     cfg.LatestTTL,
		backlog: newBacklog(cfg.Backlog),
	}
}

// OnPoint implements model.Sink.
func (p *Publisher) OnPoint(ctx context.Context, pt model.PricePoint) error {
	return p.publish(ctx, ChannelPoint, KeyLatestPoint, pt)
}

// OnTrade implements model.Sink.
func (p *Publisher) OnTrade(ctx context.Context, t model.Trade) error {
	return p.publish(ctx, ChannelTrade, KeyLatestTrade, t)
}

// Pending returns the number of writes waiting to be replayed.
func (p *Publisher) Pending() int { return p.backlog.len() }

func (p *Publisher) publish(ctx context.Context, channel, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis marshal %s: %w", channel, err)
	}
	w := pendingWrite{channel: channel, key: key, data: data}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.backlog.len() > 0 {
		p.backlog.push(w)
		return p.flushLocked(ctx)
	}

	err = p.cb.Execute(func() error { return p.write(ctx, w) })
	if errors.Is(err, circuit.ErrOpen) {
		p.backlog.push(w)
		return nil
	}
	return err
}

// write performs the pipelined SET latest + PUBLISH for one payload.
func (p *Publisher) write(ctx context.Context, w pendingWrite) error {
	payload := string(w.data)

	pipe := p.client.Pipeline()
	pipe.Set(ctx, w.key, payload, p.ttl)
	pipe.Publish(ctx, w.channel, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline %s: %w", w.channel, err)
	}
	return nil
}

// flushLocked replays the backlog oldest first through the breaker. The
// first failure puts that write and everything after it back, in order.
func (p *Publisher) flushLocked(ctx context.Context) error {
	pending := p.backlog.drain()
	for i, w := range pending {
		err := p.cb.Execute(func() error { return p.write(ctx, w) })
		if err == nil {
			continue
		}
		for _, rest := range pending[i:] {
			p.backlog.push(rest)
		}
		if i > 0 {
			log.Printf("[redis] backlog flush stopped after %d writes: %v", i, err)
		}
		if errors.Is(err, circuit.ErrOpen) {
			return nil
		}
		return err
	}
	log.Printf("[redis] flushed %d buffered writes", len(pending))
	return nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

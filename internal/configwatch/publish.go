package configwatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridiandb/meridian-go/pkg/logger"
)

// Publisher republishes a freshly-bootstrapped configuration body so
// the processes that lost the BootstrapLock race can adopt it instead
// of performing their own DNS-SRV + GCCCP round trip.
type Publisher struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
	log   *slog.Logger
}

// NewPublisher builds a Publisher for clusterID's configuration
// cache entry.
func NewPublisher(client *redis.Client, clusterID string, ttl time.Duration, log *slog.Logger) *Publisher {
	if ttl == 0 {
		ttl = time.Minute
	}
	return &Publisher{
		redis: client,
		key:   "meridian:config:" + clusterID,
		ttl:   ttl,
		log:   logger.OrDefault(log),
	}
}

// Publish stores the raw configuration body for other processes to
// read via Fetch.
func (p *Publisher) Publish(ctx context.Context, body []byte) error {
	if err := p.redis.Set(ctx, p.key, body, p.ttl).Err(); err != nil {
		return fmt.Errorf("configwatch: publish config: %w", err)
	}
	p.log.Debug("published cluster configuration", "key", p.key, "bytes", len(body))
	return nil
}

// Fetch retrieves a previously published configuration body, if any
// is still cached. A miss returns a nil body and a nil error (redis.Nil
// is not passed through) — callers fall back to performing their own
// bootstrap.
func (p *Publisher) Fetch(ctx context.Context) ([]byte, error) {
	body, err := p.redis.Get(ctx, p.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("configwatch: fetch config: %w", err)
	}
	return body, nil
}

// AwaitPublication polls Fetch until a configuration appears or ctx is
// done — used by a process that lost the bootstrap race to wait for
// the winner to publish.
func (p *Publisher) AwaitPublication(ctx context.Context, pollInterval time.Duration) ([]byte, error) {
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		body, err := p.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		if body != nil {
			return body, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

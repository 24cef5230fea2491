// Package configwatch serializes cluster bootstrap across multiple
// agent processes sharing one Redis instance, and republishes the
// winning process's fetched configuration for the others to adopt
// without each paying their own DNS-SRV + GCCCP round trip. This is
// an optional addition beyond spec.md's scope — nothing in the core
// dispatch path (internal/kvengine, internal/httpclient) depends on
// it — grounded on the teacher's
// internal/infrastructure/lock.DistributedLock, adapted from a
// general-purpose SET-NX mutex into a narrower "one bootstrap winner,
// rest subscribe" coordinator.
package configwatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridiandb/meridian-go/pkg/logger"
)

// LockConfig mirrors the teacher's lock.LockConfig field set, trimmed
// to what a one-shot bootstrap coordination needs.
type LockConfig struct {
	TTL            time.Duration
	AcquireTimeout time.Duration
	RetryInterval  time.Duration
	MaxRetries     int
}

// DefaultLockConfig matches the teacher's defaults.
func DefaultLockConfig() LockConfig {
	return LockConfig{
		TTL:            30 * time.Second,
		AcquireTimeout: 5 * time.Second,
		RetryInterval:  100 * time.Millisecond,
		MaxRetries:     3,
	}
}

// BootstrapLock is a Redis-backed mutex scoped to one cluster
// identity (its connection string), so that of N agent processes
// bootstrapping against the same cluster, only one performs the
// initial configuration fetch.
type BootstrapLock struct {
	redis  *redis.Client
	key    string
	value  string
	cfg    LockConfig
	log    *slog.Logger
	holder bool
}

// NewBootstrapLock builds a lock for clusterID (typically the
// connection string or a hash of it) guarded by client.
func NewBootstrapLock(client *redis.Client, clusterID string, cfg LockConfig, log *slog.Logger) *BootstrapLock {
	if cfg.TTL == 0 {
		cfg = DefaultLockConfig()
	}
	return &BootstrapLock{
		redis: client,
		key:   "meridian:bootstrap:" + clusterID,
		value: generateToken(),
		cfg:   cfg,
		log:   logger.OrDefault(log),
	}
}

func generateToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("meridian_%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// TryAcquire attempts to become the bootstrap winner, retrying up to
// cfg.MaxRetries times with the configured interval. It returns false
// (not an error) when another process already holds the lock.
func (l *BootstrapLock) TryAcquire(ctx context.Context) (bool, error) {
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		acquireCtx, cancel := context.WithTimeout(ctx, l.cfg.AcquireTimeout)
		ok, err := l.redis.SetNX(acquireCtx, l.key, l.value, l.cfg.TTL).Result()
		cancel()
		if err != nil {
			if attempt == l.cfg.MaxRetries {
				return false, fmt.Errorf("configwatch: acquire bootstrap lock: %w", err)
			}
			time.Sleep(l.cfg.RetryInterval)
			continue
		}
		if ok {
			l.holder = true
			l.log.Debug("acquired bootstrap lock", "key", l.key)
			return true, nil
		}
		if attempt == l.cfg.MaxRetries {
			return false, nil
		}
		time.Sleep(l.cfg.RetryInterval)
	}
	return false, nil
}

// releaseScript only deletes the key if it still holds this lock's
// value, so a process never releases a lock it no longer owns (e.g.
// after TTL expiry and reacquisition by someone else).
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Release drops the lock if still held by this process.
func (l *BootstrapLock) Release(ctx context.Context) error {
	if !l.holder {
		return nil
	}
	releaseCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := l.redis.Eval(releaseCtx, releaseScript, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("configwatch: release bootstrap lock: %w", err)
	}
	l.holder = false
	return nil
}

// IsHolder reports whether this process currently believes it holds
// the lock (best-effort; the TTL may have already expired server-side).
func (l *BootstrapLock) IsHolder() bool { return l.holder }

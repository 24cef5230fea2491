package configwatch

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	server := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: server.Addr()})
}

func TestBootstrapLock_OnlyOneWinnerAmongConcurrentAcquirers(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	cfg := LockConfig{TTL: time.Second, AcquireTimeout: time.Second, RetryInterval: time.Millisecond, MaxRetries: 0}

	first := NewBootstrapLock(client, "cluster-a", cfg, nil)
	second := NewBootstrapLock(client, "cluster-a", cfg, nil)

	ok1, err := first.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok1)

	ok2, err := second.TryAcquire(ctx)
	require.NoError(t, err)
	require.False(t, ok2)
}

func TestBootstrapLock_ReleaseThenReacquire(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	cfg := LockConfig{TTL: time.Second, AcquireTimeout: time.Second, RetryInterval: time.Millisecond, MaxRetries: 0}

	l := NewBootstrapLock(client, "cluster-b", cfg, nil)
	ok, err := l.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Release(ctx))
	require.False(t, l.IsHolder())

	other := NewBootstrapLock(client, "cluster-b", cfg, nil)
	ok, err = other.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPublisher_PublishAndFetch(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	p := NewPublisher(client, "cluster-c", time.Minute, nil)

	body, err := p.Fetch(ctx)
	require.NoError(t, err)
	require.Nil(t, body)

	require.NoError(t, p.Publish(ctx, []byte(`{"rev":1}`)))

	body, err = p.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, `{"rev":1}`, string(body))
}

func TestPublisher_AwaitPublicationReturnsOncePublished(t *testing.T) {
	client := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p := NewPublisher(client, "cluster-d", time.Minute, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = p.Publish(context.Background(), []byte("config-body"))
	}()

	body, err := p.AwaitPublication(ctx, 5*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, "config-body", string(body))
}

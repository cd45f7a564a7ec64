package broadcast

import (
	"context"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalgonaburger/stageboard/internal/progress"
	"github.com/dalgonaburger/stageboard/internal/progress/memstore"
)

// silentServer accepts connections and never answers, so every Redis
// command waits until its deadline.
func silentServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return ln.Addr().String()
}

func silentClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:       silentServer(t),
		MaxRetries: -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRelayFallsBackToLocalHub(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	hub := NewHub(4)
	sub := hub.Subscribe()
	relay := NewRedisRelay(client, "", hub, nil)
	defer relay.Close()

	relay.Publish(event(7))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "u7", ev.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered locally")
	}
}

func TestRelayPublishDoesNotWaitOnRedis(t *testing.T) {
	hub := NewHub(4)
	relay := NewRedisRelay(silentClient(t), "", hub, nil)
	defer relay.Close()

	start := time.Now()
	relay.Publish(event(1))
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestSubmitLatencyIndependentOfRedis(t *testing.T) {
	hub := NewHub(4)
	relay := NewRedisRelay(silentClient(t), "", hub, nil)
	defer relay.Close()

	engine := progress.NewEngine(memstore.New(), nil, progress.WithPublisher(relay))
	start := time.Now()
	_, err := engine.Submit(context.Background(), progress.Attempt{UserID: "alice", StageCode: "A1", LengthUsed: 10, TimeMS: 5000})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRelayFullQueueDeliversLocally(t *testing.T) {
	hub := NewHub(8)
	sub := hub.Subscribe()
	relay := newRedisRelay(silentClient(t), "", hub, nil, 1)
	defer relay.Close()

	for i := 0; i < 3; i++ {
		relay.Publish(event(i))
	}
	assert.GreaterOrEqual(t, relay.Overflowed(), uint64(1))

	select {
	case <-sub.Events():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("overflowed event not delivered locally")
	}
}

func TestRelayPublishAfterClose(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	hub := NewHub(4)
	sub := hub.Subscribe()
	relay := NewRedisRelay(client, "", hub, nil)
	relay.Close()
	relay.Close()

	relay.Publish(event(5))
	select {
	case ev := <-sub.Events():
		assert.Equal(t, "u5", ev.UserID)
	case <-time.After(time.Second):
		t.Fatal("event dropped after close")
	}
}

func TestRelayRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := DialRedis(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	hub := NewHub(4)
	sub := hub.Subscribe()
	relay := NewRedisRelay(client, "stageboard:test:"+sub.ID, hub, nil)
	defer relay.Close()

	errc := make(chan error, 1)
	go func() { errc <- relay.Run(ctx) }()

	// Publish until the subscriber is attached; the first message may race Run.
	require.Eventually(t, func() bool {
		relay.Publish(event(3))
		select {
		case ev := <-sub.Events():
			return ev.UserID == "u3"
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 4*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-errc)
}

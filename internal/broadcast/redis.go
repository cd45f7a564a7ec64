package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dalgonaburger/stageboard/internal/progress"
)

const DefaultChannel = "stageboard:attempts"

// DefaultRelayQueue bounds the events waiting to be sent to Redis.
const DefaultRelayQueue = 256

// RedisRelay shares events between server processes. The engine publishes to
// the relay; every process, the origin included, receives the event back from
// Redis through Run and hands it to its local hub.
//
// Publish never waits on Redis: events go through a bounded queue drained by
// a single forwarding goroutine. Close stops it.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *zap.Logger
	timeout time.Duration

	mu       sync.RWMutex
	closed   bool
	queue    chan progress.Event
	done     chan struct{}
	overflow atomic.Uint64
}

var _ progress.Publisher = (*RedisRelay)(nil)

// DialRedis parses a redis:// URL and checks the server answers.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func NewRedisRelay(client *redis.Client, channel string, hub *Hub, logger *zap.Logger) *RedisRelay {
	return newRedisRelay(client, channel, hub, logger, DefaultRelayQueue)
}

func newRedisRelay(client *redis.Client, channel string, hub *Hub, logger *zap.Logger, queueSize int) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize < 1 {
		queueSize = 1
	}
	r := &RedisRelay{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  logger,
		timeout: 2 * time.Second,
		queue:   make(chan progress.Event, queueSize),
		done:    make(chan struct{}),
	}
	go r.forward()
	return r
}

// Publish queues ev for Redis. When the queue is full or the relay is closed
// the event goes straight to the local hub instead.
func (r *RedisRelay) Publish(ev progress.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.hub.Publish(ev)
		return
	}
	select {
	case r.queue <- ev:
	default:
		r.overflow.Add(1)
		r.logger.Warn("redis relay queue full, delivering locally",
			zap.String("channel", r.channel),
			zap.String("user_id", ev.UserID),
		)
		r.hub.Publish(ev)
	}
}

// Overflowed reports how many events bypassed Redis because the queue was full.
func (r *RedisRelay) Overflowed() uint64 {
	return r.overflow.Load()
}

// Close stops accepting events, flushes what is queued and waits for the
// forwarding goroutine. It does not close the Redis client.
func (r *RedisRelay) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *RedisRelay) forward() {
	defer close(r.done)
	for ev := range r.queue {
		r.send(ev)
	}
}

// send forwards ev to Redis. When Redis is unreachable the event is still
// delivered to local observers.
func (r *RedisRelay) send(ev progress.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("encode event", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warn("redis publish failed, delivering locally",
			zap.String("channel", r.channel),
			zap.Error(err),
		)
		r.hub.Publish(ev)
	}
}

// Run relays messages from the Redis channel into the local hub until ctx is
// done or the subscription breaks.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("redis relay subscribed", zap.String("channel", r.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis channel %s closed", r.channel)
			}
			var ev progress.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Warn("skipping malformed relay message", zap.Error(err))
				continue
			}
			r.hub.Publish(ev)
		}
	}
}

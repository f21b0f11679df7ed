package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scripttrimmer/api/internal/model"
)

// retention bounds how long the latest update for a key survives without a
// reader. Matches the job record TTL.
const retention = 24 * time.Hour

// Subscription is a live view over a single job's progress channel, starting
// from the first update published after the subscription opened. No backlog
// is replayed.
type Subscription interface {
	// Updates yields updates in publish order. The channel is closed when
	// the subscription is closed; it does NOT close on terminal updates —
	// interpreting terminal status is the consumer's concern.
	Updates() <-chan model.ProgressUpdate
	Close() error
}

// Store is the shared progress channel between the process worker (single
// writer per key) and any number of stream subscribers. Delivery to live
// subscribers is best-effort; only the latest update per key is retained.
type Store interface {
	Publish(ctx context.Context, key string, update model.ProgressUpdate) error
	Subscribe(ctx context.Context, key string) (Subscription, error)
	Latest(ctx context.Context, key string) (*model.ProgressUpdate, error)
}

// RedisStore implements Store on Redis: the latest update per key is kept
// with SET/GET and live fan-out rides Redis pub/sub, so the worker and the
// API server may run as separate processes.
type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func latestKey(key string) string  { return fmt.Sprintf("progress:latest:%s", key) }
func channelKey(key string) string { return fmt.Sprintf("progress:events:%s", key) }

// Publish overwrites the retained update and broadcasts it to subscribers.
// A publish error is returned for logging but must be treated as non-fatal
// by the caller; the pipeline keeps running without listeners.
func (s *RedisStore) Publish(ctx context.Context, key string, update model.ProgressUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}

	if err := s.redis.Set(ctx, latestKey(key), data, retention).Err(); err != nil {
		return fmt.Errorf("failed to store latest update: %w", err)
	}

	if err := s.redis.Publish(ctx, channelKey(key), data).Err(); err != nil {
		return fmt.Errorf("failed to publish update: %w", err)
	}

	return nil
}

// Subscribe opens a fresh view on the key's channel.
func (s *RedisStore) Subscribe(ctx context.Context, key string) (Subscription, error) {
	pubsub := s.redis.Subscribe(ctx, channelKey(key))

	// Force the SUBSCRIBE round trip so updates published after this call
	// returns are guaranteed to be delivered.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	sub := &redisSubscription{
		pubsub:  pubsub,
		updates: make(chan model.ProgressUpdate, 16),
	}
	go sub.pump(pubsub.Channel())

	return sub, nil
}

// Latest returns the retained update for key, or nil when none exists.
func (s *RedisStore) Latest(ctx context.Context, key string) (*model.ProgressUpdate, error) {
	data, err := s.redis.Get(ctx, latestKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read latest update: %w", err)
	}

	var update model.ProgressUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return nil, fmt.Errorf("failed to unmarshal update: %w", err)
	}

	return &update, nil
}

type redisSubscription struct {
	pubsub  *redis.PubSub
	updates chan model.ProgressUpdate
}

func (s *redisSubscription) pump(in <-chan *redis.Message) {
	defer close(s.updates)
	for msg := range in {
		var update model.ProgressUpdate
		if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
			continue
		}
		// Slow consumers skip intermediate updates; the latest stays
		// readable via Latest.
		select {
		case s.updates <- update:
		default:
		}
	}
}

func (s *redisSubscription) Updates() <-chan model.ProgressUpdate {
	return s.updates
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}

package repository

import (
	"context"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Must match the processor's key layout
const (
	keyPrefix     = "latest:"
	channelPrefix = "feed."
)

var _ PriceStore = (*RedisStore)(nil)

type RedisStore struct {
	client *redis.Client
	pubsub *redis.PubSub
	mu     sync.Mutex
}

func NewRedisStore(client *redis.Client) *RedisStore {
	ps := client.Subscribe(context.Background())
	return &RedisStore{
		client: client,
		pubsub: ps,
	}
}

// GetSnapshots fetches the latest stored payload per topic (MGET). Topics
// with nothing stored yet are skipped.
func (r *RedisStore) GetSnapshots(ctx context.Context, topics []string) ([]string, error) {
	if len(topics) == 0 {
		return nil, nil
	}

	keys := make([]string, len(topics))
	for i, topic := range topics {
		keys[i] = keyPrefix + topic
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var snapshots []string
	for _, val := range results {
		if payload, ok := val.(string); ok && payload != "" {
			snapshots = append(snapshots, payload)
		}
	}
	return snapshots, nil
}

func (r *RedisStore) SubscribeToFeed(ctx context.Context, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pubsub.Subscribe(ctx, channelPrefix+topic)
}

func (r *RedisStore) UnsubscribeFromFeed(ctx context.Context, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pubsub.Unsubscribe(ctx, channelPrefix+topic)
}

// RunPubSub blocks, handing every message to onMessage with the topic
// stripped of its channel prefix. It returns when ctx ends or the store closes.
func (r *RedisStore) RunPubSub(ctx context.Context, onMessage func(topic string, payload string)) {
	ch := r.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			topic, found := strings.CutPrefix(msg.Channel, channelPrefix)
			if !found || topic == "" {
				continue
			}
			onMessage(topic, msg.Payload)
		}
	}
}

func (r *RedisStore) Close() error {
	if err := r.pubsub.Close(); err != nil {
		return err
	}
	return r.client.Close()
}

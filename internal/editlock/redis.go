package editlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	redisPrefix = "blockwiki:"

	// DefaultRetention bounds how long an abandoned lease lingers in Redis.
	// Expiry itself is decided by the record, not by the key TTL.
	DefaultRetention = 24 * time.Hour
)

// DialRedis connects to the Redis server at redisURL.
func DialRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// RedisStorage keeps lease records in Redis so that contexts in different
// processes share them.
type RedisStorage struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisStorage wraps client. A non-positive retention uses
// DefaultRetention.
func NewRedisStorage(client *redis.Client, retention time.Duration) *RedisStorage {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisStorage{client: client, prefix: redisPrefix, retention: retention}
}

func (s *RedisStorage) key(k string) string {
	return s.prefix + k
}

func (s *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *RedisStorage) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, s.retention).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStorage) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (s *RedisStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// RedisBroadcaster carries lock messages over Redis pub/sub, CBOR encoded.
type RedisBroadcaster struct {
	client *redis.Client
	prefix string
	log    zerolog.Logger
}

func NewRedisBroadcaster(client *redis.Client, log zerolog.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, prefix: redisPrefix, log: log}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, channel string, msg Message) error {
	payload, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.prefix+channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so nothing
// published afterwards is missed.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, b.prefix+channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	sub := &redisSubscription{ps: ps, ch: make(chan Message, subscriptionBuffer)}
	go sub.pump(b.log.With().Str("channel", channel).Logger())
	return sub, nil
}

type redisSubscription struct {
	ps *redis.PubSub
	ch chan Message
}

func (s *redisSubscription) pump(log zerolog.Logger) {
	defer close(s.ch)
	for m := range s.ps.Channel() {
		msg, err := decodeMessage([]byte(m.Payload))
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed lock message")
			continue
		}
		select {
		case s.ch <- msg:
		default:
			log.Debug().Str("type", string(msg.Type)).Msg("lock subscriber behind, message dropped")
		}
	}
}

func (s *redisSubscription) Messages() <-chan Message {
	return s.ch
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}

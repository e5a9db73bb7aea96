package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the list outcome lines are pushed to.
const DefaultRedisKey = "lbsim:outcomes"

const redisWriteTimeout = 500 * time.Millisecond

// listPusher is the subset of the redis client the sink needs.
type listPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// Redis appends lines to a Redis list with RPUSH.
type Redis struct {
	client listPusher
	closer func() error
	key    string
}

// RedisOptions configures a Redis sink.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	s := newRedis(rdb, opts.Key)
	s.closer = rdb.Close
	return s, nil
}

func newRedis(client listPusher, key string) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{client: client, key: key}
}

// Key returns the list key lines are appended to.
func (s *Redis) Key() string { return s.key }

func (s *Redis) WriteLine(ctx context.Context, line string) error {
	// The request context may already be done once the response is
	// written; the push gets its own short deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), redisWriteTimeout)
	defer cancel()
	return s.client.RPush(ctx, s.key, line).Err()
}

// Close releases the connection pool.
func (s *Redis) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

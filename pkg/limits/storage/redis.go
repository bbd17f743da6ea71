package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldPoints   = "points"
	fieldExpireAt = "expire_at"
)

// RedisBackend implements Backend on Redis so several instances can share
// counters.
//
// Each record is a hash {points, expire_at} whose key carries a PEXPIREAT
// matching the window end, so Redis drops ended windows on its own. Updates use
// WATCH/MULTI and are retried when another client touches the key first.
type RedisBackend struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
	ownsClient bool
}

// RedisBackendConfig configures the Redis backend.
type RedisBackendConfig struct {
	// Addr is the Redis server address.
	// Default: localhost:6379
	Addr string

	// Password for AUTH, empty for none.
	Password string

	// DB selects the logical database.
	DB int

	// Prefix is prepended to every counter key.
	// Default: "gatekeeper:"
	Prefix string

	// MaxRetries bounds optimistic transaction retries per update.
	// Default: 16
	MaxRetries int
}

func (c *RedisBackendConfig) applyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.Prefix == "" {
		c.Prefix = "gatekeeper:"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 16
	}
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(cfg RedisBackendConfig) (*RedisBackend, error) {
	cfg.applyDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	backend, err := NewRedisBackendWithClient(client, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	backend.ownsClient = true
	return backend, nil
}

// NewRedisBackendWithClient builds a backend on a client owned by the caller.
// Close does not close client. Only Prefix and MaxRetries are read from cfg.
func NewRedisBackendWithClient(client redis.UniversalClient, cfg RedisBackendConfig) (*RedisBackend, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	cfg.applyDefaults()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, ErrUnavailable.Wrap(fmt.Errorf("failed to ping redis: %w", err))
	}

	return &RedisBackend{
		client:     client,
		prefix:     cfg.Prefix,
		maxRetries: cfg.MaxRetries,
	}, nil
}

// Update applies fn to the record for key inside a WATCH/MULTI transaction.
func (r *RedisBackend) Update(ctx context.Context, key string, fn UpdateFunc) (*Record, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	rkey := r.prefix + key
	var result *Record

	txf := func(tx *redis.Tx) error {
		current, err := loadRecord(ctx, tx, key, rkey)
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return passthrough{err}
		}
		if next == nil {
			result = current
			return nil
		}

		next.Key = key
		expireAt := next.ExpireAt.UnixMilli()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, rkey, fieldPoints, next.Points, fieldExpireAt, expireAt)
			pipe.PExpireAt(ctx, rkey, time.UnixMilli(expireAt))
			return nil
		})
		if err != nil {
			return err
		}

		stored := *next
		stored.ExpireAt = time.UnixMilli(expireAt)
		result = &stored
		return nil
	}

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, rkey)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if abort, ok := unwrapAbort(err); ok {
			return nil, abort
		}
		return nil, ErrUnavailable.Wrap(err)
	}

	return nil, ErrUnavailable.Wrap(fmt.Errorf("%w: %s after %d attempts", ErrConflict, key, r.maxRetries))
}

// Get returns the record for key.
func (r *RedisBackend) Get(ctx context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	rec, err := loadRecord(ctx, r.client, key, r.prefix+key)
	if err != nil {
		return nil, ErrUnavailable.Wrap(err)
	}
	return rec, nil
}

// DeleteExpired is a no-op: Redis removes ended windows through key expiry.
func (r *RedisBackend) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	return 0, nil
}

// Close closes the client when the backend created it.
func (r *RedisBackend) Close() error {
	if r.ownsClient {
		return r.client.Close()
	}
	return nil
}

// hashReader is satisfied by both *redis.Tx and redis.UniversalClient.
type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// loadRecord reads the hash stored at rkey. A missing key yields nil.
func loadRecord(ctx context.Context, c hashReader, key, rkey string) (*Record, error) {
	fields, err := c.HGetAll(ctx, rkey).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	points, err := strconv.ParseInt(fields[fieldPoints], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt points for %s: %w", key, err)
	}
	expireAt, err := strconv.ParseInt(fields[fieldExpireAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt expire_at for %s: %w", key, err)
	}

	return &Record{Key: key, Points: points, ExpireAt: time.UnixMilli(expireAt)}, nil
}

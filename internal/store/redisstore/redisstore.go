// Package redisstore keeps the config document in a Redis hash guarded by a compare-and-swap script.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/banners/backend/internal/store"
	"github.com/redis/go-redis/v9"
)

const (
	fieldData    = "data"
	fieldVersion = "version"
)

// compareAndSet writes data and version only when the stored version equals ARGV[1].
// An empty ARGV[1] requires the key to be absent.
var compareAndSet = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current == false then
	current = ''
end
if current ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], 'data', ARGV[2], 'version', ARGV[3])
return 1
`)

// Options configures the Redis connection.
type Options struct {
	Address  string
	Username string
	Password string
	DB       int
	Timeout  time.Duration
}

// NewClient dials Redis and verifies the connection.
func NewClient(ctx context.Context, options Options) (*redis.Client, error) {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         options.Address,
		Username:     options.Username,
		Password:     options.Password,
		DB:           options.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// Store implements store.DocumentStore on a Redis hash.
type Store struct {
	client redis.UniversalClient
}

// New wraps an existing client.
func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

func (s *Store) Load(ctx context.Context, key string) (store.Snapshot, error) {
	if key == "" {
		return store.Snapshot{}, store.ErrMissingKey
	}
	values, err := s.client.HMGet(ctx, key, fieldData, fieldVersion).Result()
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("redis load %s: %w", key, err)
	}
	data, hasData := values[0].(string)
	if !hasData {
		return store.Snapshot{}, nil
	}
	// A hash written outside this store may lack the version field; the empty
	// version is what compareAndSet reads for it, so the next Save still applies.
	version, _ := values[1].(string)
	return store.Snapshot{Data: []byte(data), Version: version, Exists: true}, nil
}

func (s *Store) Save(ctx context.Context, key string, data []byte, expectedVersion string) (string, error) {
	if key == "" {
		return "", store.ErrMissingKey
	}
	version := store.Digest(data)
	applied, err := compareAndSet.Run(ctx, s.client, []string{key}, expectedVersion, data, version).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", store.ErrVersionConflict
		}
		return "", fmt.Errorf("redis save %s: %w", key, err)
	}
	if applied != 1 {
		return "", store.ErrVersionConflict
	}
	return version, nil
}

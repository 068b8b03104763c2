package cache

import (
	"context"

	"github.com/jmgilman/go/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key the state document is stored under.
const DefaultRedisKey = "request-cache:state"

// RedisPersister keeps the store state as a single JSON document in Redis,
// so that several instances can share it.
type RedisPersister struct {
	client *redis.Client
	key    string
}

// NewRedisPersister uses the given client. An empty key means DefaultRedisKey.
func NewRedisPersister(client *redis.Client, key string) *RedisPersister {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisPersister{client: client, key: key}
}

// NewRedisPersisterURL connects to the Redis server at the given URL,
// e.g. redis://localhost:6379/0.
func NewRedisPersisterURL(url, key string) (*RedisPersister, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "invalid redis url")
	}
	return NewRedisPersister(redis.NewClient(opts), key), nil
}

func (p *RedisPersister) Save(ctx context.Context, state *PersistedState) error {
	b, err := encodeState(state)
	if err != nil {
		return err
	}
	if err := p.client.Set(ctx, p.key, b, 0).Err(); err != nil {
		return errors.Wrap(err, errors.CodeDatabase, "could not save cache state to redis")
	}
	return nil
}

func (p *RedisPersister) Load(ctx context.Context) (*PersistedState, error) {
	b, err := p.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabase, "could not load cache state from redis")
	}
	return decodeState(b)
}

func (p *RedisPersister) Close() error {
	return p.client.Close()
}

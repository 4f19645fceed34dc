package state

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNonceStore keeps issued nonces in redis with the token's TTL.
// GETDEL makes consumption atomic across concurrent callbacks.
type RedisNonceStore struct {
	client *redis.Client
	prefix string
}

func NewRedisNonceStore(client *redis.Client) *RedisNonceStore {
	return &RedisNonceStore{
		client: client,
		prefix: "oauth_state:",
	}
}

func (r *RedisNonceStore) key(nonce string) string {
	return r.prefix + nonce
}

func (r *RedisNonceStore) Save(ctx context.Context, nonce string, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(nonce), "1", ttl).Err()
}

func (r *RedisNonceStore) Consume(ctx context.Context, nonce string) error {
	err := r.client.GetDel(ctx, r.key(nonce)).Err()
	if err == redis.Nil {
		return ErrConsumed
	}
	return err
}

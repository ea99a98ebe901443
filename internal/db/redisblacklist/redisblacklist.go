// Package redisblacklist keeps the refresh token blacklist in Redis.
// Every entry expires together with the token it revokes.
package redisblacklist

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "token_blacklist:"

// minTTL keeps entries of tokens that are about to expire alive long enough to be seen.
const minTTL = time.Second

// RedisBlacklist is a Redis implementation of the token blacklist.
type RedisBlacklist struct {
	client *redis.Client
	prefix string
}

// New returns a blacklist on top of client.
func New(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{
		client: client,
		prefix: defaultPrefix,
	}
}

// NewFromAddr connects to the Redis server at addr and checks the connection.
func NewFromAddr(ctx context.Context, addr string) (*RedisBlacklist, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("in internal/db/redisblacklist/redisblacklist.go/NewFromAddr(): error while `client.Ping()` calling: %w", err)
	}

	return New(client), nil
}

// BlacklistToken records tokenID until expiresAt. It returns false if the token was already listed.
func (b *RedisBlacklist) BlacklistToken(ctx context.Context, tokenID string, userID int64, expiresAt time.Time) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl < minTTL {
		ttl = minTTL
	}

	added, err := b.client.SetNX(ctx, b.prefix+tokenID, strconv.FormatInt(userID, 10), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("in internal/db/redisblacklist/redisblacklist.go/BlacklistToken(): error while `SetNX()` calling: %w", err)
	}

	return added, nil
}

func (b *RedisBlacklist) IsTokenBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	err := b.client.Get(ctx, b.prefix+tokenID).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("in internal/db/redisblacklist/redisblacklist.go/IsTokenBlacklisted(): error while `Get()` calling: %w", err)
	}

	return true, nil
}

func (b *RedisBlacklist) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBlacklist) Close() error {
	return b.client.Close()
}

package data

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionPrefix = "session:"

func MustRedis(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	return redis.NewClient(opt)
}

// SessionStore tracks live session token IDs so logout revokes a JWT before
// its expiry.
type SessionStore struct {
	rdb *redis.Client
}

func NewSessionStore(rdb *redis.Client) *SessionStore {
	return &SessionStore{rdb: rdb}
}

func (s *SessionStore) Save(ctx context.Context, jti, slug string, ttl time.Duration) error {
	return s.rdb.Set(ctx, sessionPrefix+jti, slug, ttl).Err()
}

func (s *SessionStore) Active(ctx context.Context, jti string) (bool, error) {
	n, err := s.rdb.Exists(ctx, sessionPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SessionStore) Delete(ctx context.Context, jti string) error {
	return s.rdb.Del(ctx, sessionPrefix+jti).Err()
}

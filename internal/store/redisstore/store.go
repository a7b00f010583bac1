package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const verifyCodeTTL = 5 * time.Minute

// Store holds short-lived email verification codes used during registration.
type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) SetVerifyCode(ctx context.Context, email, code string) error {
	return s.rdb.Set(ctx, "verify:"+email, code, verifyCodeTTL).Err()
}

// GetVerifyCode returns redis.Nil when the code is absent or expired.
func (s *Store) GetVerifyCode(ctx context.Context, email string) (string, error) {
	return s.rdb.Get(ctx, "verify:"+email).Result()
}

func (s *Store) DeleteVerifyCode(ctx context.Context, email string) error {
	return s.rdb.Del(ctx, "verify:"+email).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

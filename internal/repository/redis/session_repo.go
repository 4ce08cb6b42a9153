package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found")

const sessionKeyPrefix = "login:user:token:"

// SessionRepository 每个登录名只保留最近签发的一个 token
type SessionRepository struct {
	RDB *redis.Client
	TTL time.Duration
}

func (r *SessionRepository) Save(ctx context.Context, login, token string) error {
	const op = "repository/redis/session.Save"
	return wrap(op, r.RDB.Set(ctx, sessionKeyPrefix+login, token, r.TTL).Err())
}

func (r *SessionRepository) Get(ctx context.Context, login string) (string, error) {
	const op = "repository/redis/session.Get"
	token, err := r.RDB.Get(ctx, sessionKeyPrefix+login).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", wrap(op, err)
	}
	return token, nil
}

// Extend 校验通过后续期
func (r *SessionRepository) Extend(ctx context.Context, login string) error {
	const op = "repository/redis/session.Extend"
	return wrap(op, r.RDB.Expire(ctx, sessionKeyPrefix+login, r.TTL).Err())
}

func (r *SessionRepository) Delete(ctx context.Context, login string) error {
	const op = "repository/redis/session.Delete"
	return wrap(op, r.RDB.Del(ctx, sessionKeyPrefix+login).Err())
}

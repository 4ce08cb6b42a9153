package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "lock:"

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`)

// 只续期自己持有的锁
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("pexpire", KEYS[1], ARGV[2])
else
  return 0
end`)

// DistLock SETNX 实现的分布式锁，token 用来识别持有者
type DistLock struct {
	RDB *redis.Client
}

// Acquire 请求加分布式锁
func (l *DistLock) Acquire(ctx context.Context, name, token string, ttl time.Duration) (bool, error) {
	const op = "repository/redis/lock.Acquire"
	ok, err := l.RDB.SetNX(ctx, lockKeyPrefix+name, token, ttl).Result()
	if err != nil {
		return false, wrap(op, err)
	}
	return ok, nil
}

// Release 用lua保证原子性
func (l *DistLock) Release(ctx context.Context, name, token string) error {
	const op = "repository/redis/lock.Release"
	return wrap(op, releaseScript.Run(ctx, l.RDB, []string{lockKeyPrefix + name}, token).Err())
}

// Extend 续期；锁已过期或被别人持有时返回 false
func (l *DistLock) Extend(ctx context.Context, name, token string, ttl time.Duration) (bool, error) {
	const op = "repository/redis/lock.Extend"
	n, err := extendScript.Run(ctx, l.RDB, []string{lockKeyPrefix + name}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, wrap(op, err)
	}
	return n == 1, nil
}

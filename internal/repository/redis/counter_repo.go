package redis

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	userCounterPrefix   = "counter:user:"
	statusCounterPrefix = "counter:status:"

	FieldFriends   = "friends"
	FieldFollowers = "followers"
	FieldStatuses  = "statuses"
	FieldLikes     = "likes"
	FieldReplies   = "replies"
)

// 计数不会减到负数；key 或字段不存在时直接返回 0
var decrScript = redis.NewScript(`
local v = tonumber(redis.call("HGET", KEYS[1], ARGV[1]) or "0")
if v <= 0 then
  return 0
end
return redis.call("HINCRBY", KEYS[1], ARGV[1], -1)`)

// CounterRepository 用户和状态计数，只用原子操作
type CounterRepository struct {
	RDB *redis.Client
}

func UserCounter(login string) string      { return userCounterPrefix + login }
func StatusCounter(statusID string) string { return statusCounterPrefix + statusID }

func (r *CounterRepository) Incr(ctx context.Context, subject, field string) (int64, error) {
	const op = "repository/redis/counter.Incr"
	n, err := r.RDB.HIncrBy(ctx, subject, field, 1).Result()
	if err != nil {
		return 0, wrap(op, err)
	}
	return n, nil
}

func (r *CounterRepository) Decr(ctx context.Context, subject, field string) (int64, error) {
	const op = "repository/redis/counter.Decr"
	n, err := decrScript.Run(ctx, r.RDB, []string{subject}, field).Int64()
	if err != nil {
		return 0, wrap(op, err)
	}
	return n, nil
}

func (r *CounterRepository) Get(ctx context.Context, subject, field string) (int64, error) {
	const op = "repository/redis/counter.Get"
	v, err := r.RDB.HGet(ctx, subject, field).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, wrap(op, err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, wrap(op, err)
	}
	return n, nil
}

// Set 只给对账和初始化用
func (r *CounterRepository) Set(ctx context.Context, subject, field string, value int64) error {
	const op = "repository/redis/counter.Set"
	return wrap(op, r.RDB.HSet(ctx, subject, field, value).Err())
}

// CreateLikeCounter 显式置 0，已有值时保持不变
func (r *CounterRepository) CreateLikeCounter(ctx context.Context, statusID string) error {
	const op = "repository/redis/counter.CreateLikeCounter"
	return wrap(op, r.RDB.HSetNX(ctx, StatusCounter(statusID), FieldLikes, 0).Err())
}

// DeleteCounters 删除状态的点赞和回复计数
func (r *CounterRepository) DeleteCounters(ctx context.Context, statusID string) error {
	const op = "repository/redis/counter.DeleteCounters"
	return wrap(op, r.RDB.Del(ctx, StatusCounter(statusID)).Err())
}

func (r *CounterRepository) IncrementFriends(ctx context.Context, login string) error {
	_, err := r.Incr(ctx, UserCounter(login), FieldFriends)
	return err
}

func (r *CounterRepository) DecrementFriends(ctx context.Context, login string) error {
	_, err := r.Decr(ctx, UserCounter(login), FieldFriends)
	return err
}

func (r *CounterRepository) IncrementFollowers(ctx context.Context, login string) error {
	_, err := r.Incr(ctx, UserCounter(login), FieldFollowers)
	return err
}

func (r *CounterRepository) DecrementFollowers(ctx context.Context, login string) error {
	_, err := r.Decr(ctx, UserCounter(login), FieldFollowers)
	return err
}

func (r *CounterRepository) IncrementStatuses(ctx context.Context, login string) error {
	_, err := r.Incr(ctx, UserCounter(login), FieldStatuses)
	return err
}

func (r *CounterRepository) DecrementStatuses(ctx context.Context, login string) error {
	_, err := r.Decr(ctx, UserCounter(login), FieldStatuses)
	return err
}

func (r *CounterRepository) IncrementLikes(ctx context.Context, statusID string) error {
	_, err := r.Incr(ctx, StatusCounter(statusID), FieldLikes)
	return err
}

func (r *CounterRepository) DecrementLikes(ctx context.Context, statusID string) error {
	_, err := r.Decr(ctx, StatusCounter(statusID), FieldLikes)
	return err
}

func (r *CounterRepository) IncrementReplies(ctx context.Context, statusID string) error {
	_, err := r.Incr(ctx, StatusCounter(statusID), FieldReplies)
	return err
}

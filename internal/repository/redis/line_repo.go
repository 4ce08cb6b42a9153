package redis

import (
	"context"
	"errors"

	"Lee_Timeline/internal/model"

	"github.com/redis/go-redis/v9"
)

const lineKeyPrefix = "line:"

// LineRepository 每条线是一个 score 全为 0 的有序集合，按成员字典序排序。
// 状态 id 为 UUIDv7 文本，字典序即时间序。
type LineRepository struct {
	RDB *redis.Client
}

func lineKey(l model.Line) string {
	return lineKeyPrefix + l.String()
}

func members(ids []string) []redis.Z {
	zs := make([]redis.Z, len(ids))
	for i, id := range ids {
		zs[i] = redis.Z{Member: id}
	}
	return zs
}

func (r *LineRepository) Add(ctx context.Context, line model.Line, ids ...string) error {
	const op = "repository/redis/line.Add"
	if len(ids) == 0 {
		return nil
	}
	return wrap(op, r.RDB.ZAdd(ctx, lineKey(line), members(ids)...).Err())
}

// AddToMany 扇出到多个 key，单次 pipeline，不保证原子
func (r *LineRepository) AddToMany(ctx context.Context, kind model.LineKind, keys []string, id string) error {
	const op = "repository/redis/line.AddToMany"
	if len(keys) == 0 {
		return nil
	}
	_, err := r.RDB.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range keys {
			p.ZAdd(ctx, lineKey(model.Line{Kind: kind, Key: k}), redis.Z{Member: id})
		}
		return nil
	})
	return wrap(op, err)
}

func (r *LineRepository) Remove(ctx context.Context, line model.Line, ids ...string) error {
	const op = "repository/redis/line.Remove"
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return wrap(op, r.RDB.ZRem(ctx, lineKey(line), args...).Err())
}

// Range 新的在前。start 取比它新的，finish 取比它旧的，都不含边界。
func (r *LineRepository) Range(ctx context.Context, line model.Line, start, finish string, count int) ([]string, error) {
	const op = "repository/redis/line.Range"
	by := &redis.ZRangeBy{Max: "+", Min: "-", Count: int64(count)}
	if finish != "" {
		by.Max = "(" + finish
	}
	if start != "" {
		by.Min = "(" + start
	}
	ids, err := r.RDB.ZRevRangeByLex(ctx, lineKey(line), by).Result()
	if err != nil {
		return nil, wrap(op, err)
	}
	return ids, nil
}

func (r *LineRepository) Contains(ctx context.Context, line model.Line, id string) (bool, error) {
	const op = "repository/redis/line.Contains"
	err := r.RDB.ZScore(ctx, lineKey(line), id).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, wrap(op, err)
	}
	return true, nil
}

// Members 整条线，按 id 倒序
func (r *LineRepository) Members(ctx context.Context, line model.Line) ([]string, error) {
	const op = "repository/redis/line.Members"
	ids, err := r.RDB.ZRevRangeByLex(ctx, lineKey(line), &redis.ZRangeBy{Max: "+", Min: "-"}).Result()
	if err != nil {
		return nil, wrap(op, err)
	}
	return ids, nil
}

func (r *LineRepository) Count(ctx context.Context, line model.Line) (int64, error) {
	const op = "repository/redis/line.Count"
	n, err := r.RDB.ZCard(ctx, lineKey(line)).Result()
	if err != nil {
		return 0, wrap(op, err)
	}
	return n, nil
}

func (r *LineRepository) Delete(ctx context.Context, line model.Line) error {
	const op = "repository/redis/line.Delete"
	return wrap(op, r.RDB.Del(ctx, lineKey(line)).Err())
}

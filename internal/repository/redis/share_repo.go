package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const (
	sharesKeyPrefix = "shares:"
	lastReplyKey    = "reply:last"
)

// ShareRepository 原状态 -> 分享人集合的反向索引
type ShareRepository struct {
	RDB *redis.Client
}

func (r *ShareRepository) AddShare(ctx context.Context, originalID, login string) error {
	const op = "repository/redis/share.AddShare"
	return wrap(op, r.RDB.SAdd(ctx, sharesKeyPrefix+originalID, login).Err())
}

func (r *ShareRepository) SharedBy(ctx context.Context, originalID string) ([]string, error) {
	const op = "repository/redis/share.SharedBy"
	logins, err := r.RDB.SMembers(ctx, sharesKeyPrefix+originalID).Result()
	if err != nil {
		return nil, wrap(op, err)
	}
	return logins, nil
}

func (r *ShareRepository) HasShared(ctx context.Context, originalID, login string) (bool, error) {
	const op = "repository/redis/share.HasShared"
	ok, err := r.RDB.SIsMember(ctx, sharesKeyPrefix+originalID, login).Result()
	if err != nil {
		return false, wrap(op, err)
	}
	return ok, nil
}

func (r *ShareRepository) DeleteShares(ctx context.Context, originalID string) error {
	const op = "repository/redis/share.DeleteShares"
	return wrap(op, r.RDB.Del(ctx, sharesKeyPrefix+originalID).Err())
}

// ReplyRepository 记录每个讨论最后回复的用户名
type ReplyRepository struct {
	RDB *redis.Client
}

func (r *ReplyRepository) SetLastReply(ctx context.Context, rootID, username string) error {
	const op = "repository/redis/reply.SetLastReply"
	return wrap(op, r.RDB.HSet(ctx, lastReplyKey, rootID, username).Err())
}

// LastReply 没有回复时返回空串
func (r *ReplyRepository) LastReply(ctx context.Context, rootID string) (string, error) {
	const op = "repository/redis/reply.LastReply"
	v, err := r.RDB.HGet(ctx, lastReplyKey, rootID).Result()
	if err != nil {
		return "", wrap(op, err)
	}
	return v, nil
}

func (r *ReplyRepository) DeleteLastReply(ctx context.Context, rootID string) error {
	const op = "repository/redis/reply.DeleteLastReply"
	return wrap(op, r.RDB.HDel(ctx, lastReplyKey, rootID).Err())
}

package mysql

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"Lee_Timeline/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FriendshipRepository 关注关系，按登录名存储
type FriendshipRepository struct {
	DB *gorm.DB
}

// FriendRequestRepository 双向确认模式下的待处理请求
type FriendRequestRepository struct {
	DB *gorm.DB
}

type OutboxRepository struct {
	DB *gorm.DB
}

// CounterReconcileRepository 从关系表统计真实计数，用于修正 redis 计数器
type CounterReconcileRepository struct {
	DB *gorm.DB
}

// LoginCursor 对账分页游标
type LoginCursor struct {
	ID    uint64
	Login string
}

// Follow 设置关系为关注（幂等）。如果状态从未关注切换为已关注，则返回 changed=true。
func (r *FriendshipRepository) Follow(ctx context.Context, follower, friend string) (bool, error) {
	const op = "repository/mysql/friendship.Follow"
	var changed bool
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rel model.Friendship
		// select for update 避免竞争
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("follower_login = ? AND friend_login = ?", follower, friend).
			Take(&rel).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			rel = model.Friendship{FollowerLogin: follower, FriendLogin: friend, Status: 1}
			if err = tx.Create(&rel).Error; err != nil {
				return err
			}
			changed = true
			return insertOutbox(tx, "follow", follower, friend)
		}
		// 重复请求直接返回
		if rel.Status == 1 {
			return nil
		}
		if err := tx.Model(&model.Friendship{}).
			Where("id = ? AND status = 0", rel.ID).
			Update("status", 1).Error; err != nil {
			return err
		}
		changed = true
		return insertOutbox(tx, "follow", follower, friend)
	})
	return changed, wrap(op, err)
}

// Unfollow 取消关注，关系不存在或已取消时 changed=false
func (r *FriendshipRepository) Unfollow(ctx context.Context, follower, friend string) (bool, error) {
	const op = "repository/mysql/friendship.Unfollow"
	var changed bool
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rel model.Friendship
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("follower_login = ? AND friend_login = ?", follower, friend).
			Take(&rel).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if rel.Status == 0 {
			return nil
		}
		if err := tx.Model(&model.Friendship{}).
			Where("id = ? AND status = 1", rel.ID).
			Update("status", 0).Error; err != nil {
			return err
		}
		changed = true
		return insertOutbox(tx, "unfollow", follower, friend)
	})
	return changed, wrap(op, err)
}

func (r *FriendshipRepository) IsFollowing(ctx context.Context, follower, friend string) (bool, error) {
	const op = "repository/mysql/friendship.IsFollowing"
	var n int64
	if err := r.DB.WithContext(ctx).Model(&model.Friendship{}).
		Where("follower_login = ? AND friend_login = ? AND status = 1", follower, friend).
		Count(&n).Error; err != nil {
		return false, wrap(op, err)
	}
	return n > 0, nil
}

// FriendsOf login 关注的所有人
func (r *FriendshipRepository) FriendsOf(ctx context.Context, login string) ([]string, error) {
	const op = "repository/mysql/friendship.FriendsOf"
	var out []string
	if err := r.DB.WithContext(ctx).Model(&model.Friendship{}).
		Where("follower_login = ? AND status = 1", login).
		Order("id ASC").
		Pluck("friend_login", &out).Error; err != nil {
		return nil, wrap(op, err)
	}
	return out, nil
}

// FollowersOf 关注 login 的所有人
func (r *FriendshipRepository) FollowersOf(ctx context.Context, login string) ([]string, error) {
	const op = "repository/mysql/friendship.FollowersOf"
	var out []string
	if err := r.DB.WithContext(ctx).Model(&model.Friendship{}).
		Where("friend_login = ? AND status = 1", login).
		Order("id ASC").
		Pluck("follower_login", &out).Error; err != nil {
		return nil, wrap(op, err)
	}
	return out, nil
}

// ListFriends 游标分页的关注列表
func (r *FriendshipRepository) ListFriends(ctx context.Context, login string, cursor uint64, limit int) ([]model.Friendship, uint64, error) {
	return r.list(ctx, "repository/mysql/friendship.ListFriends", "follower_login", login, cursor, limit)
}

// ListFollowers 游标分页的粉丝列表
func (r *FriendshipRepository) ListFollowers(ctx context.Context, login string, cursor uint64, limit int) ([]model.Friendship, uint64, error) {
	return r.list(ctx, "repository/mysql/friendship.ListFollowers", "friend_login", login, cursor, limit)
}

func (r *FriendshipRepository) list(ctx context.Context, op, column, login string, cursor uint64, limit int) ([]model.Friendship, uint64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := r.DB.WithContext(ctx).Model(&model.Friendship{}).
		Where(column+" = ? AND status = 1", login)
	if cursor > 0 {
		q = q.Where("id < ?", cursor)
	}
	var rows []model.Friendship
	// 多取一条用来判断是否还有下一页
	if err := q.Order("id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, 0, wrap(op, err)
	}
	var next uint64
	if len(rows) > limit {
		next = rows[limit-1].ID
		rows = rows[:limit]
	}
	return rows, next, nil
}

// 插入outbox事件表
func insertOutbox(tx *gorm.DB, event, follower, followee string) error {
	payload, _ := json.Marshal(map[string]any{
		"event":      event,
		"event_time": time.Now().UTC().Format(time.RFC3339Nano),
		"follower":   follower,
		"followee":   followee,
	})
	return tx.Create(&model.SocialOutbox{
		EventType: event,
		Follower:  follower,
		Followee:  followee,
		Payload:   string(payload),
	}).Error
}

// Add 记录 login 向 friendLogin 发出的请求，已存在时返回 false
func (r *FriendRequestRepository) Add(ctx context.Context, login, friendLogin, statusID string) (bool, error) {
	const op = "repository/mysql/friend_request.Add"
	var added bool
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "login"}, {Name: "friend_login"}},
			DoNothing: true,
		}).Create(&model.FriendRequest{Login: login, FriendLogin: friendLogin, StatusID: statusID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		added = true
		return insertOutbox(tx, "friend_request", login, friendLogin)
	})
	return added, wrap(op, err)
}

func (r *FriendRequestRepository) Exists(ctx context.Context, login, friendLogin string) (bool, error) {
	const op = "repository/mysql/friend_request.Exists"
	var n int64
	if err := r.DB.WithContext(ctx).Model(&model.FriendRequest{}).
		Where("login = ? AND friend_login = ?", login, friendLogin).
		Count(&n).Error; err != nil {
		return false, wrap(op, err)
	}
	return n > 0, nil
}

// Remove 幂等删除
func (r *FriendRequestRepository) Remove(ctx context.Context, login, friendLogin string) error {
	const op = "repository/mysql/friend_request.Remove"
	return wrap(op, r.DB.WithContext(ctx).
		Where("login = ? AND friend_login = ?", login, friendLogin).
		Delete(&model.FriendRequest{}).Error)
}

// StatusIDFor 请求对应的 FRIEND_REQUEST 状态 id，没有请求时为空
func (r *FriendRequestRepository) StatusIDFor(ctx context.Context, login, friendLogin string) (string, error) {
	const op = "repository/mysql/friend_request.StatusIDFor"
	var req model.FriendRequest
	if err := r.DB.WithContext(ctx).
		Where("login = ? AND friend_login = ?", login, friendLogin).
		Take(&req).Error; err != nil {
		if notFound(err) {
			return "", nil
		}
		return "", wrap(op, err)
	}
	return req.StatusID, nil
}

// RequestsTo 向 login 发出请求的人
func (r *FriendRequestRepository) RequestsTo(ctx context.Context, login string) ([]string, error) {
	const op = "repository/mysql/friend_request.RequestsTo"
	var out []string
	if err := r.DB.WithContext(ctx).Model(&model.FriendRequest{}).
		Where("friend_login = ?", login).
		Order("id ASC").
		Pluck("login", &out).Error; err != nil {
		return nil, wrap(op, err)
	}
	return out, nil
}

// RequestsFrom login 发出且未处理的请求
func (r *FriendRequestRepository) RequestsFrom(ctx context.Context, login string) ([]string, error) {
	const op = "repository/mysql/friend_request.RequestsFrom"
	var out []string
	if err := r.DB.WithContext(ctx).Model(&model.FriendRequest{}).
		Where("login = ?", login).
		Order("id ASC").
		Pluck("friend_login", &out).Error; err != nil {
		return nil, wrap(op, err)
	}
	return out, nil
}

// List 待投递和可重试的事件，失败达到 maxRetry 次后不再取出
func (r *OutboxRepository) List(ctx context.Context, batchSize, maxRetry int) ([]model.SocialOutbox, error) {
	const op = "repository/mysql/outbox.List"
	var list []model.SocialOutbox
	if err := r.DB.WithContext(ctx).
		Where("status IN ? AND retry < ?", []int{0, 2}, maxRetry).
		Order("id ASC").
		Limit(batchSize).
		Find(&list).Error; err != nil {
		return nil, wrap(op, err)
	}
	return list, nil
}

// RetryUpdate outbox记录消息失败重试
func (r *OutboxRepository) RetryUpdate(ctx context.Context, id uint64) error {
	const op = "repository/mysql/outbox.RetryUpdate"
	return wrap(op, r.DB.WithContext(ctx).Model(&model.SocialOutbox{}).Where("id = ?", id).
		Updates(map[string]any{"status": 2, "retry": gorm.Expr("retry + 1")}).Error)
}

// SuccessUpdate outbox成功记录消息更新
func (r *OutboxRepository) SuccessUpdate(ctx context.Context, id uint64) error {
	const op = "repository/mysql/outbox.SuccessUpdate"
	return wrap(op, r.DB.WithContext(ctx).Model(&model.SocialOutbox{}).Where("id = ?", id).
		Update("status", 1).Error)
}

// ReconcileList 按 id 递增批量读取用户
func (r *CounterReconcileRepository) ReconcileList(ctx context.Context, batchSize int, lastID uint64) ([]LoginCursor, uint64, error) {
	const op = "repository/mysql/reconcile.ReconcileList"
	var list []LoginCursor
	if err := r.DB.WithContext(ctx).Model(&model.User{}).
		Select("id", "login").
		Where("id > ?", lastID).
		Order("id ASC").
		Limit(batchSize).
		Find(&list).Error; err != nil {
		return nil, lastID, wrap(op, err)
	}
	if len(list) == 0 {
		return nil, lastID, nil
	}
	return list, list[len(list)-1].ID, nil
}

// RealFriends 真实关注数
func (r *CounterReconcileRepository) RealFriends(ctx context.Context, login string) (int64, error) {
	return r.count(ctx, "repository/mysql/reconcile.RealFriends", "follower_login", login)
}

// RealFollowers 真实粉丝数
func (r *CounterReconcileRepository) RealFollowers(ctx context.Context, login string) (int64, error) {
	return r.count(ctx, "repository/mysql/reconcile.RealFollowers", "friend_login", login)
}

// RealStatuses 未删除的 STATUS 数
func (r *CounterReconcileRepository) RealStatuses(ctx context.Context, login string) (int64, error) {
	const op = "repository/mysql/reconcile.RealStatuses"
	var n int64
	if err := r.DB.WithContext(ctx).Model(&model.StatusRecord{}).
		Where("login = ? AND type = ? AND removed = ? AND state = ?", login, string(model.TypeStatus), false, "").
		Count(&n).Error; err != nil {
		return 0, wrap(op, err)
	}
	return n, nil
}

func (r *CounterReconcileRepository) count(ctx context.Context, op, column, login string) (int64, error) {
	var n int64
	if err := r.DB.WithContext(ctx).Model(&model.Friendship{}).
		Where(column+" = ? AND status = 1", login).
		Count(&n).Error; err != nil {
		return 0, wrap(op, err)
	}
	return n, nil
}

package service

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"Lee_Timeline/internal/config"
	"Lee_Timeline/internal/model"
	"Lee_Timeline/internal/pkg"
	"Lee_Timeline/internal/pkg/logger"
	"Lee_Timeline/internal/repository/mysql"
	"Lee_Timeline/internal/repository/redis"
)

// FriendshipService 关注与好友请求。MutualConsent 开启时关注需要对方确认。
type FriendshipService struct {
	st       *Stores
	notifier Notifier
	features config.Features
}

func NewFriendshipService(st *Stores, notifier Notifier, features config.Features) *FriendshipService {
	return &FriendshipService{st: st, notifier: notifier, features: features}
}

// target 在调用方所在域内按用户名查找，不存在或是自己都返回 nil
func (s *FriendshipService) target(ctx context.Context, user *model.User, username string) (*model.User, error) {
	if username == "" {
		return nil, nil
	}
	t, err := s.st.Users.FindByUsername(ctx, user.Domain, username)
	if err != nil || t == nil {
		return nil, err
	}
	if t.Login == user.Login {
		return nil, nil
	}
	return t, nil
}

func (s *FriendshipService) Follow(ctx context.Context, user *model.User, username string) (Outcome, error) {
	friend, err := s.target(ctx, user, username)
	if err != nil {
		return TargetNotFound, err
	}
	if friend == nil {
		return TargetNotFound, nil
	}
	if s.features.MutualConsent {
		return s.requestFriendship(ctx, user, friend)
	}

	changed, err := s.follow(ctx, user.Login, friend.Login)
	if err != nil {
		return TargetNotFound, err
	}
	if !changed {
		return AlreadyExists, nil
	}
	s.mentionFriend(ctx, friend.Login, user.Login)
	return Applied, nil
}

// requestFriendship 对方已经请求过就直接互相关注，否则发出请求
func (s *FriendshipService) requestFriendship(ctx context.Context, user, friend *model.User) (Outcome, error) {
	following, err := s.st.Friendships.IsFollowing(ctx, user.Login, friend.Login)
	if err != nil {
		return TargetNotFound, err
	}
	if following {
		return AlreadyExists, nil
	}
	sent, err := s.st.Requests.Exists(ctx, user.Login, friend.Login)
	if err != nil {
		return TargetNotFound, err
	}
	if sent {
		return AlreadyExists, nil
	}

	lg := logger.From(ctx).With("op", "service/friendship.requestFriendship", "login", user.Login, "friend", friend.Login)
	reciprocal, err := s.st.Requests.StatusIDFor(ctx, friend.Login, user.Login)
	if err != nil {
		return TargetNotFound, err
	}
	if reciprocal != "" {
		if _, err := s.follow(ctx, user.Login, friend.Login); err != nil {
			return TargetNotFound, err
		}
		if _, err := s.follow(ctx, friend.Login, user.Login); err != nil {
			return TargetNotFound, err
		}
		logIf(lg, "remove request", s.st.Requests.Remove(ctx, friend.Login, user.Login))
		logIf(lg, "accept request", s.st.Statuses.AcceptFriendRequest(ctx, reciprocal))
		s.mentionFriend(ctx, friend.Login, user.Login)
		return Applied, nil
	}

	fr, err := s.st.Statuses.CreateFriendRequest(ctx, friend.Login, user.Login)
	if err != nil {
		return TargetNotFound, err
	}
	added, err := s.st.Requests.Add(ctx, user.Login, friend.Login, fr.StatusID)
	if err != nil {
		return TargetNotFound, err
	}
	if !added {
		// 并发的重复请求，作废刚建的状态
		logIf(lg, "drop duplicate request", s.st.Statuses.RemoveStatus(ctx, fr.StatusID))
		return AlreadyExists, nil
	}
	logIf(lg, "mentionline", s.st.Lines.Add(ctx, model.MentionlineOf(friend.Login), fr.StatusID))
	s.notifier.NotifyUser(ctx, friend.Login, fr)
	return Applied, nil
}

// follow 只在关系真正变化时更新计数
func (s *FriendshipService) follow(ctx context.Context, follower, friend string) (bool, error) {
	changed, err := s.st.Friendships.Follow(ctx, follower, friend)
	if err != nil || !changed {
		return changed, err
	}
	lg := logger.From(ctx).With("op", "service/friendship.follow", "follower", follower, "friend", friend)
	logIf(lg, "friends counter", s.st.Counters.IncrementFriends(ctx, follower))
	logIf(lg, "followers counter", s.st.Counters.IncrementFollowers(ctx, friend))
	return true, nil
}

func (s *FriendshipService) unfollow(ctx context.Context, follower, friend string) (bool, error) {
	changed, err := s.st.Friendships.Unfollow(ctx, follower, friend)
	if err != nil || !changed {
		return changed, err
	}
	lg := logger.From(ctx).With("op", "service/friendship.unfollow", "follower", follower, "friend", friend)
	logIf(lg, "friends counter", s.st.Counters.DecrementFriends(ctx, follower))
	logIf(lg, "followers counter", s.st.Counters.DecrementFollowers(ctx, friend))
	return true, nil
}

// mentionFriend 通知 login：follower 关注了你
func (s *FriendshipService) mentionFriend(ctx context.Context, login, follower string) {
	lg := logger.From(ctx).With("op", "service/friendship.mentionFriend", "login", login)
	mf, err := s.st.Statuses.CreateMentionFriend(ctx, login, follower)
	if err != nil {
		logIf(lg, "mention friend", err)
		return
	}
	logIf(lg, "mentionline", s.st.Lines.Add(ctx, model.MentionlineOf(login), mf.StatusID))
	s.notifier.NotifyUser(ctx, login, mf)
}

// Unfollow 互相确认模式下同时解除双向关系和未处理的请求
func (s *FriendshipService) Unfollow(ctx context.Context, user *model.User, username string) (Outcome, error) {
	friend, err := s.target(ctx, user, username)
	if err != nil {
		return TargetNotFound, err
	}
	if friend == nil {
		return TargetNotFound, nil
	}
	if !s.features.MutualConsent {
		changed, err := s.unfollow(ctx, user.Login, friend.Login)
		if err != nil {
			return TargetNotFound, err
		}
		if !changed {
			return TargetNotFound, nil
		}
		return Applied, nil
	}

	lg := logger.From(ctx).With("op", "service/friendship.Unfollow", "login", user.Login, "friend", friend.Login)
	var changed bool
	for _, pair := range [][2]string{{user.Login, friend.Login}, {friend.Login, user.Login}} {
		id, err := s.st.Requests.StatusIDFor(ctx, pair[0], pair[1])
		if err != nil {
			return TargetNotFound, err
		}
		if id != "" {
			logIf(lg, "remove request", s.st.Requests.Remove(ctx, pair[0], pair[1]))
			logIf(lg, "reject request", s.st.Statuses.RejectFriendRequest(ctx, id))
			changed = true
		}
		c, err := s.unfollow(ctx, pair[0], pair[1])
		if err != nil {
			return TargetNotFound, err
		}
		changed = changed || c
	}
	if !changed {
		return TargetNotFound, nil
	}
	return Applied, nil
}

// RejectFriendRequest 拒绝 requesterUsername 发来的请求
func (s *FriendshipService) RejectFriendRequest(ctx context.Context, user *model.User, requesterUsername string) (Outcome, error) {
	requester, err := s.target(ctx, user, requesterUsername)
	if err != nil {
		return TargetNotFound, err
	}
	if requester == nil {
		return TargetNotFound, nil
	}
	id, err := s.st.Requests.StatusIDFor(ctx, requester.Login, user.Login)
	if err != nil {
		return TargetNotFound, err
	}
	if id == "" {
		return TargetNotFound, nil
	}
	if err := s.st.Requests.Remove(ctx, requester.Login, user.Login); err != nil {
		return TargetNotFound, err
	}
	if err := s.st.Statuses.RejectFriendRequest(ctx, id); err != nil {
		return Applied, err
	}
	return Applied, nil
}

func (s *FriendshipService) FriendsOf(ctx context.Context, login string) ([]string, error) {
	return s.st.Friendships.FriendsOf(ctx, login)
}

// FollowersOf 互相确认模式下只算已经互为好友的粉丝
func (s *FriendshipService) FollowersOf(ctx context.Context, login string) ([]string, error) {
	followers, err := s.st.Friendships.FollowersOf(ctx, login)
	if err != nil || !s.features.MutualConsent {
		return followers, err
	}
	friends, err := s.st.Friendships.FriendsOf(ctx, login)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(followers, func(l string) bool { return !slices.Contains(friends, l) }), nil
}

func (s *FriendshipService) IsFollowing(ctx context.Context, follower, friend string) (bool, error) {
	return s.st.Friendships.IsFollowing(ctx, follower, friend)
}

// PendingRequests 发给 login 且尚未处理的请求方
func (s *FriendshipService) PendingRequests(ctx context.Context, login string) ([]string, error) {
	return s.st.Requests.RequestsTo(ctx, login)
}

func (s *FriendshipService) ListFriends(ctx context.Context, login string, cursor uint64, limit int) ([]model.Friendship, uint64, error) {
	return s.st.Friendships.ListFriends(ctx, login, cursor, limit)
}

func (s *FriendshipService) ListFollowers(ctx context.Context, login string, cursor uint64, limit int) ([]model.Friendship, uint64, error) {
	return s.st.Friendships.ListFollowers(ctx, login, cursor, limit)
}

// Sender 投递一条 outbox 事件
type Sender func(ctx context.Context, ob *model.SocialOutbox) error

// KafkaSender 以被关注人为 key 写入 kafka，同一用户的事件保持有序
func KafkaSender(p *pkg.KafkaProducer) Sender {
	return func(ctx context.Context, ob *model.SocialOutbox) error {
		return p.Send(ctx, ob.Followee, []byte(ob.Payload))
	}
}

const outboxMaxRetry = 5

// OutboxRelayer 从 outbox 表读取社交事件并投递
type OutboxRelayer struct {
	repo      *mysql.OutboxRepository
	batchSize int
	interval  time.Duration
	maxRetry  int
	sender    Sender
	log       *slog.Logger
}

func NewOutboxRelayer(repo *mysql.OutboxRepository, sender Sender, jobs config.JobsConfig, log *slog.Logger) *OutboxRelayer {
	return &OutboxRelayer{
		repo:      repo,
		batchSize: jobs.OutboxBatch,
		interval:  jobs.OutboxInterval,
		maxRetry:  outboxMaxRetry,
		sender:    sender,
		log:       log.With("job", "outbox"),
	}
}

// Run outbox启动器
func (r *OutboxRelayer) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := r.DrainOnce(ctx); err != nil {
				r.log.Error("outbox drain failed", "err", err)
			}
		}
	}
}

// DrainOnce 投递一批事件，返回成功条数
func (r *OutboxRelayer) DrainOnce(ctx context.Context) (int, error) {
	rows, err := r.repo.List(ctx, r.batchSize, r.maxRetry)
	if err != nil {
		return 0, err
	}
	sent := 0
	for i := range rows {
		ob := rows[i]
		if err := r.sender(ctx, &ob); err != nil {
			r.log.Warn("outbox send failed", "id", ob.ID, "event", ob.EventType, "retry", ob.Retry, "err", err)
			if err := r.repo.RetryUpdate(ctx, ob.ID); err != nil {
				r.log.Error("outbox retry update failed", "id", ob.ID, "err", err)
			}
			continue
		}
		if err := r.repo.SuccessUpdate(ctx, ob.ID); err != nil {
			r.log.Error("outbox success update failed", "id", ob.ID, "err", err)
			continue
		}
		sent++
	}
	return sent, nil
}

// CounterReconciler 以关系表和状态表为准校正 redis 里的用户计数
type CounterReconciler struct {
	repo      *mysql.CounterReconcileRepository
	counters  *redis.CounterRepository
	batchSize int
	interval  time.Duration
	log       *slog.Logger
}

func NewCounterReconciler(repo *mysql.CounterReconcileRepository, counters *redis.CounterRepository, jobs config.JobsConfig, log *slog.Logger) *CounterReconciler {
	return &CounterReconciler{
		repo:      repo,
		counters:  counters,
		batchSize: jobs.ReconcileBatch,
		interval:  jobs.ReconcileInterval,
		log:       log.With("job", "reconcile"),
	}
}

// Run 对账定时任务启动器
func (r *CounterReconciler) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := r.ReconcileOnce(ctx); err != nil {
				r.log.Error("reconcile failed", "err", err)
			}
		}
	}
}

// ReconcileOnce 分批扫完所有用户，返回被修正的计数个数
func (r *CounterReconciler) ReconcileOnce(ctx context.Context) (int, error) {
	fixed := 0
	var lastID uint64
	for {
		users, next, err := r.repo.ReconcileList(ctx, r.batchSize, lastID)
		if err != nil {
			return fixed, err
		}
		if len(users) == 0 {
			return fixed, nil
		}
		for _, u := range users {
			n, err := r.reconcileUser(ctx, u.Login)
			if err != nil {
				r.log.Warn("reconcile user failed", "login", u.Login, "err", err)
				continue
			}
			fixed += n
		}
		lastID = next
	}
}

func (r *CounterReconciler) reconcileUser(ctx context.Context, login string) (int, error) {
	checks := []struct {
		field string
		real  func(context.Context, string) (int64, error)
	}{
		{redis.FieldFriends, r.repo.RealFriends},
		{redis.FieldFollowers, r.repo.RealFollowers},
		{redis.FieldStatuses, r.repo.RealStatuses},
	}
	subject := redis.UserCounter(login)
	fixed := 0
	for _, c := range checks {
		// 先查真实值，再和缓存比对
		want, err := c.real(ctx, login)
		if err != nil {
			return fixed, err
		}
		got, err := r.counters.Get(ctx, subject, c.field)
		if err != nil {
			return fixed, err
		}
		if got == want {
			continue
		}
		if err := r.counters.Set(ctx, subject, c.field, want); err != nil {
			return fixed, err
		}
		fixed++
	}
	return fixed, nil
}

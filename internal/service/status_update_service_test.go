package service

import (
	"testing"
	"time"

	"Lee_Timeline/internal/config"
	"Lee_Timeline/internal/model"
	"Lee_Timeline/internal/repository/redis"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPostStatus_FanOut(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	dave := f.user(t, "dave")
	f.follow(t, bob, alice)

	st := f.post(t, alice, "hello #Go @dave and @ghost")
	require.Empty(t, st.State)

	require.True(t, f.contains(t, model.UserlineOf(alice.Login), st.StatusID))
	require.True(t, f.contains(t, model.TimelineOf(alice.Login), st.StatusID))
	require.True(t, f.contains(t, model.TimelineOf(bob.Login), st.StatusID))
	require.False(t, f.contains(t, model.TimelineOf(carol.Login), st.StatusID))
	require.True(t, f.contains(t, model.TaglineOf(domain, "go"), st.StatusID))
	require.True(t, f.contains(t, model.DomainlineOf(domain), st.StatusID))
	require.True(t, f.contains(t, model.MentionlineOf(dave.Login), st.StatusID))
	require.True(t, f.contains(t, model.TimelineOf(dave.Login), st.StatusID))
	require.Zero(t, f.count(t, model.MentionlineOf(model.LoginOf("ghost", domain))))

	require.EqualValues(t, 1, f.counter(t, redis.UserCounter(alice.Login), redis.FieldStatuses))
	require.Equal(t, []string{st.StatusID}, f.indexed)
	require.Contains(t, f.notifiedOf(alice.Login), st.StatusID)
	require.Contains(t, f.notifiedOf(bob.Login), st.StatusID)
	require.Contains(t, f.notifiedOf(dave.Login), st.StatusID)
	require.NotContains(t, f.notifiedOf(carol.Login), st.StatusID)
}

func TestPostStatus_PrivateOnlyReachesMentions(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	dave := f.user(t, "dave")
	f.follow(t, bob, alice)

	st, err := f.updates.PostStatus(f.ctx, alice, PostInput{Content: "secret #plans @dave", Private: true})
	require.NoError(t, err)

	require.True(t, f.contains(t, model.TimelineOf(alice.Login), st.StatusID))
	require.True(t, f.contains(t, model.TimelineOf(dave.Login), st.StatusID))
	require.False(t, f.contains(t, model.TimelineOf(bob.Login), st.StatusID))
	require.Zero(t, f.count(t, model.DomainlineOf(domain)))
	require.Zero(t, f.count(t, model.TaglineOf(domain, "plans")))
}

func TestPostStatus_Rejections(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")

	_, err := f.updates.PostStatus(f.ctx, alice, PostInput{Content: "   "})
	require.ErrorIs(t, err, ErrValidationFailed)

	_, err = f.updates.PostStatus(f.ctx, alice, PostInput{Content: "hi", GroupID: "missing"})
	require.ErrorIs(t, err, ErrTargetNotFound)

	sleepy := &model.User{Username: "sleepy", Domain: domain}
	require.NoError(t, f.st.Users.Create(f.ctx, sleepy))
	_, err = f.updates.PostStatus(f.ctx, sleepy, PostInput{Content: "hi"})
	require.ErrorIs(t, err, ErrUserDeactivated)

	require.Zero(t, f.count(t, model.UserlineOf(alice.Login)))
	require.Empty(t, f.indexed)
}

func TestPostStatus_PrivateGroup(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	f.follow(t, bob, alice)
	f.follow(t, carol, alice)
	g := f.newGroup(t, alice, false, bob)

	st, err := f.updates.PostStatus(f.ctx, alice, PostInput{Content: "inside", GroupID: g.GroupID})
	require.NoError(t, err)

	require.True(t, f.contains(t, model.TimelineOf(bob.Login), st.StatusID))
	require.False(t, f.contains(t, model.TimelineOf(carol.Login), st.StatusID))
	require.True(t, f.contains(t, model.GrouplineOf(g.GroupID), st.StatusID))
	require.Zero(t, f.count(t, model.DomainlineOf(domain)))

	// 非成员不能往分组里发
	_, err = f.updates.PostStatus(f.ctx, carol, PostInput{Content: "let me in", GroupID: g.GroupID})
	require.ErrorIs(t, err, ErrTargetNotFound)
}

func TestModeration_ApproveAndBlock(t *testing.T) {
	f := newFixture(t, config.Features{ModerationEnabled: true})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	root := f.admin(t, "root")
	f.follow(t, bob, alice)

	pending := f.post(t, alice, "needs review")
	require.Equal(t, model.StatePending, pending.State)
	require.Zero(t, f.count(t, model.TimelineOf(alice.Login)))
	require.Zero(t, f.count(t, model.TimelineOf(bob.Login)))
	require.Empty(t, f.indexed)

	n, err := f.timeline.CountForState(f.ctx, model.StatePending, "")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	out, err := f.updates.ApproveStatus(f.ctx, pending.StatusID)
	require.NoError(t, err)
	require.Equal(t, Applied, out)
	require.True(t, f.contains(t, model.TimelineOf(alice.Login), pending.StatusID))
	require.True(t, f.contains(t, model.TimelineOf(bob.Login), pending.StatusID))
	require.Equal(t, []string{pending.StatusID}, f.indexed)

	entry, err := f.st.States.FindByStatusID(f.ctx, pending.StatusID)
	require.NoError(t, err)
	require.Equal(t, model.StateApproved, entry.State)

	visible, err := f.st.Statuses.FindStatusByID(f.ctx, pending.StatusID)
	require.NoError(t, err)
	require.NotNil(t, visible)

	out, err = f.updates.ApproveStatus(f.ctx, pending.StatusID)
	require.NoError(t, err)
	require.Equal(t, TargetNotFound, out)

	// 管理员的帖子直接可见
	adminPost := f.post(t, root, "from the admin")
	require.Empty(t, adminPost.State)

	bad := f.post(t, alice, "spam")
	out, err = f.updates.BlockStatus(f.ctx, alice, bad.StatusID, "not a moderator")
	require.NoError(t, err)
	require.Equal(t, Rejected, out)

	out, err = f.updates.BlockStatus(f.ctx, root, bad.StatusID, "spam")
	require.NoError(t, err)
	require.Equal(t, Applied, out)

	out, err = f.updates.BlockStatus(f.ctx, root, bad.StatusID, "spam again")
	require.NoError(t, err)
	require.Equal(t, AlreadyExists, out)

	audits, err := f.timeline.AuditFor(f.ctx, bad.StatusID)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	require.Equal(t, root.Login, audits[0].Moderator)

	blocked, err := f.timeline.StatusesForState(f.ctx, root, model.StateBlocked, "", "", "", 10)
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	require.Equal(t, bad.StatusID, blocked[0].StatusID)

	gone, err := f.st.Statuses.FindStatusByID(f.ctx, bad.StatusID)
	require.NoError(t, err)
	require.Nil(t, gone)

	dto, err := f.timeline.PendingStatus(f.ctx, root, bad.StatusID)
	require.NoError(t, err)
	require.Equal(t, model.StateBlocked, dto.State)
}

func TestModeration_BlockKeepsStatusesCounter(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	root := f.admin(t, "root")
	statuses := redis.UserCounter(alice.Login)

	st := f.post(t, alice, "live then blocked")
	require.EqualValues(t, 1, f.counter(t, statuses, redis.FieldStatuses))

	out, err := f.updates.BlockStatus(f.ctx, root, st.StatusID, "spam")
	require.NoError(t, err)
	require.Equal(t, Applied, out)
	require.Zero(t, f.counter(t, statuses, redis.FieldStatuses))

	// 解除屏蔽重新计数，再屏蔽再删除最终归零
	out, err = f.updates.ApproveStatus(f.ctx, st.StatusID)
	require.NoError(t, err)
	require.Equal(t, Applied, out)
	require.EqualValues(t, 1, f.counter(t, statuses, redis.FieldStatuses))

	_, err = f.updates.BlockStatus(f.ctx, root, st.StatusID, "spam again")
	require.NoError(t, err)
	out, err = f.updates.RemoveStatus(f.ctx, alice, st.StatusID)
	require.NoError(t, err)
	require.Equal(t, Applied, out)
	require.Zero(t, f.counter(t, statuses, redis.FieldStatuses))
	f.post(t, alice, "still counted")
	require.EqualValues(t, 1, f.counter(t, statuses, redis.FieldStatuses))

	// 待审核的从未计数，屏蔽和删除都不扣
	m := newFixture(t, config.Features{ModerationEnabled: true})
	bob := m.user(t, "bob")
	mod := m.admin(t, "mod")
	pending := m.post(t, bob, "never published")
	_, err = m.updates.BlockStatus(m.ctx, mod, pending.StatusID, "no")
	require.NoError(t, err)
	out, err = m.updates.RemoveStatus(m.ctx, bob, pending.StatusID)
	require.NoError(t, err)
	require.Equal(t, Applied, out)
	require.Zero(t, m.counter(t, redis.UserCounter(bob.Login), redis.FieldStatuses))
}

func TestShareStatus(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	f.follow(t, carol, bob)

	orig := f.post(t, alice, "worth sharing")

	out, err := f.updates.ShareStatus(f.ctx, bob, orig.StatusID)
	require.NoError(t, err)
	require.Equal(t, Applied, out)

	out, err = f.updates.ShareStatus(f.ctx, bob, orig.StatusID)
	require.NoError(t, err)
	require.Equal(t, AlreadyExists, out)

	shared, err := f.st.Shares.HasShared(f.ctx, orig.StatusID, bob.Login)
	require.NoError(t, err)
	require.True(t, shared)

	ids, err := f.st.Lines.Members(f.ctx, model.TimelineOf(carol.Login))
	require.NoError(t, err)
	require.Len(t, ids, 1)
	share, err := f.st.Statuses.FindStatusByID(f.ctx, ids[0])
	require.NoError(t, err)
	require.Equal(t, model.TypeShare, share.Type)
	require.Equal(t, orig.StatusID, share.Ref.OriginalStatusID)
	require.True(t, f.contains(t, model.UserlineOf(bob.Login), share.StatusID))

	mentions, err := f.st.Lines.Members(f.ctx, model.MentionlineOf(alice.Login))
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	ms, err := f.st.Statuses.FindStatusByID(f.ctx, mentions[0])
	require.NoError(t, err)
	require.Equal(t, model.TypeMentionShare, ms.Type)
	require.Equal(t, bob.Login, ms.Login)

	// 分享一条分享等于分享原状态
	out, err = f.updates.ShareStatus(f.ctx, carol, share.StatusID)
	require.NoError(t, err)
	require.Equal(t, Applied, out)
	sharers, err := f.st.Shares.SharedBy(f.ctx, orig.StatusID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{bob.Login, carol.Login}, sharers)

	private, err := f.updates.PostStatus(f.ctx, alice, PostInput{Content: "just for me", Private: true})
	require.NoError(t, err)
	out, err = f.updates.ShareStatus(f.ctx, bob, private.StatusID)
	require.NoError(t, err)
	require.Equal(t, Rejected, out)

	out, err = f.updates.ShareStatus(f.ctx, bob, uuid.NewString())
	require.NoError(t, err)
	require.Equal(t, TargetNotFound, out)

	// 提醒类状态不能分享
	out, err = f.updates.ShareStatus(f.ctx, bob, ms.StatusID)
	require.NoError(t, err)
	require.Equal(t, TargetNotFound, out)
}

func TestAnnounceStatus(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	root := f.admin(t, "root")

	orig := f.post(t, alice, "big news")

	out, err := f.updates.AnnounceStatus(f.ctx, bob, orig.StatusID)
	require.NoError(t, err)
	require.Equal(t, Rejected, out)

	out, err = f.updates.AnnounceStatus(f.ctx, root, orig.StatusID)
	require.NoError(t, err)
	require.Equal(t, Applied, out)

	ids, err := f.st.Lines.Members(f.ctx, model.TimelineOf(bob.Login))
	require.NoError(t, err)
	require.Len(t, ids, 1)
	ann, err := f.st.Statuses.FindStatusByID(f.ctx, ids[0])
	require.NoError(t, err)
	require.Equal(t, model.TypeAnnouncement, ann.Type)
	for _, u := range []*model.User{alice, bob, root} {
		require.True(t, f.contains(t, model.TimelineOf(u.Login), ann.StatusID), u.Login)
		require.Contains(t, f.notifiedOf(u.Login), ann.StatusID)
	}
	require.EqualValues(t, 1, f.count(t, model.MentionlineOf(alice.Login)))

	out, err = f.updates.RemoveStatus(f.ctx, root, ann.StatusID)
	require.NoError(t, err)
	require.Equal(t, Applied, out)
	gone, err := f.st.Statuses.FindStatusByID(f.ctx, ann.StatusID)
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestFavorites(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	st := f.post(t, alice, "like me")
	likes := redis.StatusCounter(st.StatusID)

	out, err := f.updates.AddFavorite(f.ctx, bob, st.StatusID)
	require.NoError(t, err)
	require.Equal(t, Applied, out)
	require.EqualValues(t, 1, f.counter(t, likes, redis.FieldLikes))
	require.True(t, f.contains(t, model.FavoritelineOf(bob.Login), st.StatusID))

	out, err = f.updates.AddFavorite(f.ctx, bob, st.StatusID)
	require.NoError(t, err)
	require.Equal(t, AlreadyExists, out)
	require.EqualValues(t, 1, f.counter(t, likes, redis.FieldLikes))

	// 作者时间线多了一条 FAVORITE_SHARE
	ids, err := f.st.Lines.Members(f.ctx, model.TimelineOf(alice.Login))
	require.NoError(t, err)
	require.Len(t, ids, 2)
	fs, err := f.st.Statuses.FindStatusByID(f.ctx, ids[0])
	require.NoError(t, err)
	require.Equal(t, model.TypeFavoriteShare, fs.Type)
	require.Equal(t, alice.Login, fs.Login)
	require.Equal(t, bob.Login, fs.Ref.FollowerLogin)

	out, err = f.updates.RemoveFavorite(f.ctx, bob, st.StatusID)
	require.NoError(t, err)
	require.Equal(t, Applied, out)
	require.Zero(t, f.counter(t, likes, redis.FieldLikes))

	out, err = f.updates.RemoveFavorite(f.ctx, bob, st.StatusID)
	require.NoError(t, err)
	require.Equal(t, TargetNotFound, out)
	require.Zero(t, f.counter(t, likes, redis.FieldLikes))

	out, err = f.updates.AddFavorite(f.ctx, bob, fs.StatusID)
	require.NoError(t, err)
	require.Equal(t, TargetNotFound, out)
}

func TestFavorites_PrivateGroupNeedsMembership(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	g := f.newGroup(t, alice, false, carol)

	st, err := f.updates.PostStatus(f.ctx, alice, PostInput{Content: "members only", GroupID: g.GroupID})
	require.NoError(t, err)
	likes := redis.StatusCounter(st.StatusID)

	out, err := f.updates.AddFavorite(f.ctx, bob, st.StatusID)
	require.NoError(t, err)
	require.Equal(t, TargetNotFound, out)
	require.Zero(t, f.counter(t, likes, redis.FieldLikes))
	require.False(t, f.contains(t, model.FavoritelineOf(bob.Login), st.StatusID))
	require.Empty(t, f.notifiedOf(alice.Login))

	out, err = f.updates.AddFavorite(f.ctx, carol, st.StatusID)
	require.NoError(t, err)
	require.Equal(t, Applied, out)
	require.EqualValues(t, 1, f.counter(t, likes, redis.FieldLikes))

	out, err = f.updates.AddFavorite(f.ctx, alice, st.StatusID)
	require.NoError(t, err)
	require.Equal(t, Applied, out)
}

func TestReplyToStatus(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	root := f.post(t, alice, "question?")
	reply, err := f.updates.ReplyToStatus(f.ctx, bob, root.StatusID, "answer")
	require.NoError(t, err)
	require.Equal(t, root.StatusID, reply.Post.DiscussionID)
	require.Equal(t, root.StatusID, reply.Post.ReplyTo)
	require.Equal(t, "alice", reply.Post.ReplyToUsername)

	second, err := f.updates.ReplyToStatus(f.ctx, carol, reply.StatusID, "follow-up")
	require.NoError(t, err)
	require.Equal(t, root.StatusID, second.Post.DiscussionID)
	require.Equal(t, reply.StatusID, second.Post.ReplyTo)

	require.EqualValues(t, 2, f.count(t, model.DiscussionOf(root.StatusID)))
	require.EqualValues(t, 2, f.counter(t, redis.StatusCounter(root.StatusID), redis.FieldReplies))
	last, err := f.st.Replies.LastReply(f.ctx, root.StatusID)
	require.NoError(t, err)
	require.Equal(t, "carol", last)

	// 被回复的人会收到提醒
	require.True(t, f.contains(t, model.MentionlineOf(alice.Login), reply.StatusID))
	require.True(t, f.contains(t, model.MentionlineOf(bob.Login), second.StatusID))

	_, err = f.updates.ReplyToStatus(f.ctx, bob, uuid.NewString(), "into the void")
	require.ErrorIs(t, err, ErrTargetNotFound)
}

func TestRemoveStatus(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	st := f.post(t, alice, "oops")
	_, err := f.updates.AddFavorite(f.ctx, bob, st.StatusID)
	require.NoError(t, err)

	out, err := f.updates.RemoveStatus(f.ctx, bob, st.StatusID)
	require.NoError(t, err)
	require.Equal(t, Rejected, out)

	out, err = f.updates.RemoveStatus(f.ctx, alice, st.StatusID)
	require.NoError(t, err)
	require.Equal(t, Applied, out)

	gone, err := f.st.Statuses.FindStatusByIDAnyState(f.ctx, st.StatusID)
	require.NoError(t, err)
	require.Nil(t, gone)
	require.Zero(t, f.counter(t, redis.UserCounter(alice.Login), redis.FieldStatuses))
	require.Zero(t, f.counter(t, redis.StatusCounter(st.StatusID), redis.FieldLikes))
	require.Equal(t, []string{st.StatusID}, f.removed)

	// 线上的引用不主动删除
	require.True(t, f.contains(t, model.UserlineOf(alice.Login), st.StatusID))

	out, err = f.updates.RemoveStatus(f.ctx, alice, st.StatusID)
	require.NoError(t, err)
	require.Equal(t, TargetNotFound, out)
}

func TestRemoveStatusesForDeletedUser(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	other := f.post(t, bob, "bob's status")
	for i := 0; i < 5; i++ {
		f.post(t, alice, "status")
	}
	_, err := f.updates.ShareStatus(f.ctx, alice, other.StatusID)
	require.NoError(t, err)

	rep, err := f.updates.RemoveStatusesForDeletedUser(f.ctx, alice.Login)
	require.NoError(t, err)
	// 5 条状态 + 分享 + 给 bob 的分享提醒
	require.Equal(t, DeleteReport{Total: 7, Removed: 7}, rep)
	require.Len(t, f.removed, 5)

	left, err := f.st.Statuses.ListIDsByLogin(f.ctx, alice.Login)
	require.NoError(t, err)
	require.Empty(t, left)
	require.Zero(t, f.counter(t, redis.UserCounter(alice.Login), redis.FieldStatuses))

	still, err := f.st.Statuses.FindStatusByID(f.ctx, other.StatusID)
	require.NoError(t, err)
	require.NotNil(t, still)

	got, err := f.st.Locks.Acquire(f.ctx, deleteLockPrefix+bob.Login, "someone-else", time.Minute)
	require.NoError(t, err)
	require.True(t, got)
	_, err = f.updates.RemoveStatusesForDeletedUser(f.ctx, bob.Login)
	require.ErrorIs(t, err, ErrDeleteRunning)
}

func TestHoldLock_RenewsUntilLost(t *testing.T) {
	f := newFixture(t, config.Features{})
	name := deleteLockPrefix + "alice@" + domain
	got, err := f.st.Locks.Acquire(f.ctx, name, "t1", time.Minute)
	require.NoError(t, err)
	require.True(t, got)

	ctx, stop := f.updates.holdLock(f.ctx, name, "t1", 300*time.Millisecond)
	defer stop()

	// 续期把期限改成 300ms
	require.Eventually(t, func() bool {
		return f.mr.TTL("lock:"+name) == 300*time.Millisecond
	}, 2*time.Second, 20*time.Millisecond)
	require.NoError(t, ctx.Err())

	// 被别人拿走后停止
	require.NoError(t, f.mr.Set("lock:"+name, "t2"))
	require.Eventually(t, func() bool { return ctx.Err() != nil }, 2*time.Second, 20*time.Millisecond)
	v, err := f.mr.Get("lock:" + name)
	require.NoError(t, err)
	require.Equal(t, "t2", v)
}

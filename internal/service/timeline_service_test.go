package service

import (
	"testing"
	"time"

	"Lee_Timeline/internal/config"
	"Lee_Timeline/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func ids(dtos []model.StatusDTO) []string {
	out := make([]string, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.TimelineID)
	}
	return out
}

func TestTimeline_OrderAndPaging(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	var posted []string
	for i := 0; i < 5; i++ {
		posted = append(posted, f.post(t, alice, "status").StatusID)
	}

	page, err := f.timeline.Timeline(f.ctx, alice, model.LineQuery{Count: 2})
	require.NoError(t, err)
	require.Equal(t, []string{posted[4], posted[3]}, ids(page.Statuses))
	require.False(t, page.CleanupPending)

	page, err = f.timeline.Timeline(f.ctx, alice, model.LineQuery{Count: 2, Finish: posted[3]})
	require.NoError(t, err)
	require.Equal(t, []string{posted[2], posted[1]}, ids(page.Statuses))

	page, err = f.timeline.Timeline(f.ctx, alice, model.LineQuery{Start: posted[2]})
	require.NoError(t, err)
	require.Equal(t, []string{posted[4], posted[3]}, ids(page.Statuses))

	n, err := f.timeline.TimelineCount(f.ctx, alice)
	require.NoError(t, err)
	require.EqualValues(t, 5, n)
}

func TestTimeline_Hydration(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	f.follow(t, bob, alice)

	st := f.post(t, alice, "hydrate me")
	_, err := f.updates.AddFavorite(f.ctx, bob, st.StatusID)
	require.NoError(t, err)
	_, err = f.updates.ReplyToStatus(f.ctx, bob, st.StatusID, "nice")
	require.NoError(t, err)

	dto, err := f.timeline.GetStatus(f.ctx, bob, st.StatusID)
	require.NoError(t, err)
	require.NotNil(t, dto)
	require.Equal(t, "hydrate me", dto.Content)
	require.Equal(t, "alice", dto.Username)
	require.Equal(t, "alice", dto.FirstName)
	require.True(t, dto.Activated)
	require.True(t, dto.Favorite)
	require.EqualValues(t, 1, dto.FavoriteCount)
	require.EqualValues(t, 1, dto.ReplyCount)
	require.Equal(t, "bob", dto.LastReplyUsername)
	require.True(t, dto.DetailsAvailable)

	other, err := f.timeline.GetStatus(f.ctx, alice, st.StatusID)
	require.NoError(t, err)
	require.False(t, other.Favorite)

	missing, err := f.timeline.GetStatus(f.ctx, alice, uuid.NewString())
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestTimeline_SelfHealing(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	f.follow(t, bob, alice)

	first := f.post(t, alice, "one")
	second := f.post(t, alice, "two")
	third := f.post(t, alice, "three")

	out, err := f.updates.RemoveStatus(f.ctx, alice, second.StatusID)
	require.NoError(t, err)
	require.Equal(t, Applied, out)
	require.EqualValues(t, 3, f.count(t, model.TimelineOf(bob.Login)))

	page, err := f.timeline.Timeline(f.ctx, bob, model.LineQuery{})
	require.NoError(t, err)
	require.False(t, page.CleanupPending)
	require.Equal(t, []string{third.StatusID, first.StatusID}, ids(page.Statuses))
	require.EqualValues(t, 2, f.count(t, model.TimelineOf(bob.Login)))

	// 清理后同样的请求不再有失效条目
	again, err := f.timeline.Timeline(f.ctx, bob, model.LineQuery{})
	require.NoError(t, err)
	require.Equal(t, ids(page.Statuses), ids(again.Statuses))
}

func TestTimeline_MissingAuthorIsStale(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	f.follow(t, bob, alice)

	gone := f.post(t, alice, "author will vanish")
	own := f.post(t, bob, "mine")
	require.NoError(t, f.st.Users.DB.Where("login = ?", alice.Login).Delete(&model.User{}).Error)

	page, err := f.timeline.Timeline(f.ctx, bob, model.LineQuery{})
	require.NoError(t, err)
	require.Equal(t, []string{own.StatusID}, ids(page.Statuses))
	require.False(t, f.contains(t, model.TimelineOf(bob.Login), gone.StatusID))

	dto, err := f.timeline.GetStatus(f.ctx, bob, gone.StatusID)
	require.NoError(t, err)
	require.Nil(t, dto)
}

func TestTimeline_CleanupPending(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	kept := f.post(t, alice, "kept")
	dropped := f.post(t, alice, "dropped")
	_, err := f.updates.RemoveStatus(f.ctx, alice, dropped.StatusID)
	require.NoError(t, err)

	// 别人持有这条线的清理锁
	line := model.TimelineOf(alice.Login)
	got, err := f.st.Locks.Acquire(f.ctx, pruneLockPrefix+line.String(), "other", time.Minute)
	require.NoError(t, err)
	require.True(t, got)

	page, err := f.timeline.Timeline(f.ctx, alice, model.LineQuery{})
	require.NoError(t, err)
	require.True(t, page.CleanupPending)
	require.Equal(t, []string{kept.StatusID}, ids(page.Statuses))
	require.EqualValues(t, 2, f.count(t, line))

	require.NoError(t, f.st.Locks.Release(f.ctx, pruneLockPrefix+line.String(), "other"))

	// 只允许一次尝试时不清理，直接标记
	single := NewTimelineService(f.st, config.TimelineConfig{
		DefaultPageSize:    20,
		MaxPageSize:        100,
		MaxResolveAttempts: 1,
	})
	page, err = single.Timeline(f.ctx, alice, model.LineQuery{})
	require.NoError(t, err)
	require.True(t, page.CleanupPending)
	require.EqualValues(t, 2, f.count(t, line))

	page, err = f.timeline.Timeline(f.ctx, alice, model.LineQuery{})
	require.NoError(t, err)
	require.False(t, page.CleanupPending)
	require.EqualValues(t, 1, f.count(t, line))
}

func TestTimeline_ShareIndirection(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	f.follow(t, carol, bob)

	orig := f.post(t, alice, "original")
	_, err := f.updates.ShareStatus(f.ctx, bob, orig.StatusID)
	require.NoError(t, err)

	page, err := f.timeline.Timeline(f.ctx, carol, model.LineQuery{})
	require.NoError(t, err)
	require.Len(t, page.Statuses, 1)
	dto := page.Statuses[0]
	require.Equal(t, model.TypeShare, dto.Type)
	require.Equal(t, orig.StatusID, dto.StatusID)
	require.NotEqual(t, orig.StatusID, dto.TimelineID)
	require.Equal(t, "original", dto.Content)
	require.Equal(t, "alice", dto.Username)
	require.Equal(t, "bob", dto.SharedByUsername)
	require.False(t, dto.ShareByMe)

	mine, err := f.timeline.Timeline(f.ctx, bob, model.LineQuery{})
	require.NoError(t, err)
	require.Len(t, mine.Statuses, 1)
	require.True(t, mine.Statuses[0].ShareByMe)

	// 原作者看到的分享提醒
	mentions, err := f.timeline.Mentionline(f.ctx, alice, model.LineQuery{})
	require.NoError(t, err)
	require.Len(t, mentions.Statuses, 1)
	require.Equal(t, model.TypeMentionShare, mentions.Statuses[0].Type)
	require.Equal(t, "bob", mentions.Statuses[0].SharedByUsername)

	// 原状态删除后，引用它的分享也被清理
	_, err = f.updates.RemoveStatus(f.ctx, alice, orig.StatusID)
	require.NoError(t, err)
	page, err = f.timeline.Timeline(f.ctx, carol, model.LineQuery{})
	require.NoError(t, err)
	require.Empty(t, page.Statuses)
	require.Zero(t, f.count(t, model.TimelineOf(carol.Login)))
}

func TestTimeline_TypeFilter(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	f.follow(t, bob, alice)

	orig := f.post(t, alice, "shared later")
	own := f.post(t, bob, "own status")
	_, err := f.updates.ShareStatus(f.ctx, bob, orig.StatusID)
	require.NoError(t, err)

	all, err := f.timeline.Timeline(f.ctx, bob, model.LineQuery{})
	require.NoError(t, err)
	require.Len(t, all.Statuses, 3)

	shares, err := f.timeline.Timeline(f.ctx, bob, model.LineQuery{StatusType: model.TypeShare})
	require.NoError(t, err)
	require.Len(t, shares.Statuses, 1)
	require.Equal(t, orig.StatusID, shares.Statuses[0].StatusID)

	statuses, err := f.timeline.Timeline(f.ctx, bob, model.LineQuery{StatusType: model.TypeStatus})
	require.NoError(t, err)
	require.Equal(t, []string{own.StatusID, orig.StatusID}, ids(statuses.Statuses))
}

func TestTimeline_PrivateVisibility(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	dave := f.user(t, "dave")

	st, err := f.updates.PostStatus(f.ctx, alice, PostInput{Content: "psst @dave", Private: true})
	require.NoError(t, err)

	dto, err := f.timeline.GetStatus(f.ctx, dave, st.StatusID)
	require.NoError(t, err)
	require.NotNil(t, dto)
	require.True(t, dto.StatusPrivate)
	require.False(t, dto.ShareByMe)

	hidden, err := f.timeline.GetStatus(f.ctx, bob, st.StatusID)
	require.NoError(t, err)
	require.Nil(t, hidden)

	// 作者自己的私密状态算作 shareByMe
	own, err := f.timeline.GetStatus(f.ctx, alice, st.StatusID)
	require.NoError(t, err)
	require.True(t, own.ShareByMe)

	// 别人的 userline 上看不到，也不会从作者的线上删掉
	page, err := f.timeline.Userline(f.ctx, bob, "alice", model.LineQuery{})
	require.NoError(t, err)
	require.Empty(t, page.Statuses)
	require.False(t, page.CleanupPending)
	require.EqualValues(t, 1, f.count(t, model.UserlineOf(alice.Login)))

	_, err = f.timeline.Userline(f.ctx, bob, "nobody", model.LineQuery{})
	require.ErrorIs(t, err, ErrTargetNotFound)
}

func TestTimeline_GroupVisibility(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	eve := f.user(t, "eve")
	private := f.newGroup(t, alice, false, bob)
	public := f.newGroup(t, alice, true)

	secret, err := f.updates.PostStatus(f.ctx, alice, PostInput{Content: "members only #team", GroupID: private.GroupID})
	require.NoError(t, err)
	open, err := f.updates.PostStatus(f.ctx, alice, PostInput{Content: "everyone #team", GroupID: public.GroupID})
	require.NoError(t, err)

	page, err := f.timeline.Groupline(f.ctx, bob, private.GroupID, model.LineQuery{})
	require.NoError(t, err)
	require.Equal(t, []string{secret.StatusID}, ids(page.Statuses))
	require.Equal(t, "team", page.Statuses[0].GroupName)
	require.False(t, page.Statuses[0].PublicGroup)

	_, err = f.timeline.Groupline(f.ctx, eve, private.GroupID, model.LineQuery{})
	require.ErrorIs(t, err, ErrTargetNotFound)

	page, err = f.timeline.Groupline(f.ctx, eve, public.GroupID, model.LineQuery{})
	require.NoError(t, err)
	require.Equal(t, []string{open.StatusID}, ids(page.Statuses))

	// 标签线上私有分组的状态对非成员隐藏，但条目保留
	page, err = f.timeline.Tagline(f.ctx, eve, "#Team", model.LineQuery{})
	require.NoError(t, err)
	require.Equal(t, []string{open.StatusID}, ids(page.Statuses))
	require.EqualValues(t, 2, f.count(t, model.TaglineOf(domain, "team")))

	page, err = f.timeline.Tagline(f.ctx, bob, "team", model.LineQuery{})
	require.NoError(t, err)
	require.Equal(t, []string{open.StatusID, secret.StatusID}, ids(page.Statuses))

	page, err = f.timeline.Domainline(f.ctx, eve, model.LineQuery{})
	require.NoError(t, err)
	require.Equal(t, []string{open.StatusID}, ids(page.Statuses))
}

func TestTimeline_DefaultHashtag(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	st := f.post(t, alice, "hello #welcome")

	page, err := f.timeline.Tagline(f.ctx, alice, "", model.LineQuery{})
	require.NoError(t, err)
	require.Equal(t, []string{st.StatusID}, ids(page.Statuses))
}

func TestTimeline_DomainViolation(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	stranger := &model.User{Username: "mallory", Domain: "evil.org", Activated: true}
	require.NoError(t, f.st.Users.Create(f.ctx, stranger))

	st := f.post(t, stranger, "cross domain")
	require.NoError(t, f.st.Lines.Add(f.ctx, model.TimelineOf(alice.Login), st.StatusID))

	_, err := f.timeline.Timeline(f.ctx, alice, model.LineQuery{})
	require.ErrorIs(t, err, ErrDomainViolation)

	_, err = f.timeline.UserTimeline(f.ctx, alice, stranger.Login, model.LineQuery{})
	require.ErrorIs(t, err, ErrDomainViolation)
}

func TestTimeline_FavoritelineAndMentions(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	f.follow(t, bob, alice)

	st := f.post(t, alice, "fav")
	_, err := f.updates.AddFavorite(f.ctx, bob, st.StatusID)
	require.NoError(t, err)

	favs, err := f.timeline.Favoriteline(f.ctx, bob, model.LineQuery{})
	require.NoError(t, err)
	require.Len(t, favs.Statuses, 1)
	require.True(t, favs.Statuses[0].Favorite)

	mentions, err := f.timeline.Mentionline(f.ctx, alice, model.LineQuery{})
	require.NoError(t, err)
	require.Len(t, mentions.Statuses, 1)
	require.Equal(t, model.TypeMentionFriend, mentions.Statuses[0].Type)
	require.Equal(t, "bob", mentions.Statuses[0].Username)

	// 作者时间线里的点赞提醒显示点赞人
	page, err := f.timeline.Timeline(f.ctx, alice, model.LineQuery{StatusType: model.TypeFavoriteShare})
	require.NoError(t, err)
	require.Len(t, page.Statuses, 1)
	require.Equal(t, "bob", page.Statuses[0].SharedByUsername)
	require.Equal(t, st.StatusID, page.Statuses[0].StatusID)
}

func TestGetStatusDetails(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	dave := f.user(t, "dave")

	root := f.post(t, alice, "root")
	r1, err := f.updates.ReplyToStatus(f.ctx, bob, root.StatusID, "first")
	require.NoError(t, err)
	r2, err := f.updates.ReplyToStatus(f.ctx, carol, root.StatusID, "second")
	require.NoError(t, err)
	_, err = f.updates.ShareStatus(f.ctx, dave, root.StatusID)
	require.NoError(t, err)

	details, err := f.timeline.GetStatusDetails(f.ctx, alice, root.StatusID)
	require.NoError(t, err)
	require.Equal(t, root.StatusID, details.StatusID)
	require.Equal(t, []string{r1.StatusID, r2.StatusID}, ids(details.DiscussionStatuses))
	require.Len(t, details.SharedByLogins, 1)
	require.Equal(t, dave.Login, details.SharedByLogins[0].Login)

	details, err = f.timeline.GetStatusDetails(f.ctx, alice, r1.StatusID)
	require.NoError(t, err)
	require.Equal(t, []string{root.StatusID, r2.StatusID}, ids(details.DiscussionStatuses))
	require.Empty(t, details.SharedByLogins)

	none, err := f.timeline.GetStatusDetails(f.ctx, alice, uuid.NewString())
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestCounts(t *testing.T) {
	f := newFixture(t, config.Features{})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	f.follow(t, bob, alice)
	f.post(t, alice, "one")

	c, err := f.timeline.Counts(f.ctx, alice.Login)
	require.NoError(t, err)
	require.Equal(t, UserCounts{Friends: 0, Followers: 1, Statuses: 1}, *c)

	c, err = f.timeline.Counts(f.ctx, bob.Login)
	require.NoError(t, err)
	require.Equal(t, UserCounts{Friends: 1}, *c)
}

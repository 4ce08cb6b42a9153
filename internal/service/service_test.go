package service

import (
	"context"
	"sync"
	"testing"

	"Lee_Timeline/internal/config"
	"Lee_Timeline/internal/model"
	"Lee_Timeline/internal/repository/mysql/mysqltest"
	"Lee_Timeline/mocks"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang/mock/gomock"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const domain = "acme.com"

var testTimeline = config.TimelineConfig{
	DefaultPageSize:    20,
	MaxPageSize:        100,
	MaxResolveAttempts: 3,
	DeleteWorkers:      2,
	HashtagDefault:     "welcome",
}

// fixture 真实的 gorm 存储（内存 SQLite）和 miniredis，索引与通知用 gomock 记录
type fixture struct {
	ctx      context.Context
	st       *Stores
	mr       *miniredis.Miniredis
	updates  *StatusUpdateService
	timeline *TimelineService
	friends  *FriendshipService

	mu       sync.Mutex
	indexed  []string
	removed  []string
	notified map[string][]string // login -> status ids
}

func newFixture(t *testing.T, features config.Features) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	db := mysqltest.New(t)
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		ctx:      context.Background(),
		st:       NewStores(db, rdb, features),
		mr:       mr,
		notified: make(map[string][]string),
	}

	indexer := mocks.NewMockIndexer(ctrl)
	indexer.EXPECT().IndexStatus(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, st *model.Status) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.indexed = append(f.indexed, st.StatusID)
		}).AnyTimes()
	indexer.EXPECT().RemoveStatus(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, id string) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.removed = append(f.removed, id)
		}).AnyTimes()

	notifier := mocks.NewMockNotifier(ctrl)
	notifier.EXPECT().NotifyUser(gomock.Any(), gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, login string, st *model.Status) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.notified[login] = append(f.notified[login], st.StatusID)
		}).AnyTimes()

	f.updates = NewStatusUpdateService(f.st, indexer, notifier, testTimeline)
	f.timeline = NewTimelineService(f.st, testTimeline)
	f.friends = NewFriendshipService(f.st, notifier, features)
	return f
}

func (f *fixture) user(t *testing.T, username string) *model.User {
	t.Helper()
	u := &model.User{Username: username, Domain: domain, FirstName: username, Activated: true}
	require.NoError(t, f.st.Users.Create(f.ctx, u))
	return u
}

func (f *fixture) admin(t *testing.T, username string) *model.User {
	t.Helper()
	u := &model.User{Username: username, Domain: domain, Activated: true, Admin: true}
	require.NoError(t, f.st.Users.Create(f.ctx, u))
	return u
}

func (f *fixture) follow(t *testing.T, follower, friend *model.User) {
	t.Helper()
	out, err := f.friends.Follow(f.ctx, follower, friend.Username)
	require.NoError(t, err)
	require.Equal(t, Applied, out)
}

func (f *fixture) post(t *testing.T, u *model.User, content string) *model.Status {
	t.Helper()
	st, err := f.updates.PostStatus(f.ctx, u, PostInput{Content: content})
	require.NoError(t, err)
	return st
}

func (f *fixture) contains(t *testing.T, line model.Line, id string) bool {
	t.Helper()
	ok, err := f.st.Lines.Contains(f.ctx, line, id)
	require.NoError(t, err)
	return ok
}

func (f *fixture) count(t *testing.T, line model.Line) int64 {
	t.Helper()
	n, err := f.st.Lines.Count(f.ctx, line)
	require.NoError(t, err)
	return n
}

func (f *fixture) counter(t *testing.T, subject, field string) int64 {
	t.Helper()
	n, err := f.st.Counters.Get(f.ctx, subject, field)
	require.NoError(t, err)
	return n
}

func (f *fixture) notifiedOf(login string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notified[login]...)
}

func (f *fixture) newGroup(t *testing.T, creator *model.User, public bool, members ...*model.User) *model.Group {
	t.Helper()
	g, err := f.st.Groups.Create(f.ctx, &model.Group{
		Domain:      domain,
		Name:        "team",
		PublicGroup: public,
		CreatorID:   creator.Login,
	})
	require.NoError(t, err)
	for _, m := range members {
		require.NoError(t, f.st.Groups.Join(f.ctx, g.GroupID, m.Login))
	}
	return g
}

func TestOutcome_String(t *testing.T) {
	require.Equal(t, "APPLIED", Applied.String())
	require.Equal(t, "ALREADY_EXISTS", AlreadyExists.String())
	require.Equal(t, "TARGET_NOT_FOUND", TargetNotFound.String())
	require.Equal(t, "REJECTED", Rejected.String())
	require.Equal(t, "UNKNOWN", Outcome(42).String())

	b, err := Rejected.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "REJECTED", string(b))
}

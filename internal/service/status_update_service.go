package service

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"Lee_Timeline/internal/config"
	"Lee_Timeline/internal/model"
	"Lee_Timeline/internal/pkg"
	"Lee_Timeline/internal/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	deleteLockPrefix = "delete:"
	deleteLockTTL    = 10 * time.Minute
)

// StatusUpdateService 所有产生状态的写操作。每个操作是一串独立的存储写入，中途失败不回滚。
type StatusUpdateService struct {
	st       *Stores
	indexer  Indexer
	notifier Notifier
	workers  int
}

func NewStatusUpdateService(st *Stores, indexer Indexer, notifier Notifier, tl config.TimelineConfig) *StatusUpdateService {
	workers := tl.DeleteWorkers
	if workers < 1 {
		workers = 1
	}
	return &StatusUpdateService{
		st:       st,
		indexer:  indexer,
		notifier: notifier,
		workers:  workers,
	}
}

// PostInput 发布状态的参数
type PostInput struct {
	Content       string
	Private       bool
	GroupID       string
	AttachmentIDs []string
	Geo           string
}

// PostStatus 创建状态；审核中的状态直接返回，等 ApproveStatus 再扇出
func (s *StatusUpdateService) PostStatus(ctx context.Context, user *model.User, in PostInput) (*model.Status, error) {
	if !user.Activated {
		return nil, ErrUserDeactivated
	}
	return s.post(ctx, user, in, nil)
}

// ReplyToStatus 回复继承原状态的分组和可见性，讨论 id 指向根状态
func (s *StatusUpdateService) ReplyToStatus(ctx context.Context, user *model.User, replyToID, content string) (*model.Status, error) {
	if !user.Activated {
		return nil, ErrUserDeactivated
	}
	target, err := s.st.Statuses.FindStatusByID(ctx, replyToID)
	if err != nil {
		return nil, err
	}
	if target != nil && target.Type == model.TypeShare {
		if target, err = s.st.Statuses.FindStatusByID(ctx, target.Ref.OriginalStatusID); err != nil {
			return nil, err
		}
	}
	if target == nil || target.Type != model.TypeStatus {
		return nil, ErrTargetNotFound
	}
	if target.Domain != user.Domain {
		return nil, ErrDomainViolation
	}
	in := PostInput{
		Content: content,
		Private: target.Post.StatusPrivate,
		GroupID: target.Post.GroupID,
	}
	return s.post(ctx, user, in, target)
}

func (s *StatusUpdateService) post(ctx context.Context, user *model.User, in PostInput, parent *model.Status) (*model.Status, error) {
	var group *model.Group
	if in.GroupID != "" {
		g, err := s.st.Groups.FindByID(ctx, in.GroupID)
		if err != nil {
			return nil, err
		}
		if g == nil || g.Domain != user.Domain {
			return nil, ErrTargetNotFound
		}
		member, err := s.st.Groups.IsMember(ctx, g.GroupID, user.Login)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, ErrTargetNotFound
		}
		group = g
	}

	d := &model.StatusDraft{
		Login:         user.Login,
		Username:      user.Username,
		Domain:        user.Domain,
		Private:       in.Private,
		GroupID:       in.GroupID,
		AttachmentIDs: in.AttachmentIDs,
		Content:       in.Content,
		Geo:           in.Geo,
		IsAdmin:       user.Admin,
	}
	if parent != nil {
		d.DiscussionID = parent.Post.DiscussionID
		d.ReplyTo = parent.StatusID
		d.ReplyToUsername = parent.Username
	}
	st, err := s.st.Statuses.CreateStatus(ctx, d)
	if err != nil {
		return nil, err
	}
	if st.State != "" {
		logger.From(ctx).Info("status waiting for moderation", "status_id", st.StatusID, "state", st.State)
		return st, nil
	}
	return st, s.publish(ctx, st, group)
}

// publish 让状态在所有应出现的线上可见。每一步失败只记日志，返回第一个错误。
func (s *StatusUpdateService) publish(ctx context.Context, st *model.Status, group *model.Group) error {
	lg := logger.From(ctx).With("op", "service/status.publish", "status_id", st.StatusID)
	var firstErr error
	fail := func(step string, err error) {
		if err == nil {
			return
		}
		lg.Error("fan-out step failed", "step", step, "err", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	post := st.Post
	author := st.Login
	privateGroup := group != nil && !group.PublicGroup

	fail("userline", s.st.Lines.Add(ctx, model.UserlineOf(author), st.StatusID))
	fail("timeline", s.st.Lines.Add(ctx, model.TimelineOf(author), st.StatusID))
	recipients := []string{author}

	mentioned, err := s.mentionedLogins(ctx, st)
	fail("mentions", err)

	if !post.StatusPrivate {
		followers, err := s.st.Friendships.FollowersOf(ctx, author)
		fail("followers", err)
		if privateGroup {
			followers, err = s.onlyMembers(ctx, group.GroupID, followers)
			fail("group members", err)
		}
		fail("follower timelines", s.st.Lines.AddToMany(ctx, model.KindTimeline, followers, st.StatusID))
		recipients = append(recipients, followers...)

		for _, tag := range pkg.ExtractTags(post.Content) {
			fail("tagline", s.st.Lines.Add(ctx, model.TaglineOf(st.Domain, tag), st.StatusID))
		}
		if group != nil {
			fail("groupline", s.st.Lines.Add(ctx, model.GrouplineOf(group.GroupID), st.StatusID))
		}
		if !privateGroup {
			fail("domainline", s.st.Lines.Add(ctx, model.DomainlineOf(st.Domain), st.StatusID))
		}
	}

	if privateGroup && len(mentioned) > 0 {
		mentioned, err = s.onlyMembers(ctx, group.GroupID, mentioned)
		fail("group members", err)
	}
	for _, login := range mentioned {
		fail("mentionline", s.st.Lines.Add(ctx, model.MentionlineOf(login), st.StatusID))
		fail("mention timeline", s.st.Lines.Add(ctx, model.TimelineOf(login), st.StatusID))
		recipients = append(recipients, login)
	}

	if st.IsReply() {
		root := post.DiscussionID
		fail("discussion", s.st.Lines.Add(ctx, model.DiscussionOf(root), st.StatusID))
		fail("reply counter", s.st.Counters.IncrementReplies(ctx, root))
		fail("last reply", s.st.Replies.SetLastReply(ctx, root, st.Username))
	}

	fail("statuses counter", s.st.Counters.IncrementStatuses(ctx, author))
	s.indexer.IndexStatus(ctx, st)
	s.notifyAll(ctx, recipients, st)
	return firstErr
}

// mentionedLogins 内容里 @ 到的同域用户，回复时加上被回复人；不含作者本人，不存在的用户忽略
func (s *StatusUpdateService) mentionedLogins(ctx context.Context, st *model.Status) ([]string, error) {
	var logins []string
	for _, username := range pkg.ExtractMentions(st.Post.Content) {
		logins = append(logins, model.LoginOf(username, st.Domain))
	}
	if st.Post.ReplyToUsername != "" {
		logins = append(logins, model.LoginOf(st.Post.ReplyToUsername, st.Domain))
	}
	logins = slices.DeleteFunc(logins, func(l string) bool { return l == st.Login })
	if len(logins) == 0 {
		return nil, nil
	}
	users, err := s.st.Users.FindByLogins(ctx, logins)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(users))
	for login := range users {
		out = append(out, login)
	}
	slices.Sort(out)
	return out, nil
}

func (s *StatusUpdateService) onlyMembers(ctx context.Context, groupID string, logins []string) ([]string, error) {
	members, err := s.st.Groups.MembersOf(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(logins, func(l string) bool { return !slices.Contains(members, l) }), nil
}

func (s *StatusUpdateService) notifyAll(ctx context.Context, logins []string, st *model.Status) {
	seen := make(map[string]struct{}, len(logins))
	for _, login := range logins {
		if _, ok := seen[login]; ok {
			continue
		}
		seen[login] = struct{}{}
		s.notifier.NotifyUser(ctx, login, st)
	}
}

// groupOf 分组已被删除时按私有分组处理，避免状态泄露到域线
func (s *StatusUpdateService) groupOf(ctx context.Context, st *model.Status) (*model.Group, error) {
	if st.Post == nil || st.Post.GroupID == "" {
		return nil, nil
	}
	g, err := s.st.Groups.FindByID(ctx, st.Post.GroupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return &model.Group{GroupID: st.Post.GroupID}, nil
	}
	return g, nil
}

// ApproveStatus 审核通过：清空状态后补做创建时跳过的扇出
func (s *StatusUpdateService) ApproveStatus(ctx context.Context, statusID string) (Outcome, error) {
	st, err := s.st.Statuses.FindStatusByIDAnyState(ctx, statusID)
	if err != nil {
		return TargetNotFound, err
	}
	if st == nil || st.Type != model.TypeStatus || st.State == "" {
		logger.From(ctx).Info("nothing to approve", "status_id", statusID)
		return TargetNotFound, nil
	}
	if err := s.st.States.UpdateState(ctx, st.Post.GroupID, st.StatusID, model.StateApproved); err != nil {
		return TargetNotFound, err
	}
	if err := s.st.Statuses.UpdateState(ctx, st.StatusID, model.StateApproved); err != nil {
		return TargetNotFound, err
	}
	st.State = ""

	group, err := s.groupOf(ctx, st)
	if err != nil {
		return TargetNotFound, err
	}
	if err := s.publish(ctx, st, group); err != nil {
		return Applied, err
	}
	if err := s.st.Counters.CreateLikeCounter(ctx, st.StatusID); err != nil {
		logger.From(ctx).Warn("like counter init failed", "status_id", st.StatusID, "err", err)
	}
	return Applied, nil
}

// BlockStatus 屏蔽状态并写审计记录，已经扇出的线不回收，读取时过滤
func (s *StatusUpdateService) BlockStatus(ctx context.Context, moderator *model.User, statusID, comment string) (Outcome, error) {
	if !moderator.Admin {
		logger.From(ctx).Warn("block refused", "login", moderator.Login, "status_id", statusID)
		return Rejected, nil
	}
	st, err := s.st.Statuses.FindStatusByIDAnyState(ctx, statusID)
	if err != nil {
		return TargetNotFound, err
	}
	if st == nil || st.Type != model.TypeStatus {
		return TargetNotFound, nil
	}
	if st.State == model.StateBlocked {
		return AlreadyExists, nil
	}
	if err := s.st.States.UpdateState(ctx, st.Post.GroupID, st.StatusID, model.StateBlocked); err != nil {
		return TargetNotFound, err
	}
	if err := s.st.Statuses.UpdateState(ctx, st.StatusID, model.StateBlocked); err != nil {
		return TargetNotFound, err
	}
	// 已发布的状态计过数，屏蔽后不再计入；待审核的从未计数
	if st.State == "" {
		lg := logger.From(ctx).With("op", "service/status.BlockStatus", "status_id", st.StatusID)
		logIf(lg, "statuses counter", s.st.Counters.DecrementStatuses(ctx, st.Login))
	}
	if err := s.st.Audits.BlockStatus(ctx, moderator.Login, st.StatusID, st.Username, comment); err != nil {
		return Applied, err
	}
	return Applied, nil
}

// shareable 分享/公告的目标：SHARE 解析到原状态，只接受同域、非私密、不在私有分组里的 STATUS
func (s *StatusUpdateService) shareable(ctx context.Context, user *model.User, statusID string) (*model.Status, Outcome, error) {
	st, err := s.st.Statuses.FindStatusByID(ctx, statusID)
	if err != nil {
		return nil, TargetNotFound, err
	}
	if st != nil && st.Type == model.TypeShare {
		if st, err = s.st.Statuses.FindStatusByID(ctx, st.Ref.OriginalStatusID); err != nil {
			return nil, TargetNotFound, err
		}
	}
	if st == nil {
		return nil, TargetNotFound, nil
	}
	if st.Type != model.TypeStatus {
		logger.From(ctx).Warn("cannot share this type", "status_id", st.StatusID, "type", st.Type)
		return nil, TargetNotFound, nil
	}
	if st.Domain != user.Domain {
		return nil, TargetNotFound, ErrDomainViolation
	}
	if st.Post.StatusPrivate {
		return nil, Rejected, nil
	}
	group, err := s.groupOf(ctx, st)
	if err != nil {
		return nil, TargetNotFound, err
	}
	if group != nil && !group.PublicGroup {
		return nil, Rejected, nil
	}
	return st, Applied, nil
}

// ShareStatus 分享到自己和关注者的时间线，并提醒原作者
func (s *StatusUpdateService) ShareStatus(ctx context.Context, user *model.User, statusID string) (Outcome, error) {
	orig, out, err := s.shareable(ctx, user, statusID)
	if err != nil || out != Applied {
		return out, err
	}
	shared, err := s.st.Shares.HasShared(ctx, orig.StatusID, user.Login)
	if err != nil {
		return TargetNotFound, err
	}
	if shared {
		return AlreadyExists, nil
	}
	share, err := s.st.Statuses.CreateShare(ctx, user.Login, orig.StatusID)
	if err != nil {
		return TargetNotFound, err
	}

	lg := logger.From(ctx).With("op", "service/status.ShareStatus", "status_id", share.StatusID)
	logIf(lg, "userline", s.st.Lines.Add(ctx, model.UserlineOf(user.Login), share.StatusID))
	logIf(lg, "timeline", s.st.Lines.Add(ctx, model.TimelineOf(user.Login), share.StatusID))
	followers, err := s.st.Friendships.FollowersOf(ctx, user.Login)
	logIf(lg, "followers", err)
	logIf(lg, "follower timelines", s.st.Lines.AddToMany(ctx, model.KindTimeline, followers, share.StatusID))
	s.notifyAll(ctx, append([]string{user.Login}, followers...), share)
	logIf(lg, "shares", s.st.Shares.AddShare(ctx, orig.StatusID, user.Login))
	s.mentionShare(ctx, lg, user.Login, orig)
	return Applied, nil
}

// AnnounceStatus 管理员把状态推到域内每个人的时间线
func (s *StatusUpdateService) AnnounceStatus(ctx context.Context, user *model.User, statusID string) (Outcome, error) {
	if !user.Admin {
		logger.From(ctx).Warn("announce refused", "login", user.Login, "status_id", statusID)
		return Rejected, nil
	}
	orig, out, err := s.shareable(ctx, user, statusID)
	if err != nil || out != Applied {
		return out, err
	}
	ann, err := s.st.Statuses.CreateAnnouncement(ctx, user.Login, orig.StatusID)
	if err != nil {
		return TargetNotFound, err
	}

	lg := logger.From(ctx).With("op", "service/status.AnnounceStatus", "status_id", ann.StatusID)
	logins, err := s.st.Users.LoginsInDomain(ctx, user.Domain)
	logIf(lg, "domain users", err)
	logIf(lg, "timelines", s.st.Lines.AddToMany(ctx, model.KindTimeline, logins, ann.StatusID))
	s.notifyAll(ctx, logins, ann)
	s.mentionShare(ctx, lg, user.Login, orig)
	return Applied, nil
}

// mentionShare 在原作者的 mentionline 里记录谁分享了他
func (s *StatusUpdateService) mentionShare(ctx context.Context, lg *slog.Logger, sharer string, orig *model.Status) {
	if sharer == orig.Login {
		return
	}
	ms, err := s.st.Statuses.CreateMentionShare(ctx, sharer, orig.StatusID)
	if err != nil {
		logIf(lg, "mention share", err)
		return
	}
	logIf(lg, "mentionline", s.st.Lines.Add(ctx, model.MentionlineOf(orig.Login), ms.StatusID))
	s.notifier.NotifyUser(ctx, orig.Login, ms)
}

// AddFavorite 收藏 STATUS，并在作者时间线里留一条 FAVORITE_SHARE
func (s *StatusUpdateService) AddFavorite(ctx context.Context, user *model.User, statusID string) (Outcome, error) {
	st, err := s.st.Statuses.FindStatusByID(ctx, statusID)
	if err != nil {
		return TargetNotFound, err
	}
	if st == nil || st.Type != model.TypeStatus {
		return TargetNotFound, nil
	}
	if st.Domain != user.Domain {
		return TargetNotFound, ErrDomainViolation
	}
	if st.Post.StatusPrivate && st.Login != user.Login {
		inTimeline, err := s.st.Lines.Contains(ctx, model.TimelineOf(user.Login), st.StatusID)
		if err != nil {
			return TargetNotFound, err
		}
		if !inTimeline {
			return TargetNotFound, nil
		}
	}
	group, err := s.groupOf(ctx, st)
	if err != nil {
		return TargetNotFound, err
	}
	if group != nil && !group.PublicGroup && st.Login != user.Login {
		member, err := s.st.Groups.IsMember(ctx, group.GroupID, user.Login)
		if err != nil {
			return TargetNotFound, err
		}
		if !member {
			return TargetNotFound, nil
		}
	}
	favorite, err := s.st.Lines.Contains(ctx, model.FavoritelineOf(user.Login), st.StatusID)
	if err != nil {
		return TargetNotFound, err
	}
	if favorite {
		return AlreadyExists, nil
	}
	if err := s.st.Lines.Add(ctx, model.FavoritelineOf(user.Login), st.StatusID); err != nil {
		return TargetNotFound, err
	}

	lg := logger.From(ctx).With("op", "service/status.AddFavorite", "status_id", st.StatusID)
	logIf(lg, "likes counter", s.st.Counters.IncrementLikes(ctx, st.StatusID))
	if st.Login == user.Login {
		return Applied, nil
	}
	fs, err := s.st.Statuses.CreateFavoriteShare(ctx, user.Login, st.Login, st.StatusID)
	if err != nil {
		logIf(lg, "favorite share", err)
		return Applied, nil
	}
	logIf(lg, "author timeline", s.st.Lines.Add(ctx, model.TimelineOf(st.Login), fs.StatusID))
	s.notifier.NotifyUser(ctx, st.Login, fs)
	return Applied, nil
}

func (s *StatusUpdateService) RemoveFavorite(ctx context.Context, user *model.User, statusID string) (Outcome, error) {
	line := model.FavoritelineOf(user.Login)
	favorite, err := s.st.Lines.Contains(ctx, line, statusID)
	if err != nil {
		return TargetNotFound, err
	}
	if !favorite {
		return TargetNotFound, nil
	}
	if err := s.st.Lines.Remove(ctx, line, statusID); err != nil {
		return TargetNotFound, err
	}
	logIf(logger.From(ctx), "likes counter", s.st.Counters.DecrementLikes(ctx, statusID))
	return Applied, nil
}

// RemoveStatus 只能删除自己的 STATUS 或 ANNOUNCEMENT；线上的引用留给读取时清理
func (s *StatusUpdateService) RemoveStatus(ctx context.Context, user *model.User, statusID string) (Outcome, error) {
	st, err := s.st.Statuses.FindStatusByIDAnyState(ctx, statusID)
	if err != nil {
		return TargetNotFound, err
	}
	if st == nil {
		return TargetNotFound, nil
	}
	lg := logger.From(ctx).With("op", "service/status.RemoveStatus", "status_id", statusID)
	if st.Login != user.Login {
		lg.Warn("not the owner", "login", user.Login, "owner", st.Login)
		return Rejected, nil
	}
	switch st.Type {
	case model.TypeStatus:
		if err := s.removeOwned(ctx, st); err != nil {
			return TargetNotFound, err
		}
	case model.TypeAnnouncement:
		if err := s.st.Statuses.RemoveStatus(ctx, st.StatusID); err != nil {
			return TargetNotFound, err
		}
	default:
		lg.Warn("type cannot be removed", "type", st.Type)
		return Rejected, nil
	}
	return Applied, nil
}

// removeOwned 软删除 STATUS 并清理它自己的附属数据
func (s *StatusUpdateService) removeOwned(ctx context.Context, st *model.Status) error {
	if err := s.st.Statuses.RemoveStatus(ctx, st.StatusID); err != nil {
		return err
	}
	lg := logger.From(ctx).With("op", "service/status.removeOwned", "status_id", st.StatusID)
	logIf(lg, "moderation entry", s.st.States.UpdateState(ctx, st.Post.GroupID, st.StatusID, ""))
	if st.State == "" {
		logIf(lg, "statuses counter", s.st.Counters.DecrementStatuses(ctx, st.Login))
	}
	s.indexer.RemoveStatus(ctx, st.StatusID)
	logIf(lg, "counters", s.st.Counters.DeleteCounters(ctx, st.StatusID))
	logIf(lg, "shares", s.st.Shares.DeleteShares(ctx, st.StatusID))
	logIf(lg, "last reply", s.st.Replies.DeleteLastReply(ctx, st.StatusID))
	return nil
}

// DeleteReport 批量删除的统计
type DeleteReport struct {
	Total   int `json:"total"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// RemoveStatusesForDeletedUser 删除用户名下全部状态，固定数量的 worker 并发执行，不做归属校验。
// 同一用户同时只允许一个批量删除。
func (s *StatusUpdateService) RemoveStatusesForDeletedUser(ctx context.Context, login string) (DeleteReport, error) {
	lg := logger.From(ctx).With("op", "service/status.RemoveStatusesForDeletedUser", "login", login)
	name := deleteLockPrefix + login
	token := uuid.NewString()
	got, err := s.st.Locks.Acquire(ctx, name, token, deleteLockTTL)
	if err != nil {
		return DeleteReport{}, err
	}
	if !got {
		return DeleteReport{}, ErrDeleteRunning
	}
	defer func() {
		if err := s.st.Locks.Release(context.WithoutCancel(ctx), name, token); err != nil {
			lg.Warn("release delete lock failed", "err", err)
		}
	}()
	ctx, stop := s.holdLock(ctx, name, token, deleteLockTTL)
	defer stop()

	ids, err := s.st.Statuses.ListIDsByLogin(ctx, login)
	if err != nil {
		return DeleteReport{}, err
	}

	var removed, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, id := range ids {
		g.Go(func() error {
			if err := s.removeForDeletedUser(ctx, id); err != nil {
				failed.Add(1)
				lg.Error("remove status failed", "status_id", id, "err", err)
				return nil
			}
			removed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report := DeleteReport{Total: len(ids), Removed: int(removed.Load()), Failed: int(failed.Load())}
	lg.Info("bulk delete finished", "total", report.Total, "removed", report.Removed, "failed", report.Failed)
	return report, nil
}

func (s *StatusUpdateService) removeForDeletedUser(ctx context.Context, statusID string) error {
	st, err := s.st.Statuses.FindStatusByIDAnyState(ctx, statusID)
	if err != nil || st == nil {
		return err
	}
	if st.Type == model.TypeStatus {
		return s.removeOwned(ctx, st)
	}
	return s.st.Statuses.RemoveStatus(ctx, st.StatusID)
}

// holdLock 每隔 ttl/3 续期一次；锁丢了就取消返回的 ctx，停止后续删除
func (s *StatusUpdateService) holdLock(ctx context.Context, name, token string, ttl time.Duration) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		lg := logger.From(ctx).With("op", "service/status.holdLock", "lock", name)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := s.st.Locks.Extend(ctx, name, token, ttl)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					lg.Warn("extend lock failed", "err", err)
					continue
				}
				if !ok {
					lg.Error("lock lost")
					cancel()
					return
				}
			}
		}
	}()
	return ctx, func() {
		cancel()
		<-done
	}
}

func logIf(lg *slog.Logger, step string, err error) {
	if err != nil {
		lg.Error("step failed", "step", step, "err", err)
	}
}

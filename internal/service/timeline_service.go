package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"Lee_Timeline/internal/config"
	"Lee_Timeline/internal/model"
	"Lee_Timeline/internal/pkg/logger"
	"Lee_Timeline/internal/repository/redis"

	"github.com/google/uuid"
)

const (
	pruneLockPrefix = "prune:"
	pruneLockTTL    = 5 * time.Second
)

// TimelineService 把线上的 id 还原成可展示的状态，顺带清理失效的引用
type TimelineService struct {
	st  *Stores
	cfg config.TimelineConfig
}

func NewTimelineService(st *Stores, cfg config.TimelineConfig) *TimelineService {
	if cfg.MaxResolveAttempts < 1 {
		cfg.MaxResolveAttempts = 1
	}
	return &TimelineService{st: st, cfg: cfg}
}

// entryKind 单个 id 的解析结果
type entryKind int

const (
	entryVisible entryKind = iota
	entryStale             // 状态或原状态已不存在，应从线上移除
	entryHidden            // 存在但当前用户无权查看
)

type resolution struct {
	dtos   []model.StatusDTO
	stale  []string
	hidden []string
}

// viewerScope 一次解析内复用的查询结果
type viewerScope struct {
	viewer    *model.User
	groupIDs  map[string]bool
	favorites map[string]bool
	users     map[string]*model.User
	groups    map[string]*model.Group
	timeline  map[string]bool
}

func (s *TimelineService) scope(ctx context.Context, viewer *model.User) (*viewerScope, error) {
	groupIDs, err := s.st.Groups.GroupIDsOf(ctx, viewer.Login)
	if err != nil {
		return nil, err
	}
	favorites, err := s.st.Lines.Members(ctx, model.FavoritelineOf(viewer.Login))
	if err != nil {
		return nil, err
	}
	sc := &viewerScope{
		viewer:    viewer,
		groupIDs:  make(map[string]bool, len(groupIDs)),
		favorites: make(map[string]bool, len(favorites)),
		users:     map[string]*model.User{viewer.Login: viewer},
		groups:    make(map[string]*model.Group),
		timeline:  make(map[string]bool),
	}
	for _, id := range groupIDs {
		sc.groupIDs[id] = true
	}
	for _, id := range favorites {
		sc.favorites[id] = true
	}
	return sc, nil
}

func (s *TimelineService) user(ctx context.Context, sc *viewerScope, login string) (*model.User, error) {
	if u, ok := sc.users[login]; ok {
		return u, nil
	}
	u, err := s.st.Users.FindByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	sc.users[login] = u
	return u, nil
}

func (s *TimelineService) group(ctx context.Context, sc *viewerScope, groupID string) (*model.Group, error) {
	if g, ok := sc.groups[groupID]; ok {
		return g, nil
	}
	g, err := s.st.Groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	sc.groups[groupID] = g
	return g, nil
}

// BuildStatusList 按输入顺序解析 id，缺失或无权查看的条目直接略过
func (s *TimelineService) BuildStatusList(ctx context.Context, viewer *model.User, ids []string) ([]model.StatusDTO, error) {
	res, err := s.build(ctx, viewer, ids)
	if err != nil {
		return nil, err
	}
	return res.dtos, nil
}

func (s *TimelineService) build(ctx context.Context, viewer *model.User, ids []string) (*resolution, error) {
	res := &resolution{dtos: make([]model.StatusDTO, 0, len(ids))}
	if len(ids) == 0 {
		return res, nil
	}
	sc, err := s.scope(ctx, viewer)
	if err != nil {
		return nil, err
	}
	statuses, err := s.st.Statuses.FindStatusesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	// 间接引用只解一层
	var originals []string
	for _, st := range statuses {
		if st.Ref != nil {
			if _, ok := statuses[st.Ref.OriginalStatusID]; !ok {
				originals = append(originals, st.Ref.OriginalStatusID)
			}
		}
	}
	if len(originals) > 0 {
		more, err := s.st.Statuses.FindStatusesByIDs(ctx, originals)
		if err != nil {
			return nil, err
		}
		for id, st := range more {
			statuses[id] = st
		}
	}

	for _, id := range ids {
		st := statuses[id]
		if st == nil {
			res.stale = append(res.stale, id)
			continue
		}
		if st.Domain != viewer.Domain {
			return nil, fmt.Errorf("%w: status %s belongs to %s", ErrDomainViolation, id, st.Domain)
		}
		dto, kind, err := s.resolve(ctx, sc, st, statuses)
		if err != nil {
			return nil, err
		}
		switch kind {
		case entryStale:
			res.stale = append(res.stale, id)
		case entryHidden:
			res.hidden = append(res.hidden, id)
		default:
			res.dtos = append(res.dtos, *dto)
		}
	}
	return res, nil
}

func (s *TimelineService) resolve(ctx context.Context, sc *viewerScope, st *model.Status, statuses map[string]*model.Status) (*model.StatusDTO, entryKind, error) {
	var orig *model.Status
	switch st.Type {
	case model.TypeStatus:
		orig = st
	case model.TypeShare, model.TypeAnnouncement, model.TypeMentionShare, model.TypeFavoriteShare:
		orig = statuses[st.Ref.OriginalStatusID]
		if orig == nil || orig.Type != model.TypeStatus {
			return nil, entryStale, nil
		}
	case model.TypeMentionFriend, model.TypeFriendRequest:
		return s.mentionDTO(ctx, sc, st)
	default:
		return nil, entryStale, nil
	}

	visible, err := s.visible(ctx, sc, orig)
	if err != nil || !visible {
		return nil, entryHidden, err
	}
	dto, err := s.hydrate(ctx, sc, orig)
	if err != nil {
		return nil, entryVisible, err
	}
	if dto == nil {
		return nil, entryStale, nil
	}
	dto.TimelineID = st.StatusID
	dto.Type = st.Type

	switch st.Type {
	case model.TypeShare, model.TypeAnnouncement, model.TypeMentionShare:
		dto.SharedByUsername = st.Username
	case model.TypeFavoriteShare:
		dto.SharedByUsername, _ = model.SplitLogin(st.Ref.FollowerLogin)
	}

	// 三条规则互不排斥，全部计算
	inShares, err := s.st.Shares.HasShared(ctx, orig.StatusID, sc.viewer.Login)
	if err != nil {
		return nil, entryVisible, err
	}
	wrapperByMe := (st.Type == model.TypeShare || st.Type == model.TypeAnnouncement) && st.Login == sc.viewer.Login
	ownPrivate := orig.Post.StatusPrivate && orig.Post.Content != "" && orig.Login == sc.viewer.Login
	dto.ShareByMe = inShares || wrapperByMe || ownPrivate
	return dto, entryVisible, nil
}

// visible 作者总能看到自己的状态；私有分组要求是成员；私密状态要求在自己的时间线里
func (s *TimelineService) visible(ctx context.Context, sc *viewerScope, orig *model.Status) (bool, error) {
	if orig.Login == sc.viewer.Login {
		return true, nil
	}
	if gid := orig.Post.GroupID; gid != "" {
		g, err := s.group(ctx, sc, gid)
		if err != nil {
			return false, err
		}
		if (g == nil || !g.PublicGroup) && !sc.groupIDs[gid] {
			return false, nil
		}
	}
	if !orig.Post.StatusPrivate {
		return true, nil
	}
	if in, ok := sc.timeline[orig.StatusID]; ok {
		return in, nil
	}
	in, err := s.st.Lines.Contains(ctx, model.TimelineOf(sc.viewer.Login), orig.StatusID)
	if err != nil {
		return false, err
	}
	sc.timeline[orig.StatusID] = in
	return in, nil
}

// hydrate 作者不存在时返回 nil
func (s *TimelineService) hydrate(ctx context.Context, sc *viewerScope, orig *model.Status) (*model.StatusDTO, error) {
	p := orig.Post
	dto := &model.StatusDTO{
		StatusID:        orig.StatusID,
		TimelineID:      orig.StatusID,
		Type:            orig.Type,
		Login:           orig.Login,
		Username:        orig.Username,
		Content:         p.Content,
		StatusPrivate:   p.StatusPrivate,
		GroupID:         p.GroupID,
		ReplyTo:         p.ReplyTo,
		ReplyToUsername: p.ReplyToUsername,
		DiscussionID:    p.DiscussionID,
		StatusDate:      orig.StatusDate,
		GeoLocalization: orig.GeoLocalization,
		State:           orig.State,
		Favorite:        sc.favorites[orig.StatusID],
	}
	author, err := s.user(ctx, sc, orig.Login)
	if err != nil || author == nil {
		return nil, err
	}
	dto.FirstName = author.FirstName
	dto.LastName = author.LastName
	dto.Avatar = author.Avatar
	dto.Activated = author.Activated
	if p.GroupID != "" {
		g, err := s.group(ctx, sc, p.GroupID)
		if err != nil {
			return nil, err
		}
		if g != nil {
			dto.GroupName = g.Name
			dto.PublicGroup = g.PublicGroup
		}
	}
	if p.HasAttachments {
		if dto.Attachments, err = s.st.Attachments.ListForStatus(ctx, orig.StatusID); err != nil {
			return nil, err
		}
	}

	counter := redis.StatusCounter(orig.StatusID)
	if dto.FavoriteCount, err = s.st.Counters.Get(ctx, counter, redis.FieldLikes); err != nil {
		return nil, err
	}
	if dto.ReplyCount, err = s.st.Counters.Get(ctx, counter, redis.FieldReplies); err != nil {
		return nil, err
	}
	if dto.LastReplyUsername, err = s.st.Replies.LastReply(ctx, orig.StatusID); err != nil {
		return nil, err
	}
	dto.DetailsAvailable = orig.IsReply() || dto.ReplyCount > 0
	return dto, nil
}

// mentionDTO 关注提醒和好友请求，展示发起人；好友请求的协议状态放在 State
func (s *TimelineService) mentionDTO(ctx context.Context, sc *viewerScope, st *model.Status) (*model.StatusDTO, entryKind, error) {
	u, err := s.user(ctx, sc, st.Mention.FollowerLogin)
	if err != nil {
		return nil, entryVisible, err
	}
	if u == nil {
		return nil, entryStale, nil
	}
	return &model.StatusDTO{
		StatusID:   st.StatusID,
		TimelineID: st.StatusID,
		Type:       st.Type,
		Login:      u.Login,
		Username:   u.Username,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Avatar:     u.Avatar,
		Activated:  u.Activated,
		StatusDate: st.StatusDate,
		State:      st.Mention.RequestState,
	}, entryVisible, nil
}

func (s *TimelineService) normalize(q model.LineQuery) model.LineQuery {
	switch {
	case q.Count <= 0:
		q.Count = s.cfg.DefaultPageSize
	case q.Count > s.cfg.MaxPageSize:
		q.Count = s.cfg.MaxPageSize
	}
	return q
}

// resolveLine 读一页并解析；发现失效引用就清理后重读，最多 MaxResolveAttempts 次。
// own 为 true 时，当前用户无权查看的条目也从这条线上移除。
func (s *TimelineService) resolveLine(ctx context.Context, viewer *model.User, line model.Line, q model.LineQuery, own bool) (*model.Page, error) {
	q = s.normalize(q)
	for attempt := 1; ; attempt++ {
		ids, err := s.st.Lines.Range(ctx, line, q.Start, q.Finish, q.Count)
		if err != nil {
			return nil, err
		}
		res, err := s.build(ctx, viewer, ids)
		if err != nil {
			return nil, err
		}
		dead := res.stale
		if own {
			dead = append(dead, res.hidden...)
		}
		page := &model.Page{Statuses: filterType(res.dtos, q.StatusType)}
		if len(dead) == 0 {
			return page, nil
		}
		if attempt >= s.cfg.MaxResolveAttempts || !s.prune(ctx, line, dead) {
			page.CleanupPending = true
			return page, nil
		}
	}
}

// prune 在线级锁内删除失效 id，拿不到锁或删除失败时返回 false
func (s *TimelineService) prune(ctx context.Context, line model.Line, ids []string) bool {
	lg := logger.From(ctx).With("op", "service/timeline.prune", "line", line.String())
	name := pruneLockPrefix + line.String()
	token := uuid.NewString()
	got, err := s.st.Locks.Acquire(ctx, name, token, pruneLockTTL)
	if err != nil {
		lg.Warn("prune lock failed", "err", err)
		return false
	}
	if !got {
		return false
	}
	defer func() {
		if err := s.st.Locks.Release(context.WithoutCancel(ctx), name, token); err != nil {
			lg.Warn("prune unlock failed", "err", err)
		}
	}()
	if err := s.st.Lines.Remove(ctx, line, ids...); err != nil {
		lg.Error("prune failed", "ids", len(ids), "err", err)
		return false
	}
	lg.Debug("pruned stale entries", "ids", ids)
	return true
}

func filterType(dtos []model.StatusDTO, t model.StatusType) []model.StatusDTO {
	if t == "" {
		return dtos
	}
	return slices.DeleteFunc(dtos, func(d model.StatusDTO) bool { return d.Type != t })
}

// Timeline 当前用户的首页时间线，可按类型过滤
func (s *TimelineService) Timeline(ctx context.Context, viewer *model.User, q model.LineQuery) (*model.Page, error) {
	return s.resolveLine(ctx, viewer, model.TimelineOf(viewer.Login), q, true)
}

func (s *TimelineService) UserTimeline(ctx context.Context, viewer *model.User, login string, q model.LineQuery) (*model.Page, error) {
	if _, domain := model.SplitLogin(login); domain != viewer.Domain {
		return nil, ErrDomainViolation
	}
	return s.resolveLine(ctx, viewer, model.UserlineOf(login), q, login == viewer.Login)
}

// Userline 按用户名查看同域用户发布的内容
func (s *TimelineService) Userline(ctx context.Context, viewer *model.User, username string, q model.LineQuery) (*model.Page, error) {
	u, err := s.st.Users.FindByUsername(ctx, viewer.Domain, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrTargetNotFound
	}
	return s.UserTimeline(ctx, viewer, u.Login, q)
}

func (s *TimelineService) Mentionline(ctx context.Context, viewer *model.User, q model.LineQuery) (*model.Page, error) {
	return s.resolveLine(ctx, viewer, model.MentionlineOf(viewer.Login), q, true)
}

// Tagline 标签为空时使用默认标签
func (s *TimelineService) Tagline(ctx context.Context, viewer *model.User, tag string, q model.LineQuery) (*model.Page, error) {
	tag = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
	if tag == "" {
		tag = s.cfg.HashtagDefault
	}
	return s.resolveLine(ctx, viewer, model.TaglineOf(viewer.Domain, tag), q, false)
}

// Groupline 私有分组只对成员开放
func (s *TimelineService) Groupline(ctx context.Context, viewer *model.User, groupID string, q model.LineQuery) (*model.Page, error) {
	g, err := s.st.Groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g == nil || g.Domain != viewer.Domain {
		return nil, ErrTargetNotFound
	}
	if !g.PublicGroup {
		member, err := s.st.Groups.IsMember(ctx, groupID, viewer.Login)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, ErrTargetNotFound
		}
	}
	return s.resolveLine(ctx, viewer, model.GrouplineOf(groupID), q, false)
}

func (s *TimelineService) Domainline(ctx context.Context, viewer *model.User, q model.LineQuery) (*model.Page, error) {
	return s.resolveLine(ctx, viewer, model.DomainlineOf(viewer.Domain), q, false)
}

func (s *TimelineService) Favoriteline(ctx context.Context, viewer *model.User, q model.LineQuery) (*model.Page, error) {
	return s.resolveLine(ctx, viewer, model.FavoritelineOf(viewer.Login), q, true)
}

// GetStatus 单条状态，找不到或无权查看时返回 nil
func (s *TimelineService) GetStatus(ctx context.Context, viewer *model.User, statusID string) (*model.StatusDTO, error) {
	dtos, err := s.BuildStatusList(ctx, viewer, []string{statusID})
	if err != nil || len(dtos) == 0 {
		return nil, err
	}
	return &dtos[0], nil
}

// GetStatusDetails 分享人列表和所在讨论：回复显示根状态和其它回复，根状态显示全部回复
func (s *TimelineService) GetStatusDetails(ctx context.Context, viewer *model.User, statusID string) (*model.StatusDetails, error) {
	dto, err := s.GetStatus(ctx, viewer, statusID)
	if err != nil || dto == nil {
		return nil, err
	}
	details := &model.StatusDetails{
		StatusID:           dto.StatusID,
		SharedByLogins:     []model.User{},
		DiscussionStatuses: []model.StatusDTO{},
	}

	logins, err := s.st.Shares.SharedBy(ctx, dto.StatusID)
	if err != nil {
		return nil, err
	}
	users, err := s.st.Users.FindByLogins(ctx, logins)
	if err != nil {
		return nil, err
	}
	slices.Sort(logins)
	for _, l := range logins {
		if u, ok := users[l]; ok {
			details.SharedByLogins = append(details.SharedByLogins, *u)
		}
	}

	root := dto.StatusID
	var ids []string
	if dto.ReplyTo != "" && dto.DiscussionID != "" {
		root = dto.DiscussionID
		ids = append(ids, root)
	}
	replies, err := s.st.Lines.Members(ctx, model.DiscussionOf(root))
	if err != nil {
		return nil, err
	}
	// 讨论按时间正序展示
	slices.Reverse(replies)
	for _, id := range replies {
		if id != dto.StatusID {
			ids = append(ids, id)
		}
	}
	discussion, err := s.BuildStatusList(ctx, viewer, ids)
	if err != nil {
		return nil, err
	}
	details.DiscussionStatuses = append(details.DiscussionStatuses, discussion...)
	return details, nil
}

// StatusesForState 审核队列，按状态和分组查询，不做可见性过滤
func (s *TimelineService) StatusesForState(ctx context.Context, moderator *model.User, state, groupID, start, finish string, count int) ([]model.StatusDTO, error) {
	if count <= 0 || count > s.cfg.MaxPageSize {
		count = s.cfg.DefaultPageSize
	}
	ids, err := s.st.States.FindStatuses(ctx, state, groupID, start, finish, count)
	if err != nil {
		return nil, err
	}
	sc, err := s.scope(ctx, moderator)
	if err != nil {
		return nil, err
	}
	out := make([]model.StatusDTO, 0, len(ids))
	for _, id := range ids {
		st, err := s.st.Statuses.FindStatusByIDAnyState(ctx, id)
		if err != nil {
			return nil, err
		}
		if st == nil || st.Type != model.TypeStatus {
			continue
		}
		dto, err := s.hydrate(ctx, sc, st)
		if err != nil {
			return nil, err
		}
		if dto == nil {
			continue
		}
		out = append(out, *dto)
	}
	return out, nil
}

func (s *TimelineService) CountForState(ctx context.Context, state, groupID string) (int64, error) {
	return s.st.States.Count(ctx, state, groupID)
}

// PendingStatus 审核中的单条状态，不在审核中返回 nil
func (s *TimelineService) PendingStatus(ctx context.Context, moderator *model.User, statusID string) (*model.StatusDTO, error) {
	st, err := s.st.Statuses.FindStatusByIDAnyState(ctx, statusID)
	if err != nil {
		return nil, err
	}
	if st == nil || st.Type != model.TypeStatus || st.State == "" {
		return nil, nil
	}
	sc, err := s.scope(ctx, moderator)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, sc, st)
}

func (s *TimelineService) AuditFor(ctx context.Context, statusID string) ([]model.AuditRecord, error) {
	return s.st.Audits.FindByStatusID(ctx, statusID)
}

// TimelineCount 当前用户已发布的状态数
func (s *TimelineService) TimelineCount(ctx context.Context, viewer *model.User) (int64, error) {
	return s.st.Counters.Get(ctx, redis.UserCounter(viewer.Login), redis.FieldStatuses)
}

// UserCounts 用户主页上的三个计数
type UserCounts struct {
	Friends   int64 `json:"friends"`
	Followers int64 `json:"followers"`
	Statuses  int64 `json:"statuses"`
}

func (s *TimelineService) Counts(ctx context.Context, login string) (*UserCounts, error) {
	subject := redis.UserCounter(login)
	var c UserCounts
	var err error
	if c.Friends, err = s.st.Counters.Get(ctx, subject, redis.FieldFriends); err != nil {
		return nil, err
	}
	if c.Followers, err = s.st.Counters.Get(ctx, subject, redis.FieldFollowers); err != nil {
		return nil, err
	}
	if c.Statuses, err = s.st.Counters.Get(ctx, subject, redis.FieldStatuses); err != nil {
		return nil, err
	}
	return &c, nil
}

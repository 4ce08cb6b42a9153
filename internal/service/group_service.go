package service

import (
	"context"
	"fmt"
	"strings"

	"Lee_Timeline/internal/model"
	"Lee_Timeline/internal/pkg/logger"
)

const maxGroupName = 64

// GroupService 分组的创建与成员管理。私有分组只能由创建者拉人。
type GroupService struct {
	st *Stores
}

func NewGroupService(st *Stores) *GroupService {
	return &GroupService{st: st}
}

func (s *GroupService) CreateGroup(ctx context.Context, user *model.User, name, desc string, public bool) (*model.Group, error) {
	if !user.Activated {
		return nil, ErrUserDeactivated
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxGroupName {
		return nil, fmt.Errorf("%w: group name must be 1-%d bytes", ErrValidationFailed, maxGroupName)
	}
	return s.st.Groups.Create(ctx, &model.Group{
		Domain:      user.Domain,
		Name:        name,
		Description: desc,
		PublicGroup: public,
		CreatorID:   user.Login,
	})
}

// Group 同域可见；私有分组对非成员等同于不存在
func (s *GroupService) Group(ctx context.Context, user *model.User, groupID string) (*model.Group, error) {
	g, err := s.st.Groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g == nil || g.Domain != user.Domain {
		return nil, nil
	}
	if !g.PublicGroup {
		member, err := s.st.Groups.IsMember(ctx, groupID, user.Login)
		if err != nil || !member {
			return nil, err
		}
	}
	return g, nil
}

// JoinGroup 只能自助加入公开分组
func (s *GroupService) JoinGroup(ctx context.Context, user *model.User, groupID string) (Outcome, error) {
	g, err := s.st.Groups.FindByID(ctx, groupID)
	if err != nil {
		return TargetNotFound, err
	}
	if g == nil || g.Domain != user.Domain {
		return TargetNotFound, nil
	}
	if !g.PublicGroup {
		return Rejected, nil
	}
	return s.join(ctx, g.GroupID, user.Login)
}

// AddMember 创建者把同域用户拉进分组
func (s *GroupService) AddMember(ctx context.Context, user *model.User, groupID, username string) (Outcome, error) {
	g, err := s.st.Groups.FindByID(ctx, groupID)
	if err != nil {
		return TargetNotFound, err
	}
	if g == nil || g.Domain != user.Domain {
		return TargetNotFound, nil
	}
	if g.CreatorID != user.Login {
		logger.From(ctx).Warn("add member refused", "login", user.Login, "group_id", groupID)
		return Rejected, nil
	}
	target, err := s.st.Users.FindByUsername(ctx, user.Domain, username)
	if err != nil {
		return TargetNotFound, err
	}
	if target == nil {
		return TargetNotFound, nil
	}
	return s.join(ctx, g.GroupID, target.Login)
}

func (s *GroupService) join(ctx context.Context, groupID, login string) (Outcome, error) {
	member, err := s.st.Groups.IsMember(ctx, groupID, login)
	if err != nil {
		return TargetNotFound, err
	}
	if member {
		return AlreadyExists, nil
	}
	if err := s.st.Groups.Join(ctx, groupID, login); err != nil {
		return TargetNotFound, err
	}
	return Applied, nil
}

func (s *GroupService) LeaveGroup(ctx context.Context, user *model.User, groupID string) (Outcome, error) {
	member, err := s.st.Groups.IsMember(ctx, groupID, user.Login)
	if err != nil {
		return TargetNotFound, err
	}
	if !member {
		return TargetNotFound, nil
	}
	if err := s.st.Groups.Leave(ctx, groupID, user.Login); err != nil {
		return TargetNotFound, err
	}
	return Applied, nil
}

// ListGroups 域内分组，page 从 1 开始
func (s *GroupService) ListGroups(ctx context.Context, user *model.User, page, size int) ([]model.Group, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 50 {
		size = 20
	}
	return s.st.Groups.ListByDomain(ctx, user.Domain, (page-1)*size, size)
}

// MaxAttachmentSize 单个附件上限
const MaxAttachmentSize = 10 << 20

// UploadAttachment 附件先独立上传，发状态时通过 id 关联
func (s *GroupService) UploadAttachment(ctx context.Context, user *model.User, filename string, content []byte) (*model.Attachment, error) {
	if !user.Activated {
		return nil, ErrUserDeactivated
	}
	if strings.TrimSpace(filename) == "" || len(content) == 0 || len(content) > MaxAttachmentSize {
		return nil, fmt.Errorf("%w: attachment must be 1-%d bytes with a name", ErrValidationFailed, MaxAttachmentSize)
	}
	a := &model.Attachment{Login: user.Login, Filename: filename, Content: content}
	if err := s.st.Attachments.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Attachment 只能下载同域用户的附件
func (s *GroupService) Attachment(ctx context.Context, user *model.User, attachmentID string) (*model.Attachment, error) {
	a, err := s.st.Attachments.FindContent(ctx, attachmentID)
	if err != nil || a == nil {
		return nil, err
	}
	if _, domain := model.SplitLogin(a.Login); domain != user.Domain {
		return nil, nil
	}
	return a, nil
}

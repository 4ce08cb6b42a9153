package mysql

import (
	"context"
	"fmt"
	"time"

	"Lee_Timeline/internal/model"

	"gorm.io/gorm"
)

// StatusRepository 状态主表。ModerationEnabled 开启时非管理员的公开状态先进入审核。
type StatusRepository struct {
	DB                *gorm.DB
	ModerationEnabled bool
}

// retention 按状态计算过期时间
func retention(now time.Time, state string) time.Time {
	if state == model.StateBlocked {
		return now.Add(model.BlockedRetention)
	}
	return now.Add(model.LongRetention)
}

// CreateStatus 校验在任何写入之前完成；状态行、附件关联和审核条目在同一个事务里。
func (r *StatusRepository) CreateStatus(ctx context.Context, d *model.StatusDraft) (*model.Status, error) {
	const op = "repository/mysql/status.CreateStatus"
	if err := d.Validate(); err != nil {
		return nil, err
	}

	id := model.NewStatusID()
	now := time.Now().UTC()

	state := ""
	if r.ModerationEnabled && !d.IsAdmin && !d.Private {
		state = model.StatePending
	}
	discussionID := d.DiscussionID
	if discussionID == "" {
		discussionID = id
	}

	st := &model.Status{
		StatusID:        id,
		Type:            model.TypeStatus,
		Login:           d.Login,
		Username:        d.Username,
		Domain:          d.Domain,
		StatusDate:      now,
		GeoLocalization: d.Geo,
		State:           state,
		Post: &model.Post{
			Content:         d.Content,
			StatusPrivate:   d.Private,
			GroupID:         d.GroupID,
			DiscussionID:    discussionID,
			ReplyTo:         d.ReplyTo,
			ReplyToUsername: d.ReplyToUsername,
		},
	}
	rec := st.ToRecord()
	rec.ExpiresAt = retention(now, state)

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		if len(d.AttachmentIDs) > 0 {
			res := tx.Model(&model.Attachment{}).
				Where("attachment_id IN ? AND login = ?", d.AttachmentIDs, d.Login).
				Update("status_id", id)
			if res.Error != nil {
				return res.Error
			}
			// 只有真正挂上了自己的附件才算
			if res.RowsAffected > 0 {
				if err := tx.Model(&model.StatusRecord{}).
					Where("status_id = ?", id).
					Update("has_attachments", true).Error; err != nil {
					return err
				}
				st.Post.HasAttachments = true
			}
		}
		if !r.ModerationEnabled || d.Private {
			return nil
		}
		entry := model.StateApproved
		if state == model.StatePending {
			entry = model.StatePending
		}
		return createStateEntry(tx, now, id, entry, d.GroupID)
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return st, nil
}

func (r *StatusRepository) CreateShare(ctx context.Context, login, originalID string) (*model.Status, error) {
	return r.createReference(ctx, "repository/mysql/status.CreateShare", model.TypeShare, login, originalID, "")
}

func (r *StatusRepository) CreateAnnouncement(ctx context.Context, login, originalID string) (*model.Status, error) {
	return r.createReference(ctx, "repository/mysql/status.CreateAnnouncement", model.TypeAnnouncement, login, originalID, "")
}

// CreateMentionShare login 为分享人，由调用方放进原作者的 mentionline
func (r *StatusRepository) CreateMentionShare(ctx context.Context, login, originalID string) (*model.Status, error) {
	return r.createReference(ctx, "repository/mysql/status.CreateMentionShare", model.TypeMentionShare, login, originalID, "")
}

// CreateFavoriteShare 属于作者，FollowerLogin 是点赞人
func (r *StatusRepository) CreateFavoriteShare(ctx context.Context, likerLogin, authorLogin, originalID string) (*model.Status, error) {
	return r.createReference(ctx, "repository/mysql/status.CreateFavoriteShare", model.TypeFavoriteShare, authorLogin, originalID, likerLogin)
}

func (r *StatusRepository) CreateMentionFriend(ctx context.Context, login, followerLogin string) (*model.Status, error) {
	return r.createMention(ctx, "repository/mysql/status.CreateMentionFriend", model.TypeMentionFriend, login, followerLogin, "")
}

// CreateFriendRequest 属于被请求方，初始为 PENDING
func (r *StatusRepository) CreateFriendRequest(ctx context.Context, login, followerLogin string) (*model.Status, error) {
	return r.createMention(ctx, "repository/mysql/status.CreateFriendRequest", model.TypeFriendRequest, login, followerLogin, model.RequestPending)
}

func (r *StatusRepository) AcceptFriendRequest(ctx context.Context, statusID string) error {
	return r.setRequestState(ctx, "repository/mysql/status.AcceptFriendRequest", statusID, model.RequestAccepted)
}

func (r *StatusRepository) RejectFriendRequest(ctx context.Context, statusID string) error {
	return r.setRequestState(ctx, "repository/mysql/status.RejectFriendRequest", statusID, model.RequestRejected)
}

func (r *StatusRepository) createReference(ctx context.Context, op string, typ model.StatusType, login, originalID, follower string) (*model.Status, error) {
	st := r.newStatus(typ, login)
	st.Ref = &model.Reference{OriginalStatusID: originalID, FollowerLogin: follower}
	return st, r.insert(ctx, op, st)
}

func (r *StatusRepository) createMention(ctx context.Context, op string, typ model.StatusType, login, follower, requestState string) (*model.Status, error) {
	st := r.newStatus(typ, login)
	st.Mention = &model.Mention{FollowerLogin: follower, RequestState: requestState}
	return st, r.insert(ctx, op, st)
}

func (r *StatusRepository) newStatus(typ model.StatusType, login string) *model.Status {
	username, domain := model.SplitLogin(login)
	return &model.Status{
		StatusID:   model.NewStatusID(),
		Type:       typ,
		Login:      login,
		Username:   username,
		Domain:     domain,
		StatusDate: time.Now().UTC(),
	}
}

func (r *StatusRepository) insert(ctx context.Context, op string, st *model.Status) error {
	if st.Domain == "" {
		return fmt.Errorf("%w: login %q has no domain", model.ErrValidationFailed, st.Login)
	}
	rec := st.ToRecord()
	rec.ExpiresAt = retention(st.StatusDate, "")
	return wrap(op, r.DB.WithContext(ctx).Create(rec).Error)
}

func (r *StatusRepository) setRequestState(ctx context.Context, op, statusID, state string) error {
	return wrap(op, r.DB.WithContext(ctx).Model(&model.StatusRecord{}).
		Where("status_id = ? AND type = ?", statusID, string(model.TypeFriendRequest)).
		Update("content", state).Error)
}

// FindStatusByID 不存在、已删除、已过期或处于审核中的状态都返回 nil, nil。
func (r *StatusRepository) FindStatusByID(ctx context.Context, statusID string) (*model.Status, error) {
	return r.find(ctx, "repository/mysql/status.FindStatusByID", statusID, true)
}

// FindStatusByIDAnyState 同上，但不过滤审核状态
func (r *StatusRepository) FindStatusByIDAnyState(ctx context.Context, statusID string) (*model.Status, error) {
	return r.find(ctx, "repository/mysql/status.FindStatusByIDAnyState", statusID, false)
}

func (r *StatusRepository) find(ctx context.Context, op, statusID string, excludeStates bool) (*model.Status, error) {
	if statusID == "" {
		return nil, nil
	}
	q := r.DB.WithContext(ctx).
		Where("status_id = ? AND removed = ? AND expires_at > ?", statusID, false, time.Now().UTC())
	if excludeStates {
		q = q.Where("state = ?", "")
	}
	var rec model.StatusRecord
	if err := q.Take(&rec).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, wrap(op, err)
	}
	st, err := rec.ToStatus()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return st, nil
}

// FindStatusesByIDs 批量读取可见状态，按 id 索引
func (r *StatusRepository) FindStatusesByIDs(ctx context.Context, ids []string) (map[string]*model.Status, error) {
	const op = "repository/mysql/status.FindStatusesByIDs"
	out := make(map[string]*model.Status, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []model.StatusRecord
	if err := r.DB.WithContext(ctx).
		Where("status_id IN ? AND removed = ? AND state = ? AND expires_at > ?", ids, false, "", time.Now().UTC()).
		Find(&rows).Error; err != nil {
		return nil, wrap(op, err)
	}
	for i := range rows {
		st, err := rows[i].ToStatus()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out[st.StatusID] = st
	}
	return out, nil
}

// UpdateState APPROVED 视为清空状态；同时刷新保留期限
func (r *StatusRepository) UpdateState(ctx context.Context, statusID, state string) error {
	const op = "repository/mysql/status.UpdateState"
	if state == model.StateApproved {
		state = ""
	}
	return wrap(op, r.DB.WithContext(ctx).Model(&model.StatusRecord{}).
		Where("status_id = ?", statusID).
		Updates(map[string]any{
			"state":      state,
			"expires_at": retention(time.Now().UTC(), state),
		}).Error)
}

// RemoveStatus 软删除：只打标记并清空内容，不处理各条线
func (r *StatusRepository) RemoveStatus(ctx context.Context, statusID string) error {
	const op = "repository/mysql/status.RemoveStatus"
	return wrap(op, r.DB.WithContext(ctx).Model(&model.StatusRecord{}).
		Where("status_id = ?", statusID).
		Updates(map[string]any{"removed": true, "content": ""}).Error)
}

// ListIDsByLogin 用户名下未删除的状态 id
func (r *StatusRepository) ListIDsByLogin(ctx context.Context, login string) ([]string, error) {
	const op = "repository/mysql/status.ListIDsByLogin"
	var ids []string
	if err := r.DB.WithContext(ctx).Model(&model.StatusRecord{}).
		Where("login = ? AND removed = ?", login, false).
		Order("status_id ASC").
		Pluck("status_id", &ids).Error; err != nil {
		return nil, wrap(op, err)
	}
	return ids, nil
}

// PurgeExpired 删除一批过期行，返回被删除的 id
func (r *StatusRepository) PurgeExpired(ctx context.Context, now time.Time, batch int) ([]string, error) {
	const op = "repository/mysql/status.PurgeExpired"
	var ids []string
	if err := r.DB.WithContext(ctx).Model(&model.StatusRecord{}).
		Where("expires_at <= ?", now.UTC()).
		Order("expires_at ASC").
		Limit(batch).
		Pluck("status_id", &ids).Error; err != nil {
		return nil, wrap(op, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if err := r.DB.WithContext(ctx).
		Where("status_id IN ?", ids).
		Delete(&model.StatusRecord{}).Error; err != nil {
		return nil, wrap(op, err)
	}
	return ids, nil
}

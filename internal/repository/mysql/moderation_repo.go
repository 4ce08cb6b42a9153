package mysql

import (
	"context"
	"time"

	"Lee_Timeline/internal/model"

	"gorm.io/gorm"
)

// StatusStateGroupRepository 审核队列，按 (分组, 状态) 检索
type StatusStateGroupRepository struct {
	DB *gorm.DB
}

type AuditRepository struct {
	DB *gorm.DB
}

func groupOrNull(groupID string) string {
	if groupID == "" {
		return model.GroupNull
	}
	return groupID
}

func createStateEntry(tx *gorm.DB, now time.Time, statusID, state, groupID string) error {
	return tx.Create(&model.StatusStateGroup{
		GroupID:   groupOrNull(groupID),
		State:     state,
		StatusID:  statusID,
		ExpiresAt: now.Add(model.BlockedRetention),
	}).Error
}

// Create 在调用方事务内写入条目；tx 为空时使用自身连接
func (r *StatusStateGroupRepository) Create(ctx context.Context, tx *gorm.DB, statusID, state, groupID string) error {
	const op = "repository/mysql/moderation.Create"
	if tx == nil {
		tx = r.DB
	}
	return wrap(op, createStateEntry(tx.WithContext(ctx), time.Now().UTC(), statusID, state, groupID))
}

// UpdateState 原子替换：删掉该状态的所有旧条目，新状态非空时再插入一条
func (r *StatusStateGroupRepository) UpdateState(ctx context.Context, groupID, statusID, newState string) error {
	const op = "repository/mysql/moderation.UpdateState"
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("status_id = ?", statusID).Delete(&model.StatusStateGroup{}).Error; err != nil {
			return err
		}
		if newState == "" {
			return nil
		}
		return createStateEntry(tx, time.Now().UTC(), statusID, newState, groupID)
	})
	return wrap(op, err)
}

// FindStatuses 按 id 倒序分页，from/to 为开区间，空值表示不限
func (r *StatusStateGroupRepository) FindStatuses(ctx context.Context, state, groupID, from, to string, count int) ([]string, error) {
	const op = "repository/mysql/moderation.FindStatuses"
	q := r.DB.WithContext(ctx).Model(&model.StatusStateGroup{}).
		Where("group_id = ? AND state = ? AND expires_at > ?", groupOrNull(groupID), state, time.Now().UTC())
	if from != "" {
		q = q.Where("status_id > ?", from)
	}
	if to != "" {
		q = q.Where("status_id < ?", to)
	}
	var ids []string
	if err := q.Order("status_id DESC").Limit(count).Pluck("status_id", &ids).Error; err != nil {
		return nil, wrap(op, err)
	}
	return ids, nil
}

func (r *StatusStateGroupRepository) Count(ctx context.Context, state, groupID string) (int64, error) {
	const op = "repository/mysql/moderation.Count"
	var n int64
	if err := r.DB.WithContext(ctx).Model(&model.StatusStateGroup{}).
		Where("group_id = ? AND state = ? AND expires_at > ?", groupOrNull(groupID), state, time.Now().UTC()).
		Count(&n).Error; err != nil {
		return 0, wrap(op, err)
	}
	return n, nil
}

// FindByStatusID 当前条目，没有时返回 nil
func (r *StatusStateGroupRepository) FindByStatusID(ctx context.Context, statusID string) (*model.StatusStateGroup, error) {
	const op = "repository/mysql/moderation.FindByStatusID"
	var row model.StatusStateGroup
	if err := r.DB.WithContext(ctx).Where("status_id = ?", statusID).Take(&row).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, wrap(op, err)
	}
	return &row, nil
}

func (r *StatusStateGroupRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	const op = "repository/mysql/moderation.PurgeExpired"
	tx := r.DB.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&model.StatusStateGroup{})
	return tx.RowsAffected, wrap(op, tx.Error)
}

// BlockStatus 记录一次屏蔽操作
func (r *AuditRepository) BlockStatus(ctx context.Context, moderator, statusID, username, comment string) error {
	const op = "repository/mysql/audit.BlockStatus"
	now := time.Now().UTC()
	return wrap(op, r.DB.WithContext(ctx).Create(&model.AuditRecord{
		Moderator: moderator,
		StatusID:  statusID,
		Username:  username,
		Comment:   comment,
		ExpiresAt: now.Add(model.BlockedRetention),
	}).Error)
}

func (r *AuditRepository) FindByStatusID(ctx context.Context, statusID string) ([]model.AuditRecord, error) {
	const op = "repository/mysql/audit.FindByStatusID"
	var list []model.AuditRecord
	if err := r.DB.WithContext(ctx).
		Where("status_id = ? AND expires_at > ?", statusID, time.Now().UTC()).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, wrap(op, err)
	}
	return list, nil
}

func (r *AuditRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	const op = "repository/mysql/audit.PurgeExpired"
	tx := r.DB.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&model.AuditRecord{})
	return tx.RowsAffected, wrap(op, tx.Error)
}

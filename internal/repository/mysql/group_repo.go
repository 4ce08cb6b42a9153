package mysql

import (
	"context"

	"Lee_Timeline/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GroupRepository struct {
	DB *gorm.DB
}

// Create 建组，创建者以管理员身份加入（幂等）
func (r *GroupRepository) Create(ctx context.Context, g *model.Group) (*model.Group, error) {
	const op = "repository/mysql/group.Create"
	if g.GroupID == "" {
		g.GroupID = model.NewStatusID()
	}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(g).Error; err != nil {
			return err
		}
		return join(tx, g.GroupID, g.CreatorID, 1)
	})
	return g, wrap(op, err)
}

// FindByID 不存在时返回 nil, nil
func (r *GroupRepository) FindByID(ctx context.Context, groupID string) (*model.Group, error) {
	const op = "repository/mysql/group.FindByID"
	var g model.Group
	if err := r.DB.WithContext(ctx).Where("group_id = ?", groupID).Take(&g).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, wrap(op, err)
	}
	return &g, nil
}

func (r *GroupRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*model.Group, error) {
	const op = "repository/mysql/group.FindByIDs"
	out := make(map[string]*model.Group, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var list []model.Group
	if err := r.DB.WithContext(ctx).Where("group_id IN ?", ids).Find(&list).Error; err != nil {
		return nil, wrap(op, err)
	}
	for i := range list {
		out[list[i].GroupID] = &list[i]
	}
	return out, nil
}

func (r *GroupRepository) ListByDomain(ctx context.Context, domain string, offset, limit int) ([]model.Group, error) {
	const op = "repository/mysql/group.ListByDomain"
	var list []model.Group
	err := r.DB.WithContext(ctx).Where("domain = ?", domain).
		Order("group_id DESC").Offset(offset).Limit(limit).Find(&list).Error
	return list, wrap(op, err)
}

func (r *GroupRepository) Join(ctx context.Context, groupID, login string) error {
	const op = "repository/mysql/group.Join"
	return wrap(op, join(r.DB.WithContext(ctx), groupID, login, 0))
}

// 幂等插入：若已存在 (group_id, login) 则不报错
func join(tx *gorm.DB, groupID, login string, role int) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_id"}, {Name: "login"}},
		DoNothing: true,
	}).Create(&model.GroupMember{GroupID: groupID, Login: login, Role: role}).Error
}

func (r *GroupRepository) Leave(ctx context.Context, groupID, login string) error {
	const op = "repository/mysql/group.Leave"
	return wrap(op, r.DB.WithContext(ctx).
		Where("group_id = ? AND login = ?", groupID, login).
		Delete(&model.GroupMember{}).Error)
}

func (r *GroupRepository) IsMember(ctx context.Context, groupID, login string) (bool, error) {
	const op = "repository/mysql/group.IsMember"
	var n int64
	if err := r.DB.WithContext(ctx).Model(&model.GroupMember{}).
		Where("group_id = ? AND login = ?", groupID, login).
		Count(&n).Error; err != nil {
		return false, wrap(op, err)
	}
	return n > 0, nil
}

// GroupIDsOf login 所在的全部分组
func (r *GroupRepository) GroupIDsOf(ctx context.Context, login string) ([]string, error) {
	const op = "repository/mysql/group.GroupIDsOf"
	var out []string
	if err := r.DB.WithContext(ctx).Model(&model.GroupMember{}).
		Where("login = ?", login).
		Pluck("group_id", &out).Error; err != nil {
		return nil, wrap(op, err)
	}
	return out, nil
}

func (r *GroupRepository) MembersOf(ctx context.Context, groupID string) ([]string, error) {
	const op = "repository/mysql/group.MembersOf"
	var out []string
	if err := r.DB.WithContext(ctx).Model(&model.GroupMember{}).
		Where("group_id = ?", groupID).
		Order("id ASC").
		Pluck("login", &out).Error; err != nil {
		return nil, wrap(op, err)
	}
	return out, nil
}

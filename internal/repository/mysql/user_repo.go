package mysql

import (
	"context"

	"Lee_Timeline/internal/model"

	"gorm.io/gorm"
)

// UserRepository 用户资料与域成员，注册流程不在这里
type UserRepository struct {
	DB *gorm.DB
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	const op = "repository/mysql/user.Create"
	if user.Login == "" {
		user.Login = model.LoginOf(user.Username, user.Domain)
	}
	return wrap(op, r.DB.WithContext(ctx).Create(user).Error)
}

// FindByLogin 不存在时返回 nil, nil
func (r *UserRepository) FindByLogin(ctx context.Context, login string) (*model.User, error) {
	const op = "repository/mysql/user.FindByLogin"
	var user model.User
	if err := r.DB.WithContext(ctx).Where("login = ?", login).Take(&user).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, wrap(op, err)
	}
	return &user, nil
}

// FindByUsername 同一 domain 内按用户名查找
func (r *UserRepository) FindByUsername(ctx context.Context, domain, username string) (*model.User, error) {
	return r.FindByLogin(ctx, model.LoginOf(username, domain))
}

// FindByLogins 批量读取，缺失的登录名不出现在结果里
func (r *UserRepository) FindByLogins(ctx context.Context, logins []string) (map[string]*model.User, error) {
	const op = "repository/mysql/user.FindByLogins"
	out := make(map[string]*model.User, len(logins))
	if len(logins) == 0 {
		return out, nil
	}
	var list []model.User
	if err := r.DB.WithContext(ctx).Where("login IN ?", logins).Find(&list).Error; err != nil {
		return nil, wrap(op, err)
	}
	for i := range list {
		out[list[i].Login] = &list[i]
	}
	return out, nil
}

// LoginsInDomain 域内所有用户，公告扇出使用
func (r *UserRepository) LoginsInDomain(ctx context.Context, domain string) ([]string, error) {
	const op = "repository/mysql/user.LoginsInDomain"
	var out []string
	if err := r.DB.WithContext(ctx).Model(&model.User{}).
		Where("domain = ?", domain).
		Order("id ASC").
		Pluck("login", &out).Error; err != nil {
		return nil, wrap(op, err)
	}
	return out, nil
}

func (r *UserRepository) SetActivated(ctx context.Context, login string, activated bool) error {
	const op = "repository/mysql/user.SetActivated"
	tx := r.DB.WithContext(ctx).Model(&model.User{}).Where("login = ?", login).Update("activated", activated)
	if tx.Error != nil {
		return wrap(op, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

package model

import (
	"strings"
	"time"
)

// User 登录名格式为 username@domain，同一 domain 内 username 唯一。
type User struct {
	ID        uint64 `gorm:"primaryKey"`
	Login     string `gorm:"uniqueIndex:uk_user_login;size:128;not null"`
	Username  string `gorm:"uniqueIndex:uk_user_domain_username,priority:2;size:64;not null"`
	Domain    string `gorm:"uniqueIndex:uk_user_domain_username,priority:1;size:64;not null;index:idx_user_domain"`
	FirstName string `gorm:"size:64"`
	LastName  string `gorm:"size:64"`
	Avatar    string `gorm:"size:255"`
	Activated bool   `gorm:"not null"`
	Admin     bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string { return "users" }

// LoginOf 拼接登录名
func LoginOf(username, domain string) string {
	return username + "@" + domain
}

// SplitLogin 拆分登录名，没有 @ 时 domain 为空。
func SplitLogin(login string) (username, domain string) {
	i := strings.LastIndex(login, "@")
	if i < 0 {
		return login, ""
	}
	return login[:i], login[i+1:]
}

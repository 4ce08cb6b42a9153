package model

import "time"

// Group 分组，私有分组的状态只有成员可见。
type Group struct {
	GroupID     string `gorm:"primaryKey;size:36"`
	Domain      string `gorm:"size:64;not null;index:idx_group_domain"`
	Name        string `gorm:"size:64;not null"`
	Description string `gorm:"type:text"`
	PublicGroup bool   `gorm:"not null"`
	CreatorID   string `gorm:"size:128;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Group) TableName() string { return "user_groups" }

type GroupMember struct {
	ID        uint64 `gorm:"primaryKey"`
	GroupID   string `gorm:"size:36;not null;uniqueIndex:uk_group_member"`
	Login     string `gorm:"size:128;not null;uniqueIndex:uk_group_member;index:idx_group_member_login"`
	Role      int    `gorm:"not null;default:0"` // 0=member, 1=admin
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (GroupMember) TableName() string { return "group_members" }

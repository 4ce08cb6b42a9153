package model

import "time"

// StatusStateGroup 审核队列条目，每个状态最多一条。
type StatusStateGroup struct {
	ID        uint64    `gorm:"primaryKey"`
	GroupID   string    `gorm:"size:36;not null;index:idx_state_group,priority:1"`
	State     string    `gorm:"size:16;not null;index:idx_state_group,priority:2"`
	StatusID  string    `gorm:"size:36;not null;uniqueIndex:uk_state_group_status"`
	ExpiresAt time.Time `gorm:"not null;index:idx_state_group_expires"`
	CreatedAt time.Time
}

func (StatusStateGroup) TableName() string { return "status_state_groups" }

// AuditRecord 屏蔽操作的审计记录
type AuditRecord struct {
	ID        uint64    `gorm:"primaryKey"`
	Moderator string    `gorm:"size:128;not null"`
	StatusID  string    `gorm:"size:36;not null;index:idx_audit_status"`
	Username  string    `gorm:"size:64"`
	Comment   string    `gorm:"type:text"`
	ExpiresAt time.Time `gorm:"not null;index:idx_audit_expires"`
	CreatedAt time.Time
}

func (AuditRecord) TableName() string { return "status_audits" }

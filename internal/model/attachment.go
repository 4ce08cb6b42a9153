package model

import "time"

// Attachment 附件元数据；内容字节单独存放，读状态时不加载。
type Attachment struct {
	AttachmentID string    `gorm:"primaryKey;size:36" json:"attachmentId"`
	StatusID     string    `gorm:"size:36;index:idx_attachment_status" json:"-"`
	Login        string    `gorm:"size:128;not null" json:"-"`
	Filename     string    `gorm:"size:255;not null" json:"filename"`
	Size         int64     `gorm:"not null" json:"size"`
	Content      []byte    `gorm:"type:longblob" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (Attachment) TableName() string { return "attachments" }

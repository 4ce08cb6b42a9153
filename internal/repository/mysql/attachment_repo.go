package mysql

import (
	"context"

	"Lee_Timeline/internal/model"

	"gorm.io/gorm"
)

type AttachmentRepository struct {
	DB *gorm.DB
}

// Create 上传时调用，此时还没有关联状态
func (r *AttachmentRepository) Create(ctx context.Context, a *model.Attachment) error {
	const op = "repository/mysql/attachment.Create"
	if a.AttachmentID == "" {
		a.AttachmentID = model.NewStatusID()
	}
	a.Size = int64(len(a.Content))
	return wrap(op, r.DB.WithContext(ctx).Create(a).Error)
}

// ListForStatus 只读元数据，不取内容
func (r *AttachmentRepository) ListForStatus(ctx context.Context, statusID string) ([]model.Attachment, error) {
	const op = "repository/mysql/attachment.ListForStatus"
	var list []model.Attachment
	if err := r.DB.WithContext(ctx).
		Select("attachment_id", "status_id", "login", "filename", "size", "created_at").
		Where("status_id = ?", statusID).
		Order("created_at ASC").
		Find(&list).Error; err != nil {
		return nil, wrap(op, err)
	}
	return list, nil
}

// FindContent 下载附件时读取内容
func (r *AttachmentRepository) FindContent(ctx context.Context, attachmentID string) (*model.Attachment, error) {
	const op = "repository/mysql/attachment.FindContent"
	var a model.Attachment
	if err := r.DB.WithContext(ctx).Where("attachment_id = ?", attachmentID).Take(&a).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, wrap(op, err)
	}
	return &a, nil
}

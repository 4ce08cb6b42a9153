package service

import (
	"context"

	"Lee_Timeline/internal/model"
)

//go:generate mockgen -source=ports.go -destination=../../mocks/mock_ports.go -package=mocks

// Indexer 搜索索引，失败由实现方记录日志，不影响主流程
type Indexer interface {
	IndexStatus(ctx context.Context, st *model.Status)
	RemoveStatus(ctx context.Context, statusID string)
}

// Notifier 向在线用户推送，尽力而为
type Notifier interface {
	NotifyUser(ctx context.Context, login string, st *model.Status)
}

package redis

import (
	"context"
	"encoding/json"
	"time"

	"Lee_Timeline/internal/model"
	"Lee_Timeline/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const notifyChannelPrefix = "notify:"

// Notification 推送给在线用户的消息
type Notification struct {
	StatusID   string           `json:"statusId"`
	Type       model.StatusType `json:"type"`
	Login      string           `json:"login"`
	Username   string           `json:"username"`
	StatusDate time.Time        `json:"statusDate"`
}

// Notifier 基于 pub/sub 的通知，尽力而为
type Notifier struct {
	RDB *redis.Client
}

func NotifyChannel(login string) string { return notifyChannelPrefix + login }

// NotifyUser 发布失败只记录日志
func (n *Notifier) NotifyUser(ctx context.Context, login string, st *model.Status) {
	payload, err := json.Marshal(Notification{
		StatusID:   st.StatusID,
		Type:       st.Type,
		Login:      st.Login,
		Username:   st.Username,
		StatusDate: st.StatusDate,
	})
	if err != nil {
		return
	}
	if err := n.RDB.Publish(ctx, NotifyChannel(login), payload).Err(); err != nil {
		logger.From(ctx).Warn("notify failed",
			"op", "repository/redis/notifier.NotifyUser",
			"login", login,
			"status_id", st.StatusID,
			"err", err)
	}
}

// Subscribe 订阅 login 的通知，调用方负责 Close
func (n *Notifier) Subscribe(ctx context.Context, login string) *redis.PubSub {
	return n.RDB.Subscribe(ctx, NotifyChannel(login))
}

package handler

import (
	"time"

	"Lee_Timeline/internal/pkg/logger"
	"Lee_Timeline/internal/repository/redis"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// StreamHandler 把用户的 redis 通知频道转发到 websocket
type StreamHandler struct {
	notifier *redis.Notifier
	upgrader websocket.Upgrader
}

func NewStreamHandler(notifier *redis.Notifier) *StreamHandler {
	return &StreamHandler{
		notifier: notifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *StreamHandler) Serve(c *gin.Context) {
	me := user(c)
	lg := logger.From(c.Request.Context()).With("login", me.Login)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写过响应
		lg.Warn("ws_upgrade_failed", "err", err)
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	sub := h.notifier.Subscribe(ctx, me.Login)
	defer sub.Close()

	// 读循环只处理控制帧，对端关闭后结束
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	msgs := sub.Channel()
	lg.Info("ws_connected")
	for {
		select {
		case <-closed:
			lg.Info("ws_closed")
			return
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m.Payload)); err != nil {
				lg.Warn("ws_write_failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}


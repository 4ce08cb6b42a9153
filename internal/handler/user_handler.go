package handler

import (
	"net/http"

	"Lee_Timeline/internal/service"

	"github.com/gin-gonic/gin"
)

// UserHandler 账号由外部系统维护，这里只有当前会话相关的接口
type UserHandler struct {
	sessions *service.SessionService
}

func NewUserHandler(sessions *service.SessionService) *UserHandler {
	return &UserHandler{sessions: sessions}
}

// Me 当前登录用户
func (h *UserHandler) Me(c *gin.Context) {
	u := user(c)
	c.JSON(http.StatusOK, gin.H{
		"login":     u.Login,
		"username":  u.Username,
		"domain":    u.Domain,
		"firstName": u.FirstName,
		"lastName":  u.LastName,
		"avatar":    u.Avatar,
		"activated": u.Activated,
		"admin":     u.Admin,
	})
}

func (h *UserHandler) Logout(c *gin.Context) {
	if err := h.sessions.Logout(c.Request.Context(), user(c).Login); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "ok"})
}

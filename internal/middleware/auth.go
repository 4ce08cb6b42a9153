package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"Lee_Timeline/internal/model"
	"Lee_Timeline/internal/pkg/logger"
	"Lee_Timeline/internal/service"

	"github.com/gin-gonic/gin"
)

const ContextUserKey = "current_user"

// Authenticator 校验 token 并返回当前用户
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "missing or invalid authorization header"})
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), tokenStr)
		switch {
		case errors.Is(err, service.ErrSessionReplaced):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "Account has been logging elsewhere"})
			return
		case errors.Is(err, service.ErrInvalidToken):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid or expired token"})
			return
		case err != nil:
			logger.From(c.Request.Context()).Error("authenticate failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"msg": "internal error"})
			return
		}

		// 注入当前用户，日志里带上登录名
		c.Set(ContextUserKey, user)
		lg := logger.From(c.Request.Context()).With("login", user.Login)
		c.Request = c.Request.WithContext(logger.Into(c.Request.Context(), lg))
		c.Next()
	}
}

// bearer 浏览器建立 websocket 时无法设置请求头，允许 access_token 查询参数
func bearer(c *gin.Context) (string, bool) {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if t := c.Query("access_token"); t != "" && c.IsWebsocket() {
		return t, true
	}
	return "", false
}

// CurrentUser AuthMiddleware 之后的路由才能取到
func CurrentUser(c *gin.Context) *model.User {
	if v, ok := c.Get(ContextUserKey); ok {
		if u, ok := v.(*model.User); ok {
			return u
		}
	}
	return nil
}

// RequireActivated 停用的账号只能读
func RequireActivated() gin.HandlerFunc {
	return func(c *gin.Context) {
		u := CurrentUser(c)
		if u == nil || !u.Activated {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"msg": service.ErrUserDeactivated.Error()})
			return
		}
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		u := CurrentUser(c)
		if u == nil || !u.Admin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"msg": "admin only"})
			return
		}
		c.Next()
	}
}

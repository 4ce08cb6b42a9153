package handler

import (
	"context"
	"net/http"
	"strconv"

	"Lee_Timeline/internal/model"
	"Lee_Timeline/internal/service"

	"github.com/gin-gonic/gin"
)

type FollowHandler struct {
	svc *service.FriendshipService
}

func NewFollowHandler(svc *service.FriendshipService) *FollowHandler {
	return &FollowHandler{svc: svc}
}

type followReq struct {
	Username string `json:"username" binding:"required"`
	Action   string `json:"action" binding:"required,oneof=follow unfollow"`
}

// Follow 关注接口；双向确认模式下是发起或接受好友请求
func (h *FollowHandler) Follow(c *gin.Context) {
	var req followReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid params")
		return
	}
	var (
		out service.Outcome
		err error
	)
	if req.Action == "follow" {
		out, err = h.svc.Follow(c.Request.Context(), user(c), req.Username)
	} else {
		out, err = h.svc.Unfollow(c.Request.Context(), user(c), req.Username)
	}
	outcome(c, out, err)
}

// RejectRequest 拒绝好友请求
func (h *FollowHandler) RejectRequest(c *gin.Context) {
	out, err := h.svc.RejectFriendRequest(c.Request.Context(), user(c), c.Param("username"))
	outcome(c, out, err)
}

// PendingRequests 发给我的待处理请求
func (h *FollowHandler) PendingRequests(c *gin.Context) {
	logins, err := h.svc.PendingRequests(c.Request.Context(), user(c).Login)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": logins})
}

// ListFriends 获取关注列表
func (h *FollowHandler) ListFriends(c *gin.Context) {
	h.list(c, h.svc.ListFriends)
}

// ListFollowers 获取粉丝列表
func (h *FollowHandler) ListFollowers(c *gin.Context) {
	h.list(c, h.svc.ListFollowers)
}

type listFunc func(ctx context.Context, login string, cursor uint64, limit int) ([]model.Friendship, uint64, error)

func (h *FollowHandler) list(c *gin.Context, fn listFunc) {
	login := c.Query("login")
	if login == "" {
		login = user(c).Login
	}
	if _, domain := model.SplitLogin(login); domain != user(c).Domain {
		fail(c, service.ErrDomainViolation)
		return
	}
	cursor, _ := strconv.ParseUint(c.Query("cursor"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, next, err := fn(c.Request.Context(), login, cursor, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": rows, "next_cursor": next})
}

// Relation 获取用户间关系
func (h *FollowHandler) Relation(c *gin.Context) {
	from, to := c.Query("from"), c.Query("to")
	if from == "" || to == "" {
		badRequest(c, "from and to required")
		return
	}
	ok, err := h.svc.IsFollowing(c.Request.Context(), from, to)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": ok})
}

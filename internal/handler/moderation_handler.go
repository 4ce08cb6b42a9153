package handler

import (
	"net/http"
	"strconv"

	"Lee_Timeline/internal/service"

	"github.com/gin-gonic/gin"
)

// ModerationHandler 审核接口，路由层保证只有管理员能进来
type ModerationHandler struct {
	updates  *service.StatusUpdateService
	timeline *service.TimelineService
}

func NewModerationHandler(updates *service.StatusUpdateService, timeline *service.TimelineService) *ModerationHandler {
	return &ModerationHandler{updates: updates, timeline: timeline}
}

type blockReq struct {
	Comment string `json:"comment"`
}

// Queue 审核队列 ?state=BLOCKED&group=xxx&start=&finish=&count=
func (h *ModerationHandler) Queue(c *gin.Context) {
	count, _ := strconv.Atoi(c.Query("count"))
	list, err := h.timeline.StatusesForState(c.Request.Context(), user(c),
		c.Query("state"), c.Query("group"), c.Query("start"), c.Query("finish"), count)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": list})
}

func (h *ModerationHandler) Count(c *gin.Context) {
	n, err := h.timeline.CountForState(c.Request.Context(), c.Query("state"), c.Query("group"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *ModerationHandler) Pending(c *gin.Context) {
	dto, err := h.timeline.PendingStatus(c.Request.Context(), user(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if dto == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *ModerationHandler) Approve(c *gin.Context) {
	out, err := h.updates.ApproveStatus(c.Request.Context(), c.Param("id"))
	outcome(c, out, err)
}

// Block 评论可为空
func (h *ModerationHandler) Block(c *gin.Context) {
	var req blockReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid params")
			return
		}
	}
	out, err := h.updates.BlockStatus(c.Request.Context(), user(c), c.Param("id"), req.Comment)
	outcome(c, out, err)
}

func (h *ModerationHandler) Audit(c *gin.Context) {
	list, err := h.timeline.AuditFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": list})
}

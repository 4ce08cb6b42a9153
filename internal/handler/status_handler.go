package handler

import (
	"net/http"

	"Lee_Timeline/internal/service"

	"github.com/gin-gonic/gin"
)

type StatusHandler struct {
	updates  *service.StatusUpdateService
	timeline *service.TimelineService
}

func NewStatusHandler(updates *service.StatusUpdateService, timeline *service.TimelineService) *StatusHandler {
	return &StatusHandler{updates: updates, timeline: timeline}
}

type PostStatusReq struct {
	Content       string   `json:"content" binding:"required"`
	Private       bool     `json:"statusPrivate"`
	GroupID       string   `json:"groupId"`
	AttachmentIDs []string `json:"attachmentIds"`
	Geo           string   `json:"geoLocalization"`
}

type ReplyReq struct {
	Content string `json:"content" binding:"required"`
}

// Post 发布状态
func (h *StatusHandler) Post(c *gin.Context) {
	var req PostStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid params")
		return
	}
	st, err := h.updates.PostStatus(c.Request.Context(), user(c), service.PostInput{
		Content:       req.Content,
		Private:       req.Private,
		GroupID:       req.GroupID,
		AttachmentIDs: req.AttachmentIDs,
		Geo:           req.Geo,
	})
	if err != nil && st == nil {
		fail(c, err)
		return
	}
	// 状态已经写入，扇出的部分失败只记日志
	c.JSON(http.StatusOK, gin.H{"statusId": st.StatusID, "state": st.State})
}

// Reply 回复状态或分享
func (h *StatusHandler) Reply(c *gin.Context) {
	var req ReplyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid params")
		return
	}
	st, err := h.updates.ReplyToStatus(c.Request.Context(), user(c), c.Param("id"), req.Content)
	if err != nil && st == nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"statusId": st.StatusID, "discussionId": st.Post.DiscussionID})
}

func (h *StatusHandler) Get(c *gin.Context) {
	dto, err := h.timeline.GetStatus(c.Request.Context(), user(c), c.Param("id"))
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

// Details 分享人和讨论
func (h *StatusHandler) Details(c *gin.Context) {
	d, err := h.timeline.GetStatusDetails(c.Request.Context(), user(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if d == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *StatusHandler) Remove(c *gin.Context) {
	out, err := h.updates.RemoveStatus(c.Request.Context(), user(c), c.Param("id"))
	outcome(c, out, err)
}

func (h *StatusHandler) Share(c *gin.Context) {
	out, err := h.updates.ShareStatus(c.Request.Context(), user(c), c.Param("id"))
	outcome(c, out, err)
}

func (h *StatusHandler) Announce(c *gin.Context) {
	out, err := h.updates.AnnounceStatus(c.Request.Context(), user(c), c.Param("id"))
	outcome(c, out, err)
}

func (h *StatusHandler) Favorite(c *gin.Context) {
	out, err := h.updates.AddFavorite(c.Request.Context(), user(c), c.Param("id"))
	outcome(c, out, err)
}

func (h *StatusHandler) Unfavorite(c *gin.Context) {
	out, err := h.updates.RemoveFavorite(c.Request.Context(), user(c), c.Param("id"))
	outcome(c, out, err)
}

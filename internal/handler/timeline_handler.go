package handler

import (
	"context"
	"net/http"

	"Lee_Timeline/internal/model"
	"Lee_Timeline/internal/service"

	"github.com/gin-gonic/gin"
)

// TimelineHandler 各条线的分页读取，均支持 start / finish / count / type
type TimelineHandler struct {
	timeline *service.TimelineService
	users    userFinder
}

type userFinder interface {
	FindByUsername(ctx context.Context, domain, username string) (*model.User, error)
}

func NewTimelineHandler(timeline *service.TimelineService, users userFinder) *TimelineHandler {
	return &TimelineHandler{timeline: timeline, users: users}
}

type lineReader func(c *gin.Context, q model.LineQuery) (*model.Page, error)

func (h *TimelineHandler) serve(read lineReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := lineQuery(c)
		if err != nil {
			fail(c, err)
			return
		}
		p, err := read(c, q)
		page(c, p, err)
	}
}

func (h *TimelineHandler) Timeline() gin.HandlerFunc {
	return h.serve(func(c *gin.Context, q model.LineQuery) (*model.Page, error) {
		return h.timeline.Timeline(c.Request.Context(), user(c), q)
	})
}

func (h *TimelineHandler) Userline() gin.HandlerFunc {
	return h.serve(func(c *gin.Context, q model.LineQuery) (*model.Page, error) {
		return h.timeline.Userline(c.Request.Context(), user(c), c.Param("username"), q)
	})
}

func (h *TimelineHandler) Mentions() gin.HandlerFunc {
	return h.serve(func(c *gin.Context, q model.LineQuery) (*model.Page, error) {
		return h.timeline.Mentionline(c.Request.Context(), user(c), q)
	})
}

// Tagline 不带 tag 时读默认标签
func (h *TimelineHandler) Tagline() gin.HandlerFunc {
	return h.serve(func(c *gin.Context, q model.LineQuery) (*model.Page, error) {
		return h.timeline.Tagline(c.Request.Context(), user(c), c.Param("tag"), q)
	})
}

func (h *TimelineHandler) Groupline() gin.HandlerFunc {
	return h.serve(func(c *gin.Context, q model.LineQuery) (*model.Page, error) {
		return h.timeline.Groupline(c.Request.Context(), user(c), c.Param("id"), q)
	})
}

func (h *TimelineHandler) Domainline() gin.HandlerFunc {
	return h.serve(func(c *gin.Context, q model.LineQuery) (*model.Page, error) {
		return h.timeline.Domainline(c.Request.Context(), user(c), q)
	})
}

func (h *TimelineHandler) Favorites() gin.HandlerFunc {
	return h.serve(func(c *gin.Context, q model.LineQuery) (*model.Page, error) {
		return h.timeline.Favoriteline(c.Request.Context(), user(c), q)
	})
}

// Counts 用户主页的关注数、粉丝数和状态数
func (h *TimelineHandler) Counts(c *gin.Context) {
	me := user(c)
	target, err := h.users.FindByUsername(c.Request.Context(), me.Domain, c.Param("username"))
	if err != nil {
		fail(c, err)
		return
	}
	if target == nil {
		notFound(c)
		return
	}
	counts, err := h.timeline.Counts(c.Request.Context(), target.Login)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

package handler

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"Lee_Timeline/internal/model"
	"Lee_Timeline/internal/service"

	"github.com/gin-gonic/gin"
)

type GroupHandler struct {
	svc *service.GroupService
}

type GroupCreateReq struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Public      bool   `json:"publicGroup"`
}

type addMemberReq struct {
	Username string `json:"username" binding:"required"`
}

func NewGroupHandler(svc *service.GroupService) *GroupHandler {
	return &GroupHandler{svc: svc}
}

func groupJSON(g *model.Group) gin.H {
	return gin.H{
		"groupId":     g.GroupID,
		"name":        g.Name,
		"description": g.Description,
		"publicGroup": g.PublicGroup,
	}
}

func (h *GroupHandler) Create(c *gin.Context) {
	var req GroupCreateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid params")
		return
	}
	g, err := h.svc.CreateGroup(c.Request.Context(), user(c), req.Name, req.Description, req.Public)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, groupJSON(g))
}

func (h *GroupHandler) Get(c *gin.Context) {
	g, err := h.svc.Group(c.Request.Context(), user(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if g == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, groupJSON(g))
}

func (h *GroupHandler) Join(c *gin.Context) {
	out, err := h.svc.JoinGroup(c.Request.Context(), user(c), c.Param("id"))
	outcome(c, out, err)
}

func (h *GroupHandler) Leave(c *gin.Context) {
	out, err := h.svc.LeaveGroup(c.Request.Context(), user(c), c.Param("id"))
	outcome(c, out, err)
}

// AddMember 私有分组由创建者拉人
func (h *GroupHandler) AddMember(c *gin.Context) {
	var req addMemberReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid params")
		return
	}
	out, err := h.svc.AddMember(c.Request.Context(), user(c), c.Param("id"), req.Username)
	outcome(c, out, err)
}

func (h *GroupHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("size"))

	list, err := h.svc.ListGroups(c.Request.Context(), user(c), page, size)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(list))
	for i := range list {
		out = append(out, groupJSON(&list[i]))
	}
	c.JSON(http.StatusOK, gin.H{"list": out})
}

// Upload multipart 字段名 file
func (h *GroupHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file required")
		return
	}
	if fh.Size > service.MaxAttachmentSize {
		badRequest(c, "file too large")
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, "invalid file")
		return
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, service.MaxAttachmentSize+1))
	if err != nil {
		badRequest(c, "invalid file")
		return
	}
	a, err := h.svc.UploadAttachment(c.Request.Context(), user(c), fh.Filename, content)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *GroupHandler) Download(c *gin.Context) {
	a, err := h.svc.Attachment(c.Request.Context(), user(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if a == nil {
		notFound(c)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}))
	c.Data(http.StatusOK, "application/octet-stream", a.Content)
}

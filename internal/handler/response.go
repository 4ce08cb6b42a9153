package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"Lee_Timeline/internal/middleware"
	"Lee_Timeline/internal/model"
	"Lee_Timeline/internal/pkg/logger"
	"Lee_Timeline/internal/service"

	"github.com/gin-gonic/gin"
)

// statusOf 领域错误到 HTTP 状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrTargetNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrDomainViolation), errors.Is(err, service.ErrUserDeactivated):
		return http.StatusForbidden
	case errors.Is(err, service.ErrDeleteRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		logger.From(c.Request.Context()).Error("request failed", "err", err)
		c.JSON(code, gin.H{"msg": "internal error"})
		return
	}
	c.JSON(code, gin.H{"msg": err.Error()})
}

// outcome 幂等写操作统一返回 {"outcome": ...}
func outcome(c *gin.Context, out service.Outcome, err error) {
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": out})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"msg": msg})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"msg": "not found"})
}

func user(c *gin.Context) *model.User {
	return middleware.CurrentUser(c)
}

// lineQuery 分页参数：start / finish 为状态 id，count 为条数，type 可选
func lineQuery(c *gin.Context) (model.LineQuery, error) {
	q := model.LineQuery{
		Start:  c.Query("start"),
		Finish: c.Query("finish"),
	}
	if v := c.Query("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, fmt.Errorf("%w: invalid count", service.ErrValidationFailed)
		}
		q.Count = n
	}
	if v := c.Query("type"); v != "" {
		// 存储里的未知类型是 500，这里是调用方传错
		t, err := model.ParseStatusType(v)
		if err != nil {
			return q, fmt.Errorf("%w: %v", service.ErrValidationFailed, err)
		}
		q.StatusType = t
	}
	return q, nil
}

func page(c *gin.Context, p *model.Page, err error) {
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

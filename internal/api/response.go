package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"jobportal/internal/api/middleware"
	"jobportal/internal/errcode"
)

const internalErrorMessage = "Internal server error."

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func Forbidden(c *gin.Context, msg string)  { Error(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, msg) }
func Internal(c *gin.Context)               { Error(c, http.StatusInternalServerError, internalErrorMessage) }

// respondError 根据错误分类写出响应；未分类的错误记录日志并统一返回 500。
func respondError(c *gin.Context, err error) {
	if e, ok := errcode.As(err); ok && e.Kind != errcode.Internal {
		Error(c, e.Kind.HTTPStatus(), e.Message)
		return
	}
	middleware.LoggerFromContext(c).Error("request failed", slog.Any("error", err))
	Internal(c)
}

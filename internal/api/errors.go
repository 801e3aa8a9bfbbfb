package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	xerrors "AgentDesk/internal/errors"
	"AgentDesk/internal/task"
	"AgentDesk/pkg/logger"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusOf(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidArgument, xerrors.CodeMissingArgument, task.CodeTaskValidation:
		return http.StatusBadRequest
	case xerrors.CodeNotFound, task.CodeTaskNotFound:
		return http.StatusNotFound
	case xerrors.CodeSessionBusy, xerrors.CodeConflict, task.CodeTaskConflict:
		return http.StatusConflict
	case xerrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError 把统一错误码映射为 HTTP 状态并输出 {"error": {...}}。
func writeError(c *gin.Context, err error) {
	code := xerrors.CodeOf(err)
	status := statusOf(code)
	if status >= http.StatusInternalServerError {
		logger.L().Error("请求处理失败",
			slog.String("path", c.FullPath()),
			slog.String("code", string(code)),
			slog.Any("error", err))
	}
	c.JSON(status, gin.H{"error": errorBody{Code: string(code), Message: xerrors.MessageOf(err)}})
}

func badRequest(c *gin.Context, message string) {
	writeError(c, xerrors.New(xerrors.CodeInvalidArgument, message))
}

func unavailable(c *gin.Context, what string) {
	writeError(c, xerrors.New(xerrors.CodeInitializationFailure, what+" is not configured"))
}

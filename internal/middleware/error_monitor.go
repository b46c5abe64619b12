package middleware

import (
	"crowdfunding-platform/internal/errors"
	"crowdfunding-platform/internal/metrics"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorMonitorMiddleware 按错误码计数并记录处理器返回的错误
func ErrorMonitorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		for _, e := range c.Errors {
			var appErr *errors.AppError
			if !stderrors.As(e.Err, &appErr) {
				metrics.AppErrorsTotal.WithLabelValues(strconv.Itoa(int(errors.ErrInternal))).Inc()
				zap.L().Error("未分类的请求错误", zap.Error(e.Err), zap.String("path", c.Request.URL.Path))
				continue
			}

			metrics.AppErrorsTotal.WithLabelValues(strconv.Itoa(int(appErr.Code))).Inc()
			fields := []zap.Field{
				zap.Int("error_code", int(appErr.Code)),
				zap.String("error_message", appErr.Message),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			}
			if appErr.Err != nil {
				fields = append(fields, zap.Error(appErr.Err))
			}
			if errors.StatusOf(appErr.Code) >= http.StatusInternalServerError {
				zap.L().Error("请求处理错误", fields...)
			} else {
				zap.L().Info("请求被拒绝", fields...)
			}
		}
	}
}

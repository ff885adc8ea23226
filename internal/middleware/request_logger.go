package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	codeContextKey  = "code_context"
	taskIDKey       = "task_id"
	resultStatusKey = "result_status"
	jobIDKey        = "job_id"
)

// SetCodeOutcome attaches a code request's context, task and terminal status
// to the access log line.
func SetCodeOutcome(c *gin.Context, codeContext, taskID, status string) {
	c.Set(codeContextKey, codeContext)
	c.Set(taskIDKey, taskID)
	c.Set(resultStatusKey, status)
}

// SetJobID attaches a background job to the access log line
func SetJobID(c *gin.Context, jobID string) {
	c.Set(jobIDKey, jobID)
}

// RequestLogger writes one access log line per request. Code requests carry
// their task and result status, so a 200 with an ERROR_* result is logged as
// a warning.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", routeOf(c)),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", GetRequestID(c)),
		}
		if userID := GetUserID(c); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}
		for _, key := range []string{codeContextKey, taskIDKey, resultStatusKey, jobIDKey} {
			if v := c.GetString(key); v != "" {
				fields = append(fields, zap.String(key, v))
			}
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("request failed", fields...)
		case status >= 400:
			logger.Warn("client error", fields...)
		case failedResult(c.GetString(resultStatusKey)):
			logger.Warn("code request failed", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

// routeOf prefers the registered pattern so ids do not fan out log keys
func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return c.Request.URL.Path
}

func failedResult(status string) bool {
	return strings.HasPrefix(status, "ERROR_")
}

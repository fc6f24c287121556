package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Logger logs one line per request, at error level for 5xx responses and
// warn for 4xx.
func Logger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		userID := "anonymous"
		if id, ok := c.Get(ContextUserID); ok {
			userID = formatID(id)
		}

		entry := log.WithFields(logrus.Fields{
			"status":     status,
			"method":     c.Request.Method,
			"path":       path,
			"latency":    latency.String(),
			"latency_ms": latency.Milliseconds(),
			"client_ip":  c.ClientIP(),
			"user_id":    userID,
			"request_id": c.GetString(ContextRequestID),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithError(c.Errors.Last())
		}

		switch {
		case status >= 500:
			entry.Error("server error")
		case status >= 400:
			entry.Warn("client error")
		default:
			entry.Info("request processed")
		}
	}
}

func formatID(v any) string {
	if id, ok := v.(int64); ok {
		return strconv.FormatInt(id, 10)
	}
	return "unknown"
}

package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/mindgraph-backend/internal/pkg/ctxutil"
	"github.com/yungbote/mindgraph-backend/internal/platform/logger"
)

func RequestLog(log *logger.Logger) gin.HandlerFunc {
	log = log.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"workspace", ctxutil.Workspace(c.Request.Context()),
			"duration", time.Since(start).String(),
		)
	}
}

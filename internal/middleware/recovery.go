package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"aibot/backend/internal/util"
	"aibot/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Recovery turns a handler panic into a 500 envelope and logs the stack
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			log.WithFields(map[string]interface{}{
				"request_id": c.GetString("request_id"),
				"user_id":    c.GetString("user_id"),
				"path":       c.Request.URL.Path,
				"stack":      string(debug.Stack()),
			}).Error("Panic recovered", fmt.Errorf("%v", rec))

			if c.Writer.Written() {
				c.Abort()
				return
			}
			util.AbortWithCustomError(c, http.StatusInternalServerError, util.ErrCodeInternal, "Internal server error")
		}()

		c.Next()
	}
}

package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/argushq/argus/internal/ratelimit"
	appErrors "github.com/argushq/argus/pkg/errors"
	"github.com/argushq/argus/pkg/logger"
	"github.com/argushq/argus/pkg/response"
)

// LoginThrottle limits credential-guessing attempts per client IP using the
// shared store, so the budget holds across replicas. A nil limiter disables
// throttling; a store failure fails closed because an unthrottled login
// endpoint is the worse outcome.
func LoginThrottle(limiter *ratelimit.SharedLimiter, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}

		result, err := limiter.Check(c.Request.Context(), "login:"+c.ClientIP(), limit)
		if err != nil {
			logger.WithModule("http").Warn("login throttle store failure", zap.Error(err))
			response.Error(c, appErrors.ErrStoreUnavailable)
			c.Abort()
			return
		}

		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(result.RetryAfter(time.Now())))
			response.Error(c, appErrors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}

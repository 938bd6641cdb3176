package middleware

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/argushq/argus/internal/auth"
	"github.com/argushq/argus/internal/ratelimit"
	appErrors "github.com/argushq/argus/pkg/errors"
	"github.com/argushq/argus/pkg/response"
)

const (
	// SessionCookieName is the cookie carrying the interactive session secret.
	SessionCookieName = "argus_session"
	// APIKeyHeader carries programmatic API keys.
	APIKeyHeader = "X-API-Key"

	CtxPrincipalKey = "authPrincipal"
	CtxUserIDKey    = "userID"
)

// Authenticate resolves the request credential into a principal. API key,
// session cookie, and bearer JWT are accepted, in that precedence. All
// credential failures normalise to a single 401; a verified key over its
// budget gets a distinct 429 with retry headers.
func Authenticate(resolver *iauth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		creds := extractCredentials(c)

		principal, limit, err := resolver.Resolve(c.Request.Context(), creds)
		if limit != nil {
			writeRateHeaders(c, limit)
		}

		if err != nil {
			if errors.Is(err, iauth.ErrRateLimited) {
				if limit != nil {
					c.Header("Retry-After", strconv.Itoa(limit.RetryAfter(time.Now())))
				}
				response.Error(c, appErrors.ErrRateLimit)
				c.Abort()
				return
			}

			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxPrincipalKey, principal)
		if principal.UserID != "" {
			c.Set(CtxUserIDKey, principal.UserID)
		}

		c.Next()
	}
}

func extractCredentials(c *gin.Context) iauth.Credentials {
	creds := iauth.Credentials{
		APIKey:   strings.TrimSpace(c.GetHeader(APIKeyHeader)),
		ClientIP: c.ClientIP(),
	}

	if cookie, err := c.Cookie(SessionCookieName); err == nil {
		creds.SessionCookie = cookie
	}

	authz := c.GetHeader("Authorization")
	if len(authz) >= 8 && strings.EqualFold(authz[:7], "Bearer ") {
		creds.BearerToken = strings.TrimSpace(authz[7:])
	}

	return creds
}

func writeRateHeaders(c *gin.Context, limit *ratelimit.Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(limit.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(limit.ResetAt.Unix(), 10))
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(c *gin.Context) (*iauth.Principal, bool) {
	value, exists := c.Get(CtxPrincipalKey)
	if !exists {
		return nil, false
	}
	principal, ok := value.(*iauth.Principal)
	return principal, ok
}

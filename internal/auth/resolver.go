package auth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/argushq/argus/internal/models"
	"github.com/argushq/argus/internal/ratelimit"
	"github.com/argushq/argus/pkg/logger"
	"github.com/argushq/argus/pkg/metrics"
)

// PrincipalKind identifies which credential type authenticated a request.
type PrincipalKind string

const (
	PrincipalAPIKey  PrincipalKind = "api_key"
	PrincipalSession PrincipalKind = "session"
	PrincipalJWT     PrincipalKind = "jwt"
)

// Principal is the authenticated identity a request runs as. Exactly one of
// APIKey, Session, or Claims is set, matching Kind.
type Principal struct {
	Kind    PrincipalKind
	UserID  string
	APIKey  *models.APIKey
	Session *models.Session
	Claims  *Claims
}

// HasScope reports whether the principal may perform an operation requiring
// the given scope. API keys carry an explicit scope set; session and JWT
// principals act as their user and hold every scope.
func (p *Principal) HasScope(scope string) bool {
	if p == nil {
		return false
	}
	if p.Kind == PrincipalAPIKey {
		return scopesGrant(p.APIKey.Scopes, scope)
	}
	return true
}

// Credentials carries whatever the transport layer extracted from a request.
// Empty fields mean the credential was not presented.
type Credentials struct {
	APIKey        string
	SessionCookie string
	BearerToken   string
	ClientIP      string
}

// Resolver turns presented credentials into a Principal using a fixed
// precedence: API key, then session cookie, then bearer JWT. The first
// credential present is the one judged; a failing credential is never
// silently skipped in favor of a weaker one.
type Resolver struct {
	apiKeys  *APIKeyService
	sessions *SessionService
	jwt      *JWTService
	limiter  *ratelimit.Limiter
	log      *zap.Logger
}

// NewResolver constructs a resolver over the credential services. The limiter
// may be nil, which disables API key rate limiting.
func NewResolver(apiKeys *APIKeyService, sessions *SessionService, jwtService *JWTService, limiter *ratelimit.Limiter) (*Resolver, error) {
	if apiKeys == nil || sessions == nil || jwtService == nil {
		return nil, errors.New("resolver: all credential services are required")
	}
	return &Resolver{
		apiKeys:  apiKeys,
		sessions: sessions,
		jwt:      jwtService,
		limiter:  limiter,
		log:      logger.WithModule("auth"),
	}, nil
}

// Resolve authenticates a request. The returned rate limit result is non-nil
// only for API key principals, so the transport can emit budget headers.
//
// Credential failures collapse to ErrUnauthenticated before leaving this
// package boundary's callers; the distinct sentinels remain available via
// errors.Is for logging and tests. Rate limiting is checked only after the
// key verifies, so a limit rejection (ErrRateLimited) is a distinct outcome
// from an invalid credential.
func (r *Resolver) Resolve(ctx context.Context, creds Credentials) (*Principal, *ratelimit.Result, error) {
	switch {
	case creds.APIKey != "":
		return r.resolveAPIKey(ctx, creds)
	case creds.SessionCookie != "":
		principal, err := r.resolveSession(ctx, creds.SessionCookie)
		return principal, nil, err
	case creds.BearerToken != "":
		principal, err := r.resolveJWT(creds.BearerToken)
		return principal, nil, err
	default:
		metrics.AuthAttempts.WithLabelValues("none", "failure").Inc()
		return nil, nil, ErrUnauthenticated
	}
}

func (r *Resolver) resolveAPIKey(ctx context.Context, creds Credentials) (*Principal, *ratelimit.Result, error) {
	key, err := r.apiKeys.Verify(ctx, creds.APIKey)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("api_key", "failure").Inc()
		r.log.Debug("api key rejected", zap.Error(err), zap.String("ip", creds.ClientIP))
		return nil, nil, ErrUnauthenticated
	}

	if r.limiter != nil {
		result := r.limiter.Check("key:"+key.ID, key.RateLimitPerMinute)
		if !result.Allowed {
			metrics.RateLimitRejections.Inc()
			metrics.AuthAttempts.WithLabelValues("api_key", "rate_limited").Inc()
			return nil, &result, ErrRateLimited
		}

		metrics.AuthAttempts.WithLabelValues("api_key", "success").Inc()
		r.apiKeys.RecordUsage(ctx, key, creds.ClientIP)
		return &Principal{Kind: PrincipalAPIKey, APIKey: key}, &result, nil
	}

	metrics.AuthAttempts.WithLabelValues("api_key", "success").Inc()
	r.apiKeys.RecordUsage(ctx, key, creds.ClientIP)
	return &Principal{Kind: PrincipalAPIKey, APIKey: key}, nil, nil
}

func (r *Resolver) resolveSession(ctx context.Context, cookie string) (*Principal, error) {
	session, err := r.sessions.Lookup(ctx, cookie)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("session", "failure").Inc()
		return nil, ErrUnauthenticated
	}

	if err := r.sessions.Touch(ctx, session.ID); err != nil {
		r.log.Warn("session touch failed", zap.Error(err))
	}

	metrics.AuthAttempts.WithLabelValues("session", "success").Inc()
	return &Principal{Kind: PrincipalSession, UserID: session.UserID, Session: session}, nil
}

func (r *Resolver) resolveJWT(token string) (*Principal, error) {
	claims, err := r.jwt.ValidateAccessToken(token)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("jwt", "failure").Inc()
		return nil, ErrUnauthenticated
	}

	metrics.AuthAttempts.WithLabelValues("jwt", "success").Inc()
	return &Principal{Kind: PrincipalJWT, UserID: claims.UserID, Claims: claims}, nil
}

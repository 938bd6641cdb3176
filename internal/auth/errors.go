package auth

import "errors"

// Credential failure taxonomy. The HTTP layer collapses format, not-found,
// expired, and revoked conditions into one unauthenticated response so the
// distinctions never become a credential-guessing oracle; internally they
// stay separate for logging, metrics, and tests.
var (
	// ErrKeyInvalidFormat marks a presented API key that fails the cheap
	// shape check (namespace marker, minimum length).
	ErrKeyInvalidFormat = errors.New("apikey: invalid format")
	// ErrKeyNotFound indicates no active key matched the presented secret.
	ErrKeyNotFound = errors.New("apikey: not found")
	// ErrKeyExpired marks a key whose hash matched but whose expiry passed.
	ErrKeyExpired = errors.New("apikey: expired")
	// ErrKeyRevoked marks a key that has been soft-revoked.
	ErrKeyRevoked = errors.New("apikey: revoked")
	// ErrUnknownScope is returned when key generation names a scope outside
	// the registry.
	ErrUnknownScope = errors.New("apikey: unknown scope")

	// ErrTokenNotFound indicates no refresh token matched the presented secret.
	ErrTokenNotFound = errors.New("token: not found")
	// ErrTokenExpired signals that a refresh token reached its expiry.
	ErrTokenExpired = errors.New("token: expired")
	// ErrTokenReused marks a refresh token presented after revocation and
	// outside the grace window, a potential theft signal.
	ErrTokenReused = errors.New("token: reused after rotation")
	// ErrTokenInvalid is returned for malformed refresh secrets.
	ErrTokenInvalid = errors.New("token: invalid")

	// ErrSessionNotFound indicates no live session matches the credential.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrUnauthenticated is the resolver's normalized failure when no
	// credential verifies.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrRateLimited marks a verified API key that exceeded its budget.
	ErrRateLimited = errors.New("auth: rate limit exceeded")
	// ErrInsufficientScope marks an authenticated principal lacking the
	// required scope.
	ErrInsufficientScope = errors.New("auth: insufficient scope")
)

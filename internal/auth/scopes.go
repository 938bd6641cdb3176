package auth

// ScopeAdmin implies every other scope.
const ScopeAdmin = "admin"

// KnownScopes is the registry of permission strings an API key may carry.
var KnownScopes = []string{
	"read:events",
	"write:events",
	"read:cameras",
	"write:cameras",
	"read:clips",
	ScopeAdmin,
}

func scopeKnown(scope string) bool {
	for _, known := range KnownScopes {
		if scope == known {
			return true
		}
	}
	return false
}

// scopesGrant reports whether the granted set satisfies the required scope.
func scopesGrant(granted []string, required string) bool {
	for _, scope := range granted {
		if scope == ScopeAdmin || scope == required {
			return true
		}
	}
	return false
}

package crypto

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

const (
	// APIKeyNamespace is the fixed marker prepended to every issued key.
	APIKeyNamespace = "argus"

	// APIKeyRandomLength is the number of random characters after the namespace.
	APIKeyRandomLength = 40

	// APIKeyPrefixLength is how many leading random characters are stored in
	// plaintext for lookup narrowing.
	APIKeyPrefixLength = 8
)

const apiKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateAPIKey produces a new plaintext API key of the form
// "argus_<40 alphanumeric chars>" along with its public prefix.
// The plaintext exists only in the return value; callers hash it before
// persisting anything.
func GenerateAPIKey() (plaintext, prefix string, err error) {
	random := make([]byte, APIKeyRandomLength)
	alphabetLen := big.NewInt(int64(len(apiKeyAlphabet)))
	for i := range random {
		idx, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", "", err
		}
		random[i] = apiKeyAlphabet[idx.Int64()]
	}

	secret := string(random)
	return APIKeyNamespace + "_" + secret, secret[:APIKeyPrefixLength], nil
}

// SplitAPIKey validates the shape of a presented key and returns its lookup
// prefix. It performs no store access and no hashing, so it is safe to call
// on every request before any expensive work.
func SplitAPIKey(plaintext string) (prefix string, err error) {
	marker := APIKeyNamespace + "_"
	if !strings.HasPrefix(plaintext, marker) {
		return "", errors.New("missing key namespace")
	}

	random := plaintext[len(marker):]
	if len(random) < 32 {
		return "", errors.New("key too short")
	}

	return random[:APIKeyPrefixLength], nil
}

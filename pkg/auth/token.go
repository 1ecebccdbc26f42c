package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// APITokenPrefix identifies gatehouse API tokens.
	APITokenPrefix = "gh_"
	// ClientSecretPrefix identifies OAuth client secrets.
	ClientSecretPrefix = "ghs_"
	// TokenLength is the number of random bytes (32 bytes = 256 bits).
	TokenLength = 32

	displayChars = 8
)

// TokenGenerator generates opaque bearer secrets with a fixed prefix.
// Only the sha256 hash and a short display prefix are ever stored.
type TokenGenerator struct {
	prefix string
}

// NewTokenGenerator creates a generator for the given prefix.
func NewTokenGenerator(prefix string) *TokenGenerator {
	return &TokenGenerator{prefix: prefix}
}

// Generate creates a new secret.
// Format: <prefix><base64url(32 random bytes)>
func (tg *TokenGenerator) Generate() (token, tokenHash, displayPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	token = tg.prefix + encoded
	return token, HashToken(token), tg.prefix + encoded[:displayChars], nil
}

// ValidateFormat checks the prefix and encoding of a presented secret.
func (tg *TokenGenerator) ValidateFormat(token string) error {
	if !strings.HasPrefix(token, tg.prefix) {
		return fmt.Errorf("token must start with %q", tg.prefix)
	}

	encoded := strings.TrimPrefix(token, tg.prefix)
	if len(encoded) == 0 {
		return fmt.Errorf("token is too short")
	}
	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}
	return nil
}

// HashToken computes the hex sha256 of a secret for storage and lookup.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// VerifyHash compares a presented secret against a stored hash in constant time.
func VerifyHash(token, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(storedHash)) == 1
}

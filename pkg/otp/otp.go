// Package otp generates and checks the one-time codes used to link a chat
// account to a CRM user. Only the SHA-256 hash of a code is ever stored.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const logPrefix = "otp:otp"

const (
	DefaultLength = 6
	DefaultTTL    = 15 * time.Minute
)

var ten = big.NewInt(10)

// Generate returns a code of length uniformly random decimal digits.
func Generate(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("%s - length must be positive, got %d", logPrefix, length)
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("%s - failed to read random digit: %w", logPrefix, err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// Hash returns the lowercase hex SHA-256 of code.
func Hash(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether code hashes to hash. Surrounding whitespace in code is ignored.
func Verify(code, hash string) bool {
	got := Hash(strings.TrimSpace(code))
	return subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(hash))) == 1
}

// ExpiresAt returns the expiry for a code issued at now.
func ExpiresAt(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return now.Add(ttl).UTC()
}

// Expired reports whether expiresAt is at or before now.
func Expired(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt)
}

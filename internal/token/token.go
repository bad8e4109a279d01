// Package token generates confirmation tokens: fixed-length, high-entropy
// random strings proving control of an email address.
package token

import (
	"crypto/rand"
	"fmt"

	"github.com/ignite/mailmule/internal/domain"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Generator produces confirmation tokens. The interface exists so tests can
// inject a deterministic source; production code uses CryptoGenerator.
type Generator interface {
	Generate() (string, error)
}

// CryptoGenerator draws tokens from crypto/rand. Each token is exactly
// domain.TokenLength characters over the 62-symbol alphanumeric alphabet,
// ≈155 bits of entropy. Collisions are negligible but not excluded: the
// store's unique constraint is the actual uniqueness guarantee.
type CryptoGenerator struct{}

// Generate returns a fresh confirmation token.
func (CryptoGenerator) Generate() (string, error) {
	out := make([]byte, domain.TokenLength)
	buf := make([]byte, 1)
	for i := 0; i < len(out); {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		// Rejection sampling keeps the distribution uniform: 248 is the
		// largest multiple of 62 that fits in a byte, so bytes ≥ 248 are
		// discarded instead of introducing modulo bias.
		if buf[0] >= 248 {
			continue
		}
		out[i] = alphabet[int(buf[0])%len(alphabet)]
		i++
	}
	return string(out), nil
}

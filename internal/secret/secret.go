// Package secret hashes and generates the secrets handed out as one-time
// tokens. Only digests are ever persisted.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"unicode"
)

const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// MinLength is the shortest secret that can satisfy the composition rule.
const MinLength = 5

var ErrLength = errors.New("secret too short")

// Hash returns the hex encoded SHA256 digest of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Generate returns a random secret of the given length drawn from letters
// and digits, with at least one lowercase letter, one uppercase letter and
// three digits. Candidates are drawn until one qualifies.
func Generate(length int) (string, error) {
	if length < MinLength {
		return "", fmt.Errorf("%w: %d < %d", ErrLength, length, MinLength)
	}

	max := big.NewInt(int64(len(charset)))
	buf := make([]byte, length)
	for {
		for i := range buf {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", fmt.Errorf("generate secret: %w", err)
			}
			buf[i] = charset[n.Int64()]
		}
		if acceptable(buf) {
			return string(buf), nil
		}
	}
}

func acceptable(s []byte) bool {
	var lower, upper, digits int
	for _, c := range s {
		switch r := rune(c); {
		case unicode.IsLower(r):
			lower++
		case unicode.IsUpper(r):
			upper++
		case unicode.IsDigit(r):
			digits++
		}
	}
	return lower >= 1 && upper >= 1 && digits >= 3
}

package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

const (
	// TokenSize is the number of random bytes behind a file token.
	TokenSize = 32

	// FingerprintSize is the number of random bytes behind a device fingerprint.
	FingerprintSize = 32
)

var ErrInvalidFingerprint = errors.New("invalid fingerprint")

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// NewToken returns an unguessable URL-safe capability string.
// The token travels in a query parameter, so it uses base64 URL encoding without padding.
func NewToken() (string, error) {
	b, err := randomBytes(TokenSize)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewFingerprint returns a random device fingerprint as 64 lowercase hex digits.
func NewFingerprint() (string, error) {
	b, err := randomBytes(FingerprintSize)
	if err != nil {
		return "", fmt.Errorf("failed to generate fingerprint: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ValidateFingerprint checks a stored fingerprint before it is reused.
func ValidateFingerprint(fp string) error {
	b, err := hex.DecodeString(fp)
	if err != nil || len(b) != FingerprintSize {
		return ErrInvalidFingerprint
	}
	return nil
}

// NewPIN returns a random decimal PIN with the given number of digits.
func NewPIN(digits int) (string, error) {
	pin := make([]byte, digits)
	for i := range pin {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		pin[i] = byte('0' + n.Int64())
	}
	return string(pin), nil
}

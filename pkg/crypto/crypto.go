package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// DefaultKeyLength is the length of the pre-shared key used by the MCU firmware
const DefaultKeyLength = 16

// fingerprintLength is the number of SHA-256 bytes shown for a key
const fingerprintLength = 4

// Key is a pre-shared secret. String and GoString never reveal its bytes.
type Key []byte

// ZeroKey returns a key of n zero bytes
func ZeroKey(n int) Key {
	return make(Key, n)
}

// ParseKey decodes a hex encoded key, with or without a 0x prefix
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return nil, ErrEmptyKey
	}

	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	return Key(data), nil
}

// Fingerprint returns a short hex digest identifying the key
func (k Key) Fingerprint() string {
	sum := sha256.Sum256(k)
	return hex.EncodeToString(sum[:fingerprintLength])
}

// Hex returns the full hex encoding of the key. Only for explicit operator echo.
func (k Key) Hex() string {
	return hex.EncodeToString(k)
}

// String returns a display-safe representation of the key
func (k Key) String() string {
	return fmt.Sprintf("key(%d bytes, fp %s)", len(k), k.Fingerprint())
}

// GoString returns the same display-safe representation as String
func (k Key) GoString() string {
	return k.String()
}

// Equal compares two keys in constant time
func (k Key) Equal(other Key) bool {
	return subtle.ConstantTimeCompare(k, other) == 1
}

var (
	// ErrEmptyKey indicates no key material was provided
	ErrEmptyKey = errors.New("empty key")
	// ErrInvalidKeyLength indicates a key length the algorithm cannot use
	ErrInvalidKeyLength = errors.New("invalid key length")
	// ErrInvalidTagLength indicates a tag length outside the algorithm bounds
	ErrInvalidTagLength = errors.New("invalid tag length")
	// ErrUnknownAlgorithm indicates an unsupported MAC algorithm
	ErrUnknownAlgorithm = errors.New("unknown MAC algorithm")
)

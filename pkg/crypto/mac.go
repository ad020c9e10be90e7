package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/vitalvas/gounwrap/pkg/frame"
)

// MinTagLength is the shortest tag any algorithm may be truncated to
const MinTagLength = 8

// Algorithm names a keyed MAC construction
type Algorithm string

const (
	// AlgorithmCBCMAC is AES CBC-MAC with a zero IV over the zero-padded message.
	// Only safe because every message of one deployment has the same length.
	AlgorithmCBCMAC Algorithm = "aes-cbc-mac"
	// AlgorithmHMACSHA256 is HMAC-SHA256 truncated to the tag length
	AlgorithmHMACSHA256 Algorithm = "hmac-sha256"
	// AlgorithmBLAKE2b is keyed BLAKE2b with the digest size set to the tag length
	AlgorithmBLAKE2b Algorithm = "blake2b"
)

// DefaultAlgorithm matches the MCU firmware
const DefaultAlgorithm = AlgorithmCBCMAC

// Algorithms lists every supported algorithm
func Algorithms() []Algorithm {
	return []Algorithm{AlgorithmCBCMAC, AlgorithmHMACSHA256, AlgorithmBLAKE2b}
}

// MaxTagLength returns the untruncated output size of the algorithm
func (a Algorithm) MaxTagLength() int {
	switch a {
	case AlgorithmCBCMAC:
		return aes.BlockSize
	case AlgorithmHMACSHA256:
		return sha256.Size
	case AlgorithmBLAKE2b:
		return blake2b.Size
	default:
		return 0
	}
}

// IsValid reports whether the algorithm is supported
func (a Algorithm) IsValid() bool {
	return a.MaxTagLength() > 0
}

// String returns the algorithm name
func (a Algorithm) String() string {
	return string(a)
}

// MAC computes and verifies frame tags with one key. Safe for concurrent use.
type MAC struct {
	alg       Algorithm
	key       Key
	tagLength int
	block     cipher.Block
}

// New creates a MAC for the given algorithm, key and fixed tag length
func New(alg Algorithm, key Key, tagLength int) (*MAC, error) {
	if !alg.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	if tagLength < MinTagLength || tagLength > alg.MaxTagLength() {
		return nil, fmt.Errorf("%w: %s tag must be %d..%d bytes, got %d",
			ErrInvalidTagLength, alg, MinTagLength, alg.MaxTagLength(), tagLength)
	}

	m := &MAC{
		alg:       alg,
		key:       append(Key(nil), key...),
		tagLength: tagLength,
	}

	switch alg {
	case AlgorithmCBCMAC:
		block, err := aes.NewCipher(m.key)
		if err != nil {
			return nil, fmt.Errorf("%w: %s needs 16, 24 or 32 bytes, got %d", ErrInvalidKeyLength, alg, len(key))
		}
		m.block = block
	case AlgorithmBLAKE2b:
		if len(key) > blake2b.Size {
			return nil, fmt.Errorf("%w: %s accepts at most %d bytes, got %d", ErrInvalidKeyLength, alg, blake2b.Size, len(key))
		}
	}

	return m, nil
}

// Algorithm returns the configured algorithm
func (m *MAC) Algorithm() Algorithm {
	return m.alg
}

// TagLength returns the configured tag length
func (m *MAC) TagLength() int {
	return m.tagLength
}

// Sum computes the tag over signed, the header ‖ payload bytes of a frame
func (m *MAC) Sum(signed []byte) []byte {
	var tag []byte

	switch m.alg {
	case AlgorithmCBCMAC:
		tag = m.cbcMAC(signed)
	case AlgorithmHMACSHA256:
		mac := hmac.New(sha256.New, m.key)
		mac.Write(signed)
		tag = mac.Sum(nil)
	case AlgorithmBLAKE2b:
		// New only fails on size or key bounds checked in New.
		h, _ := blake2b.New(m.tagLength, m.key)
		h.Write(signed)
		tag = h.Sum(nil)
	}

	return tag[:m.tagLength]
}

// ComputeTag computes the tag for a header and payload
func (m *MAC) ComputeTag(h frame.Header, payload []byte) []byte {
	signed, _ := h.AppendBinary(make([]byte, 0, frame.HeaderLength+len(payload)))
	signed = append(signed, payload...)
	return m.Sum(signed)
}

// Verify recomputes the tag and compares it to candidate in constant time
func (m *MAC) Verify(h frame.Header, payload, candidate []byte) bool {
	expected := m.ComputeTag(h, payload)
	return subtle.ConstantTimeCompare(expected, candidate) == 1
}

// cbcMAC returns the last ciphertext block of AES-CBC over the zero-padded message
func (m *MAC) cbcMAC(msg []byte) []byte {
	n := len(msg) + (aes.BlockSize-len(msg)%aes.BlockSize)%aes.BlockSize
	if n == 0 {
		n = aes.BlockSize
	}

	buf := make([]byte, n)
	copy(buf, msg)

	iv := make([]byte, aes.BlockSize)
	cipher.NewCBCEncrypter(m.block, iv).CryptBlocks(buf, buf)

	return buf[n-aes.BlockSize:]
}

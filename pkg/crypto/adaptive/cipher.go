package adaptive

import (
	"errors"
	"fmt"
	"runtime"
)

// CipherType identifies the cipher algorithm.
type CipherType string

const (
	// CipherAuto picks AES-GCM or ChaCha20-Poly1305 from the platform.
	CipherAuto     CipherType = "auto"
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

// Errors returned by sealing and opening.
var (
	ErrUnknownCipher = errors.New("adaptive: unknown cipher type")
	ErrKeySize       = errors.New("adaptive: invalid key size")
	ErrShortSealed   = errors.New("adaptive: sealed data too short")
	ErrOpen          = errors.New("adaptive: message authentication failed")
)

// Algorithm ids written as the first byte of every sealed message.
// They are part of the stored format and must never be renumbered.
const (
	algAESGCM   byte = 1
	algChaCha20 byte = 2
)

// ParseCipherType validates a configured cipher name. Empty means auto.
func ParseCipherType(s string) (CipherType, error) {
	switch CipherType(s) {
	case "", CipherAuto:
		return CipherAuto, nil
	case CipherAESGCM, CipherChaCha20:
		return CipherType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCipher, s)
	}
}

// Resolve maps CipherAuto to the algorithm preferred on this platform.
// Go uses hardware AES on amd64 and arm64; elsewhere ChaCha20 is faster.
func Resolve(t CipherType) CipherType {
	if t != CipherAuto && t != "" {
		return t
	}
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return CipherAESGCM
	default:
		return CipherChaCha20
	}
}

// Cipher seals and opens self-describing messages:
//
//	alg(1) | nonce | ciphertext | tag
//
// Additional data is authenticated but not stored.
type Cipher interface {
	Type() CipherType
	Seal(plaintext, additionalData []byte) ([]byte, error)
	Open(sealed, additionalData []byte) ([]byte, error)
	// Overhead is the number of bytes Seal adds to a plaintext.
	Overhead() int
}

// New creates a cipher of the given type. The key must be 32 bytes.
func New(key []byte, t CipherType) (Cipher, error) {
	switch Resolve(t) {
	case CipherAESGCM:
		return newAESGCM(key)
	case CipherChaCha20:
		return newChaCha20(key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCipher, t)
	}
}

// Open opens a message sealed by any supported cipher, reading the
// algorithm from its first byte. A slot sealed on one platform thus
// opens on another whose automatic choice differs.
func Open(key, sealed, additionalData []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, ErrShortSealed
	}
	var (
		c   Cipher
		err error
	)
	switch sealed[0] {
	case algAESGCM:
		c, err = newAESGCM(key)
	case algChaCha20:
		c, err = newChaCha20(key)
	default:
		return nil, fmt.Errorf("%w: algorithm id %d", ErrUnknownCipher, sealed[0])
	}
	if err != nil {
		return nil, err
	}
	return c.Open(sealed, additionalData)
}

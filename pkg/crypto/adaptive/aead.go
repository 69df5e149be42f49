package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the key length both algorithms take.
const KeySize = 32

// aeadCipher adapts a cipher.AEAD to the sealed message layout.
type aeadCipher struct {
	typ  CipherType
	alg  byte
	aead cipher.AEAD
}

func newAESGCM(key []byte) (*aeadCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: AES-256-GCM needs %d bytes, got %d", ErrKeySize, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &aeadCipher{typ: CipherAESGCM, alg: algAESGCM, aead: aead}, nil
}

func newChaCha20(key []byte) (*aeadCipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: ChaCha20-Poly1305 needs %d bytes, got %d", ErrKeySize, chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &aeadCipher{typ: CipherChaCha20, alg: algChaCha20, aead: aead}, nil
}

func (c *aeadCipher) Type() CipherType { return c.typ }

func (c *aeadCipher) Overhead() int {
	return 1 + c.aead.NonceSize() + c.aead.Overhead()
}

func (c *aeadCipher) Seal(plaintext, additionalData []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	out := make([]byte, 1+ns, len(plaintext)+c.Overhead())
	out[0] = c.alg
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, fmt.Errorf("adaptive: nonce: %w", err)
	}
	return c.aead.Seal(out, out[1:1+ns], plaintext, additionalData), nil
}

func (c *aeadCipher) Open(sealed, additionalData []byte) ([]byte, error) {
	if len(sealed) < c.Overhead() {
		return nil, ErrShortSealed
	}
	if sealed[0] != c.alg {
		return nil, fmt.Errorf("%w: sealed with algorithm %d, cipher is %s", ErrUnknownCipher, sealed[0], c.typ)
	}
	ns := c.aead.NonceSize()
	plain, err := c.aead.Open(nil, sealed[1:1+ns], sealed[1+ns:], additionalData)
	if err != nil {
		return nil, ErrOpen
	}
	return plain, nil
}

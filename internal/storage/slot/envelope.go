package slot

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/yndnr/slotkeep-go/internal/core/domain"
	"github.com/yndnr/slotkeep-go/pkg/crypto/adaptive"
)

var magicBytes = []byte("SKSLOT\x00\x01")

const (
	flagCompressed uint8 = 1 << 0
	flagEncrypted  uint8 = 1 << 1

	checksumSize = sha256.Size
	envelopeMin  = 8 + 1 + checksumSize
)

// sealer builds and opens envelopes. It is safe for concurrent use.
type sealer struct {
	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder

	masterKey  []byte
	cipherType adaptive.CipherType
}

func newSealer(compress bool, maxPayload int64, masterKey []byte, cipherType adaptive.CipherType) (*sealer, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("slot: zstd encoder: %w", err)
	}
	opts := []zstd.DOption{zstd.WithDecoderConcurrency(0)}
	if maxPayload > 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(uint64(maxPayload)))
	}
	dec, err := zstd.NewReader(nil, opts...)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("slot: zstd decoder: %w", err)
	}
	return &sealer{
		compress:   compress,
		enc:        enc,
		dec:        dec,
		masterKey:  masterKey,
		cipherType: cipherType,
	}, nil
}

func (s *sealer) close() {
	s.enc.Close()
	s.dec.Close()
}

func (s *sealer) encrypted() bool { return len(s.masterKey) > 0 }

// slotKey derives the slot's own key so that equal payloads in
// different slots never share a key. Callers zero it after use.
func (s *sealer) slotKey(id string) ([]byte, error) {
	return adaptive.DeriveSubkey(s.masterKey, "slotkeep/slot:"+id, adaptive.KeySize)
}

func (s *sealer) seal(id string, payload []byte) ([]byte, error) {
	var flags uint8
	body := payload
	if s.compress {
		body = s.enc.EncodeAll(payload, make([]byte, 0, len(payload)/2))
		flags |= flagCompressed
	}
	if s.encrypted() {
		key, err := s.slotKey(id)
		if err != nil {
			return nil, fmt.Errorf("slot: cipher: %w", err)
		}
		c, err := adaptive.New(key, s.cipherType)
		adaptive.ZeroKey(key)
		if err != nil {
			return nil, fmt.Errorf("slot: cipher: %w", err)
		}
		body, err = c.Seal(body, []byte(id))
		if err != nil {
			return nil, fmt.Errorf("slot: encrypt: %w", err)
		}
		flags |= flagEncrypted
	}

	out := make([]byte, 0, len(magicBytes)+1+len(body)+checksumSize)
	out = append(out, magicBytes...)
	out = append(out, flags)
	out = append(out, body...)
	sum := sha256.Sum256(out)
	return append(out, sum[:]...), nil
}

// check validates magic and checksum and returns the flags and body.
func check(env []byte) (uint8, []byte, error) {
	if len(env) < envelopeMin {
		return 0, nil, domain.ErrCorruptFormat.WithDetailsf("envelope too short (%d bytes)", len(env))
	}
	if !bytes.Equal(env[:len(magicBytes)], magicBytes) {
		return 0, nil, domain.ErrCorruptFormat.WithDetails("invalid magic bytes")
	}
	n := len(env) - checksumSize
	sum := sha256.Sum256(env[:n])
	if !bytes.Equal(sum[:], env[n:]) {
		return 0, nil, domain.ErrCorruptFormat.WithDetails("checksum mismatch")
	}
	return env[len(magicBytes)], env[len(magicBytes)+1 : n], nil
}

func (s *sealer) open(id string, env []byte) ([]byte, error) {
	flags, body, err := check(env)
	if err != nil {
		return nil, err
	}
	if flags&flagEncrypted != 0 {
		if !s.encrypted() {
			return nil, domain.ErrCorruptFormat.WithDetails("slot is encrypted and no encryption key is configured")
		}
		key, err := s.slotKey(id)
		if err != nil {
			return nil, fmt.Errorf("slot: cipher: %w", err)
		}
		body, err = adaptive.Open(key, body, []byte(id))
		adaptive.ZeroKey(key)
		if err != nil {
			return nil, domain.ErrCorruptFormat.WithDetails("decryption failed").WithCause(err)
		}
	}
	if flags&flagCompressed != 0 {
		body, err = s.dec.DecodeAll(body, nil)
		if err != nil {
			return nil, domain.ErrCorruptFormat.WithDetails("decompress").WithCause(err)
		}
	}
	return body, nil
}

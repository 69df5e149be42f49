package adaptive

import (
	"bytes"
	"errors"
	"testing"
)

func TestDeriveSubkey(t *testing.T) {
	a, err := DeriveSubkey(key32, "slot:slot-1", 32)
	if err != nil {
		t.Fatalf("DeriveSubkey: %v", err)
	}
	again, _ := DeriveSubkey(key32, "slot:slot-1", 32)
	if !bytes.Equal(a, again) {
		t.Fatal("DeriveSubkey is not deterministic")
	}
	b, _ := DeriveSubkey(key32, "slot:slot-2", 32)
	if bytes.Equal(a, b) {
		t.Fatal("different info produced the same subkey")
	}

	if _, err := DeriveSubkey(make([]byte, 8), "x", 32); !errors.Is(err, ErrKeyTooShort) {
		t.Fatalf("short master key error = %v, want ErrKeyTooShort", err)
	}
}

func TestDeriveKeyFromPassphrase(t *testing.T) {
	salt := []byte("0123456789abcdef")
	k1, err := DeriveKeyFromPassphrase([]byte("correct horse"), salt)
	if err != nil {
		t.Fatalf("DeriveKeyFromPassphrase: %v", err)
	}
	k2, _ := DeriveKeyFromPassphrase([]byte("correct horse"), salt)
	if !bytes.Equal(k1, k2) || len(k1) != 32 {
		t.Fatalf("derived keys differ or wrong length (%d)", len(k1))
	}

	if _, err := DeriveKeyFromPassphrase([]byte("short"), salt); !errors.Is(err, ErrPassphraseTooWeak) {
		t.Fatalf("weak passphrase error = %v", err)
	}
	if _, err := DeriveKeyFromPassphrase([]byte("correct horse"), nil); !errors.Is(err, ErrSaltRequired) {
		t.Fatalf("missing salt error = %v", err)
	}
}

func TestGenerateKey(t *testing.T) {
	k, err := GenerateKey(KeySize)
	if err != nil || len(k) != KeySize {
		t.Fatalf("GenerateKey = %d bytes, %v", len(k), err)
	}
	if _, err := GenerateKey(8); !errors.Is(err, ErrKeyTooShort) {
		t.Fatalf("short key error = %v", err)
	}
	ZeroKey(k)
	if !bytes.Equal(k, make([]byte, KeySize)) {
		t.Fatal("ZeroKey left key material behind")
	}
}

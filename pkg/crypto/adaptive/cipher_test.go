package adaptive

import (
	"bytes"
	"errors"
	"testing"
)

var key32 = func() []byte {
	k := make([]byte, KeySize)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}()

var allTypes = []CipherType{CipherAESGCM, CipherChaCha20}

func TestParseCipherType(t *testing.T) {
	tests := []struct {
		in      string
		want    CipherType
		wantErr bool
	}{
		{"", CipherAuto, false},
		{"auto", CipherAuto, false},
		{"aes-gcm", CipherAESGCM, false},
		{"chacha20-poly1305", CipherChaCha20, false},
		{"rot13", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCipherType(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownCipher) {
					t.Fatalf("ParseCipherType(%q) error = %v, want ErrUnknownCipher", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ParseCipherType(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	if got := Resolve(CipherChaCha20); got != CipherChaCha20 {
		t.Fatalf("Resolve(chacha) = %q", got)
	}
	auto := Resolve(CipherAuto)
	if auto != CipherAESGCM && auto != CipherChaCha20 {
		t.Fatalf("Resolve(auto) = %q", auto)
	}
	if Resolve("") != auto {
		t.Fatal("empty type should resolve like auto")
	}
}

func TestNew_KeySize(t *testing.T) {
	for _, typ := range allTypes {
		for _, n := range []int{0, 16, 24, 31, 33} {
			if _, err := New(make([]byte, n), typ); !errors.Is(err, ErrKeySize) {
				t.Errorf("New(%d-byte key, %s) error = %v, want ErrKeySize", n, typ, err)
			}
		}
	}
	if _, err := New(key32, "rot13"); !errors.Is(err, ErrUnknownCipher) {
		t.Fatalf("unknown type error = %v", err)
	}
}

func TestSealOpen(t *testing.T) {
	tests := []struct {
		name string
		msg  []byte
		ad   []byte
	}{
		{"empty", []byte{}, nil},
		{"simple", []byte("hello world"), nil},
		{"with ad", []byte("secret data"), []byte("slot-1")},
		{"large", bytes.Repeat([]byte("A"), 64*1024), nil},
		{"binary", []byte{0x00, 0xFF, 0x7F, 0x80}, []byte{0x01, 0x02}},
	}
	for _, typ := range allTypes {
		c, err := New(key32, typ)
		if err != nil {
			t.Fatalf("New(%s): %v", typ, err)
		}
		if c.Type() != typ {
			t.Fatalf("Type() = %q, want %q", c.Type(), typ)
		}
		for _, tt := range tests {
			t.Run(string(typ)+"/"+tt.name, func(t *testing.T) {
				sealed, err := c.Seal(tt.msg, tt.ad)
				if err != nil {
					t.Fatalf("Seal: %v", err)
				}
				if len(sealed) != len(tt.msg)+c.Overhead() {
					t.Fatalf("sealed length = %d, want %d", len(sealed), len(tt.msg)+c.Overhead())
				}
				got, err := c.Open(sealed, tt.ad)
				if err != nil {
					t.Fatalf("Open: %v", err)
				}
				if !bytes.Equal(got, tt.msg) {
					t.Fatalf("Open = %x, want %x", got, tt.msg)
				}
			})
		}
	}
}

func TestOpen_AnyAlgorithm(t *testing.T) {
	for _, typ := range allTypes {
		c, _ := New(key32, typ)
		sealed, err := c.Seal([]byte("portable"), []byte("slot-1"))
		if err != nil {
			t.Fatalf("Seal: %v", err)
		}
		got, err := Open(key32, sealed, []byte("slot-1"))
		if err != nil {
			t.Fatalf("Open(%s): %v", typ, err)
		}
		if string(got) != "portable" {
			t.Fatalf("Open(%s) = %q", typ, got)
		}
	}

	if _, err := Open(key32, nil, nil); !errors.Is(err, ErrShortSealed) {
		t.Fatalf("empty input error = %v", err)
	}
	if _, err := Open(key32, []byte{9, 1, 2, 3}, nil); !errors.Is(err, ErrUnknownCipher) {
		t.Fatalf("unknown algorithm error = %v", err)
	}
}

func TestOpen_Rejects(t *testing.T) {
	for _, typ := range allTypes {
		c, _ := New(key32, typ)
		sealed, _ := c.Seal([]byte("secret"), []byte("slot-1"))

		t.Run(string(typ)+"/tampered", func(t *testing.T) {
			bad := append([]byte(nil), sealed...)
			bad[len(bad)-1] ^= 0xFF
			if _, err := c.Open(bad, []byte("slot-1")); !errors.Is(err, ErrOpen) {
				t.Fatalf("error = %v, want ErrOpen", err)
			}
		})
		t.Run(string(typ)+"/wrong ad", func(t *testing.T) {
			if _, err := c.Open(sealed, []byte("slot-2")); !errors.Is(err, ErrOpen) {
				t.Fatalf("error = %v, want ErrOpen", err)
			}
		})
		t.Run(string(typ)+"/wrong key", func(t *testing.T) {
			other := bytes.Repeat([]byte{7}, KeySize)
			if _, err := Open(other, sealed, []byte("slot-1")); !errors.Is(err, ErrOpen) {
				t.Fatalf("error = %v, want ErrOpen", err)
			}
		})
		t.Run(string(typ)+"/too short", func(t *testing.T) {
			if _, err := c.Open(sealed[:c.Overhead()-1], nil); !errors.Is(err, ErrShortSealed) {
				t.Fatalf("error = %v, want ErrShortSealed", err)
			}
		})
	}

	aes, _ := New(key32, CipherAESGCM)
	sealed, _ := aes.Seal([]byte("x"), nil)
	chacha, _ := New(key32, CipherChaCha20)
	if _, err := chacha.Open(sealed, nil); !errors.Is(err, ErrUnknownCipher) {
		t.Fatalf("cross-algorithm Open error = %v", err)
	}
}

func TestSeal_FreshNonce(t *testing.T) {
	c, _ := New(key32, CipherAuto)
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		sealed, err := c.Seal([]byte("same plaintext"), nil)
		if err != nil {
			t.Fatalf("Seal: %v", err)
		}
		if seen[string(sealed)] {
			t.Fatal("Seal produced a duplicate message")
		}
		seen[string(sealed)] = true
	}
}

func BenchmarkSeal_64KB(b *testing.B) {
	msg := bytes.Repeat([]byte("A"), 64*1024)
	for _, typ := range allTypes {
		c, _ := New(key32, typ)
		b.Run(string(typ), func(b *testing.B) {
			b.SetBytes(int64(len(msg)))
			for i := 0; i < b.N; i++ {
				_, _ = c.Seal(msg, nil)
			}
		})
	}
}

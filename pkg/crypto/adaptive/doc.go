// Package adaptive provides authenticated encryption for slot payloads.
//
// The cipher is chosen from hardware capabilities unless configured:
//
//   - AES-256-GCM: preferred when hardware AES support is available
//   - ChaCha20-Poly1305: fallback for systems without AES-NI
//
// Sealed messages are self-contained: an algorithm id and the random
// nonce are prepended and the AEAD tag appended, so Open works no matter
// which algorithm the sealing host picked. Callers bind a message to its
// context through the additional data, so a payload copied under another
// slot id fails to open.
//
// Keys come either from raw key material or from a passphrase (Argon2id),
// and per-purpose subkeys are derived with HKDF-SHA256:
//
//	master, err := adaptive.DeriveKeyFromPassphrase(pass, salt)
//	key, err := adaptive.DeriveSubkey(master, "slot:"+id, 32)
//	c, err := adaptive.New(key, adaptive.CipherAuto)
//	sealed, err := c.Seal(plaintext, []byte(id))
//	plain, err := adaptive.Open(key, sealed, []byte(id))
package adaptive

// Package slot stores slot buffers on a transport with atomic commits.
//
// Each slot is two blobs:
//
//	<id>.sav   envelope around the slot buffer
//	<id>.meta  JSON SlotMetadata, read by List without touching payloads
//
// Envelope layout:
//
//	[magic:8 "SKSLOT\x00\x01"]
//	[flags:1]                  bit0 zstd, bit1 encrypted
//	[payload:N]                slot buffer, compressed then encrypted
//	[checksum:32]              SHA-256 of all bytes above
//
// Save writes both blobs under temporary names and renames the payload
// before the metadata. A failure before the payload rename leaves the
// previous slot untouched. The slot buffer header repeats the metadata,
// so a crash between the two renames still loads correctly.
package slot

// Package codec encodes and decodes field values to and from byte cursors.
//
// Encodings are fixed width (big-endian integers, IEEE 754 floats) or
// length-prefixed (strings, bytes, sequences, mappings, structs), so the
// output never depends on locale or platform.
//
// Field payload layout:
//
//	[kind:1][value...]
//
// The leading kind byte lets a reader detect a tag whose kind changed
// between versions (ErrSchemaMismatch) instead of misreading the bytes.
//
// Object references encode the referenced object's identity and decode to
// a Ref placeholder. Decoding never touches the live world; resolving Refs
// is the reconciler's job once every object has been materialized.
package codec

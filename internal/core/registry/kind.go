package registry

import "fmt"

// FieldKind is the semantic kind of a field. The numeric value is written
// on the wire as the first byte of every field payload and must never be
// renumbered.
type FieldKind uint8

const (
	KindInvalid FieldKind = iota
	KindBool
	KindInt32
	KindInt64
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindString
	KindBytes
	KindEnum
	KindObjectRef
	KindStruct
	KindSequence
	KindMapping
)

var kindNames = [...]string{
	KindInvalid:   "invalid",
	KindBool:      "bool",
	KindInt32:     "int32",
	KindInt64:     "int64",
	KindUint32:    "uint32",
	KindUint64:    "uint64",
	KindFloat32:   "float32",
	KindFloat64:   "float64",
	KindString:    "string",
	KindBytes:     "bytes",
	KindEnum:      "enum",
	KindObjectRef: "ref",
	KindStruct:    "struct",
	KindSequence:  "sequence",
	KindMapping:   "mapping",
}

func (k FieldKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is a known kind.
func (k FieldKind) Valid() bool {
	return k > KindInvalid && k <= KindMapping
}

// IsScalar reports whether values of k are fixed or length-prefixed leaves
// usable as mapping keys.
func (k FieldKind) IsScalar() bool {
	switch k {
	case KindBool, KindInt32, KindInt64, KindUint32, KindUint64,
		KindString, KindEnum, KindObjectRef:
		return true
	default:
		return false
	}
}

// MinEncodedSize is the smallest number of bytes a value of k can occupy.
// The decoder uses it to reject implausible element counts.
func (k FieldKind) MinEncodedSize() int {
	switch k {
	case KindBool, KindObjectRef:
		return 1
	case KindStruct:
		return 2
	case KindInt32, KindUint32, KindFloat32, KindEnum, KindString, KindBytes, KindSequence, KindMapping:
		return 4
	case KindInt64, KindUint64, KindFloat64:
		return 8
	default:
		return 1
	}
}

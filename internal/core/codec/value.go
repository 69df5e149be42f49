package codec

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/yndnr/slotkeep-go/internal/core/domain"
	"github.com/yndnr/slotkeep-go/internal/core/registry"
)

// maxDepth bounds nesting of structs, sequences and mappings.
const maxDepth = 32

// Identifiable is implemented by host objects that can be referenced
// from object-reference fields.
type Identifiable interface {
	Identity() domain.Identity
}

// Ref is the decoded form of an object reference. It holds only the
// referent's identity until the reconciler resolves it.
type Ref struct {
	ID domain.Identity
}

// Identity implements Identifiable.
func (r Ref) Identity() domain.Identity { return r.ID }

// Encode writes v as a value of fd's kind, without the kind byte.
func Encode(w *Writer, fd *registry.FieldDescriptor, v any) error {
	return encodeValue(w, fd, v, 0)
}

// Decode reads a value of fd's kind, without the kind byte.
func Decode(r *Reader, fd *registry.FieldDescriptor) (any, error) {
	return decodeValue(r, fd, 0)
}

// EncodeField returns the kind-prefixed payload for a top-level or
// nested field.
func EncodeField(fd *registry.FieldDescriptor, v any) ([]byte, error) {
	w := NewWriter(16)
	w.PutU8(uint8(fd.Kind))
	if err := Encode(w, fd, v); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// DecodeField decodes a kind-prefixed payload. A kind byte that differs
// from fd.Kind yields ErrSchemaMismatch; trailing bytes are corruption.
func DecodeField(fd *registry.FieldDescriptor, data []byte) (any, error) {
	if len(data) == 0 {
		return nil, domain.ErrCorruptFormat.WithDetailsf("field %s: empty payload", fd.Name)
	}
	if got := registry.FieldKind(data[0]); got != fd.Kind {
		return nil, domain.ErrSchemaMismatch.WithDetailsf("field %s: wire kind %s, want %s", fd.Name, got, fd.Kind)
	}
	r := NewReader(data[1:])
	v, err := Decode(r, fd)
	if err != nil {
		return nil, err
	}
	if r.Remaining() != 0 {
		return nil, domain.ErrCorruptFormat.WithDetailsf("field %s: %d trailing bytes", fd.Name, r.Remaining())
	}
	return v, nil
}

// Equal reports whether a and b have the same canonical encoding.
func Equal(fd *registry.FieldDescriptor, a, b any) bool {
	ea, err := EncodeField(fd, a)
	if err != nil {
		return false
	}
	eb, err := EncodeField(fd, b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

// DefaultValue returns fd's default, or the zero value of its kind.
func DefaultValue(fd *registry.FieldDescriptor) any {
	if fd.Default != nil {
		return fd.Default
	}
	switch fd.Kind {
	case registry.KindBool:
		return false
	case registry.KindInt32:
		return int32(0)
	case registry.KindInt64:
		return int64(0)
	case registry.KindUint32, registry.KindEnum:
		return uint32(0)
	case registry.KindUint64:
		return uint64(0)
	case registry.KindFloat32:
		return float32(0)
	case registry.KindFloat64:
		return float64(0)
	case registry.KindString:
		return ""
	case registry.KindBytes:
		return []byte{}
	case registry.KindStruct:
		out := make(map[string]any, len(fd.Struct.Fields))
		for i := range fd.Struct.Fields {
			nested := &fd.Struct.Fields[i]
			out[nested.Name] = DefaultValue(nested)
		}
		return out
	case registry.KindSequence:
		return []any{}
	case registry.KindMapping:
		return map[any]any{}
	default:
		return nil
	}
}

// PutIdentity writes an identity as two short strings.
func PutIdentity(w *Writer, id domain.Identity) {
	w.PutShortString(id.Level)
	w.PutShortString(id.Name)
}

// ReadIdentity reads an identity written by PutIdentity.
func ReadIdentity(r *Reader) (domain.Identity, error) {
	level, err := r.ShortString()
	if err != nil {
		return domain.Identity{}, err
	}
	name, err := r.ShortString()
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{Level: level, Name: name}, nil
}

func encodeValue(w *Writer, fd *registry.FieldDescriptor, v any, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("codec: %s: nesting deeper than %d", fd.Name, maxDepth)
	}
	switch fd.Kind {
	case registry.KindBool:
		b, ok := v.(bool)
		if !ok {
			return typeError(fd, v)
		}
		w.PutBool(b)
	case registry.KindInt32:
		n, ok := toInt64(v)
		if !ok || n < math.MinInt32 || n > math.MaxInt32 {
			return typeError(fd, v)
		}
		w.PutU32(uint32(int32(n)))
	case registry.KindInt64:
		n, ok := toInt64(v)
		if !ok {
			return typeError(fd, v)
		}
		w.PutU64(uint64(n))
	case registry.KindUint32:
		n, ok := toUint64(v)
		if !ok || n > math.MaxUint32 {
			return typeError(fd, v)
		}
		w.PutU32(uint32(n))
	case registry.KindUint64:
		n, ok := toUint64(v)
		if !ok {
			return typeError(fd, v)
		}
		w.PutU64(n)
	case registry.KindFloat32:
		switch f := v.(type) {
		case float32:
			w.PutF32(f)
		case float64:
			w.PutF32(float32(f))
		default:
			return typeError(fd, v)
		}
	case registry.KindFloat64:
		switch f := v.(type) {
		case float64:
			w.PutF64(f)
		case float32:
			w.PutF64(float64(f))
		default:
			return typeError(fd, v)
		}
	case registry.KindString:
		s, ok := v.(string)
		if !ok {
			return typeError(fd, v)
		}
		w.PutString(s)
	case registry.KindBytes:
		b, ok := v.([]byte)
		if !ok && v != nil {
			return typeError(fd, v)
		}
		w.PutBytes(b)
	case registry.KindEnum:
		n, err := enumOrdinal(fd, v)
		if err != nil {
			return err
		}
		w.PutU32(n)
	case registry.KindObjectRef:
		return encodeRef(w, fd, v)
	case registry.KindStruct:
		return encodeStruct(w, fd, v, depth)
	case registry.KindSequence:
		return encodeSequence(w, fd, v, depth)
	case registry.KindMapping:
		return encodeMapping(w, fd, v, depth)
	default:
		return fmt.Errorf("codec: %s: unsupported kind %s", fd.Name, fd.Kind)
	}
	return nil
}

func decodeValue(r *Reader, fd *registry.FieldDescriptor, depth int) (any, error) {
	if depth > maxDepth {
		return nil, domain.ErrCorruptFormat.WithDetailsf("%s: nesting deeper than %d", fd.Name, maxDepth)
	}
	switch fd.Kind {
	case registry.KindBool:
		return r.Bool()
	case registry.KindInt32:
		v, err := r.U32()
		return int32(v), err
	case registry.KindInt64:
		v, err := r.U64()
		return int64(v), err
	case registry.KindUint32:
		return r.U32()
	case registry.KindUint64:
		return r.U64()
	case registry.KindFloat32:
		return r.F32()
	case registry.KindFloat64:
		return r.F64()
	case registry.KindString:
		return r.String()
	case registry.KindBytes:
		return r.Bytes()
	case registry.KindEnum:
		v, err := r.U32()
		if err != nil {
			return nil, err
		}
		if len(fd.EnumValues) > 0 && int(v) >= len(fd.EnumValues) {
			return nil, domain.ErrSchemaMismatch.WithDetailsf("%s: enum ordinal %d out of range", fd.Name, v)
		}
		return v, nil
	case registry.KindObjectRef:
		return decodeRef(r)
	case registry.KindStruct:
		return decodeStruct(r, fd, depth)
	case registry.KindSequence:
		return decodeSequence(r, fd, depth)
	case registry.KindMapping:
		return decodeMapping(r, fd, depth)
	default:
		return nil, domain.ErrCorruptFormat.WithDetailsf("%s: unsupported kind %s", fd.Name, fd.Kind)
	}
}

func encodeRef(w *Writer, fd *registry.FieldDescriptor, v any) error {
	var id domain.Identity
	switch ref := v.(type) {
	case nil:
	case domain.Identity:
		id = ref
	case *domain.Identity:
		if ref != nil {
			id = *ref
		}
	case Identifiable:
		if !isNilInterface(ref) {
			id = ref.Identity()
		}
	default:
		return typeError(fd, v)
	}
	if id.IsZero() {
		w.PutU8(0)
		return nil
	}
	w.PutU8(1)
	PutIdentity(w, id)
	return nil
}

func decodeRef(r *Reader) (any, error) {
	present, err := r.Bool()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	id, err := ReadIdentity(r)
	if err != nil {
		return nil, err
	}
	return Ref{ID: id}, nil
}

// encodeStruct writes [count:2] then [tag:2][len:4][kind:1][value] per
// present field, in tag order.
func encodeStruct(w *Writer, fd *registry.FieldDescriptor, v any, depth int) error {
	m, ok := v.(map[string]any)
	if !ok && v != nil {
		return typeError(fd, v)
	}
	nested := make([]*registry.FieldDescriptor, 0, len(m))
	for name := range m {
		var found *registry.FieldDescriptor
		for i := range fd.Struct.Fields {
			if fd.Struct.Fields[i].Name == name {
				found = &fd.Struct.Fields[i]
				break
			}
		}
		if found == nil {
			return fmt.Errorf("codec: %s: unknown struct field %q", fd.Name, name)
		}
		nested = append(nested, found)
	}
	sort.Slice(nested, func(i, j int) bool { return nested[i].Tag < nested[j].Tag })

	w.PutU16(uint16(len(nested)))
	for _, nf := range nested {
		w.PutU16(nf.Tag)
		lenOff := w.Reserve32()
		start := w.Len()
		w.PutU8(uint8(nf.Kind))
		if err := encodeValue(w, nf, m[nf.Name], depth+1); err != nil {
			return err
		}
		w.Patch32(lenOff, uint32(w.Len()-start))
	}
	return nil
}

func decodeStruct(r *Reader, fd *registry.FieldDescriptor, depth int) (any, error) {
	count, err := r.U16()
	if err != nil {
		return nil, err
	}
	// Each entry needs at least tag(2) + len(4) + kind(1).
	if int(count)*7 > r.Remaining() {
		return nil, domain.ErrCorruptFormat.WithDetailsf("%s: implausible struct field count %d", fd.Name, count)
	}
	out := make(map[string]any, len(fd.Struct.Fields))
	for i := 0; i < int(count); i++ {
		tag, err := r.U16()
		if err != nil {
			return nil, err
		}
		n, err := r.U32()
		if err != nil {
			return nil, err
		}
		payload, err := r.Raw(int(n))
		if err != nil {
			return nil, err
		}
		nf, ok := fd.Struct.FieldByTag(tag)
		if !ok {
			// Unknown nested tag from a newer writer.
			continue
		}
		val, err := decodeNested(nf, payload, depth+1)
		if err != nil {
			if domain.IsDomainError(err, domain.ErrSchemaMismatch.Code) {
				continue
			}
			return nil, err
		}
		out[nf.Name] = val
	}
	for i := range fd.Struct.Fields {
		nf := &fd.Struct.Fields[i]
		if _, ok := out[nf.Name]; !ok {
			out[nf.Name] = DefaultValue(nf)
		}
	}
	return out, nil
}

func decodeNested(fd *registry.FieldDescriptor, payload []byte, depth int) (any, error) {
	if len(payload) == 0 {
		return nil, domain.ErrCorruptFormat.WithDetailsf("%s: empty payload", fd.Name)
	}
	if registry.FieldKind(payload[0]) != fd.Kind {
		return nil, domain.ErrSchemaMismatch.WithDetailsf("%s: wire kind %s", fd.Name, registry.FieldKind(payload[0]))
	}
	r := NewReader(payload[1:])
	v, err := decodeValue(r, fd, depth)
	if err != nil {
		return nil, err
	}
	if r.Remaining() != 0 {
		return nil, domain.ErrCorruptFormat.WithDetailsf("%s: %d trailing bytes", fd.Name, r.Remaining())
	}
	return v, nil
}

func encodeSequence(w *Writer, fd *registry.FieldDescriptor, v any, depth int) error {
	if v == nil {
		w.PutU32(0)
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return typeError(fd, v)
	}
	n := rv.Len()
	w.PutU32(uint32(n))
	for i := 0; i < n; i++ {
		if err := encodeValue(w, fd.Elem, rv.Index(i).Interface(), depth+1); err != nil {
			return fmt.Errorf("codec: %s[%d]: %w", fd.Name, i, err)
		}
	}
	return nil
}

func decodeSequence(r *Reader, fd *registry.FieldDescriptor, depth int) (any, error) {
	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	if err := checkCount(r, fd, uint64(count), fd.Elem.Kind.MinEncodedSize()); err != nil {
		return nil, err
	}
	out := make([]any, 0, count)
	for i := uint32(0); i < count; i++ {
		v, err := decodeValue(r, fd.Elem, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

type encodedPair struct {
	key   []byte
	value any
}

// encodeMapping writes entries ordered by encoded key bytes so that equal
// maps always produce identical output.
func encodeMapping(w *Writer, fd *registry.FieldDescriptor, v any, depth int) error {
	if v == nil {
		w.PutU32(0)
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return typeError(fd, v)
	}
	pairs := make([]encodedPair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		kw := NewWriter(8)
		if err := encodeValue(kw, fd.Key, iter.Key().Interface(), depth+1); err != nil {
			return fmt.Errorf("codec: %s key: %w", fd.Name, err)
		}
		pairs = append(pairs, encodedPair{key: kw.Bytes(), value: iter.Value().Interface()})
	}
	sort.Slice(pairs, func(i, j int) bool { return bytes.Compare(pairs[i].key, pairs[j].key) < 0 })

	w.PutU32(uint32(len(pairs)))
	for _, p := range pairs {
		w.PutRaw(p.key)
		if err := encodeValue(w, fd.Elem, p.value, depth+1); err != nil {
			return fmt.Errorf("codec: %s value: %w", fd.Name, err)
		}
	}
	return nil
}

func decodeMapping(r *Reader, fd *registry.FieldDescriptor, depth int) (any, error) {
	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	if err := checkCount(r, fd, uint64(count), fd.Key.Kind.MinEncodedSize()+fd.Elem.Kind.MinEncodedSize()); err != nil {
		return nil, err
	}
	out := make(map[any]any, count)
	for i := uint32(0); i < count; i++ {
		k, err := decodeValue(r, fd.Key, depth+1)
		if err != nil {
			return nil, err
		}
		if ref, ok := k.(Ref); ok {
			k = ref.ID
		}
		v, err := decodeValue(r, fd.Elem, depth+1)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// checkCount rejects element counts the remaining bytes could not hold,
// before any allocation happens.
func checkCount(r *Reader, fd *registry.FieldDescriptor, count uint64, minSize int) error {
	if minSize < 1 {
		minSize = 1
	}
	if count*uint64(minSize) > uint64(r.Remaining()) {
		return domain.ErrCorruptFormat.WithDetailsf("%s: implausible element count %d for %d remaining bytes",
			fd.Name, count, r.Remaining())
	}
	return nil
}

func enumOrdinal(fd *registry.FieldDescriptor, v any) (uint32, error) {
	if s, ok := v.(string); ok {
		for i, name := range fd.EnumValues {
			if name == s {
				return uint32(i), nil
			}
		}
		return 0, fmt.Errorf("codec: %s: unknown enum value %q", fd.Name, s)
	}
	n, ok := toUint64(v)
	if !ok || n > math.MaxUint32 {
		return 0, typeError(fd, v)
	}
	if len(fd.EnumValues) > 0 && n >= uint64(len(fd.EnumValues)) {
		return 0, fmt.Errorf("codec: %s: enum ordinal %d out of range", fd.Name, n)
	}
	return uint32(n), nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int32:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

func isNilInterface(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}

func typeError(fd *registry.FieldDescriptor, v any) error {
	return fmt.Errorf("codec: field %s (%s): unsupported value %T", fd.Name, fd.Kind, v)
}

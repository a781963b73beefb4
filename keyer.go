package chunkcache

import (
	"bytes"
	"crypto/sha256"
	"encoding"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/botirk38/chunkcache/logger"
)

var errUnencodable = errors.New("value has no canonical encoding")

// Keyer derives deterministic cache keys from the arguments of a call.
//
// Plain data (nil, booleans, numbers, strings, slices, arrays, maps, sets
// and value structs) is encoded canonically with map keys sorted. Numbers
// carry their kind ({"i":1}, {"u":1}, {"f":1}), maps are tagged {"m":...}
// or, with non-string keys, {"p":[[k,v],...]}, and value structs are
// tagged with their type name, so values of different kinds never share
// an encoding. Pointers to structs, functions and channels are treated as
// collaborator objects and replaced by "<instance:{pkg.Type}>", so two
// instances of the same collaborator type produce the same key.
//
// The key is the hex SHA-256 of the encoding. When a value cannot be
// encoded (complex numbers, NaN, cyclic data, structs with only unexported
// fields) the keyer falls back to hashing the type and %v rendering of each
// argument and reports the key as inexact.
type Keyer struct {
	log logger.Logger
}

// NewKeyer creates a keyer. l may be nil.
func NewKeyer(l logger.Logger) *Keyer {
	return &Keyer{log: logger.OrDiscard(l)}
}

// Key returns the cache key for the given positional and keyword arguments
// and whether the canonical path was used.
func (k *Keyer) Key(args []any, kwargs map[string]any) (string, bool) {
	canonical, err := canonicalEncoding(args, kwargs)
	if err == nil {
		return digest(canonical), true
	}

	k.log.Warn("Falling back to low-confidence cache key", "error", err)
	return digest(fallbackEncoding(args, kwargs)), false
}

func fallbackEncoding(args []any, kwargs map[string]any) []byte {
	var buf []byte
	for _, a := range args {
		buf = fmt.Appendf(buf, "%T=%v|", a, a)
	}
	names := make([]string, 0, len(kwargs))
	for name := range kwargs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		buf = fmt.Appendf(buf, "%s:%T=%v|", name, kwargs[name], kwargs[name])
	}
	return buf
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func canonicalEncoding(args []any, kwargs map[string]any) ([]byte, error) {
	normArgs := make([]any, len(args))
	for i, a := range args {
		n, err := normalize(reflect.ValueOf(a), 0)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		normArgs[i] = n
	}

	normKwargs := make(map[string]any, len(kwargs))
	for name, a := range kwargs {
		n, err := normalize(reflect.ValueOf(a), 0)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		normKwargs[name] = n
	}

	return encodeJSON(map[string]any{"args": normArgs, "kwargs": normKwargs})
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// InstanceTag is the stand-in used for collaborator objects in cache keys.
func InstanceTag(t reflect.Type) string {
	if t == nil {
		return "<instance:nil>"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return "<instance:" + typeName(t) + ">"
}

const maxDepth = 64

// normalize turns v into a tree of JSON-encodable values with deterministic
// ordering.
func normalize(v reflect.Value, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting too deep", errUnencodable)
	}
	if !v.IsValid() {
		return nil, nil
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return normalize(v.Elem(), depth+1)

	case reflect.Pointer:
		if v.IsNil() {
			return nil, nil
		}
		if v.Elem().Kind() == reflect.Struct {
			return InstanceTag(v.Type()), nil
		}
		return normalize(v.Elem(), depth+1)

	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return InstanceTag(v.Type()), nil

	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return map[string]any{"i": v.Int()}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return map[string]any{"u": v.Uint()}, nil
	case reflect.Float32, reflect.Float64:
		return map[string]any{"f": v.Float()}, nil
	case reflect.String:
		return v.String(), nil

	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		fallthrough
	case reflect.Array:
		out := make([]any, v.Len())
		for i := range out {
			n, err := normalize(v.Index(i), depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil

	case reflect.Map:
		if v.IsNil() {
			return nil, nil
		}
		if isSet(v.Type()) {
			return normalizeSet(v, depth)
		}
		return normalizeMap(v, depth)

	case reflect.Struct:
		return normalizeStruct(v)

	default:
		return nil, fmt.Errorf("%w: %s", errUnencodable, v.Type())
	}
}

// isSet reports whether t is a map used as a set (map[T]struct{}).
func isSet(t reflect.Type) bool {
	e := t.Elem()
	return e.Kind() == reflect.Struct && e.NumField() == 0
}

func normalizeSet(v reflect.Value, depth int) (any, error) {
	type member struct {
		enc string
		val any
	}
	members := make([]member, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		n, err := normalize(iter.Key(), depth+1)
		if err != nil {
			return nil, err
		}
		enc, err := encodeJSON(n)
		if err != nil {
			return nil, err
		}
		members = append(members, member{enc: string(enc), val: n})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].enc < members[j].enc })

	out := make([]any, len(members))
	for i, m := range members {
		out[i] = m.val
	}
	return out, nil
}

func normalizeMap(v reflect.Value, depth int) (any, error) {
	if v.Type().Key().Kind() == reflect.String {
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			n, err := normalize(iter.Value(), depth+1)
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = n
		}
		return map[string]any{"m": out}, nil
	}

	type pair struct {
		enc string
		kv  []any
	}
	pairs := make([]pair, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		k, err := normalize(iter.Key(), depth+1)
		if err != nil {
			return nil, err
		}
		enc, err := encodeJSON(k)
		if err != nil {
			return nil, err
		}
		n, err := normalize(iter.Value(), depth+1)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair{enc: string(enc), kv: []any{k, n}})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].enc < pairs[j].enc })

	out := make([]any, len(pairs))
	for i, p := range pairs {
		out[i] = p.kv
	}
	return map[string]any{"p": out}, nil
}

var (
	jsonMarshaler = reflect.TypeFor[json.Marshaler]()
	textMarshaler = reflect.TypeFor[encoding.TextMarshaler]()
)

// normalizeStruct round-trips value structs through JSON so their field
// layout follows their json tags and nested maps get sorted on re-encode.
// The result is tagged with the struct's type name.
func normalizeStruct(v reflect.Value) (any, error) {
	if !v.CanInterface() {
		return nil, fmt.Errorf("%w: unexported %s", errUnencodable, v.Type())
	}
	if !hasExportedFields(v.Type()) && !v.Type().Implements(jsonMarshaler) && !v.Type().Implements(textMarshaler) {
		return nil, fmt.Errorf("%w: %s has no exported fields", errUnencodable, v.Type())
	}
	raw, err := json.Marshal(v.Interface())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnencodable, err)
	}
	var out any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", errUnencodable, err)
	}
	return map[string]any{"s": typeName(v.Type()), "v": out}, nil
}

func hasExportedFields(t reflect.Type) bool {
	for i := range t.NumField() {
		if f := t.Field(i); f.IsExported() || f.Anonymous {
			return true
		}
	}
	return false
}

func typeName(t reflect.Type) string {
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

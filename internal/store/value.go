package store

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Kind identifies the type of an indexed value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindNumber
	KindString
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		return "invalid"
	}
}

// maxExactInt is the largest integer magnitude a float64 holds exactly.
const maxExactInt = 1 << 53

// Value is a single indexed property value: a string, a number or a bool.
// All numeric Go types are carried as float64.
type Value struct {
	kind Kind
	s    string
	n    float64
	b    bool
}

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind returns the value kind.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string payload.
func (v Value) Str() string { return v.s }

// Num returns the numeric payload.
func (v Value) Num() float64 { return v.n }

// Boolean returns the boolean payload.
func (v Value) Boolean() bool { return v.b }

// IsValid reports whether v was built from a supported type.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// Interface returns the value as a plain Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return v.n
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// Text renders the value the way users type it.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Equal reports exact equality including kind.
func (v Value) Equal(o Value) bool {
	return v.Key() == o.Key()
}

// Key returns the canonical encoding of v. Two values are an exact match
// iff their keys are equal. Keys of the same kind sort in value order.
func (v Value) Key() string {
	switch v.kind {
	case KindString:
		return "s" + v.s
	case KindNumber:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], sortableFloat(v.n))
		return "n" + string(buf[:])
	case KindBool:
		if v.b {
			return "b1"
		}
		return "b0"
	default:
		return ""
	}
}

// TextKey is Key with the number payload hex-encoded, safe for text columns.
func (v Value) TextKey() string {
	if v.kind == KindNumber {
		return "n" + hex.EncodeToString([]byte(v.Key()[1:]))
	}
	return v.Key()
}

// ParseKey decodes a Key back into a Value.
func ParseKey(key string) (Value, error) {
	if key == "" {
		return Value{}, fmt.Errorf("empty value key")
	}
	switch key[0] {
	case 's':
		return String(key[1:]), nil
	case 'n':
		if len(key) != 9 {
			return Value{}, fmt.Errorf("number key has %d bytes, want 9", len(key))
		}
		return Number(unsortableFloat(binary.BigEndian.Uint64([]byte(key[1:])))), nil
	case 'b':
		return Bool(key == "b1"), nil
	default:
		return Value{}, fmt.Errorf("unknown value key tag %q", key[0])
	}
}

// sortableFloat maps a float64 to a uint64 whose unsigned order matches the float order.
func sortableFloat(f float64) uint64 {
	if f == 0 {
		f = 0 // fold -0 into +0
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | 1<<63
}

func unsortableFloat(u uint64) float64 {
	if u&(1<<63) != 0 {
		return math.Float64frombits(u &^ (1 << 63))
	}
	return math.Float64frombits(^u)
}

// ValueOf converts a scalar Go value into a Value.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, fmt.Errorf("nil value")
	case Value:
		if !t.IsValid() {
			return Value{}, fmt.Errorf("invalid value")
		}
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return numberOf(t)
	case float32:
		return numberOf(float64(t))
	case int:
		return intOf(int64(t))
	case int8:
		return intOf(int64(t))
	case int16:
		return intOf(int64(t))
	case int32:
		return intOf(int64(t))
	case int64:
		return intOf(t)
	case uint:
		return uintOf(uint64(t))
	case uint8:
		return uintOf(uint64(t))
	case uint16:
		return uintOf(uint64(t))
	case uint32:
		return uintOf(uint64(t))
	case uint64:
		return uintOf(t)
	}

	// Named types such as `type Status string`
	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Float32, reflect.Float64:
		return numberOf(rv.Float())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intOf(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return uintOf(rv.Uint())
	}
	return Value{}, fmt.Errorf("unsupported value type %T", x)
}

func numberOf(f float64) (Value, error) {
	if math.IsNaN(f) {
		return Value{}, fmt.Errorf("NaN cannot be matched exactly")
	}
	return Number(f), nil
}

func intOf(i int64) (Value, error) {
	if i > maxExactInt || i < -maxExactInt {
		return Value{}, fmt.Errorf("integer %d exceeds exact float64 range", i)
	}
	return Number(float64(i)), nil
}

func uintOf(u uint64) (Value, error) {
	if u > maxExactInt {
		return Value{}, fmt.Errorf("integer %d exceeds exact float64 range", u)
	}
	return Number(float64(u)), nil
}

// ValuesOf converts a scalar or a slice/array of scalars into Values.
// Nested slices are rejected.
func ValuesOf(x any) ([]Value, error) {
	if x == nil {
		return nil, fmt.Errorf("nil value")
	}
	if _, ok := x.(Value); ok {
		v, err := ValueOf(x)
		return []Value{v}, err
	}

	rv := reflect.ValueOf(x)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		v, err := ValueOf(x)
		if err != nil {
			return nil, err
		}
		return []Value{v}, nil
	}
	// []byte is a slice of numbers here, not a string; callers pass strings for text.
	out := make([]Value, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		elem := rv.Index(i)
		if elem.Kind() == reflect.Interface {
			if elem.IsNil() {
				return nil, fmt.Errorf("element %d: nil value", i)
			}
			elem = elem.Elem()
		}
		if elem.Kind() == reflect.Slice || elem.Kind() == reflect.Array {
			return nil, fmt.Errorf("element %d: nested arrays are not supported", i)
		}
		v, err := ValueOf(elem.Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

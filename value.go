// FILE: lixenwraith/layersync/value.go
package layersync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Kind enumerates the JSON value variants.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the JSON type name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is an immutable JSON value. The zero Value is null.
// Callers must not mutate slices or maps returned by Elements or Fields.
type Value struct {
	kind Kind
	b    bool
	n    float64
	lit  string // number text as read; empty for computed numbers
	s    string
	arr  []Value
	obj  map[string]Value
}

// Null returns the JSON null value.
func Null() Value { return Value{} }

// Bool returns a JSON boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a JSON number.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// numberFromLiteral keeps the decimal text of a number next to its float64
// approximation. lit must be a valid JSON number.
func numberFromLiteral(lit string) Value {
	f, _ := strconv.ParseFloat(lit, 64)
	return Value{kind: KindNumber, n: f, lit: lit}
}

// String returns a JSON string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array returns a JSON array holding a copy of elems.
func Array(elems ...Value) Value {
	arr := make([]Value, len(elems))
	copy(arr, elems)
	return Value{kind: KindArray, arr: arr}
}

// Object returns a JSON object holding a copy of fields.
func Object(fields map[string]Value) Value {
	obj := make(map[string]Value, len(fields))
	for k, v := range fields {
		obj[k] = v
	}
	return Value{kind: KindObject, obj: obj}
}

// Strings is shorthand for an array of JSON strings.
func Strings(items ...string) Value {
	arr := make([]Value, len(items))
	for i, s := range items {
		arr[i] = String(s)
	}
	return Value{kind: KindArray, arr: arr}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) IsArray() bool { return v.kind == KindArray }
func (v Value) IsObject() bool { return v.kind == KindObject }
func (v Value) AsBool() bool { return v.b }
func (v Value) AsNumber() float64 { return v.n }
func (v Value) AsString() string { return v.s }

// Elements returns the array elements, or nil for non-arrays.
func (v Value) Elements() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.arr
}

// Len returns the element count of an array, the field count of an object, or 0.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	}
	return 0
}

// Fields returns the object fields, or nil for non-objects.
func (v Value) Fields() map[string]Value {
	if v.kind != KindObject {
		return nil
	}
	return v.obj
}

// Equal reports deep equality. Numbers compare by numeric value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.numText() == o.numText()
	case KindString:
		return v.s == o.s
	case KindArray:
		return equalElements(v.arr, o.arr)
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, fv := range v.obj {
			ov, ok := o.obj[k]
			if !ok || !fv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

func equalElements(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Key returns the canonical JSON encoding, usable as a map key for
// value-equality multisets. Numbers are written in one normal form, so 1,
// 1.0 and 1e0 share a key.
func (v Value) Key() string {
	var buf bytes.Buffer
	v.encode(&buf, true)
	return buf.String()
}

// String implements fmt.Stringer with the canonical JSON form.
func (v Value) String() string { return v.Key() }

// MarshalJSON encodes the value with object keys sorted. Numbers read from
// a document keep their original text.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	v.encode(&buf, false)
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes any JSON document into the value.
func (v *Value) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid JSON value")
	}
	*v = fromGJSON(gjson.ParseBytes(data))
	return nil
}

func (v Value) encode(buf *bytes.Buffer, canonical bool) {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		if v.lit != "" && !canonical {
			buf.WriteString(v.lit)
			return
		}
		buf.WriteString(v.numText())
	case KindString:
		writeQuoted(buf, v.s)
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			e.encode(buf, canonical)
		}
		buf.WriteByte(']')
	case KindObject:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeQuoted(buf, k)
			buf.WriteByte(':')
			v.obj[k].encode(buf, canonical)
		}
		buf.WriteByte('}')
	}
}

// numText is the normal form of a number: exact digits for integer
// literals, the shortest float64 text otherwise.
func (v Value) numText() string {
	if isIntLiteral(v.lit) {
		if i, ok := new(big.Int).SetString(v.lit, 10); ok {
			return i.String()
		}
	}
	if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
		return "null"
	}
	return strconv.FormatFloat(v.n, 'f', -1, 64)
}

func isIntLiteral(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// writeQuoted writes s as a JSON string without HTML escaping.
func writeQuoted(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// Encode appends a newline
	buf.Truncate(buf.Len() - 1)
}

// Interface converts the value back to plain Go data: nil, bool, int64 for
// integral numbers, float64, string, []any and map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		if isIntLiteral(v.lit) {
			if i, err := strconv.ParseInt(v.lit, 10, 64); err == nil {
				return i
			}
			if u, err := strconv.ParseUint(v.lit, 10, 64); err == nil {
				return u
			}
		}
		if v.n == math.Trunc(v.n) && math.Abs(v.n) < 1<<53 {
			return int64(v.n)
		}
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.Interface()
		}
		return out
	}
	return nil
}

// fromGJSON converts a parsed gjson result without an intermediate map.
func fromGJSON(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return Null()
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.Number:
		return numberFromLiteral(r.Raw)
	case gjson.String:
		return String(r.Str)
	}
	if r.IsArray() {
		var arr []Value
		r.ForEach(func(_, item gjson.Result) bool {
			arr = append(arr, fromGJSON(item))
			return true
		})
		return Value{kind: KindArray, arr: arr}
	}
	if r.IsObject() {
		obj := make(map[string]Value)
		r.ForEach(func(key, item gjson.Result) bool {
			obj[key.String()] = fromGJSON(item)
			return true
		})
		return Value{kind: KindObject, obj: obj}
	}
	return Null()
}

// FromAny converts host-native data (JSON, YAML or TOML decoder output, or
// plain Go scalars, slices and string-keyed maps) into a Value.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		if _, err := t.Float64(); err != nil {
			return Value{}, fmt.Errorf("%w: number %q: %v", ErrUnsupportedVal, t, err)
		}
		return numberFromLiteral(t.String()), nil
	case time.Time:
		return String(t.Format(time.RFC3339Nano)), nil
	case []any:
		arr := make([]Value, len(t))
		for i, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			arr[i] = ev
		}
		return Value{kind: KindArray, arr: arr}, nil
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			obj[k] = ev
		}
		return Value{kind: KindObject, obj: obj}, nil
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return numberFromLiteral(strconv.FormatInt(rv.Int(), 10)), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return numberFromLiteral(strconv.FormatUint(rv.Uint(), 10)), nil
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float()), nil
	case reflect.Slice, reflect.Array:
		arr := make([]Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			ev, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return Value{}, err
			}
			arr[i] = ev
		}
		return Value{kind: KindArray, arr: arr}, nil
	case reflect.Map:
		obj := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, ok := iter.Key().Interface().(string)
			if !ok {
				return Value{}, fmt.Errorf("%w: map key %T", ErrUnsupportedVal, iter.Key().Interface())
			}
			ev, err := FromAny(iter.Value().Interface())
			if err != nil {
				return Value{}, err
			}
			obj[k] = ev
		}
		return Value{kind: KindObject, obj: obj}, nil
	}
	return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedVal, x)
}

// MustValue is FromAny that panics, for literals in tests and examples.
func MustValue(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}

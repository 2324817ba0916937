// Package param implements the tagged parameter value system shared by
// module parameter declarations and the SetParameter/AddParameter
// message bodies: a single wire-compatible value type covering scalars
// and sequences of the primitive kinds modules expose as parameters.
package param

import "fmt"

// Kind tags which variant of Value is populated.
type Kind uint8

const (
	KindInt32 Kind = iota
	KindFloat32
	KindString
	KindBool
	KindInt32Seq
	KindFloat32Seq
	KindStringSeq
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindFloat32:
		return "float32"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt32Seq:
		return "int32[]"
	case KindFloat32Seq:
		return "float32[]"
	case KindStringSeq:
		return "string[]"
	default:
		return "unknown"
	}
}

// Value is a tagged union over the parameter value kinds. Only the field
// matching Kind is meaningful.
type Value struct {
	Kind       Kind
	Int32      int32
	Float32    float32
	String     string
	Bool       bool
	Int32Seq   []int32
	Float32Seq []float32
	StringSeq  []string
}

func Int32Value(v int32) Value      { return Value{Kind: KindInt32, Int32: v} }
func Float32Value(v float32) Value  { return Value{Kind: KindFloat32, Float32: v} }
func StringValue(v string) Value    { return Value{Kind: KindString, String: v} }
func BoolValue(v bool) Value        { return Value{Kind: KindBool, Bool: v} }
func Int32SeqValue(v []int32) Value { return Value{Kind: KindInt32Seq, Int32Seq: v} }
func Float32SeqValue(v []float32) Value {
	return Value{Kind: KindFloat32Seq, Float32Seq: v}
}
func StringSeqValue(v []string) Value { return Value{Kind: KindStringSeq, StringSeq: v} }

// Equal reports whether two values have the same kind and contents.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindInt32:
		return v.Int32 == o.Int32
	case KindFloat32:
		return v.Float32 == o.Float32
	case KindString:
		return v.String == o.String
	case KindBool:
		return v.Bool == o.Bool
	case KindInt32Seq:
		return int32SeqEqual(v.Int32Seq, o.Int32Seq)
	case KindFloat32Seq:
		return float32SeqEqual(v.Float32Seq, o.Float32Seq)
	case KindStringSeq:
		return stringSeqEqual(v.StringSeq, o.StringSeq)
	default:
		return false
	}
}

func int32SeqEqual(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func float32SeqEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringSeqEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Type declares a parameter's kind plus optional bounds, used by the
// AddParameter message to register a new parameter dynamically.
type Type struct {
	Kind       Kind
	MinInt32   *int32
	MaxInt32   *int32
	MinFloat32 *float32
	MaxFloat32 *float32
}

// ErrTypeMismatch is returned when a value's kind does not match the
// declared parameter kind.
var ErrTypeMismatch = fmt.Errorf("param: type mismatch")

// ErrOutOfRange is returned when a value falls outside a declared
// min/max bound.
var ErrOutOfRange = fmt.Errorf("param: out of range")

package param

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeString(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeFloat32(w io.Writer, f float32) error {
	return writeU32(w, math.Float32bits(f))
}

func readFloat32(r io.Reader) (float32, error) {
	bits, err := readU32(r)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

// EncodeValue writes the tagged wire form of v: a Kind byte followed by
// the kind-specific payload.
func EncodeValue(w io.Writer, v Value) error {
	if _, err := w.Write([]byte{byte(v.Kind)}); err != nil {
		return err
	}
	switch v.Kind {
	case KindInt32:
		return writeU32(w, uint32(v.Int32))
	case KindFloat32:
		return writeFloat32(w, v.Float32)
	case KindString:
		return writeString(w, v.String)
	case KindBool:
		var b byte
		if v.Bool {
			b = 1
		}
		_, err := w.Write([]byte{b})
		return err
	case KindInt32Seq:
		if err := writeU32(w, uint32(len(v.Int32Seq))); err != nil {
			return err
		}
		for _, i := range v.Int32Seq {
			if err := writeU32(w, uint32(i)); err != nil {
				return err
			}
		}
		return nil
	case KindFloat32Seq:
		if err := writeU32(w, uint32(len(v.Float32Seq))); err != nil {
			return err
		}
		for _, f := range v.Float32Seq {
			if err := writeFloat32(w, f); err != nil {
				return err
			}
		}
		return nil
	case KindStringSeq:
		if err := writeU32(w, uint32(len(v.StringSeq))); err != nil {
			return err
		}
		for _, s := range v.StringSeq {
			if err := writeString(w, s); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("param: encode: unknown kind %d", v.Kind)
	}
}

// DecodeValue reads a value encoded by EncodeValue.
func DecodeValue(r io.Reader) (Value, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return Value{}, err
	}
	kind := Kind(tag[0])
	switch kind {
	case KindInt32:
		u, err := readU32(r)
		return Int32Value(int32(u)), err
	case KindFloat32:
		f, err := readFloat32(r)
		return Float32Value(f), err
	case KindString:
		s, err := readString(r)
		return StringValue(s), err
	case KindBool:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return Value{}, err
		}
		return BoolValue(b[0] != 0), nil
	case KindInt32Seq:
		n, err := readU32(r)
		if err != nil {
			return Value{}, err
		}
		seq := make([]int32, n)
		for i := range seq {
			u, err := readU32(r)
			if err != nil {
				return Value{}, err
			}
			seq[i] = int32(u)
		}
		return Int32SeqValue(seq), nil
	case KindFloat32Seq:
		n, err := readU32(r)
		if err != nil {
			return Value{}, err
		}
		seq := make([]float32, n)
		for i := range seq {
			f, err := readFloat32(r)
			if err != nil {
				return Value{}, err
			}
			seq[i] = f
		}
		return Float32SeqValue(seq), nil
	case KindStringSeq:
		n, err := readU32(r)
		if err != nil {
			return Value{}, err
		}
		seq := make([]string, n)
		for i := range seq {
			s, err := readString(r)
			if err != nil {
				return Value{}, err
			}
			seq[i] = s
		}
		return StringSeqValue(seq), nil
	default:
		return Value{}, fmt.Errorf("param: decode: unknown kind %d", kind)
	}
}

func writeOptionalInt32(w io.Writer, v *int32) error {
	if v == nil {
		_, err := w.Write([]byte{0})
		return err
	}
	if _, err := w.Write([]byte{1}); err != nil {
		return err
	}
	return writeU32(w, uint32(*v))
}

func readOptionalInt32(r io.Reader) (*int32, error) {
	var present [1]byte
	if _, err := io.ReadFull(r, present[:]); err != nil {
		return nil, err
	}
	if present[0] == 0 {
		return nil, nil
	}
	u, err := readU32(r)
	if err != nil {
		return nil, err
	}
	v := int32(u)
	return &v, nil
}

func writeOptionalFloat32(w io.Writer, v *float32) error {
	if v == nil {
		_, err := w.Write([]byte{0})
		return err
	}
	if _, err := w.Write([]byte{1}); err != nil {
		return err
	}
	return writeFloat32(w, *v)
}

func readOptionalFloat32(r io.Reader) (*float32, error) {
	var present [1]byte
	if _, err := io.ReadFull(r, present[:]); err != nil {
		return nil, err
	}
	if present[0] == 0 {
		return nil, nil
	}
	f, err := readFloat32(r)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// EncodeType writes the wire form of a Type: a Kind byte, then for the
// bounded numeric kinds (int32, float32 and their sequence forms) an
// optional min and an optional max.
func EncodeType(w io.Writer, t Type) error {
	if _, err := w.Write([]byte{byte(t.Kind)}); err != nil {
		return err
	}
	switch t.Kind {
	case KindInt32, KindInt32Seq:
		if err := writeOptionalInt32(w, t.MinInt32); err != nil {
			return err
		}
		return writeOptionalInt32(w, t.MaxInt32)
	case KindFloat32, KindFloat32Seq:
		if err := writeOptionalFloat32(w, t.MinFloat32); err != nil {
			return err
		}
		return writeOptionalFloat32(w, t.MaxFloat32)
	case KindString, KindBool, KindStringSeq:
		return nil
	default:
		return fmt.Errorf("param: encode type: unknown kind %d", t.Kind)
	}
}

// DecodeType reads a Type encoded by EncodeType.
func DecodeType(r io.Reader) (Type, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return Type{}, err
	}
	kind := Kind(tag[0])
	t := Type{Kind: kind}
	switch kind {
	case KindInt32, KindInt32Seq:
		min, err := readOptionalInt32(r)
		if err != nil {
			return Type{}, err
		}
		max, err := readOptionalInt32(r)
		if err != nil {
			return Type{}, err
		}
		t.MinInt32, t.MaxInt32 = min, max
	case KindFloat32, KindFloat32Seq:
		min, err := readOptionalFloat32(r)
		if err != nil {
			return Type{}, err
		}
		max, err := readOptionalFloat32(r)
		if err != nil {
			return Type{}, err
		}
		t.MinFloat32, t.MaxFloat32 = min, max
	case KindString, KindBool, KindStringSeq:
	default:
		return Type{}, fmt.Errorf("param: decode type: unknown kind %d", kind)
	}
	return t, nil
}

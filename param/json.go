package param

import (
	"encoding/json"
	"fmt"
)

// jsonValue is the wire shape a Value marshals to and from: a kind tag
// plus whichever single field that kind populates. Workflow spec files
// loaded by pipelinectl use this to declare module parameters in JSON.
type jsonValue struct {
	Kind       string    `json:"kind"`
	Int32      int32     `json:"int32,omitempty"`
	Float32    float32   `json:"float32,omitempty"`
	String     string    `json:"string,omitempty"`
	Bool       bool      `json:"bool,omitempty"`
	Int32Seq   []int32   `json:"int32_seq,omitempty"`
	Float32Seq []float32 `json:"float32_seq,omitempty"`
	StringSeq  []string  `json:"string_seq,omitempty"`
}

func kindFromString(s string) (Kind, error) {
	switch s {
	case "int32":
		return KindInt32, nil
	case "float32":
		return KindFloat32, nil
	case "string":
		return KindString, nil
	case "bool":
		return KindBool, nil
	case "int32[]":
		return KindInt32Seq, nil
	case "float32[]":
		return KindFloat32Seq, nil
	case "string[]":
		return KindStringSeq, nil
	default:
		return 0, fmt.Errorf("param: unknown kind %q", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonValue{
		Kind:       v.Kind.String(),
		Int32:      v.Int32,
		Float32:    v.Float32,
		String:     v.String,
		Bool:       v.Bool,
		Int32Seq:   v.Int32Seq,
		Float32Seq: v.Float32Seq,
		StringSeq:  v.StringSeq,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return fmt.Errorf("param: decode value: %w", err)
	}
	kind, err := kindFromString(jv.Kind)
	if err != nil {
		return err
	}
	*v = Value{
		Kind:       kind,
		Int32:      jv.Int32,
		Float32:    jv.Float32,
		String:     jv.String,
		Bool:       jv.Bool,
		Int32Seq:   jv.Int32Seq,
		Float32Seq: jv.Float32Seq,
		StringSeq:  jv.StringSeq,
	}
	return nil
}

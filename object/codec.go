package object

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// wireObject is the exported mirror of Object used for serialization. The
// arena needs to copy objects into and out of a shared byte region, and
// gob requires exported fields.
type wireObject struct {
	ID         ID
	Kind       Kind
	Payload    []byte
	Meta       Meta
	Attributes map[string]string
	References []ID
}

// Encode serializes obj into a byte buffer suitable for storage in a
// SharedArena or for transmission as a MessageEnvelope payload.
func Encode(obj *Object) ([]byte, error) {
	w := wireObject{
		ID:         obj.id,
		Kind:       obj.kind,
		Payload:    obj.payload,
		Meta:       obj.meta,
		Attributes: obj.attributes,
		References: obj.references,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&w); err != nil {
		return nil, fmt.Errorf("object: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reconstructs an Object from bytes produced by Encode. The
// returned Object is a fresh copy distinct from the original.
func Decode(data []byte) (*Object, error) {
	var w wireObject
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return nil, fmt.Errorf("object: decode: %w", err)
	}
	if w.Attributes == nil {
		w.Attributes = make(map[string]string)
	}
	return &Object{
		id:         w.ID,
		kind:       w.Kind,
		payload:    w.Payload,
		meta:       w.Meta,
		attributes: w.Attributes,
		references: w.References,
	}, nil
}

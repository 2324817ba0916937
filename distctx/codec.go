package distctx

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// encodeValue serializes v with gob, the standard choice for a typed
// Go value of unknown shape crossing the same wire collectives use.
// Unlike the message package's Envelope (a fixed, versioned schema the
// wire-format section specifies byte-for-byte), a collective's payload
// is whatever type the calling module passes in, so there is no fixed
// schema to hand-roll a binary codec against.
func encodeValue(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("distctx: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeValue deserializes into out, a pointer to the expected type.
func decodeValue(data []byte, out interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(out); err != nil {
		return fmt.Errorf("distctx: decode: %w", err)
	}
	return nil
}

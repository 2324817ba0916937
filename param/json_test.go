package param

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueJSONRoundTrip(t *testing.T) {
	cases := []Value{
		Int32Value(42),
		StringValue("source.csv"),
		BoolValue(true),
		Float32SeqValue([]float32{0.1, 0.2, 0.3}),
	}
	for _, v := range cases {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		var got Value
		require.NoError(t, json.Unmarshal(data, &got))
		assert.True(t, v.Equal(got), "json round trip mismatch for %v", v)
	}
}

func TestValueJSONRejectsUnknownKind(t *testing.T) {
	var v Value
	err := json.Unmarshal([]byte(`{"kind":"complex128","complex128":1}`), &v)
	assert.Error(t, err)
}

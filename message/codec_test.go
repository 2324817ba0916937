package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vispipe.io/engine/object"
	"vispipe.io/engine/param"
)

func roundTrip(t *testing.T, env *Envelope) *Envelope {
	t.Helper()
	data, err := Encode(env)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	return got
}

func TestEnvelopeRoundTripEveryKind(t *testing.T) {
	bodies := []Body{
		ExecuteBody{Module: 3, Timestep: -1},
		CancelExecuteBody{Module: 3},
		QuitBody{},
		AddObjectBody{Object: object.NewID(), Port: "out"},
		RemoveObjectBody{Object: object.NewID()},
		SetParameterBody{Module: 2, Name: "threshold", Value: param.Float32Value(0.5)},
		AddParameterBody{Module: 2, Name: "threshold", Type: param.Type{Kind: param.KindFloat32}},
		ConnectPortsBody{FromModule: 1, FromPort: "out", ToModule: 2, ToPort: "in"},
		DisconnectPortsBody{FromModule: 1, FromPort: "out", ToModule: 2, ToPort: "in"},
		ModuleReadyBody{Module: 4},
		ComputationCompleteBody{Module: 4, Objects: []object.ID{object.NewID(), object.NewID()}},
		ErrorBody{Module: 4, Text: "boom"},
		CustomBody{TypeID: 99, Data: []byte{1, 2, 3}},
	}

	for _, body := range bodies {
		msg := New(1, 2, body).WithPriority(PriorityHigh)
		env := &Envelope{Message: msg, Payload: []byte("payload bytes")}

		got := roundTrip(t, env)
		assert.Equal(t, msg.ID, got.Message.ID)
		assert.Equal(t, msg.Sender, got.Message.Sender)
		assert.Equal(t, msg.Recipient, got.Message.Recipient)
		assert.Equal(t, msg.Priority, got.Message.Priority)
		assert.Equal(t, body, got.Message.Body)
		assert.Equal(t, env.Payload, got.Payload)
		assert.WithinDuration(t, msg.Timestamp, got.Message.Timestamp, 0)
	}
}

func TestEnvelopeRoundTripNilPayload(t *testing.T) {
	msg := New(0, 0, QuitBody{})
	env := &Envelope{Message: msg}
	got := roundTrip(t, env)
	assert.Empty(t, got.Payload)
}

func TestDecodeUnknownKindTag(t *testing.T) {
	msg := New(1, 2, QuitBody{})
	env := &Envelope{Message: msg}
	data, err := Encode(env)
	require.NoError(t, err)

	// The kind-tag byte sits right after id(16)+sender(4)+recipient(4)+priority(1).
	tagOffset := 16 + 4 + 4 + 1
	data[tagOffset] = 0xFF

	_, err = Decode(data)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

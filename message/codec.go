package message

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"vispipe.io/engine/object"
	"vispipe.io/engine/param"
)

// ErrUnknownKind is returned when decoding encounters a kind-tag this
// build does not recognize. Per the wire format's forward-compatibility
// rule, callers must discard the envelope and emit an Error message
// rather than treat this as fatal.
var ErrUnknownKind = errors.New("message: unknown kind tag")

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

func writeU64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
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

func writeBytes(w io.Writer, b []byte) error {
	if err := writeU32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeObjectID(w io.Writer, id object.ID) error {
	b := [16]byte(id)
	_, err := w.Write(b[:])
	return err
}

func readObjectID(r io.Reader) (object.ID, error) {
	var b [16]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return object.ID{}, err
	}
	return object.ID(b), nil
}

func writeObjectIDSeq(w io.Writer, ids []object.ID) error {
	if err := writeU32(w, uint32(len(ids))); err != nil {
		return err
	}
	for _, id := range ids {
		if err := writeObjectID(w, id); err != nil {
			return err
		}
	}
	return nil
}

func readObjectIDSeq(r io.Reader) ([]object.ID, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	out := make([]object.ID, n)
	for i := range out {
		id, err := readObjectID(r)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

// encodeBody writes the kind-tag byte followed by the kind-specific body.
func encodeBody(w io.Writer, body Body) error {
	kind := body.Kind()
	if _, err := w.Write([]byte{byte(kind)}); err != nil {
		return err
	}
	switch b := body.(type) {
	case ExecuteBody:
		if err := writeU32(w, b.Module); err != nil {
			return err
		}
		return writeU32(w, uint32(b.Timestep))
	case CancelExecuteBody:
		return writeU32(w, b.Module)
	case QuitBody:
		return nil
	case AddObjectBody:
		if err := writeObjectID(w, b.Object); err != nil {
			return err
		}
		return writeString(w, b.Port)
	case RemoveObjectBody:
		return writeObjectID(w, b.Object)
	case SetParameterBody:
		if err := writeU32(w, b.Module); err != nil {
			return err
		}
		if err := writeString(w, b.Name); err != nil {
			return err
		}
		return param.EncodeValue(w, b.Value)
	case AddParameterBody:
		if err := writeU32(w, b.Module); err != nil {
			return err
		}
		if err := writeString(w, b.Name); err != nil {
			return err
		}
		return param.EncodeType(w, b.Type)
	case ConnectPortsBody:
		return encodePortPair(w, b.FromModule, b.FromPort, b.ToModule, b.ToPort)
	case DisconnectPortsBody:
		return encodePortPair(w, b.FromModule, b.FromPort, b.ToModule, b.ToPort)
	case ModuleReadyBody:
		return writeU32(w, b.Module)
	case ComputationCompleteBody:
		if err := writeU32(w, b.Module); err != nil {
			return err
		}
		return writeObjectIDSeq(w, b.Objects)
	case ErrorBody:
		if err := writeU32(w, b.Module); err != nil {
			return err
		}
		return writeString(w, b.Text)
	case CustomBody:
		if err := writeU32(w, b.TypeID); err != nil {
			return err
		}
		return writeBytes(w, b.Data)
	default:
		return fmt.Errorf("message: encode: unhandled body type %T", body)
	}
}

func encodePortPair(w io.Writer, fromModule uint32, fromPort string, toModule uint32, toPort string) error {
	if err := writeU32(w, fromModule); err != nil {
		return err
	}
	if err := writeString(w, fromPort); err != nil {
		return err
	}
	if err := writeU32(w, toModule); err != nil {
		return err
	}
	return writeString(w, toPort)
}

func decodePortPair(r io.Reader) (fromModule uint32, fromPort string, toModule uint32, toPort string, err error) {
	if fromModule, err = readU32(r); err != nil {
		return
	}
	if fromPort, err = readString(r); err != nil {
		return
	}
	if toModule, err = readU32(r); err != nil {
		return
	}
	toPort, err = readString(r)
	return
}

// decodeBody reads a kind-tag byte then the matching body. Returns
// ErrUnknownKind for a tag this build does not recognize.
func decodeBody(r io.Reader) (Body, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, err
	}
	switch Kind(tag[0]) {
	case KindExecute:
		module, err := readU32(r)
		if err != nil {
			return nil, err
		}
		ts, err := readU32(r)
		if err != nil {
			return nil, err
		}
		return ExecuteBody{Module: module, Timestep: int32(ts)}, nil
	case KindCancelExecute:
		module, err := readU32(r)
		return CancelExecuteBody{Module: module}, err
	case KindQuit:
		return QuitBody{}, nil
	case KindAddObject:
		id, err := readObjectID(r)
		if err != nil {
			return nil, err
		}
		port, err := readString(r)
		return AddObjectBody{Object: id, Port: port}, err
	case KindRemoveObject:
		id, err := readObjectID(r)
		return RemoveObjectBody{Object: id}, err
	case KindSetParameter:
		module, err := readU32(r)
		if err != nil {
			return nil, err
		}
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		val, err := param.DecodeValue(r)
		return SetParameterBody{Module: module, Name: name, Value: val}, err
	case KindAddParameter:
		module, err := readU32(r)
		if err != nil {
			return nil, err
		}
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		ty, err := param.DecodeType(r)
		return AddParameterBody{Module: module, Name: name, Type: ty}, err
	case KindConnectPorts:
		from, fromPort, to, toPort, err := decodePortPair(r)
		return ConnectPortsBody{FromModule: from, FromPort: fromPort, ToModule: to, ToPort: toPort}, err
	case KindDisconnectPorts:
		from, fromPort, to, toPort, err := decodePortPair(r)
		return DisconnectPortsBody{FromModule: from, FromPort: fromPort, ToModule: to, ToPort: toPort}, err
	case KindModuleReady:
		module, err := readU32(r)
		return ModuleReadyBody{Module: module}, err
	case KindComputationComplete:
		module, err := readU32(r)
		if err != nil {
			return nil, err
		}
		objects, err := readObjectIDSeq(r)
		return ComputationCompleteBody{Module: module, Objects: objects}, err
	case KindError:
		module, err := readU32(r)
		if err != nil {
			return nil, err
		}
		text, err := readString(r)
		return ErrorBody{Module: module, Text: text}, err
	case KindCustom:
		typeID, err := readU32(r)
		if err != nil {
			return nil, err
		}
		data, err := readBytes(r)
		return CustomBody{TypeID: typeID, Data: data}, err
	default:
		return nil, ErrUnknownKind
	}
}

// EncodeMessage serializes m's fields in declaration order: id (16
// bytes), sender (u32), recipient (u32), priority (u8), kind-tag (u8) +
// kind-body, timestamp (u64 nanoseconds since epoch).
func EncodeMessage(w io.Writer, m *Message) error {
	idBytes := m.ID.bytes()
	if _, err := w.Write(idBytes[:]); err != nil {
		return err
	}
	if err := writeU32(w, m.Sender); err != nil {
		return err
	}
	if err := writeU32(w, m.Recipient); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(m.Priority)}); err != nil {
		return err
	}
	if err := encodeBody(w, m.Body); err != nil {
		return err
	}
	return writeU64(w, uint64(m.Timestamp.UnixNano()))
}

// DecodeMessage reads a Message written by EncodeMessage.
func DecodeMessage(r io.Reader) (*Message, error) {
	var idBytes [16]byte
	if _, err := io.ReadFull(r, idBytes[:]); err != nil {
		return nil, err
	}
	sender, err := readU32(r)
	if err != nil {
		return nil, err
	}
	recipient, err := readU32(r)
	if err != nil {
		return nil, err
	}
	var prio [1]byte
	if _, err := io.ReadFull(r, prio[:]); err != nil {
		return nil, err
	}
	body, err := decodeBody(r)
	if err != nil {
		return nil, err
	}
	nanos, err := readU64(r)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        idFromBytes(idBytes),
		Sender:    sender,
		Recipient: recipient,
		Priority:  Priority(prio[0]),
		Body:      body,
		Timestamp: time.Unix(0, int64(nanos)).UTC(),
	}, nil
}

// Encode serializes an envelope as <Message><payload length u64 LE><payload bytes>.
func Encode(e *Envelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeMessage(&buf, e.Message); err != nil {
		return nil, fmt.Errorf("message: encode: %w", err)
	}
	if err := writeU64(&buf, uint64(len(e.Payload))); err != nil {
		return nil, fmt.Errorf("message: encode: %w", err)
	}
	if _, err := buf.Write(e.Payload); err != nil {
		return nil, fmt.Errorf("message: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reconstructs an envelope from bytes produced by Encode.
func Decode(data []byte) (*Envelope, error) {
	r := bytes.NewReader(data)
	msg, err := DecodeMessage(r)
	if err != nil {
		return nil, fmt.Errorf("message: decode: %w", err)
	}
	length, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("message: decode: %w", err)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("message: decode: %w", err)
	}
	return &Envelope{Message: msg, Payload: payload}, nil
}

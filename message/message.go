// Package message implements the tagged control/data message that flows
// between modules, the per-module local delivery queue, the router that
// dispatches envelopes locally or across the cluster transport, and the
// stable binary wire codec used whenever an envelope crosses a process
// boundary.
package message

import (
	"time"

	"vispipe.io/engine/object"
	"vispipe.io/engine/param"
)

// Priority is carried on every message and in its wire encoding. Queue
// delivers in FIFO order and does not reorder messages by Priority.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Kind tags which concrete Body variant a Message carries.
type Kind uint8

const (
	KindExecute Kind = iota
	KindCancelExecute
	KindQuit
	KindAddObject
	KindRemoveObject
	KindSetParameter
	KindAddParameter
	KindConnectPorts
	KindDisconnectPorts
	KindModuleReady
	KindComputationComplete
	KindError
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindExecute:
		return "execute"
	case KindCancelExecute:
		return "cancel_execute"
	case KindQuit:
		return "quit"
	case KindAddObject:
		return "add_object"
	case KindRemoveObject:
		return "remove_object"
	case KindSetParameter:
		return "set_parameter"
	case KindAddParameter:
		return "add_parameter"
	case KindConnectPorts:
		return "connect_ports"
	case KindDisconnectPorts:
		return "disconnect_ports"
	case KindModuleReady:
		return "module_ready"
	case KindComputationComplete:
		return "computation_complete"
	case KindError:
		return "error"
	default:
		return "custom"
	}
}

// Body is implemented by every concrete message payload variant.
type Body interface {
	Kind() Kind
}

type ExecuteBody struct {
	Module   uint32
	Timestep int32
}

func (ExecuteBody) Kind() Kind { return KindExecute }

type CancelExecuteBody struct {
	Module uint32
}

func (CancelExecuteBody) Kind() Kind { return KindCancelExecute }

type QuitBody struct{}

func (QuitBody) Kind() Kind { return KindQuit }

type AddObjectBody struct {
	Object object.ID
	Port   string
}

func (AddObjectBody) Kind() Kind { return KindAddObject }

type RemoveObjectBody struct {
	Object object.ID
}

func (RemoveObjectBody) Kind() Kind { return KindRemoveObject }

type SetParameterBody struct {
	Module uint32
	Name   string
	Value  param.Value
}

func (SetParameterBody) Kind() Kind { return KindSetParameter }

type AddParameterBody struct {
	Module uint32
	Name   string
	Type   param.Type
}

func (AddParameterBody) Kind() Kind { return KindAddParameter }

type ConnectPortsBody struct {
	FromModule uint32
	FromPort   string
	ToModule   uint32
	ToPort     string
}

func (ConnectPortsBody) Kind() Kind { return KindConnectPorts }

type DisconnectPortsBody struct {
	FromModule uint32
	FromPort   string
	ToModule   uint32
	ToPort     string
}

func (DisconnectPortsBody) Kind() Kind { return KindDisconnectPorts }

type ModuleReadyBody struct {
	Module uint32
}

func (ModuleReadyBody) Kind() Kind { return KindModuleReady }

type ComputationCompleteBody struct {
	Module  uint32
	Objects []object.ID
}

func (ComputationCompleteBody) Kind() Kind { return KindComputationComplete }

type ErrorBody struct {
	Module uint32
	Text   string
}

func (ErrorBody) Kind() Kind { return KindError }

type CustomBody struct {
	TypeID uint32
	Data   []byte
}

func (CustomBody) Kind() Kind { return KindCustom }

// SystemModule is the reserved module id meaning "no sender" or "system
// origin". BroadcastRecipient is the reserved recipient meaning "every
// registered module and every other rank".
const (
	SystemModule       uint32 = 0
	BroadcastRecipient uint32 = 0
)

// Message is one control or data event addressed from sender to
// recipient (0 = broadcast).
type Message struct {
	ID        ID
	Sender    uint32
	Recipient uint32
	Priority  Priority
	Body      Body
	Timestamp time.Time
}

// New constructs a Message with a fresh id, normal priority and the
// current time.
func New(sender, recipient uint32, body Body) *Message {
	return &Message{
		ID:        NewID(),
		Sender:    sender,
		Recipient: recipient,
		Priority:  PriorityNormal,
		Body:      body,
		Timestamp: time.Now(),
	}
}

// WithPriority returns m with Priority set, for chaining at construction.
func (m *Message) WithPriority(p Priority) *Message {
	m.Priority = p
	return m
}

// IsBroadcast reports whether the message targets every module/rank.
func (m *Message) IsBroadcast() bool {
	return m.Recipient == BroadcastRecipient
}

// Kind returns the tag of the message's body.
func (m *Message) Kind() Kind {
	if m.Body == nil {
		return KindQuit
	}
	return m.Body.Kind()
}

// Envelope pairs a Message with an optional bulk payload: serialized
// object bytes, serialized parameter bytes, or opaque bytes. A nil/empty
// Payload represents "none".
type Envelope struct {
	Message *Message
	Payload []byte
}

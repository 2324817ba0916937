package transport

import (
	"encoding/json"
	"time"
)

// StatusMessageType identifies the kind of JSON message exchanged between
// the engine's status broadcaster and a connected GUI consumer.
type StatusMessageType string

const (
	// Engine -> GUI messages
	StatusMsgWorkflowStarted StatusMessageType = "workflow_started"
	StatusMsgPhaseChanged    StatusMessageType = "phase_changed"
	StatusMsgTaskCompleted   StatusMessageType = "task_completed"
	StatusMsgProgress        StatusMessageType = "progress"
	StatusMsgError           StatusMessageType = "error"
	StatusMsgStatusResponse  StatusMessageType = "status_response"
	StatusMsgPong            StatusMessageType = "pong"

	// GUI -> Engine messages
	StatusMsgStatusRequest StatusMessageType = "status_request"
	StatusMsgCancel        StatusMessageType = "cancel"
	StatusMsgPing          StatusMessageType = "ping"
)

// StatusMessage is the wire shape for every message exchanged over a GUI
// status connection.
type StatusMessage struct {
	ID         string                 `json:"id,omitempty"`
	Type       StatusMessageType      `json:"type"`
	WorkflowID string                 `json:"workflow_id,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// NewStatusMessage builds a StatusMessage for immediate use with SetPayload.
func NewStatusMessage(msgType StatusMessageType, workflowID string) *StatusMessage {
	return &StatusMessage{
		Type:       msgType,
		WorkflowID: workflowID,
		Timestamp:  time.Now(),
		Payload:    make(map[string]interface{}),
	}
}

// JSON serializes the message to JSON bytes.
func (m *StatusMessage) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// ParseStatusMessage deserializes a JSON status message.
func ParseStatusMessage(data []byte) (*StatusMessage, error) {
	var msg StatusMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SetPayload marshals payload into m.Payload via a JSON round trip so
// callers can pass a typed struct.
func (m *StatusMessage) SetPayload(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &m.Payload)
}

// PhaseChangedPayload reports a workflow's status transition.
type PhaseChangedPayload struct {
	WorkflowID string `json:"workflow_id"`
	FromPhase  string `json:"from"`
	ToPhase    string `json:"to"`
	Reason     string `json:"reason,omitempty"`
}

// TaskCompletedPayload reports a single task's completion.
type TaskCompletedPayload struct {
	WorkflowID string   `json:"workflow_id"`
	TaskID     uint64   `json:"task_id"`
	ModuleID   uint32   `json:"module_id"`
	Success    bool     `json:"success"`
	Error      string   `json:"error,omitempty"`
	OutputIDs  []string `json:"output_ids,omitempty"`
	ElapsedMS  int64    `json:"elapsed_ms"`
}

// ProgressPayload reports coarse progress for a running workflow.
type ProgressPayload struct {
	WorkflowID     string  `json:"workflow_id"`
	TasksCompleted int     `json:"tasks_completed"`
	TasksTotal     int     `json:"tasks_total"`
	Percent        float64 `json:"percent"`
}

// ErrorPayload reports a workflow-level failure.
type ErrorPayload struct {
	WorkflowID string `json:"workflow_id"`
	Error      string `json:"error"`
}

// StatusResponsePayload answers a status_request.
type StatusResponsePayload struct {
	WorkflowID     string  `json:"workflow_id"`
	Phase          string  `json:"phase"`
	TasksCompleted int     `json:"tasks_completed"`
	TasksTotal     int     `json:"tasks_total"`
	Percent        float64 `json:"percent"`
}

// CancelPayload requests cancellation of a running workflow.
type CancelPayload struct {
	WorkflowID string `json:"workflow_id"`
	Reason     string `json:"reason,omitempty"`
}

// StatusRequestPayload asks for the current state of a workflow.
type StatusRequestPayload struct {
	WorkflowID string `json:"workflow_id"`
}

// GetCancelPayload extracts a CancelPayload from m.Payload.
func (m *StatusMessage) GetCancelPayload() (*CancelPayload, error) {
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, err
	}
	var payload CancelPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if payload.WorkflowID == "" {
		payload.WorkflowID = m.WorkflowID
	}
	return &payload, nil
}

// GetStatusRequestPayload extracts a StatusRequestPayload from m.Payload.
func (m *StatusMessage) GetStatusRequestPayload() (*StatusRequestPayload, error) {
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, err
	}
	var payload StatusRequestPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if payload.WorkflowID == "" {
		payload.WorkflowID = m.WorkflowID
	}
	return &payload, nil
}

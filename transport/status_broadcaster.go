package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// StatusBroadcasterConfig configures a StatusBroadcaster.
type StatusBroadcasterConfig struct {
	// PingInterval is how often connected clients are pinged to detect
	// dead connections.
	PingInterval time.Duration

	// SendBufferSize bounds how many queued messages a slow client can
	// accumulate; further messages to it are dropped while it is full.
	SendBufferSize int

	Logger *logrus.Entry
}

// DefaultStatusBroadcasterConfig returns a StatusBroadcasterConfig with
// sensible defaults.
func DefaultStatusBroadcasterConfig() StatusBroadcasterConfig {
	return StatusBroadcasterConfig{
		PingInterval:   30 * time.Second,
		SendBufferSize: 64,
	}
}

// StatusRequestHandler answers a status_request for a workflow id.
type StatusRequestHandler func(workflowID string) (*StatusResponsePayload, error)

// CancelHandler handles an incoming cancel request for a workflow id.
type CancelHandler func(workflowID, reason string) error

// StatusBroadcaster serves a WebSocket endpoint that graphical workflow
// editors and status displays connect to, and pushes phase/progress/task
// events out to every connected client. It holds no scheduler state of
// its own; callers feed it events as they happen and register handlers
// for the few commands a GUI can send back (status_request, cancel).
type StatusBroadcaster struct {
	config   StatusBroadcasterConfig
	logger   *logrus.Entry
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*statusClient]struct{}

	onStatusRequest StatusRequestHandler
	onCancel        CancelHandler
}

type statusClient struct {
	conn     *websocket.Conn
	send     chan *StatusMessage
	closedMu sync.Mutex
	closed   bool
}

// NewStatusBroadcaster creates a StatusBroadcaster ready to be mounted as
// an http.Handler.
func NewStatusBroadcaster(config StatusBroadcasterConfig) *StatusBroadcaster {
	if config.Logger == nil {
		config.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 64
	}
	return &StatusBroadcaster{
		config:  config,
		logger:  config.Logger.WithField("component", "status_broadcaster"),
		clients: make(map[*statusClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// OnStatusRequest registers the handler invoked when a GUI client asks
// for a workflow's current status.
func (b *StatusBroadcaster) OnStatusRequest(h StatusRequestHandler) {
	b.onStatusRequest = h
}

// OnCancel registers the handler invoked when a GUI client requests
// cancellation of a workflow.
func (b *StatusBroadcaster) OnCancel(h CancelHandler) {
	b.onCancel = h
}

// ServeHTTP upgrades the connection to a WebSocket and begins serving it.
// Mount this at the engine's GUI endpoint, e.g. "/v1/status".
func (b *StatusBroadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &statusClient{
		conn: conn,
		send: make(chan *StatusMessage, b.config.SendBufferSize),
	}

	b.mu.Lock()
	b.clients[client] = struct{}{}
	b.mu.Unlock()

	go b.writeLoop(client)
	go b.readLoop(client)
}

// ClientCount reports how many GUI clients are currently connected.
func (b *StatusBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *StatusBroadcaster) removeClient(c *statusClient) {
	b.mu.Lock()
	_, present := b.clients[c]
	delete(b.clients, c)
	b.mu.Unlock()
	if !present {
		return
	}

	c.closedMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.closedMu.Unlock()
	c.conn.Close()
}

func (b *StatusBroadcaster) writeLoop(c *statusClient) {
	ticker := time.NewTicker(b.config.PingInterval)
	defer ticker.Stop()
	defer b.removeClient(c)

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			data, err := msg.JSON()
			if err != nil {
				b.logger.WithError(err).Warn("marshal status message failed")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

func (b *StatusBroadcaster) readLoop(c *statusClient) {
	defer b.removeClient(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := ParseStatusMessage(data)
		if err != nil {
			b.logger.WithError(err).Warn("failed to parse status message")
			continue
		}
		b.handleIncoming(c, msg)
	}
}

func (b *StatusBroadcaster) handleIncoming(c *statusClient, msg *StatusMessage) {
	switch msg.Type {
	case StatusMsgPing:
		b.enqueue(c, NewStatusMessage(StatusMsgPong, ""))
	case StatusMsgStatusRequest:
		req, err := msg.GetStatusRequestPayload()
		if err != nil || b.onStatusRequest == nil {
			return
		}
		resp, err := b.onStatusRequest(req.WorkflowID)
		if err != nil {
			errMsg := NewStatusMessage(StatusMsgError, req.WorkflowID)
			errMsg.SetPayload(ErrorPayload{WorkflowID: req.WorkflowID, Error: err.Error()})
			b.enqueue(c, errMsg)
			return
		}
		out := NewStatusMessage(StatusMsgStatusResponse, req.WorkflowID)
		out.SetPayload(resp)
		b.enqueue(c, out)
	case StatusMsgCancel:
		req, err := msg.GetCancelPayload()
		if err != nil || b.onCancel == nil {
			return
		}
		if err := b.onCancel(req.WorkflowID, req.Reason); err != nil {
			errMsg := NewStatusMessage(StatusMsgError, req.WorkflowID)
			errMsg.SetPayload(ErrorPayload{WorkflowID: req.WorkflowID, Error: err.Error()})
			b.enqueue(c, errMsg)
		}
	default:
		b.logger.WithField("type", msg.Type).Debug("no handler for status message type")
	}
}

func (b *StatusBroadcaster) enqueue(c *statusClient, msg *StatusMessage) {
	select {
	case c.send <- msg:
	default:
		b.logger.Warn("status client send buffer full, dropping message")
	}
}

// broadcast pushes msg to every connected client, dropping it for any
// client whose send buffer is full rather than blocking the caller.
func (b *StatusBroadcaster) broadcast(msg *StatusMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range b.clients {
		b.enqueue(c, msg)
	}
}

// PhaseChanged notifies every connected GUI client of a workflow status
// transition.
func (b *StatusBroadcaster) PhaseChanged(workflowID, from, to, reason string) {
	msg := NewStatusMessage(StatusMsgPhaseChanged, workflowID)
	msg.SetPayload(PhaseChangedPayload{WorkflowID: workflowID, FromPhase: from, ToPhase: to, Reason: reason})
	b.broadcast(msg)
}

// TaskCompleted notifies every connected GUI client that a task finished.
func (b *StatusBroadcaster) TaskCompleted(workflowID string, taskID uint64, moduleID uint32, success bool, errText string, outputIDs []string, elapsed time.Duration) {
	msg := NewStatusMessage(StatusMsgTaskCompleted, workflowID)
	msg.SetPayload(TaskCompletedPayload{
		WorkflowID: workflowID,
		TaskID:     taskID,
		ModuleID:   moduleID,
		Success:    success,
		Error:      errText,
		OutputIDs:  outputIDs,
		ElapsedMS:  elapsed.Milliseconds(),
	})
	b.broadcast(msg)
}

// Progress notifies every connected GUI client of coarse task-completion
// progress for a workflow.
func (b *StatusBroadcaster) Progress(workflowID string, completed, total int) {
	percent := 0.0
	if total > 0 {
		percent = float64(completed) / float64(total) * 100
	}
	msg := NewStatusMessage(StatusMsgProgress, workflowID)
	msg.SetPayload(ProgressPayload{WorkflowID: workflowID, TasksCompleted: completed, TasksTotal: total, Percent: percent})
	b.broadcast(msg)
}

// Error notifies every connected GUI client of a workflow-level failure.
func (b *StatusBroadcaster) Error(workflowID string, err error) {
	msg := NewStatusMessage(StatusMsgError, workflowID)
	msg.SetPayload(ErrorPayload{WorkflowID: workflowID, Error: err.Error()})
	b.broadcast(msg)
}

// WorkflowStarted notifies every connected GUI client that a workflow
// began executing.
func (b *StatusBroadcaster) WorkflowStarted(workflowID string, tasksTotal int) {
	msg := NewStatusMessage(StatusMsgWorkflowStarted, workflowID)
	msg.SetPayload(ProgressPayload{WorkflowID: workflowID, TasksCompleted: 0, TasksTotal: tasksTotal})
	b.broadcast(msg)
}

// Close disconnects every connected client.
func (b *StatusBroadcaster) Close() error {
	b.mu.Lock()
	clients := make([]*statusClient, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	for _, c := range clients {
		b.removeClient(c)
	}
	return nil
}

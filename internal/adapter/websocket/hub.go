package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/aurahealth/internal/domain"
	"github.com/pscheid92/aurahealth/internal/session"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second

	MessageState    = "state"
	MessageNavigate = "navigate"
)

var ErrHubStopped = errors.New("session stream stopped")

// Message is the JSON frame sent to stream clients.
type Message struct {
	Type     string               `json:"type"`
	State    *domain.SessionState `json:"state,omitempty"`
	Decision session.Decision     `json:"decision,omitempty"`
	To       string               `json:"to,omitempty"`
}

// Recorder observes hub activity.
type Recorder interface {
	ClientConnected()
	ClientDisconnected()
	MessageQueued(kind string)
	SlowClientDropped()
}

type nopRecorder struct{}

func (nopRecorder) ClientConnected()     {}
func (nopRecorder) ClientDisconnected()  {}
func (nopRecorder) MessageQueued(string) {}
func (nopRecorder) SlowClientDropped()   {}

type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	connection   *websocket.Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseHubCmd
	connection *websocket.Conn
}

type publishCmd struct {
	baseHubCmd
	kind string
	data []byte
}

type clientCountCmd struct {
	baseHubCmd
	replyChannel chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub fans session state snapshots out to WebSocket clients. One goroutine
// owns the client set; everything else talks to it through a command channel.
// Newly registered clients receive the latest state immediately.
type Hub struct {
	cmdCh      chan hubCmd
	clock      clockwork.Clock
	recorder   Recorder
	clients    map[*websocket.Conn]*clientWriter
	latest     []byte
	maxClients int
	done       chan struct{}
}

var _ domain.Navigator = (*Hub)(nil)

type Option func(*Hub)

func WithClock(clock clockwork.Clock) Option {
	return func(h *Hub) { h.clock = clock }
}

func WithRecorder(r Recorder) Option {
	return func(h *Hub) { h.recorder = r }
}

func NewHub(maxClients int, opts ...Option) *Hub {
	h := &Hub{
		cmdCh:      make(chan hubCmd, 256),
		clock:      clockwork.NewRealClock(),
		recorder:   nopRecorder{},
		clients:    make(map[*websocket.Conn]*clientWriter),
		maxClients: maxClients,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.run()
	return h
}

// Register adds a client. It fails when the hub is full or stopped; the
// connection is closed in both cases.
func (h *Hub) Register(conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	if !h.send(registerCmd{connection: conn, errorChannel: errCh}) {
		_ = conn.Close()
		return ErrHubStopped
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-h.done:
		_ = conn.Close()
		return ErrHubStopped
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

func (h *Hub) Unregister(conn *websocket.Conn) {
	h.send(unregisterCmd{connection: conn})
}

// Publish queues a state snapshot for every client. It is meant to be
// passed to Bootstrapper.Subscribe.
func (h *Hub) Publish(state domain.SessionState) {
	h.publish(MessageState, Message{Type: MessageState, State: &state, Decision: session.Gate(state)})
}

// NavigateToLogin tells every client to go to the sign-in page.
func (h *Hub) NavigateToLogin() {
	h.publish(MessageNavigate, Message{Type: MessageNavigate, To: "/login"})
}

// ClientCount returns the number of connected clients, or -1 on timeout.
func (h *Hub) ClientCount() int {
	replyCh := make(chan int, 1)
	if !h.send(clientCountCmd{replyChannel: replyCh}) {
		return 0
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-h.done:
		return 0
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every client with a close frame and waits for the hub
// goroutine to exit.
func (h *Hub) Stop() {
	if !h.send(stopCmd{}) {
		return
	}

	timeout := h.clock.NewTimer(stopTimeout)
	defer timeout.Stop()

	select {
	case <-h.done:
		slog.Info("Session stream stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Session stream stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (h *Hub) publish(kind string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal stream message", "type", kind, "error", err)
		return
	}
	h.send(publishCmd{kind: kind, data: data})
}

func (h *Hub) send(cmd hubCmd) bool {
	select {
	case h.cmdCh <- cmd:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) run() {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Session stream panic recovered", "panic", r)
			h.closeAllClients("session stream panic")
		}
	}()

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			h.handleRegister(c)
		case unregisterCmd:
			h.handleUnregister(c.connection)
		case publishCmd:
			h.handlePublish(c)
		case clientCountCmd:
			c.replyChannel <- len(h.clients)
		case stopCmd:
			slog.Info("Session stream shutting down", "clients", len(h.clients))
			h.closeAllClients("Server shutting down")
			return
		default:
			slog.Warn("Session stream received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	if len(h.clients) >= h.maxClients {
		slog.Warn("Rejecting stream client: max clients reached", "max_clients", h.maxClients)
		_ = c.connection.Close()
		c.errorChannel <- fmt.Errorf("max stream clients (%d) reached", h.maxClients)
		return
	}

	cw := newClientWriter(c.connection, h.clock)
	h.clients[c.connection] = cw
	h.recorder.ClientConnected()
	if h.latest != nil && cw.enqueue(h.latest) {
		h.recorder.MessageQueued(MessageState)
	}

	slog.Debug("Stream client registered", "total_clients", len(h.clients))
	c.errorChannel <- nil
}

func (h *Hub) handleUnregister(conn *websocket.Conn) {
	cw, exists := h.clients[conn]
	if !exists {
		return
	}

	cw.stop()
	delete(h.clients, conn)
	h.recorder.ClientDisconnected()
	slog.Debug("Stream client unregistered", "remaining_clients", len(h.clients))
}

func (h *Hub) handlePublish(c publishCmd) {
	if c.kind == MessageState {
		h.latest = c.data
	}

	var slow []*websocket.Conn
	for conn, cw := range h.clients {
		if cw.enqueue(c.data) {
			h.recorder.MessageQueued(c.kind)
			continue
		}
		slow = append(slow, conn)
	}

	for _, conn := range slow {
		slog.Warn("Disconnecting slow stream client")
		h.recorder.SlowClientDropped()
		h.handleUnregister(conn)
	}
}

func (h *Hub) closeAllClients(reason string) {
	for conn, cw := range h.clients {
		cw.stopGraceful(reason)
		delete(h.clients, conn)
		h.recorder.ClientDisconnected()
	}
}

package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log15 "github.com/inconshreveable/log15/v3"
	"github.com/jpillora/backoff"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// MaxReconnectAttempts caps the reconnect schedule. After this many
	// consecutive failures the connection stays Disconnected for good and
	// consumers see the persistent disconnected state instead of endless
	// background retries.
	MaxReconnectAttempts = 5
)

var (
	ErrClosed        = errors.New("connection closed")
	ErrNotConnected  = errors.New("not connected")
	ErrSessionActive = errors.New("connection already active for another session")
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// controlFrame is a client-to-server subscription command.
type controlFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// pushFrame is a server-to-client message addressed to one topic.
type pushFrame struct {
	Topic string          `json:"topic"`
	Body  json.RawMessage `json:"body"`
}

// StateFunc observes connection state transitions.
type StateFunc func(State)

// Conn maintains at most one live push channel for one session. It owns the
// connect/disconnect lifecycle and the reconnect schedule; topic fan-out is
// delegated to the Registry it carries.
type Conn struct {
	baseURL string
	log     log15.Logger
	dialer  *websocket.Dialer

	mu          sync.Mutex
	state       State
	sessionCode string
	authToken   string
	ws          *websocket.Conn
	send        chan []byte
	pumpDone    chan struct{}
	closed      bool

	attempts   int
	retry      *backoff.Backoff
	retryTimer *time.Timer

	stateFuncs []StateFunc

	noteMu        sync.Mutex
	noteCond      *sync.Cond
	pending       []State
	noteQuit      bool
	notifyStopped chan struct{}

	registry *Registry
}

// NewConn creates a connection manager for the push endpoint at baseURL
// (for example "ws://localhost:8080/ws"). No network activity happens until
// Connect is called.
func NewConn(baseURL string, logger log15.Logger) *Conn {
	c := &Conn{
		baseURL: baseURL,
		log:     logger.New("component", "ws"),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		retry: &backoff.Backoff{
			Min:    3 * time.Second,
			Max:    30 * time.Second,
			Factor: 2,
			Jitter: true,
		},
		notifyStopped: make(chan struct{}),
	}
	c.noteCond = sync.NewCond(&c.noteMu)
	c.registry = newRegistry(c, c.log)
	go c.notifyLoop()
	return c
}

// notifyLoop delivers state transitions to observers in order, outside the
// connection lock. It drains any queued transitions before exiting so the
// terminal Disconnected is always observed.
func (c *Conn) notifyLoop() {
	defer close(c.notifyStopped)
	for {
		c.noteMu.Lock()
		for len(c.pending) == 0 && !c.noteQuit {
			c.noteCond.Wait()
		}
		if len(c.pending) == 0 {
			c.noteMu.Unlock()
			return
		}
		s := c.pending[0]
		c.pending = c.pending[1:]
		c.noteMu.Unlock()

		c.mu.Lock()
		fns := make([]StateFunc, len(c.stateFuncs))
		copy(fns, c.stateFuncs)
		c.mu.Unlock()
		for _, fn := range fns {
			fn(s)
		}
	}
}

// Registry returns the topic subscription registry bound to this connection.
func (c *Conn) Registry() *Registry {
	return c.registry
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the channel is live.
func (c *Conn) Connected() bool {
	return c.State() == Connected
}

// OnStateChange registers an observer for state transitions. Observers are
// invoked synchronously, outside the connection lock, in registration order.
func (c *Conn) OnStateChange(fn StateFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateFuncs = append(c.stateFuncs, fn)
}

// Connect opens the channel for a session. It is idempotent: calling it again
// while connected or connecting for the same session is a no-op. A successful
// dial resets the reconnect attempt counter.
func (c *Conn) Connect(ctx context.Context, sessionCode, authToken string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != Disconnected {
		same := c.sessionCode == sessionCode
		c.mu.Unlock()
		if same {
			return nil
		}
		return ErrSessionActive
	}
	c.sessionCode = sessionCode
	c.authToken = authToken
	c.setStateLocked(Connecting)
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		c.mu.Lock()
		c.setStateLocked(Disconnected)
		c.mu.Unlock()
		c.scheduleReconnect()
		return err
	}
	return nil
}

// Disconnect tears the channel down. It is safe to call multiple times, never
// fails, cancels any pending reconnect timer, and is terminal for this Conn:
// a session rejoin builds a fresh Conn.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.closed = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	ws := c.ws
	c.ws = nil
	c.setStateLocked(Disconnected)
	c.mu.Unlock()

	c.noteMu.Lock()
	c.noteQuit = true
	c.noteMu.Unlock()
	c.noteCond.Signal()

	if ws != nil {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		ws.Close()
	}
}

// dial performs one connection attempt and, on success, starts the pumps and
// replays every registered subscription before any message is delivered.
func (c *Conn) dial(ctx context.Context) error {
	c.mu.Lock()
	sessionCode := c.sessionCode
	authToken := c.authToken
	c.mu.Unlock()

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid push endpoint %q: %w", c.baseURL, err)
	}
	q := u.Query()
	q.Set("session", sessionCode)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if authToken != "" {
		header.Set("Authorization", "Bearer "+authToken)
	}

	ws, _, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return ErrClosed
	}
	c.ws = ws
	c.send = make(chan []byte, 256)
	c.pumpDone = make(chan struct{})
	c.attempts = 0
	c.retry.Reset()
	c.setStateLocked(Connected)
	send := c.send
	done := c.pumpDone
	c.mu.Unlock()

	c.log.Info("connected", "session", sessionCode)

	go c.writePump(ws, send, done)
	go c.readPump(ws, done)

	// Re-issue every registered subscription against the new channel so a
	// transient blip never silently stops delivery to existing consumers.
	c.registry.resubscribeAll()
	return nil
}

// enqueue hands a frame to the current write pump. Returns ErrNotConnected
// when no channel is live.
func (c *Conn) enqueue(data []byte) error {
	c.mu.Lock()
	if c.state != Connected || c.send == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	send := c.send
	c.mu.Unlock()

	select {
	case send <- data:
		return nil
	default:
		c.log.Warn("send buffer full, dropping frame")
		return ErrNotConnected
	}
}

// sendControl marshals and queues a subscribe/unsubscribe command.
func (c *Conn) sendControl(action, topic string) error {
	data, err := json.Marshal(controlFrame{Action: action, Topic: topic})
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// readPump pumps inbound frames to the registry until the connection drops.
func (c *Conn) readPump(ws *websocket.Conn, done chan struct{}) {
	defer c.handleDrop(ws, done)

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Error("read failed", "err", err)
			}
			return
		}

		var frame pushFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			// One broken frame must not disturb the channel or other
			// consumers.
			c.log.Error("dropping unparseable frame", "err", err)
			continue
		}
		c.registry.dispatch(frame.Topic, frame.Body)
	}
}

// writePump owns all writes to one websocket connection.
func (c *Conn) writePump(ws *websocket.Conn, send chan []byte, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case <-done:
			return
		case message := <-send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleDrop runs when the read pump exits. Unless Disconnect was called it
// transitions to Disconnected and schedules a reconnect attempt.
func (c *Conn) handleDrop(ws *websocket.Conn, done chan struct{}) {
	close(done)
	ws.Close()

	c.mu.Lock()
	if c.closed || c.ws != ws {
		c.mu.Unlock()
		return
	}
	c.ws = nil
	c.send = nil
	c.setStateLocked(Disconnected)
	c.mu.Unlock()

	c.scheduleReconnect()
}

// scheduleReconnect arms the next reconnect attempt, giving up after
// MaxReconnectAttempts consecutive failures.
func (c *Conn) scheduleReconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.attempts++
	if c.attempts > MaxReconnectAttempts {
		c.mu.Unlock()
		c.log.Error("max reconnect attempts reached, giving up", "attempts", MaxReconnectAttempts)
		return
	}
	attempt := c.attempts
	delay := c.retry.Duration()
	c.retryTimer = time.AfterFunc(delay, c.redial)
	c.mu.Unlock()

	c.log.Warn("connection lost, scheduling reconnect", "attempt", attempt, "delay", delay)
}

// redial runs one scheduled reconnect attempt.
func (c *Conn) redial() {
	c.mu.Lock()
	if c.closed || c.state == Connected {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(Connecting)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	if err := c.dial(ctx); err != nil {
		c.log.Error("reconnect attempt failed", "err", err)
		c.mu.Lock()
		c.setStateLocked(Disconnected)
		c.mu.Unlock()
		c.scheduleReconnect()
	}
}

// setStateLocked updates the state and queues the transition for observers.
// Callers must hold c.mu; noteMu is always taken after c.mu, never the other
// way around.
func (c *Conn) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.noteMu.Lock()
	c.pending = append(c.pending, s)
	c.noteMu.Unlock()
	c.noteCond.Signal()
}

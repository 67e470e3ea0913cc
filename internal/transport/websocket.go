package transport

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/andrewlidong/beam-messenger/internal/retry"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsPingInterval    = 15 * time.Second
	wsPongWait        = 45 * time.Second
	wsWriteWait       = 10 * time.Second

	sendBufferSize  = 64
	eventBufferSize = 256
)

// Config configures a websocket connection.
type Config struct {
	// URL is the websocket endpoint.
	URL string

	// Token is the auth token, passed as a query parameter on dial.
	Token string

	// HandshakeTimeout bounds the dial.
	HandshakeTimeout time.Duration

	// Reconnect controls redial pacing after transient failures.
	Reconnect retry.Config

	// Logger receives diagnostic records. Nil disables logging.
	Logger *slog.Logger
}

// Conn is the websocket implementation of Transport. A single reader
// goroutine feeds the events channel, preserving per-connection FIFO
// order; a single writer goroutine drains the send queue, so frames
// enqueued during a redial are flushed once the connection reopens.
type Conn struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	observers []func(State)
	started   bool
	closed    bool

	events chan Frame
	sendq  chan Frame

	ctx    context.Context
	cancel context.CancelFunc
}

var _ Transport = (*Conn)(nil)

// NewConn creates a websocket transport. Connect must be called to start it.
func NewConn(cfg Config) *Conn {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Reconnect.InitialDelay <= 0 {
		cfg.Reconnect = retry.DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		cfg:    cfg,
		logger: logger,
		state:  StateUninitialized,
		events: make(chan Frame, eventBufferSize),
		sendq:  make(chan Frame, sendBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connect starts the dial/read/redial loop. Calling it twice is a no-op.
func (c *Conn) Connect() {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.run()
}

// Send enqueues a frame. It fails only when the transport is closed or the
// send queue is saturated; delivery is confirmed by the peer's reply, not
// by this call.
func (c *Conn) Send(frame Frame) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return NewError(CodeClosed, "send on closed transport", nil)
	}

	select {
	case c.sendq <- frame:
		return nil
	default:
		return NewError(CodeConnection, "send queue full", nil)
	}
}

// Events returns the ordered inbound frame stream.
func (c *Conn) Events() <-chan Frame {
	return c.events
}

// OnStateChange registers a state observer.
func (c *Conn) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close tears the connection down and closes the events channel.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	c.mu.Unlock()

	c.cancel()
	if !started {
		// The run loop would normally close the events channel.
		close(c.events)
	}
	c.setState(StateClosed)
	return nil
}

func (c *Conn) run() {
	defer close(c.events)

	attempt := 0
	for {
		if c.ctx.Err() != nil {
			return
		}

		c.setState(StateConnecting)
		ws, err := c.dial()
		if err != nil {
			attempt++
			c.setState(StateErrored)
			c.logger.Warn("dial failed", "url", c.cfg.URL, "attempt", attempt, "error", err)
			if c.cfg.Reconnect.MaxAttempts > 0 && attempt >= c.cfg.Reconnect.MaxAttempts {
				c.logger.Error("giving up after max reconnect attempts", "attempts", attempt)
				c.Close()
				return
			}
			if !c.sleep(c.cfg.Reconnect.Delay(attempt)) {
				return
			}
			continue
		}

		attempt = 0
		c.setState(StateOpen)
		c.logger.Info("connection opened", "url", c.cfg.URL)

		connDone := make(chan struct{})
		writerDone := make(chan struct{})
		go c.writeLoop(ws, connDone, writerDone)

		err = c.readLoop(ws)
		close(connDone)
		_ = ws.Close()
		<-writerDone

		if c.ctx.Err() != nil {
			return
		}

		c.setState(StateErrored)
		c.logger.Warn("connection lost", "error", err)
		attempt++
		if !c.sleep(c.cfg.Reconnect.Delay(attempt)) {
			return
		}
	}
}

func (c *Conn) dial() (*websocket.Conn, error) {
	endpoint, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, NewError(CodeConnection, "invalid socket url", err)
	}
	query := endpoint.Query()
	query.Set("token", c.cfg.Token)
	endpoint.RawQuery = query.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
		ReadBufferSize:   8192,
		WriteBufferSize:  8192,
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	ws, _, err := dialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return nil, NewError(CodeConnection, "websocket dial failed", err)
	}
	return ws, nil
}

// readLoop delivers inbound frames in arrival order until the connection
// drops. It returns the terminal read error.
func (c *Conn) readLoop(ws *websocket.Conn) error {
	ws.SetReadLimit(wsMaxPayloadBytes)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait)) //nolint:errcheck
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var frame Frame
		if err := ws.ReadJSON(&frame); err != nil {
			return NewError(CodeConnection, "read failed", err)
		}
		select {
		case c.events <- frame:
		case <-c.ctx.Done():
			return c.ctx.Err()
		}
	}
}

func (c *Conn) writeLoop(ws *websocket.Conn, connDone <-chan struct{}, writerDone chan<- struct{}) {
	defer close(writerDone)

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case <-connDone:
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case frame := <-c.sendq:
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck
			if err := ws.WriteJSON(frame); err != nil {
				c.logger.Warn("write failed", "event", frame.Event, "error", err)
				return
			}
		}
	}
}

// sleep waits for the given delay, returning false if the transport was
// closed while waiting.
func (c *Conn) sleep(delay time.Duration) bool {
	select {
	case <-c.ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

func (c *Conn) setState(state State) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	observers := make([]func(State), len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}

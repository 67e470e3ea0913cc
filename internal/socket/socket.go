// Package socket owns the one transport connection for a session and
// routes inbound frames to per-topic subscribers.
package socket

import (
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/andrewlidong/beam-messenger/internal/transport"
)

// FrameHandler consumes the inbound frames for one topic. Frames are
// delivered sequentially from a single dispatch goroutine, so handlers
// for a topic always observe transport order.
type FrameHandler func(transport.Frame)

// Socket multiplexes channels over a single transport connection. It hands
// out monotonically increasing refs for reply correlation and dispatches
// each inbound frame to the subscriber owning its topic.
type Socket struct {
	cfg    Config
	id     string
	logger *slog.Logger
	tr     transport.Transport

	refCounter atomic.Uint64

	mu          sync.Mutex
	subscribers map[string]FrameHandler
	onOpen      []func()
	started     bool
}

// Config configures a socket.
type Config struct {
	Transport transport.Config

	// Logger receives diagnostic records. Nil disables logging.
	Logger *slog.Logger
}

// Option customizes socket construction.
type Option func(*Socket)

// WithTransport injects a transport, replacing the default websocket
// connection. Tests use this to drive the socket with scripted frames.
func WithTransport(tr transport.Transport) Option {
	return func(s *Socket) {
		s.tr = tr
	}
}

// New constructs a socket without registering it as the process singleton.
func New(cfg Config, opts ...Option) *Socket {
	id := uuid.NewString()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Socket{
		cfg:         cfg,
		id:          id,
		logger:      logger.With("socket_id", id),
		subscribers: make(map[string]FrameHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tr == nil {
		tcfg := cfg.Transport
		tcfg.Logger = logger
		s.tr = transport.NewConn(tcfg)
	}

	// Lifecycle taps: observe, log, forward. They never alter control
	// flow; recovery is the transport's job.
	s.tr.OnStateChange(func(state transport.State) {
		switch state {
		case transport.StateOpen:
			s.logger.Info("socket connection opened")
			s.notifyOpen()
		case transport.StateErrored:
			s.logger.Warn("socket connection error")
		case transport.StateClosed:
			s.logger.Info("socket connection closed")
		}
	})

	return s
}

// ID returns the socket's unique identifier, assigned at construction.
func (s *Socket) ID() string {
	return s.id
}

// Connect starts the transport and the dispatch loop. Idempotent.
func (s *Socket) Connect() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.tr.Connect()
	go s.dispatch()
}

// State returns the transport connection state.
func (s *Socket) State() transport.State {
	return s.tr.State()
}

// MakeRef returns the next ref for reply correlation. Refs are unique for
// the lifetime of the socket.
func (s *Socket) MakeRef() string {
	return strconv.FormatUint(s.refCounter.Add(1), 10)
}

// Send pushes a frame onto the transport.
func (s *Socket) Send(frame transport.Frame) error {
	return s.tr.Send(frame)
}

// Subscribe routes inbound frames for topic to handler. A topic has at
// most one subscriber: the channel that owns it.
func (s *Socket) Subscribe(topic string, handler FrameHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[topic] = handler
}

// Unsubscribe removes the subscriber for topic.
func (s *Socket) Unsubscribe(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, topic)
}

// OnOpen registers a callback invoked every time the connection (re)opens.
// Channels use this to rejoin their topic after a transport reconnect.
func (s *Socket) OnOpen(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onOpen = append(s.onOpen, fn)
}

// OnStateChange registers a transport state observer.
func (s *Socket) OnStateChange(fn func(transport.State)) {
	s.tr.OnStateChange(fn)
}

// Disconnect tears down the transport.
func (s *Socket) Disconnect() {
	if err := s.tr.Close(); err != nil {
		s.logger.Warn("transport close failed", "error", err)
	}
}

func (s *Socket) notifyOpen() {
	s.mu.Lock()
	callbacks := make([]func(), len(s.onOpen))
	copy(callbacks, s.onOpen)
	s.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// dispatch routes inbound frames sequentially, preserving per-topic order.
func (s *Socket) dispatch() {
	for frame := range s.tr.Events() {
		s.mu.Lock()
		handler := s.subscribers[frame.Topic]
		s.mu.Unlock()
		if handler == nil {
			s.logger.Debug("frame for unowned topic dropped", "topic", frame.Topic, "event", frame.Event)
			continue
		}
		handler(frame)
	}
}

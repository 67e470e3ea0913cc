// Package channel implements the join/leave lifecycle for one room topic
// over the shared socket, dispatches inbound named events to subscribers,
// and exposes a push/acknowledge primitive for outbound events.
package channel

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/andrewlidong/beam-messenger/internal/socket"
	"github.com/andrewlidong/beam-messenger/internal/transport"
)

// State is the lifecycle state of a channel.
type State int

const (
	// StateJoining means a join request is in flight.
	StateJoining State = iota

	// StateJoined means the join was acknowledged with "ok".
	StateJoined

	// StateJoinFailed means the join was acknowledged with "error".
	// The state is terminal until a rejoin is attempted; joins are never
	// retried automatically.
	StateJoinFailed

	// StateLeft means the channel was explicitly left.
	StateLeft
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateJoined:
		return "joined"
	case StateJoinFailed:
		return "join_failed"
	case StateLeft:
		return "left"
	default:
		return "joining"
	}
}

// Handler consumes one inbound occurrence of a named event.
type Handler func(payload json.RawMessage)

// Channel is membership in one room topic. A topic is unique per socket;
// Join returns the existing channel when one is already joining or joined.
type Channel struct {
	topic  string
	sock   *socket.Socket
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	joinRef  string
	joinPush *Push
	handlers map[string][]Handler
	pending  map[string]*Push
}

// The per-socket channel registry backing Join idempotence.
var (
	registryMu sync.Mutex
	registry   = make(map[*socket.Socket]map[string]*Channel)
)

// Join returns the channel for topic on the given socket, issuing a join
// request if none is in flight. Joining an already joining or joined topic
// is a no-op that returns the existing channel without duplicating the
// subscription. Joining a left or join-failed topic rejoins it.
//
// The join completes asynchronously: exactly one ok/error acknowledgment
// flips the state and fires the continuations registered on JoinPush.
func Join(s *socket.Socket, topic string, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	topics := registry[s]
	if topics == nil {
		topics = make(map[string]*Channel)
		registry[s] = topics
	}

	if ch, ok := topics[topic]; ok {
		ch.mu.Lock()
		state := ch.state
		ch.mu.Unlock()
		if state == StateJoining || state == StateJoined {
			return ch
		}
		ch.rejoin()
		return ch
	}

	ch := &Channel{
		topic:    topic,
		sock:     s,
		logger:   logger,
		state:    StateLeft,
		handlers: make(map[string][]Handler),
		pending:  make(map[string]*Push),
	}
	topics[topic] = ch

	s.Subscribe(topic, ch.handleFrame)
	s.OnOpen(ch.handleSocketOpen)
	ch.rejoin()
	return ch
}

// Topic returns the channel topic.
func (c *Channel) Topic() string {
	return c.topic
}

// State returns the current channel state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// JoinPush returns the acknowledgment handle for the most recent join
// attempt, or nil if no join was ever issued.
func (c *Channel) JoinPush() *Push {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joinPush
}

// On registers a handler for a named inbound event. Handlers for the
// same name are cumulative and run in registration order; registering
// never replaces an existing handler.
func (c *Channel) On(event string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], handler)
}

// Push sends an outbound event and returns its acknowledgment handle.
// Delivery must not be assumed before the ok/error resolves. Pushing on a
// left channel resolves immediately with an error reply.
func (c *Channel) Push(event string, payload any) *Push {
	c.mu.Lock()
	if c.state == StateLeft {
		c.mu.Unlock()
		push := newPush(event, "")
		push.resolve(transport.StatusError, errorReason("channel left"))
		return push
	}
	joinRef := c.joinRef
	c.mu.Unlock()

	body, err := transport.MarshalPayload(payload)
	if err != nil {
		push := newPush(event, "")
		push.resolve(transport.StatusError, errorReason(err.Error()))
		return push
	}

	ref := c.sock.MakeRef()
	push := newPush(event, ref)

	c.mu.Lock()
	c.pending[ref] = push
	c.mu.Unlock()

	frame := transport.Frame{
		Topic:   c.topic,
		Event:   event,
		Payload: body,
		Ref:     ref,
		JoinRef: joinRef,
	}
	if err := c.sock.Send(frame); err != nil {
		c.mu.Lock()
		delete(c.pending, ref)
		c.mu.Unlock()
		push.resolve(transport.StatusError, errorReason(err.Error()))
	}
	return push
}

// Leave transitions the channel to left, unregisters all handlers, and
// stops routing its topic. Leaving an already-left channel is a no-op.
func (c *Channel) Leave() {
	c.mu.Lock()
	if c.state == StateLeft {
		c.mu.Unlock()
		return
	}
	wasJoined := c.state == StateJoined
	joinRef := c.joinRef
	c.state = StateLeft
	c.handlers = make(map[string][]Handler)
	orphaned := c.pending
	c.pending = make(map[string]*Push)
	c.mu.Unlock()

	// Acknowledgments for these can never arrive now; settle them so a
	// concurrent Await does not hang until its context expires.
	for _, push := range orphaned {
		push.resolve(transport.StatusError, errorReason("channel left"))
	}

	c.sock.Unsubscribe(c.topic)
	if wasJoined {
		// Best effort; the server also tears membership down on close.
		_ = c.sock.Send(transport.Frame{
			Topic:   c.topic,
			Event:   transport.EventLeave,
			Ref:     c.sock.MakeRef(),
			JoinRef: joinRef,
		})
	}
	c.logger.Info("left channel", "topic", c.topic)
}

// rejoin issues a fresh join request. Callers hold no channel state lock.
func (c *Channel) rejoin() {
	c.mu.Lock()
	if c.state == StateLeft {
		// Re-subscribe in case a prior Leave unregistered the topic.
		c.sock.Subscribe(c.topic, c.handleFrame)
	}
	c.state = StateJoining
	ref := c.sock.MakeRef()
	c.joinRef = ref
	push := newPush(transport.EventJoin, ref)
	c.joinPush = push
	c.pending[ref] = push
	c.mu.Unlock()

	// State flips before any caller-registered continuation runs. The
	// transitions are guarded so a join push settled by Leave cannot pull
	// a left channel back into a join state.
	push.Receive(transport.StatusOK, func(json.RawMessage) {
		if c.transition(StateJoining, StateJoined) {
			c.logger.Info("joined channel", "topic", c.topic)
		}
	})
	push.Receive(transport.StatusError, func(response json.RawMessage) {
		if c.transition(StateJoining, StateJoinFailed) {
			c.logger.Warn("channel join failed", "topic", c.topic,
				"reason", transport.ReasonOf(response, "unknown error"))
		}
	})

	frame := transport.Frame{
		Topic:   c.topic,
		Event:   transport.EventJoin,
		Payload: json.RawMessage(`{}`),
		Ref:     ref,
		JoinRef: ref,
	}
	if err := c.sock.Send(frame); err != nil {
		c.mu.Lock()
		delete(c.pending, ref)
		c.mu.Unlock()
		push.resolve(transport.StatusError, errorReason(err.Error()))
	}
}

// handleSocketOpen rejoins the topic after a transport reconnect.
func (c *Channel) handleSocketOpen() {
	c.mu.Lock()
	state := c.state
	joinRef := c.joinRef
	c.mu.Unlock()

	switch state {
	case StateJoined:
		c.logger.Info("rejoining after reconnect", "topic", c.topic)
		c.rejoin()
	case StateJoining:
		// The in-flight join frame may have died with the old connection;
		// resend it under the same ref so the pending ack still matches.
		_ = c.sock.Send(transport.Frame{
			Topic:   c.topic,
			Event:   transport.EventJoin,
			Payload: json.RawMessage(`{}`),
			Ref:     joinRef,
			JoinRef: joinRef,
		})
	}
}

// handleFrame consumes one inbound frame for this topic: replies resolve
// their pending push, everything else fans out to the named handlers.
func (c *Channel) handleFrame(frame transport.Frame) {
	if frame.Event == transport.EventReply {
		c.resolvePending(frame)
		return
	}

	c.mu.Lock()
	handlers := make([]Handler, len(c.handlers[frame.Event]))
	copy(handlers, c.handlers[frame.Event])
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(frame.Payload)
	}
}

func (c *Channel) resolvePending(frame transport.Frame) {
	c.mu.Lock()
	push, ok := c.pending[frame.Ref]
	if ok {
		delete(c.pending, frame.Ref)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	reply, err := transport.DecodeReply(frame.Payload)
	if err != nil {
		c.logger.Warn("malformed reply", "topic", c.topic, "ref", frame.Ref, "error", err)
		push.resolve(transport.StatusError, errorReason("malformed reply"))
		return
	}
	push.resolve(reply.Status, reply.Response)
}

// transition flips the state only when it currently equals from.
func (c *Channel) transition(from, to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return false
	}
	c.state = to
	return true
}

func errorReason(reason string) json.RawMessage {
	body, _ := json.Marshal(map[string]string{"reason": reason})
	return body
}

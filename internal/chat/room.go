// Package chat wires the socket, channel, presence, typing, and message
// components into one room session and surfaces user-visible notices.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/andrewlidong/beam-messenger/internal/channel"
	"github.com/andrewlidong/beam-messenger/internal/config"
	"github.com/andrewlidong/beam-messenger/internal/messages"
	"github.com/andrewlidong/beam-messenger/internal/observability"
	"github.com/andrewlidong/beam-messenger/internal/presence"
	"github.com/andrewlidong/beam-messenger/internal/socket"
	"github.com/andrewlidong/beam-messenger/internal/transport"
	"github.com/andrewlidong/beam-messenger/internal/typing"
	"github.com/andrewlidong/beam-messenger/pkg/models"
)

// Inbound event names on a joined room channel.
const (
	EventNewMessage     = "new_message"
	EventMessageHistory = "message_history"
	EventPresenceState  = "presence_state"
	EventPresenceDiff   = "presence_diff"
	EventUserTyping     = "user_typing"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
)

// Outbound event names pushed on the room channel.
const (
	EventTyping = "typing"
	EventStatus = "status"
)

// NoticeKind distinguishes informational notices from errors.
type NoticeKind int

const (
	// NoticeInfo is a routine room notice ("bob joined the room").
	NoticeInfo NoticeKind = iota

	// NoticeError is a user-visible failure (join refused, send failed).
	NoticeError
)

// Notice is a user-visible room event for the UI to render.
type Notice struct {
	Kind NoticeKind
	Text string
}

// Options carries the collaborators a room needs. The socket handle is
// passed in explicitly rather than reached for globally, so every room in
// a process shares whichever connection its caller owns.
type Options struct {
	// Socket is the shared connection handle. Required.
	Socket *socket.Socket

	// Logger receives diagnostic records. Nil disables logging.
	Logger *slog.Logger

	// Metrics receives room counters. Optional.
	Metrics *observability.Metrics

	// Tracer records spans around join and send. Optional.
	Tracer trace.Tracer

	// OnIndicator renders the shared typing indicator. Optional.
	OnIndicator typing.IndicatorFunc

	// OnMessage is invoked for every appended message. Optional.
	OnMessage func(messages.Entry)
}

// Room is one joined chat room session.
type Room struct {
	identity models.Identity
	topic    string
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
	sock     *socket.Socket

	roster    *presence.Presence
	coalescer *typing.Coalescer
	sequencer *messages.Sequencer

	mu         sync.Mutex
	ch         *channel.Channel
	openedOnce bool

	notices chan Notice
}

// pushAck adapts a channel push to the sequencer's Ack interface.
type pushAck struct {
	push *channel.Push
}

func (a pushAck) Receive(status string, fn func(json.RawMessage)) {
	a.push.Receive(status, fn)
}

// NewRoom builds a room session from validated configuration. It does not
// touch the network; Join starts the session.
func NewRoom(cfg *config.Config, opts Options) (*Room, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Socket == nil {
		return nil, fmt.Errorf("chat: socket handle is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}

	identity := cfg.ToIdentity()
	r := &Room{
		identity: identity,
		topic:    "chat:" + identity.RoomID,
		logger:   logger.With("room", identity.RoomID),
		metrics:  opts.Metrics,
		tracer:   tracer,
		sock:     opts.Socket,
		roster:   presence.New(""),
		notices:  make(chan Notice, 32),
	}

	r.coalescer = typing.New(typing.Config{
		SelfID:     identity.UserID,
		IdleWindow: cfg.TypingIdleWindow(),
		Push:       r.pushTyping,
		Indicator:  opts.OnIndicator,
		Roster:     r.roster,
		Logger:     r.logger,
	})

	r.sequencer = messages.New(messages.Config{
		Identity:    identity,
		Push:        r.pushEvent,
		StopTyping:  r.coalescer.Stop,
		OnSendError: r.handleSendError,
		Logger:      r.logger,
	})
	if opts.OnMessage != nil {
		r.sequencer.OnAppend(opts.OnMessage)
	}
	r.sequencer.OnAppend(func(entry messages.Entry) {
		direction := "inbound"
		if entry.Own {
			direction = "outbound"
		}
		r.count(func(m *observability.Metrics) {
			m.MessageCounter.WithLabelValues(identity.RoomID, direction).Inc()
		})
	})

	r.roster.OnSync(func() {
		r.count(func(m *observability.Metrics) {
			m.OnlineUsers.WithLabelValues(identity.RoomID).Set(float64(r.roster.Size()))
		})
	})

	return r, nil
}

// Join joins the room channel and registers all event handlers. It
// returns once the join request is issued; the acknowledgment arrives
// asynchronously and is surfaced as a notice. AwaitJoin bounds the wait.
func (r *Room) Join(ctx context.Context) {
	_, span := r.tracer.Start(ctx, "room.join",
		trace.WithAttributes(attribute.String("room.id", r.identity.RoomID)))

	r.sock.OnStateChange(r.observeTransport)

	ch := channel.Join(r.sock, r.topic, r.logger)
	r.mu.Lock()
	r.ch = ch
	r.mu.Unlock()

	ch.On(EventNewMessage, r.handleNewMessage)
	ch.On(EventMessageHistory, r.handleHistory)
	ch.On(EventPresenceState, r.handlePresenceState)
	ch.On(EventPresenceDiff, r.handlePresenceDiff)
	ch.On(EventUserTyping, r.handleUserTyping)
	ch.On(EventUserJoined, r.handleUserJoined)
	ch.On(EventUserLeft, r.handleUserLeft)

	ch.JoinPush().
		Receive(transport.StatusOK, func(json.RawMessage) {
			span.End()
			r.notify(NoticeInfo, fmt.Sprintf("joined %s", r.topic))
		}).
		Receive(transport.StatusError, func(response json.RawMessage) {
			span.End()
			reason := transport.ReasonOf(response, "unknown error")
			r.count(func(m *observability.Metrics) {
				m.PushFailures.WithLabelValues(r.identity.RoomID, transport.EventJoin).Inc()
			})
			r.notify(NoticeError, "failed to join chat: "+reason)
		})
}

// AwaitJoin blocks until the join acknowledgment arrives or ctx is done.
// A join acknowledged with "error" returns a JOIN_FAILED error; retrying
// is the caller's decision.
func (r *Room) AwaitJoin(ctx context.Context) error {
	r.mu.Lock()
	ch := r.ch
	r.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("chat: room not joined")
	}

	status, response, err := ch.JoinPush().Await(ctx)
	if err != nil {
		return err
	}
	if status != transport.StatusOK {
		return transport.NewError(transport.CodeJoinFailed,
			transport.ReasonOf(response, "unknown error"), nil)
	}
	return nil
}

// Send pushes a chat message. Whitespace-only text is dropped without a
// push. It reports whether a push was issued.
func (r *Room) Send(ctx context.Context, text string) bool {
	_, span := r.tracer.Start(ctx, "room.send")
	defer span.End()
	return r.sequencer.Send(text)
}

// Input records one local keystroke for the typing coalescer.
func (r *Room) Input() {
	r.coalescer.Input()
}

// StopTyping explicitly ends the local typing state (input blur).
func (r *Room) StopTyping() {
	r.coalescer.Stop()
}

// SetStatus pushes a presence-visible status change (online/away).
func (r *Room) SetStatus(status string) {
	ack := r.pushEvent(EventStatus, models.StatusPayload{Status: status})
	ack.Receive(transport.StatusError, func(response json.RawMessage) {
		r.count(func(m *observability.Metrics) {
			m.PushFailures.WithLabelValues(r.identity.RoomID, EventStatus).Inc()
		})
		r.logger.Warn("status push failed",
			"status", status, "reason", transport.ReasonOf(response, "unknown error"))
	})
}

// Notices returns the stream of user-visible room notices.
func (r *Room) Notices() <-chan Notice {
	return r.notices
}

// Roster returns the presence synchronizer for this room.
func (r *Room) Roster() *presence.Presence {
	return r.roster
}

// Messages returns the message sequencer for this room.
func (r *Room) Messages() *messages.Sequencer {
	return r.sequencer
}

// Leave leaves the channel and cancels the typing timer. The shared
// socket stays up; releasing it is the session owner's call.
func (r *Room) Leave() {
	r.coalescer.Shutdown()
	r.mu.Lock()
	ch := r.ch
	r.mu.Unlock()
	if ch != nil {
		ch.Leave()
	}
}

func (r *Room) pushEvent(event string, payload any) messages.Ack {
	r.mu.Lock()
	ch := r.ch
	r.mu.Unlock()
	if ch == nil {
		push := channel.Resolved(event, transport.StatusError, "room not joined")
		return pushAck{push: push}
	}
	return pushAck{push: ch.Push(event, payload)}
}

func (r *Room) pushTyping(isTyping bool) {
	r.count(func(m *observability.Metrics) {
		m.TypingPushes.WithLabelValues(r.identity.RoomID, fmt.Sprintf("%t", isTyping)).Inc()
	})
	ack := r.pushEvent(EventTyping, models.TypingPayload{Typing: isTyping})
	ack.Receive(transport.StatusError, func(json.RawMessage) {
		// Non-fatal and scoped to this one notification; the decay timer
		// or the next keystroke supersedes it.
		r.count(func(m *observability.Metrics) {
			m.PushFailures.WithLabelValues(r.identity.RoomID, EventTyping).Inc()
		})
	})
}

func (r *Room) handleNewMessage(payload json.RawMessage) {
	var msg models.Message
	if !r.decode(EventNewMessage, payload, &msg) {
		return
	}
	r.sequencer.Receive(msg)
}

func (r *Room) handleHistory(payload json.RawMessage) {
	var body models.MessageHistoryPayload
	if !r.decode(EventMessageHistory, payload, &body) {
		return
	}
	r.sequencer.LoadHistory(body.Messages)
}

func (r *Room) handlePresenceState(payload json.RawMessage) {
	var state models.PresenceState
	if !r.decode(EventPresenceState, payload, &state) {
		return
	}
	r.roster.SyncState(state)
	r.count(func(m *observability.Metrics) {
		m.PresenceSyncs.WithLabelValues(r.identity.RoomID, "state").Inc()
	})
}

func (r *Room) handlePresenceDiff(payload json.RawMessage) {
	var diff models.PresenceDiff
	if !r.decode(EventPresenceDiff, payload, &diff) {
		return
	}
	r.roster.SyncDiff(diff)
	r.count(func(m *observability.Metrics) {
		m.PresenceSyncs.WithLabelValues(r.identity.RoomID, "diff").Inc()
	})
}

func (r *Room) handleUserTyping(payload json.RawMessage) {
	var body models.TypingPayload
	if !r.decode(EventUserTyping, payload, &body) {
		return
	}
	r.coalescer.HandleRemote(body.UserID, body.Typing)
}

func (r *Room) handleUserJoined(payload json.RawMessage) {
	var body models.UserJoinedPayload
	if !r.decode(EventUserJoined, payload, &body) {
		return
	}
	if body.UserID == r.identity.UserID {
		return
	}
	name := body.Username
	if name == "" {
		name = "Someone"
	}
	r.notify(NoticeInfo, name+" joined the room")
}

func (r *Room) handleUserLeft(payload json.RawMessage) {
	var body models.UserLeftPayload
	if !r.decode(EventUserLeft, payload, &body) {
		return
	}
	name, ok := r.roster.UsernameByID(body.UserID)
	if !ok || name == "" {
		name = "Someone"
	}
	r.notify(NoticeInfo, name+" left the room")
}

func (r *Room) handleSendError(reason string) {
	r.count(func(m *observability.Metrics) {
		m.PushFailures.WithLabelValues(r.identity.RoomID, EventNewMessage).Inc()
	})
	r.notify(NoticeError, "failed to send message: "+reason)
}

// observeTransport is a diagnostic tap on connection state; it counts
// reconnect attempts but never alters control flow.
func (r *Room) observeTransport(state transport.State) {
	r.mu.Lock()
	opened := r.openedOnce
	if state == transport.StateOpen {
		r.openedOnce = true
	}
	r.mu.Unlock()

	if state == transport.StateConnecting && opened {
		r.count(func(m *observability.Metrics) {
			m.Reconnects.WithLabelValues(r.identity.RoomID).Inc()
		})
		r.notify(NoticeInfo, "connection lost, reconnecting...")
	}
}

func (r *Room) decode(event string, payload json.RawMessage, into any) bool {
	if err := json.Unmarshal(payload, into); err != nil {
		r.logger.Warn("malformed event payload", "event", event, "error", err)
		return false
	}
	return true
}

func (r *Room) notify(kind NoticeKind, text string) {
	select {
	case r.notices <- Notice{Kind: kind, Text: text}:
	default:
		// A slow or absent UI must not stall event dispatch.
	}
}

func (r *Room) count(fn func(*observability.Metrics)) {
	if r.metrics != nil {
		fn(r.metrics)
	}
}

// Package messages owns the append-only chat log for one room and the
// send path with its acknowledgment handling.
package messages

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/andrewlidong/beam-messenger/internal/transport"
	"github.com/andrewlidong/beam-messenger/pkg/models"
)

// Ack is the acknowledgment handle of an outbound push: exactly one of
// its "ok" or "error" continuations runs when the reply arrives.
type Ack interface {
	Receive(status string, fn func(response json.RawMessage))
}

// PushFunc sends a named event and returns its acknowledgment handle.
type PushFunc func(event string, payload any) Ack

// Entry is one appended message together with its authorship
// classification.
type Entry struct {
	Message models.Message

	// Own is true when the message was authored by this session's user.
	// Classification compares sender IDs; the client keeps no "did I
	// just send this" flag, so optimistic local state and the
	// server-confirmed log can never diverge.
	Own bool
}

// Config configures a Sequencer.
type Config struct {
	// Identity is the local session identity used for classification.
	Identity models.Identity

	// Push sends outbound events on the room channel. Required.
	Push PushFunc

	// StopTyping is invoked after a successful send; sending a message
	// always implies typing has stopped. Optional.
	StopTyping func()

	// OnSendError surfaces a failed send so the user can retry; the
	// pending text is preserved. Optional.
	OnSendError func(reason string)

	// Logger receives diagnostic records. Nil disables logging.
	Logger *slog.Logger
}

// Sequencer appends inbound and outbound chat messages to an ordered,
// append-only log. The sequencer exclusively owns the log; readers get
// copies.
type Sequencer struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	log      []Entry
	pending  string
	onAppend []func(Entry)
}

// New creates an empty sequencer.
func New(cfg Config) *Sequencer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sequencer{cfg: cfg, logger: logger}
}

// OnAppend registers an observer invoked for every appended message, in
// receipt order.
func (s *Sequencer) OnAppend(fn func(Entry)) {
	s.mu.Lock()
	s.onAppend = append(s.onAppend, fn)
	s.mu.Unlock()
}

// Send pushes the text as a new message. Whitespace-only text is a no-op
// with no outbound call. On an "ok" acknowledgment the pending input is
// cleared and typing is stopped; on "error" the text is preserved for
// retry and the failure is surfaced. Send reports whether a push was
// issued.
//
// The sent message is not appended here: it arrives back on the broadcast
// like everyone else's and is appended by Receive.
func (s *Sequencer) Send(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	s.mu.Lock()
	s.pending = trimmed
	s.mu.Unlock()

	ack := s.cfg.Push("new_message", models.NewMessagePayload{Text: trimmed})
	ack.Receive(transport.StatusOK, func(json.RawMessage) {
		s.mu.Lock()
		s.pending = ""
		s.mu.Unlock()
		if s.cfg.StopTyping != nil {
			s.cfg.StopTyping()
		}
	})
	ack.Receive(transport.StatusError, func(response json.RawMessage) {
		reason := transport.ReasonOf(response, "failed to send message")
		s.logger.Warn("send failed", "reason", reason)
		if s.cfg.OnSendError != nil {
			s.cfg.OnSendError(reason)
		}
	})
	return true
}

// Receive appends an inbound message unconditionally, including the
// session's own messages echoed back from the broadcast, and classifies
// authorship by sender ID.
func (s *Sequencer) Receive(msg models.Message) {
	entry := Entry{
		Message: msg,
		Own:     msg.SenderID == s.cfg.Identity.UserID,
	}

	s.mu.Lock()
	s.log = append(s.log, entry)
	observers := make([]func(Entry), len(s.onAppend))
	copy(observers, s.onAppend)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(entry)
	}
}

// LoadHistory replaces the entire log wholesale. Any prior log is fully
// cleared first, so history re-delivered after a reconnect never
// duplicates entries.
func (s *Sequencer) LoadHistory(msgs []models.Message) {
	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, Entry{
			Message: msg,
			Own:     msg.SenderID == s.cfg.Identity.UserID,
		})
	}

	s.mu.Lock()
	s.log = entries
	s.mu.Unlock()
	s.logger.Debug("history loaded", "count", len(entries))
}

// Log returns a copy of the ordered log.
func (s *Sequencer) Log() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.log))
	copy(out, s.log)
	return out
}

// Pending returns the text of the last unacknowledged or failed send.
// Empty once a send is acknowledged ok.
func (s *Sequencer) Pending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Package testharness provides shared fakes for exercising the socket,
// channel, and chat layers without a live websocket server.
package testharness

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/andrewlidong/beam-messenger/internal/transport"
)

// FakeTransport is a scripted transport.Transport. Connect transitions
// straight to open, Send records frames, and tests inject inbound frames
// with Deliver or the Reply helpers.
type FakeTransport struct {
	mu        sync.Mutex
	state     transport.State
	observers []func(transport.State)
	sent      []transport.Frame
	events    chan transport.Frame
	closed    bool

	// SendErr, when set, is returned by every subsequent Send.
	SendErr error
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		state:  transport.StateUninitialized,
		events: make(chan transport.Frame, 64),
	}
}

func (f *FakeTransport) Connect() {
	f.setState(transport.StateConnecting)
	f.setState(transport.StateOpen)
}

func (f *FakeTransport) Send(frame transport.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.sent = append(f.sent, frame)
	return nil
}

func (f *FakeTransport) Events() <-chan transport.Frame { return f.events }

func (f *FakeTransport) OnStateChange(fn func(transport.State)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers = append(f.observers, fn)
}

func (f *FakeTransport) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *FakeTransport) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()
	f.setState(transport.StateClosed)
	close(f.events)
	return nil
}

func (f *FakeTransport) setState(s transport.State) {
	f.mu.Lock()
	f.state = s
	observers := make([]func(transport.State), len(f.observers))
	copy(observers, f.observers)
	f.mu.Unlock()
	for _, fn := range observers {
		fn(s)
	}
}

// Reopen simulates a dropped connection followed by a successful redial.
func (f *FakeTransport) Reopen() {
	f.setState(transport.StateErrored)
	f.setState(transport.StateConnecting)
	f.setState(transport.StateOpen)
}

// Deliver injects an inbound frame as if it arrived from the server.
func (f *FakeTransport) Deliver(frame transport.Frame) {
	f.events <- frame
}

// DeliverEvent marshals payload and delivers it under topic/event.
func (f *FakeTransport) DeliverEvent(t *testing.T, topic, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	f.Deliver(transport.Frame{Topic: topic, Event: event, Payload: raw})
}

// ReplyOK delivers an ok reply correlated to ref.
func (f *FakeTransport) ReplyOK(t *testing.T, topic, ref string, response any) {
	t.Helper()
	f.reply(t, topic, ref, transport.StatusOK, response)
}

// ReplyError delivers an error reply with the given reason.
func (f *FakeTransport) ReplyError(t *testing.T, topic, ref, reason string) {
	t.Helper()
	f.reply(t, topic, ref, transport.StatusError, map[string]string{"reason": reason})
}

func (f *FakeTransport) reply(t *testing.T, topic, ref, status string, response any) {
	t.Helper()
	raw, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("marshal reply response: %v", err)
	}
	body, err := json.Marshal(transport.Reply{Status: status, Response: raw})
	if err != nil {
		t.Fatalf("marshal reply: %v", err)
	}
	f.Deliver(transport.Frame{Topic: topic, Event: transport.EventReply, Payload: body, Ref: ref})
}

// Sent returns a copy of every frame passed to Send so far.
func (f *FakeTransport) Sent() []transport.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]transport.Frame, len(f.sent))
	copy(out, f.sent)
	return out
}

// SentByEvent returns sent frames matching event, oldest first.
func (f *FakeTransport) SentByEvent(event string) []transport.Frame {
	var out []transport.Frame
	for _, fr := range f.Sent() {
		if fr.Event == event {
			out = append(out, fr)
		}
	}
	return out
}

// LastSent returns the most recent frame matching event, failing the test
// if none was sent.
func (f *FakeTransport) LastSent(t *testing.T, event string) transport.Frame {
	t.Helper()
	frames := f.SentByEvent(event)
	if len(frames) == 0 {
		t.Fatalf("no %s frame sent", event)
	}
	return frames[len(frames)-1]
}

// Eventually polls cond until it returns true or the deadline passes.
func Eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

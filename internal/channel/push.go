package channel

import (
	"context"
	"encoding/json"
	"sync"
)

// Push is the future-like handle for an outbound event. It resolves to
// exactly one of "ok" or "error" when the acknowledgment frame arrives.
//
// There is no built-in timeout: a caller that wants a bounded wait passes
// its own context to Await and treats expiry as a distinct failure mode.
type Push struct {
	// Event is the pushed event name.
	Event string

	mu        sync.Mutex
	ref       string
	resolved  bool
	status    string
	response  json.RawMessage
	callbacks map[string][]func(json.RawMessage)
	done      chan struct{}
}

func newPush(event, ref string) *Push {
	return &Push{
		Event:     event,
		ref:       ref,
		callbacks: make(map[string][]func(json.RawMessage)),
		done:      make(chan struct{}),
	}
}

// Resolved returns a push already settled with the given status and an
// error-style {"reason": ...} response. It stands in for a real push when
// an outbound event cannot be issued at all.
func Resolved(event, status, reason string) *Push {
	p := newPush(event, "")
	body, _ := json.Marshal(map[string]string{"reason": reason})
	p.resolve(status, body)
	return p
}

// Receive registers a continuation for the given status ("ok" or "error").
// Continuations for the same status accumulate and run in registration
// order. Registering after resolution fires the continuation immediately.
// Receive returns the push for chaining.
func (p *Push) Receive(status string, fn func(response json.RawMessage)) *Push {
	p.mu.Lock()
	if p.resolved {
		matched := p.status == status
		response := p.response
		p.mu.Unlock()
		if matched {
			fn(response)
		}
		return p
	}
	p.callbacks[status] = append(p.callbacks[status], fn)
	p.mu.Unlock()
	return p
}

// Await blocks until the push resolves or ctx is done. It returns the
// terminal status and response payload.
func (p *Push) Await(ctx context.Context) (string, json.RawMessage, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.status, p.response, nil
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

// resolve settles the push exactly once; later calls are ignored.
func (p *Push) resolve(status string, response json.RawMessage) {
	p.mu.Lock()
	if p.resolved {
		p.mu.Unlock()
		return
	}
	p.resolved = true
	p.status = status
	p.response = response
	callbacks := p.callbacks[status]
	p.callbacks = nil
	close(p.done)
	p.mu.Unlock()

	for _, fn := range callbacks {
		fn(response)
	}
}

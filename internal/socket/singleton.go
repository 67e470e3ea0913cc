package socket

import "sync"

// The process-wide connection slot. Every feature of a session (chat,
// presence, typing) shares the one socket held here.
var (
	singletonMu sync.Mutex
	singleton   *Socket
)

// Acquire returns the process-wide socket, constructing and connecting it
// on first use. Subsequent calls return the same instance regardless of
// options. Acquire never fails; connection problems surface asynchronously
// as state events.
func Acquire(cfg Config, opts ...Option) *Socket {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	if singleton != nil {
		return singleton
	}

	s := New(cfg, opts...)
	s.Connect()
	singleton = s
	return s
}

// Release disconnects the process-wide socket, if any, and clears the slot
// synchronously: an Acquire racing with Release never observes the stale
// instance.
func Release() {
	singletonMu.Lock()
	s := singleton
	singleton = nil
	singletonMu.Unlock()

	if s != nil {
		s.Disconnect()
	}
}

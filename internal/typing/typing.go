// Package typing coalesces bursts of keystrokes into a single typing
// state transition plus a decay timer, and drives the shared "is anyone
// typing" indicator from inbound events.
package typing

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultIdleWindow is the decay window after the last keystroke.
const DefaultIdleWindow = 2500 * time.Millisecond

// PushFunc sends the outbound typing notification.
type PushFunc func(typing bool)

// IndicatorFunc renders the shared typing indicator. active=false clears
// it; username names the most recent remote typist when active.
type IndicatorFunc func(active bool, username string)

// Roster is the presence view the coalescer consults: whether any remote
// meta is currently typing, and display-name lookup for remote typists.
type Roster interface {
	AnyoneTypingExcept(selfID string) bool
	UsernameByID(id string) (string, bool)
}

// Config configures a Coalescer.
type Config struct {
	// SelfID is the local user; inbound events for it are ignored.
	SelfID string

	// IdleWindow is how long after the last keystroke the local typing
	// state decays to idle. Defaults to DefaultIdleWindow.
	IdleWindow time.Duration

	// Push sends the outbound typing notification. Required.
	Push PushFunc

	// Indicator renders the shared indicator. Optional.
	Indicator IndicatorFunc

	// Roster is the presence view for remote typing lookups. Required
	// when Indicator is set.
	Roster Roster

	// Logger receives diagnostic records. Nil disables logging.
	Logger *slog.Logger
}

// Coalescer is the per-session typing state machine.
//
// Local side: only the idle→typing edge pushes {typing:true}; further
// keystrokes restart the single decay timer without pushing. The timer
// firing, or an explicit Stop (input blur, message sent), pushes
// {typing:false}. There is never more than one live timer: arming a new
// one first stops the old one under the mutex.
type Coalescer struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	typing bool
	timer  *time.Timer
	sealed bool
}

// New creates a coalescer in the idle state.
func New(cfg Config) *Coalescer {
	if cfg.IdleWindow <= 0 {
		cfg.IdleWindow = DefaultIdleWindow
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coalescer{cfg: cfg, logger: logger}
}

// Input records one local input event. On the idle→typing edge it pushes
// the outbound notification; on the typing→typing self-loop it only
// restarts the decay timer.
func (c *Coalescer) Input() {
	c.mu.Lock()
	if c.sealed {
		c.mu.Unlock()
		return
	}
	edge := !c.typing
	c.typing = true
	c.restartTimerLocked()
	c.mu.Unlock()

	if edge {
		c.cfg.Push(true)
	}
}

// Stop explicitly transitions to idle, cancelling the pending timer.
// Called on input blur and after a message send. Stopping while already
// idle is a no-op.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	if c.sealed || !c.typing {
		c.mu.Unlock()
		return
	}
	c.typing = false
	c.cancelTimerLocked()
	c.mu.Unlock()

	c.cfg.Push(false)
}

// Typing reports whether the local state machine is in the typing state.
func (c *Coalescer) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

// HandleRemote processes an inbound typing event. Events for the local
// user are ignored. A true event shows the indicator with the sender's
// display name; a false event clears it only if no other remote user is
// still typing according to the roster.
func (c *Coalescer) HandleRemote(userID string, isTyping bool) {
	if userID == c.cfg.SelfID || c.cfg.Indicator == nil {
		return
	}

	if isTyping {
		username := ""
		if c.cfg.Roster != nil {
			username, _ = c.cfg.Roster.UsernameByID(userID)
		}
		if username == "" {
			username = "Someone"
		}
		c.cfg.Indicator(true, username)
		return
	}

	if c.cfg.Roster != nil && c.cfg.Roster.AnyoneTypingExcept(c.cfg.SelfID) {
		// The indicator is a single shared slot; somebody else still owns it.
		return
	}
	c.cfg.Indicator(false, "")
}

// Shutdown cancels the pending timer and seals the coalescer so late
// timer callbacks can never push after teardown.
func (c *Coalescer) Shutdown() {
	c.mu.Lock()
	c.sealed = true
	c.typing = false
	c.cancelTimerLocked()
	c.mu.Unlock()
}

// restartTimerLocked arms the decay timer, cancelling the prior one first.
// Cancel-and-restart is one operation under the mutex so two timers can
// never race.
func (c *Coalescer) restartTimerLocked() {
	c.cancelTimerLocked()
	c.timer = time.AfterFunc(c.cfg.IdleWindow, c.expire)
}

func (c *Coalescer) cancelTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// expire is the decay timer callback.
func (c *Coalescer) expire() {
	c.mu.Lock()
	if c.sealed || !c.typing {
		c.mu.Unlock()
		return
	}
	c.typing = false
	c.timer = nil
	c.mu.Unlock()

	c.logger.Debug("typing decayed to idle")
	c.cfg.Push(false)
}

// connect.go runs the interactive room session: config assembly, socket
// acquisition, join, and the raw-mode terminal loop.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/andrewlidong/beam-messenger/internal/chat"
	"github.com/andrewlidong/beam-messenger/internal/config"
	"github.com/andrewlidong/beam-messenger/internal/messages"
	"github.com/andrewlidong/beam-messenger/internal/observability"
	"github.com/andrewlidong/beam-messenger/internal/socket"
	"github.com/andrewlidong/beam-messenger/internal/transport"
)

func runConnect(ctx context.Context, configPath string, overrides connectOverrides, debugLog bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if overrides.room != "" {
		cfg.Identity.RoomID = overrides.room
	}
	if overrides.userID != "" {
		cfg.Identity.UserID = overrides.userID
	}
	if overrides.username != "" {
		cfg.Identity.Username = overrides.username
	}
	if overrides.url != "" {
		cfg.Socket.URL = overrides.url
	}
	// Refuse to dial at all without a room and token.
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := cfg.Logging.Level
	if debugLog {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: cfg.Logging.Format,
	})

	tracer, shutdownTracer, err := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "beam-messenger",
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Insecure:       cfg.Tracing.Insecure,
	})
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}
	if shutdownTracer != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracer(ctx)
		}()
	}

	metrics := observability.NewMetrics()
	if cfg.Metrics.Addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	sock := socket.Acquire(socket.Config{
		Transport: transport.Config{
			URL:              cfg.Socket.URL,
			Token:            cfg.Identity.Token,
			HandshakeTimeout: cfg.Socket.HandshakeTimeout,
			Reconnect:        cfg.RetryConfig(),
		},
		Logger: logger,
	})
	defer socket.Release()

	ui := newPrinter(os.Stdout)

	room, err := chat.NewRoom(cfg, chat.Options{
		Socket:  sock,
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
		OnIndicator: func(active bool, username string) {
			if active {
				ui.Transient(fmt.Sprintf("%s is typing...", username))
			} else {
				ui.Transient("")
			}
		},
		OnMessage: func(entry messages.Entry) {
			ui.Message(entry)
		},
	})
	if err != nil {
		return err
	}

	room.Join(ctx)
	defer room.Leave()

	go func() {
		for notice := range room.Notices() {
			switch notice.Kind {
			case chat.NoticeError:
				ui.Notice("! " + notice.Text)
			default:
				ui.Notice("* " + notice.Text)
			}
		}
	}()

	joinCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err = room.AwaitJoin(joinCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("could not join %s: %w", cfg.Identity.RoomID, err)
	}

	return interactiveLoop(ctx, room, ui)
}

// interactiveLoop reads terminal input. On a real terminal it switches to
// raw mode so every keystroke feeds the typing coalescer; with piped
// input it falls back to line mode.
func interactiveLoop(ctx context.Context, room *chat.Room, ui *printer) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return lineLoop(ctx, room, ui)
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return lineLoop(ctx, room, ui)
	}
	defer term.Restore(fd, oldState) //nolint:errcheck

	ui.SetRaw(true)
	ui.Prompt(nil)

	var line []byte
	buf := make([]byte, 1)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := os.Stdin.Read(buf); err != nil {
			return nil
		}

		switch b := buf[0]; {
		case b == '\r' || b == '\n':
			text := string(line)
			line = line[:0]
			ui.Submit()
			if done := handleLine(ctx, room, ui, text); done {
				return nil
			}
			ui.Prompt(line)
		case b == 0x03 || b == 0x04: // Ctrl-C / Ctrl-D
			ui.Submit()
			return nil
		case b == 0x7f || b == '\b':
			if len(line) > 0 {
				line = line[:len(line)-1]
				ui.Erase()
			}
		case b >= 0x20:
			line = append(line, b)
			ui.Echo(b)
			room.Input()
		}
	}
}

// lineLoop is the non-terminal fallback: one send per input line, no
// keystroke-level typing events.
func lineLoop(ctx context.Context, room *chat.Room, ui *printer) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if done := handleLine(ctx, room, ui, scanner.Text()); done {
			return nil
		}
	}
	return scanner.Err()
}

// handleLine dispatches one submitted line: slash commands or a message
// send. It reports whether the session should end.
func handleLine(ctx context.Context, room *chat.Room, ui *printer, text string) bool {
	trimmed := strings.TrimSpace(text)
	switch {
	case trimmed == "/quit" || trimmed == "/q":
		return true
	case trimmed == "/who":
		for _, entry := range room.Roster().List() {
			suffix := ""
			if entry.Count > 1 {
				suffix = fmt.Sprintf(" (%d)", entry.Count)
			}
			ui.Notice(fmt.Sprintf("  %s [%s]%s", entry.Username, entry.Status, suffix))
		}
		return false
	case strings.HasPrefix(trimmed, "/status "):
		room.SetStatus(strings.TrimSpace(strings.TrimPrefix(trimmed, "/status ")))
		return false
	case trimmed == "/retry":
		if pending := room.Messages().Pending(); pending != "" {
			room.Send(ctx, pending)
		}
		return false
	default:
		room.Send(ctx, text)
		return false
	}
}

// printer serializes terminal output so inbound renders never interleave
// with the input line. In raw mode it owns the prompt line and redraws it
// after every render; the typing indicator is drawn as a suffix on that
// line and erased when it clears.
type printer struct {
	mu        sync.Mutex
	out       io.Writer
	raw       bool
	line      []byte
	transient string
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) SetRaw(raw bool) {
	p.mu.Lock()
	p.raw = raw
	p.mu.Unlock()
}

func (p *printer) Message(entry messages.Entry) {
	author := entry.Message.Username
	if entry.Own {
		author = "you"
	}
	stamp := entry.Message.Timestamp.Local().Format("15:04")
	p.println(fmt.Sprintf("[%s] %s: %s", stamp, author, entry.Message.Text))
}

func (p *printer) Notice(text string) {
	p.println(text)
}

// Transient sets or clears the typing indicator. An empty string erases
// the current one. Line mode has no cursor control, so clears are dropped
// there and the indicator is printed as a plain notice.
func (p *printer) Transient(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.raw {
		if text != "" {
			fmt.Fprintln(p.out, "~ "+text)
		}
		return
	}
	p.transient = text
	p.redrawLocked()
}

func (p *printer) println(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.raw {
		fmt.Fprint(p.out, "\r\x1b[K"+text+"\r\n")
		p.redrawLocked()
		return
	}
	fmt.Fprintln(p.out, text)
}

// redrawLocked repaints the prompt line: erase, prompt, input, and the
// transient suffix with the cursor pulled back to the end of the input.
func (p *printer) redrawLocked() {
	fmt.Fprint(p.out, "\r\x1b[K> "+string(p.line))
	if p.transient != "" {
		suffix := "   ~ " + p.transient
		fmt.Fprint(p.out, suffix)
		fmt.Fprintf(p.out, "\x1b[%dD", utf8.RuneCountInString(suffix))
	}
}

func (p *printer) Prompt(line []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.line = append(p.line[:0], line...)
	p.redrawLocked()
}

func (p *printer) Echo(b byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.line = append(p.line, b)
	p.redrawLocked()
}

func (p *printer) Erase() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.line) > 0 {
		p.line = p.line[:len(p.line)-1]
	}
	p.redrawLocked()
}

// Submit commits the input line: the transient suffix is erased so it
// never sticks to the submitted line in scrollback.
func (p *printer) Submit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, "\r\x1b[K> "+string(p.line)+"\r\n")
	p.line = p.line[:0]
}

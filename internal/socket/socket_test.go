package socket_test

import (
	"sync"
	"testing"

	"github.com/andrewlidong/beam-messenger/internal/socket"
	"github.com/andrewlidong/beam-messenger/internal/testharness"
	"github.com/andrewlidong/beam-messenger/internal/transport"
)

func TestMakeRefMonotonic(t *testing.T) {
	s := socket.New(socket.Config{}, socket.WithTransport(testharness.NewFakeTransport()))
	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 100; i++ {
		ref := s.MakeRef()
		if seen[ref] {
			t.Fatalf("duplicate ref %q", ref)
		}
		seen[ref] = true
		if ref == prev {
			t.Fatalf("ref did not advance past %q", prev)
		}
		prev = ref
	}
}

func TestSocketIDsAreUnique(t *testing.T) {
	a := socket.New(socket.Config{}, socket.WithTransport(testharness.NewFakeTransport()))
	b := socket.New(socket.Config{}, socket.WithTransport(testharness.NewFakeTransport()))
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("ids = %q, %q, want distinct non-empty", a.ID(), b.ID())
	}
}

func TestDispatchRoutesByTopic(t *testing.T) {
	ft := testharness.NewFakeTransport()
	s := socket.New(socket.Config{}, socket.WithTransport(ft))

	var mu sync.Mutex
	got := make(map[string][]string)
	record := func(topic string) socket.FrameHandler {
		return func(frame transport.Frame) {
			mu.Lock()
			got[topic] = append(got[topic], frame.Event)
			mu.Unlock()
		}
	}
	s.Subscribe("chat:lobby", record("chat:lobby"))
	s.Subscribe("chat:other", record("chat:other"))
	s.Connect()

	ft.Deliver(transport.Frame{Topic: "chat:lobby", Event: "new_message"})
	ft.Deliver(transport.Frame{Topic: "chat:other", Event: "user_typing"})
	ft.Deliver(transport.Frame{Topic: "chat:nobody", Event: "new_message"})
	ft.Deliver(transport.Frame{Topic: "chat:lobby", Event: "user_joined"})

	testharness.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got["chat:lobby"]) == 2 && len(got["chat:other"]) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if got["chat:lobby"][0] != "new_message" || got["chat:lobby"][1] != "user_joined" {
		t.Errorf("lobby events = %v, want transport order preserved", got["chat:lobby"])
	}
	if len(got["chat:nobody"]) != 0 {
		t.Errorf("frames delivered for unsubscribed topic: %v", got["chat:nobody"])
	}
}

func TestUnsubscribeStopsRouting(t *testing.T) {
	ft := testharness.NewFakeTransport()
	s := socket.New(socket.Config{}, socket.WithTransport(ft))

	var mu sync.Mutex
	var count int
	s.Subscribe("chat:lobby", func(transport.Frame) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	s.Connect()

	ft.Deliver(transport.Frame{Topic: "chat:lobby", Event: "new_message"})
	testharness.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	s.Unsubscribe("chat:lobby")
	ft.Deliver(transport.Frame{Topic: "chat:lobby", Event: "new_message"})
	// Drain through a second subscribed topic so we know dispatch advanced.
	done := make(chan struct{})
	s.Subscribe("chat:probe", func(transport.Frame) { close(done) })
	ft.Deliver(transport.Frame{Topic: "chat:probe", Event: "ping"})
	<-done

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("handler ran %d times after unsubscribe, want 1", count)
	}
}

func TestOnOpenFiresOnEveryOpen(t *testing.T) {
	ft := testharness.NewFakeTransport()
	s := socket.New(socket.Config{}, socket.WithTransport(ft))

	var mu sync.Mutex
	var opens int
	s.OnOpen(func() {
		mu.Lock()
		opens++
		mu.Unlock()
	})

	s.Connect()
	ft.Reopen()

	mu.Lock()
	defer mu.Unlock()
	if opens != 2 {
		t.Errorf("opens = %d, want 2 (initial connect plus reconnect)", opens)
	}
}

func TestAcquireReturnsSameInstance(t *testing.T) {
	defer socket.Release()

	first := socket.Acquire(socket.Config{}, socket.WithTransport(testharness.NewFakeTransport()))
	second := socket.Acquire(socket.Config{}, socket.WithTransport(testharness.NewFakeTransport()))
	if first != second {
		t.Error("second Acquire returned a different socket")
	}
	if first.State() != transport.StateOpen {
		t.Errorf("state = %v, want open after Acquire", first.State())
	}
}

func TestReleaseClearsSlotForFreshAcquire(t *testing.T) {
	defer socket.Release()

	first := socket.Acquire(socket.Config{}, socket.WithTransport(testharness.NewFakeTransport()))
	socket.Release()
	if first.State() != transport.StateClosed {
		t.Errorf("released socket state = %v, want closed", first.State())
	}

	second := socket.Acquire(socket.Config{}, socket.WithTransport(testharness.NewFakeTransport()))
	if first == second {
		t.Error("Acquire after Release returned the stale socket")
	}
}

func TestReleaseWithoutAcquireIsNoOp(t *testing.T) {
	socket.Release()
}

package channel

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/andrewlidong/beam-messenger/internal/transport"
)

func TestPushResolvesExactlyOnce(t *testing.T) {
	push := newPush("new_message", "1")

	var okRuns, errRuns int
	push.Receive(transport.StatusOK, func(json.RawMessage) { okRuns++ })
	push.Receive(transport.StatusError, func(json.RawMessage) { errRuns++ })

	push.resolve(transport.StatusOK, nil)
	push.resolve(transport.StatusError, errorReason("late"))
	push.resolve(transport.StatusOK, nil)

	if okRuns != 1 {
		t.Errorf("ok continuation ran %d times, want 1", okRuns)
	}
	if errRuns != 0 {
		t.Errorf("error continuation ran %d times, want 0", errRuns)
	}
}

func TestReceiveAfterResolveFiresImmediately(t *testing.T) {
	push := newPush("new_message", "1")
	push.resolve(transport.StatusError, errorReason("too late"))

	var reason string
	push.Receive(transport.StatusError, func(response json.RawMessage) {
		reason = transport.ReasonOf(response, "")
	})
	if reason != "too late" {
		t.Errorf("reason = %q, want late registration to fire immediately", reason)
	}

	var okRan bool
	push.Receive(transport.StatusOK, func(json.RawMessage) { okRan = true })
	if okRan {
		t.Error("non-matching late registration fired")
	}
}

func TestResolvedConstructor(t *testing.T) {
	push := Resolved("new_message", transport.StatusError, "room not joined")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	status, response, err := push.Await(ctx)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if status != transport.StatusError {
		t.Errorf("status = %q, want error", status)
	}
	if reason := transport.ReasonOf(response, ""); reason != "room not joined" {
		t.Errorf("reason = %q, want %q", reason, "room not joined")
	}
}

func TestAwaitHonorsContext(t *testing.T) {
	push := newPush("new_message", "1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := push.Await(ctx); err == nil {
		t.Error("Await on an unresolved push returned without error")
	}
}

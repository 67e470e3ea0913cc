package transport

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeReply(t *testing.T) {
	reply, err := DecodeReply(json.RawMessage(`{"status":"ok","response":{"id":"m1"}}`))
	if err != nil {
		t.Fatalf("DecodeReply: %v", err)
	}
	if reply.Status != StatusOK {
		t.Errorf("status = %q, want ok", reply.Status)
	}
	var body map[string]string
	if err := json.Unmarshal(reply.Response, &body); err != nil || body["id"] != "m1" {
		t.Errorf("response = %s, want the embedded body", reply.Response)
	}
}

func TestDecodeReplyRejectsBadPayloads(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"not json", `{{`},
		{"unknown status", `{"status":"maybe"}`},
		{"missing status", `{"response":{}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeReply(json.RawMessage(tc.payload))
			if err == nil {
				t.Fatalf("DecodeReply(%s) succeeded", tc.payload)
			}
			if CodeOf(err) != CodeInvalidFrame {
				t.Errorf("code = %s, want %s", CodeOf(err), CodeInvalidFrame)
			}
		})
	}
}

func TestReasonOf(t *testing.T) {
	if got := ReasonOf(json.RawMessage(`{"reason":"rate limited"}`), "fallback"); got != "rate limited" {
		t.Errorf("reason = %q, want %q", got, "rate limited")
	}
	if got := ReasonOf(json.RawMessage(`{}`), "fallback"); got != "fallback" {
		t.Errorf("reason = %q, want fallback", got)
	}
	if got := ReasonOf(nil, "fallback"); got != "fallback" {
		t.Errorf("reason for nil response = %q, want fallback", got)
	}
}

func TestMarshalPayloadNilBecomesEmptyObject(t *testing.T) {
	body, err := MarshalPayload(nil)
	if err != nil {
		t.Fatalf("MarshalPayload: %v", err)
	}
	if string(body) != "{}" {
		t.Errorf("body = %s, want {}", body)
	}
}

func TestErrorFormatsAndUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(CodeConnection, "dial failed", cause)

	if got := err.Error(); got != "[CONNECTION_ERROR] dial failed: connection refused" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
	if CodeOf(err) != CodeConnection {
		t.Errorf("CodeOf = %s, want %s", CodeOf(err), CodeConnection)
	}
	if CodeOf(errors.New("plain")) != CodeConnection {
		t.Error("unclassified error did not default to CONNECTION_ERROR")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want bool
	}{
		{CodeConnection, true},
		{CodeClosed, true},
		{CodeJoinFailed, false},
		{CodePushFailed, false},
		{CodeInvalidFrame, false},
	}
	for _, tc := range cases {
		err := NewError(tc.code, "x", nil)
		if got := IsRetryable(err); got != tc.want {
			t.Errorf("IsRetryable(%s) = %v, want %v", tc.code, got, tc.want)
		}
	}
	if IsRetryable(nil) {
		t.Error("IsRetryable(nil) = true")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateUninitialized: "uninitialized",
		StateConnecting:    "connecting",
		StateOpen:          "open",
		StateClosed:        "closed",
		StateErrored:       "errored",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

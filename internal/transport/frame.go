// Package transport carries framed events between the client core and the
// messenger server over a persistent websocket connection.
//
// The framing is deliberately small: every frame names a topic and an
// event, outbound frames carry a ref the server echoes back in a
// beam_reply frame, and the reply body resolves to exactly one of
// "ok" or "error". Frames for one connection are delivered in order;
// the presence and message layers depend on that.
package transport

import "encoding/json"

// Reserved event names used by the channel protocol itself. Application
// events (new_message, presence_diff, ...) use their own names.
const (
	EventJoin  = "beam_join"
	EventLeave = "beam_leave"
	EventReply = "beam_reply"
	EventClose = "beam_close"
)

// Reply statuses carried in a beam_reply body.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Frame is one application-level event on the wire.
type Frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ref     string          `json:"ref,omitempty"`
	JoinRef string          `json:"join_ref,omitempty"`
}

// Reply is the body of a beam_reply frame acknowledging a push or join.
type Reply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
}

type errorResponse struct {
	Reason string `json:"reason"`
}

// DecodeReply parses a beam_reply payload.
func DecodeReply(payload json.RawMessage) (Reply, error) {
	var reply Reply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return Reply{}, NewError(CodeInvalidFrame, "malformed reply payload", err)
	}
	if reply.Status != StatusOK && reply.Status != StatusError {
		return Reply{}, NewError(CodeInvalidFrame, "reply status must be ok or error", nil)
	}
	return reply, nil
}

// ReasonOf extracts a human-readable reason from an error reply response.
func ReasonOf(response json.RawMessage, fallback string) string {
	var body errorResponse
	if err := json.Unmarshal(response, &body); err == nil && body.Reason != "" {
		return body.Reason
	}
	return fallback
}

// MarshalPayload encodes an event payload for framing.
func MarshalPayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage(`{}`), nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, NewError(CodeInvalidFrame, "unencodable payload", err)
	}
	return data, nil
}

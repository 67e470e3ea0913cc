// Package models defines the data types shared between the beam-messenger
// client core and its wire protocol: session identity, chat messages, and
// the presence snapshot/diff shapes used to replicate the room roster.
package models

import "time"

// Identity is the session identity established once at startup.
// It is never mutated after construction.
type Identity struct {
	UserID   string
	Username string
	RoomID   string
	Token    string
}

// Message is an immutable chat message. ID is server-assigned and may be
// empty on a client-originated message before the send is acknowledged.
type Message struct {
	ID        string    `json:"id,omitempty"`
	SenderID  string    `json:"sender_id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Meta is one connection's worth of presence metadata for a user. A user
// connected from several tabs or devices has one meta per connection.
//
// Ref identifies the connection itself. Two metas from the same user can
// carry identical visible fields, so leave events are matched by Ref,
// never by value equality.
type Meta struct {
	Ref      string `json:"ref"`
	Username string `json:"username"`
	Status   string `json:"status,omitempty"`
	Typing   bool   `json:"typing"`
}

// MetaList wraps the meta sequence for one user in the wire shape used by
// presence snapshots and diffs.
type MetaList struct {
	Metas []Meta `json:"metas"`
}

// PresenceState is the full presence snapshot: user ID to active metas.
type PresenceState map[string]MetaList

// PresenceDiff carries only the keys that changed since the last snapshot
// or diff. Applying it is a merge, not a replace.
type PresenceDiff struct {
	Joins  PresenceState `json:"joins"`
	Leaves PresenceState `json:"leaves"`
}

// Presence status values carried in Meta.Status.
const (
	StatusOnline = "online"
	StatusAway   = "away"
)

// NewMessagePayload is the outbound payload for a chat message push.
type NewMessagePayload struct {
	Text string `json:"text"`
}

// MessageHistoryPayload is delivered once after join and again after a
// transport reconnect.
type MessageHistoryPayload struct {
	Messages []Message `json:"messages"`
}

// TypingPayload is both the outbound typing push and the inbound
// user_typing event body.
type TypingPayload struct {
	UserID string `json:"user_id,omitempty"`
	Typing bool   `json:"typing"`
}

// StatusPayload is the outbound presence status push (online/away).
type StatusPayload struct {
	Status string `json:"status"`
}

// UserJoinedPayload announces a user joining the room.
type UserJoinedPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// UserLeftPayload announces a user leaving the room.
type UserLeftPayload struct {
	UserID string `json:"user_id"`
}

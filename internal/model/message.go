// Package model defines data structures for the support-desk platform.
package model

import (
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAI    Sender = "ai"
	SenderHuman Sender = "human"
)

// SessionStatus is the routing state of a conversation. A session has no row
// of its own; its current status is the SessionStatus of its latest message.
type SessionStatus string

const (
	// StatusAIOnly routes every inbound message to the automated responder.
	StatusAIOnly SessionStatus = "ai_only"

	// StatusHumanRequested means a hand-off was triggered and the responder
	// stays silent until a human replies or the session is explicitly ended.
	// This state never reverts on timeout.
	StatusHumanRequested SessionStatus = "human_requested"

	// StatusHumanActive means a human agent has replied at least once and
	// owns the conversation while their activity is recent.
	StatusHumanActive SessionStatus = "human_active"

	// StatusHumanEnded closes the human-assisted portion; the next user
	// message is routed as if the session were fresh.
	StatusHumanEnded SessionStatus = "human_ended"
)

// Message is an immutable record in a session's append-only log.
type Message struct {
	// Identity
	ID        string `json:"id"`
	SessionID string `json:"session_id"`

	// Content
	Sender Sender `json:"sender"`
	Body   string `json:"body"`

	// Routing state, denormalized at write time for audit and replay.
	NeedHumanReply  bool          `json:"need_human_reply"`
	SessionStatus   SessionStatus `json:"session_status"`
	HumanActivityAt *time.Time    `json:"human_activity_at,omitempty"`

	// Author metadata (empty for anonymous visitors)
	UserID    string `json:"user_id,omitempty"`
	UserName  string `json:"user_name,omitempty"`
	UserPhone string `json:"user_phone,omitempty"`

	// Responder latency, only set on AI replies.
	ReplyLatencyMs *int64 `json:"reply_latency_ms,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`

	// Stream metadata (populated on read)
	Sequence uint64 `json:"sequence,omitempty"`
}

// AuthorMeta carries optional identity attached to a user message. The state
// machine behaves identically whether or not it is present.
type AuthorMeta struct {
	UserID      string
	DisplayName string
	Phone       string
}

// SessionSnapshot summarizes a session by its latest message. Used by the
// timeout reclaimer and the agent console listings.
type SessionSnapshot struct {
	SessionID       string        `json:"session_id"`
	Status          SessionStatus `json:"status"`
	LastMessageAt   time.Time     `json:"last_message_at"`
	LastBody        string        `json:"last_body,omitempty"`
	LastSender      Sender        `json:"last_sender,omitempty"`
	HumanActivityAt *time.Time    `json:"human_activity_at,omitempty"`
	UserName        string        `json:"user_name,omitempty"`
	UserPhone       string        `json:"user_phone,omitempty"`
}

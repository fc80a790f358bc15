// Package store defines the append-only session log consumed by the
// state machine and the timeout reclaimer.
package store

import (
	"context"
	"errors"

	"github.com/baodeli/support-desk/internal/model"
)

var (
	// ErrUnavailable indicates the backing log could not be read or written.
	// Callers retry the whole operation; no partial state is left behind.
	ErrUnavailable = errors.New("session store unavailable")
)

// SessionStore is an append-only ordered log of messages keyed by session id.
// Within one session, reads observe a consistent latest-message snapshot and
// appends are atomic; across sessions there is no ordering requirement.
type SessionStore interface {
	// LatestMessage returns the most recent message for a session, or
	// (nil, nil) when the session has no messages yet.
	LatestMessage(ctx context.Context, sessionID string) (*model.Message, error)

	// RecentMessages returns up to limit messages for a session, ordered
	// oldest to newest.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]model.Message, error)

	// History returns one page of a session's log, oldest first, along with
	// the total message count.
	History(ctx context.Context, sessionID string, offset, limit int) ([]model.Message, int, error)

	// Append writes one message to the session's log. Atomic per call.
	Append(ctx context.Context, msg *model.Message) error

	// SessionsWithStatus returns a snapshot per session whose current
	// (latest-message) status is one of the given statuses.
	SessionsWithStatus(ctx context.Context, statuses ...model.SessionStatus) ([]model.SessionSnapshot, error)
}

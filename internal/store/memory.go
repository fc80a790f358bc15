package store

import (
	"context"
	"sort"
	"sync"

	"github.com/baodeli/support-desk/internal/model"
)

// MemoryStore is an in-memory SessionStore for tests and single-node dev
// mode. Messages are kept in append order per session.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]model.Message
	seq      uint64
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]model.Message),
	}
}

// LatestMessage returns the most recent message for a session, or nil.
func (s *MemoryStore) LatestMessage(ctx context.Context, sessionID string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.sessions[sessionID]
	if len(msgs) == 0 {
		return nil, nil
	}
	last := msgs[len(msgs)-1]
	return &last, nil
}

// RecentMessages returns up to limit messages for a session, oldest first.
func (s *MemoryStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.sessions[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// History returns one page of the session's log, oldest first.
func (s *MemoryStore) History(ctx context.Context, sessionID string, offset, limit int) ([]model.Message, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.sessions[sessionID]
	total := len(msgs)

	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}

	out := make([]model.Message, end-offset)
	copy(out, msgs[offset:end])
	return out, total, nil
}

// Append writes one message to the session's log.
func (s *MemoryStore) Append(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	msg.Sequence = s.seq
	s.sessions[msg.SessionID] = append(s.sessions[msg.SessionID], *msg)
	return nil
}

// SessionsWithStatus returns a snapshot per session whose latest message
// carries one of the given statuses.
func (s *MemoryStore) SessionsWithStatus(ctx context.Context, statuses ...model.SessionStatus) ([]model.SessionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[model.SessionStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	var out []model.SessionSnapshot
	for id, msgs := range s.sessions {
		if len(msgs) == 0 {
			continue
		}
		last := msgs[len(msgs)-1]
		if !want[last.SessionStatus] {
			continue
		}
		out = append(out, snapshotOf(id, msgs))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

func snapshotOf(sessionID string, msgs []model.Message) model.SessionSnapshot {
	last := msgs[len(msgs)-1]
	snap := model.SessionSnapshot{
		SessionID:       sessionID,
		Status:          last.SessionStatus,
		LastMessageAt:   last.CreatedAt,
		LastBody:        last.Body,
		LastSender:      last.Sender,
		HumanActivityAt: last.HumanActivityAt,
	}
	// Walk back for the most recent author identity and human activity.
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if snap.UserName == "" && m.UserName != "" {
			snap.UserName = m.UserName
			snap.UserPhone = m.UserPhone
		}
		if snap.HumanActivityAt == nil && m.HumanActivityAt != nil {
			snap.HumanActivityAt = m.HumanActivityAt
		}
	}
	return snap
}

package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/baodeli/support-desk/internal/model"
	"github.com/baodeli/support-desk/internal/store"
)

const (
	// StreamName is the name of the chat message stream.
	StreamName = "SUPPORT_CHAT"

	// SubjectPrefix is the prefix for all chat subjects.
	SubjectPrefix = "chat"

	// SnapshotBucket is the KV bucket holding the latest message per session.
	SnapshotBucket = "chat_sessions"

	// historyCap bounds how many messages one session read will fetch.
	historyCap = 1000
)

// Store is the JetStream-backed session store. The stream is the durable
// append-only log; a KV bucket carries the latest message per session so
// "read latest, decide, append" needs no stream scan. The KV write is a
// derived index: concurrent appends to one session race benignly and the
// last writer determines the observed status.
type Store struct {
	client *Client
	kv     jetstream.KeyValue
}

var _ store.SessionStore = (*Store)(nil)

// NewStore ensures the stream and snapshot bucket exist and returns the
// store.
func NewStore(ctx context.Context, client *Client) (*Store, error) {
	js := client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err != nil {
		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        StreamName,
			Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      365 * 24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			Compression: jetstream.S2Compression,
			DenyDelete:  true,
			DenyPurge:   true,
			Description: "All support chat messages",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
	}

	kv, err := js.KeyValue(ctx, SnapshotBucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      SnapshotBucket,
			Description: "Latest message per chat session",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create snapshot bucket: %w", err)
		}
	}

	return &Store{client: client, kv: kv}, nil
}

// MessageSubject returns the subject a message is published on.
func MessageSubject(sessionID string, sender model.Sender) string {
	return fmt.Sprintf("%s.%s.msg.%s", SubjectPrefix, sessionID, sender)
}

// sessionFilter matches all messages of one session.
func sessionFilter(sessionID string) string {
	return fmt.Sprintf("%s.%s.msg.>", SubjectPrefix, sessionID)
}

// Append publishes the message to the stream and refreshes the session's
// latest-message snapshot.
func (s *Store) Append(ctx context.Context, msg *model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ack, err := s.client.JetStream().Publish(ctx, MessageSubject(msg.SessionID, msg.Sender), data)
	if err != nil {
		return fmt.Errorf("%w: publish: %v", store.ErrUnavailable, err)
	}
	msg.Sequence = ack.Sequence

	snap, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if _, err := s.kv.Put(ctx, msg.SessionID, snap); err != nil {
		return fmt.Errorf("%w: snapshot put: %v", store.ErrUnavailable, err)
	}
	return nil
}

// LatestMessage returns the most recent message for a session, or (nil, nil)
// when the session has none.
func (s *Store) LatestMessage(ctx context.Context, sessionID string) (*model.Message, error) {
	entry, err := s.kv.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: snapshot get: %v", store.ErrUnavailable, err)
	}

	var msg model.Message
	if err := json.Unmarshal(entry.Value(), &msg); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &msg, nil
}

// RecentMessages returns up to limit messages for a session, oldest first.
func (s *Store) RecentMessages(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	msgs, err := s.fetchSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// History returns one page of the session's log, oldest first.
func (s *Store) History(ctx context.Context, sessionID string, offset, limit int) ([]model.Message, int, error) {
	msgs, err := s.fetchSession(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}
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
	return msgs[offset:end], total, nil
}

// SessionsWithStatus scans the snapshot bucket for sessions whose latest
// message carries one of the given statuses.
func (s *Store) SessionsWithStatus(ctx context.Context, statuses ...model.SessionStatus) ([]model.SessionSnapshot, error) {
	want := make(map[model.SessionStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", store.ErrUnavailable, err)
	}

	var out []model.SessionSnapshot
	for key := range lister.Keys() {
		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		var msg model.Message
		if err := json.Unmarshal(entry.Value(), &msg); err != nil {
			continue
		}
		if !want[msg.SessionStatus] {
			continue
		}
		out = append(out, model.SessionSnapshot{
			SessionID:       msg.SessionID,
			Status:          msg.SessionStatus,
			LastMessageAt:   msg.CreatedAt,
			LastBody:        msg.Body,
			LastSender:      msg.Sender,
			HumanActivityAt: msg.HumanActivityAt,
			UserName:        msg.UserName,
			UserPhone:       msg.UserPhone,
		})
	}
	return out, nil
}

func (s *Store) fetchSession(ctx context.Context, sessionID string) ([]model.Message, error) {
	js := s.client.JetStream()

	consumer, err := js.CreateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: sessionFilter(sessionID),
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create consumer: %v", store.ErrUnavailable, err)
	}

	batch, err := consumer.Fetch(historyCap, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("%w: fetch: %v", store.ErrUnavailable, err)
	}

	var msgs []model.Message
	for m := range batch.Messages() {
		var message model.Message
		if err := json.Unmarshal(m.Data(), &message); err != nil {
			continue
		}
		if meta, err := m.Metadata(); err == nil {
			message.Sequence = meta.Sequence.Stream
		}
		msgs = append(msgs, message)
	}
	if batch.Error() != nil && !errors.Is(batch.Error(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: batch: %v", store.ErrUnavailable, batch.Error())
	}
	return msgs, nil
}

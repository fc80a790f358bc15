package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/baodeli/support-desk/internal/model"
	"github.com/baodeli/support-desk/internal/responder"
	"github.com/baodeli/support-desk/internal/store"
	"github.com/baodeli/support-desk/pkg/logger"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestEngine(t *testing.T) (*Engine, *store.MemoryStore, *fakeClock) {
	t.Helper()
	st := store.NewMemoryStore()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	r := responder.New(responder.Config{Intn: func(int) int { return 0 }})
	engine := NewEngine(st, r, clk, DefaultIdleThreshold, logger.NewNop())
	return engine, st, clk
}

func latest(t *testing.T, st *store.MemoryStore, sessionID string) *model.Message {
	t.Helper()
	msg, err := st.LatestMessage(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("LatestMessage: %v", err)
	}
	return msg
}

func TestFirstMessageDefaultsToAIOnly(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	out, err := engine.HandleInbound(context.Background(), "s1", "what is your price", nil)
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if out.Status != model.StatusAIOnly {
		t.Errorf("status = %s, want %s", out.Status, model.StatusAIOnly)
	}
	if out.AutoReply == nil {
		t.Fatal("expected an automated reply")
	}
	if !strings.Contains(out.AutoReply.Body, "300-800") {
		t.Errorf("expected the price answer, got %q", out.AutoReply.Body)
	}
	if out.AutoReply.ReplyLatencyMs == nil {
		t.Error("expected responder latency to be recorded")
	}
}

func TestHandoffLatch(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	out, err := engine.HandleInbound(ctx, "s1", "I want to file a complaint", nil)
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if out.Status != model.StatusHumanRequested {
		t.Fatalf("status = %s, want %s", out.Status, model.StatusHumanRequested)
	}
	if out.AutoReply != nil {
		t.Error("responder must stay silent on hand-off")
	}
	if !out.UserMessage.NeedHumanReply {
		t.Error("hand-off message must be flagged for a human")
	}

	// No amount of further user traffic moves the session on its own, with
	// or without trigger phrases, and no matter how much time passes.
	for _, msg := range []string{"hello?", "anyone there", "complaint again", "what is your price"} {
		out, err = engine.HandleInbound(ctx, "s1", msg, nil)
		if err != nil {
			t.Fatalf("HandleInbound(%q): %v", msg, err)
		}
		if out.Status != model.StatusHumanRequested {
			t.Errorf("after %q: status = %s, want %s", msg, out.Status, model.StatusHumanRequested)
		}
		if out.AutoReply != nil {
			t.Errorf("after %q: responder replied while hand-off pending", msg)
		}
	}
}

func TestHumanRequestedNeverTimesOut(t *testing.T) {
	engine, _, clk := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.HandleInbound(ctx, "s1", "complaint", nil); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}

	clk.Advance(2 * time.Hour)

	if reclaimed, err := engine.Sweep(ctx, clk.Now()); err != nil {
		t.Fatalf("Sweep: %v", err)
	} else if len(reclaimed) != 0 {
		t.Errorf("sweep reclaimed a human_requested session: %v", reclaimed)
	}

	out, err := engine.HandleInbound(ctx, "s1", "still waiting", nil)
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if out.Status != model.StatusHumanRequested {
		t.Errorf("status = %s, want %s", out.Status, model.StatusHumanRequested)
	}
}

func TestHumanReplyActivatesSession(t *testing.T) {
	engine, st, clk := newTestEngine(t)
	ctx := context.Background()

	engine.HandleInbound(ctx, "s1", "complaint", nil)

	msg, err := engine.HandleHumanReply(ctx, "s1", "Hi, how can I help?")
	if err != nil {
		t.Fatalf("HandleHumanReply: %v", err)
	}
	if msg.SessionStatus != model.StatusHumanActive {
		t.Errorf("status = %s, want %s", msg.SessionStatus, model.StatusHumanActive)
	}
	if msg.HumanActivityAt == nil || !msg.HumanActivityAt.Equal(clk.Now()) {
		t.Errorf("HumanActivityAt = %v, want %v", msg.HumanActivityAt, clk.Now())
	}
	if got := latest(t, st, "s1"); got.SessionStatus != model.StatusHumanActive {
		t.Errorf("persisted status = %s, want %s", got.SessionStatus, model.StatusHumanActive)
	}
}

func TestSilenceWhileHumanActive(t *testing.T) {
	engine, _, clk := newTestEngine(t)
	ctx := context.Background()

	engine.HandleInbound(ctx, "s1", "complaint", nil)
	engine.HandleHumanReply(ctx, "s1", "agent here")

	clk.Advance(time.Minute)

	out, err := engine.HandleInbound(ctx, "s1", "thanks, one more question", nil)
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if out.Status != model.StatusHumanActive {
		t.Errorf("status = %s, want %s", out.Status, model.StatusHumanActive)
	}
	if out.AutoReply != nil {
		t.Error("responder replied during an active human session")
	}
	if !out.UserMessage.NeedHumanReply {
		t.Error("message during human session must be flagged for the agent")
	}
}

func TestHumanActivityCarriedForward(t *testing.T) {
	engine, st, clk := newTestEngine(t)
	ctx := context.Background()

	engine.HandleInbound(ctx, "s1", "complaint", nil)
	engine.HandleHumanReply(ctx, "s1", "agent here")
	replyAt := clk.Now()

	// Two user messages inside the idle window; the latest message must
	// still answer "when did a human last act".
	clk.Advance(time.Minute)
	engine.HandleInbound(ctx, "s1", "question one", nil)
	clk.Advance(time.Minute)
	engine.HandleInbound(ctx, "s1", "question two", nil)

	got := latest(t, st, "s1")
	if got.HumanActivityAt == nil || !got.HumanActivityAt.Equal(replyAt) {
		t.Errorf("HumanActivityAt = %v, want %v", got.HumanActivityAt, replyAt)
	}

	// The idle gap is measured from the agent's reply, not from the user's
	// own traffic: one more minute puts the session past the threshold.
	clk.Advance(time.Minute + time.Second)
	out, err := engine.HandleInbound(ctx, "s1", "hello", nil)
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if out.Status != model.StatusAIOnly {
		t.Errorf("status = %s, want %s after idle gap", out.Status, model.StatusAIOnly)
	}
}

func TestLazyReclaimBoundary(t *testing.T) {
	tests := []struct {
		name        string
		gap         time.Duration
		wantStatus  model.SessionStatus
		wantReplied bool
	}{
		{"one second under", 179 * time.Second, model.StatusHumanActive, false},
		{"exactly at threshold", 180 * time.Second, model.StatusHumanActive, false},
		{"one second over", 181 * time.Second, model.StatusAIOnly, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _, clk := newTestEngine(t)
			ctx := context.Background()

			engine.HandleInbound(ctx, "s1", "complaint", nil)
			engine.HandleHumanReply(ctx, "s1", "agent here")

			clk.Advance(tt.gap)

			out, err := engine.HandleInbound(ctx, "s1", "hello", nil)
			if err != nil {
				t.Fatalf("HandleInbound: %v", err)
			}
			if out.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", out.Status, tt.wantStatus)
			}
			if (out.AutoReply != nil) != tt.wantReplied {
				t.Errorf("auto reply present = %v, want %v", out.AutoReply != nil, tt.wantReplied)
			}
		})
	}
}

func TestSweepBoundary(t *testing.T) {
	tests := []struct {
		name      string
		gap       time.Duration
		reclaimed bool
	}{
		{"recent agent not swept", 179 * time.Second, false},
		{"stale agent swept", 181 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, st, clk := newTestEngine(t)
			ctx := context.Background()

			engine.HandleInbound(ctx, "s1", "complaint", nil)
			engine.HandleHumanReply(ctx, "s1", "agent here")

			clk.Advance(tt.gap)

			reclaimed, err := engine.Sweep(ctx, clk.Now())
			if err != nil {
				t.Fatalf("Sweep: %v", err)
			}
			if got := len(reclaimed) == 1; got != tt.reclaimed {
				t.Errorf("reclaimed = %v, want reclaimed=%v", reclaimed, tt.reclaimed)
			}
			if tt.reclaimed {
				if got := latest(t, st, "s1"); got.SessionStatus != model.StatusAIOnly {
					t.Errorf("persisted status = %s, want %s", got.SessionStatus, model.StatusAIOnly)
				}
			}
		})
	}
}

func TestSweepIdempotent(t *testing.T) {
	engine, _, clk := newTestEngine(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		engine.HandleInbound(ctx, id, "complaint", nil)
		engine.HandleHumanReply(ctx, id, "agent here")
	}

	clk.Advance(4 * time.Minute)

	first, err := engine.Sweep(ctx, clk.Now())
	if err != nil {
		t.Fatalf("first Sweep: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("first sweep reclaimed %d sessions, want 2", len(first))
	}

	second, err := engine.Sweep(ctx, clk.Now())
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("second sweep reclaimed %v, want none", second)
	}
}

func TestEndSessionSoftReset(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()

	engine.HandleInbound(ctx, "s1", "complaint", nil)
	engine.HandleHumanReply(ctx, "s1", "agent here")

	msg, err := engine.EndSession(ctx, "s1")
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if msg.SessionStatus != model.StatusHumanEnded {
		t.Errorf("status = %s, want %s", msg.SessionStatus, model.StatusHumanEnded)
	}
	if got := latest(t, st, "s1"); got.SessionStatus != model.StatusHumanEnded {
		t.Errorf("persisted status = %s, want %s", got.SessionStatus, model.StatusHumanEnded)
	}

	// The next user message is routed as a fresh session.
	out, err := engine.HandleInbound(ctx, "s1", "what material do you use", nil)
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if out.Status != model.StatusAIOnly {
		t.Errorf("status after end = %s, want %s", out.Status, model.StatusAIOnly)
	}
	if out.AutoReply == nil {
		t.Error("responder must resume after the session ended")
	}

	// And a trigger after the end starts a new hand-off.
	out, err = engine.HandleInbound(ctx, "s1", "complaint", nil)
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if out.Status != model.StatusHumanRequested {
		t.Errorf("status = %s, want %s", out.Status, model.StatusHumanRequested)
	}
}

func TestRequestHumanExplicit(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()

	out, err := engine.RequestHuman(ctx, "s1", "", nil)
	if err != nil {
		t.Fatalf("RequestHuman: %v", err)
	}
	if out.Status != model.StatusHumanRequested {
		t.Errorf("status = %s, want %s", out.Status, model.StatusHumanRequested)
	}
	if out.AutoReply == nil || !strings.Contains(out.AutoReply.Body, "forwarded") {
		t.Errorf("expected the canned transfer reply, got %+v", out.AutoReply)
	}
	if got := latest(t, st, "s1"); got.SessionStatus != model.StatusHumanRequested {
		t.Errorf("persisted status = %s, want %s", got.SessionStatus, model.StatusHumanRequested)
	}
}

func TestRoundTrip(t *testing.T) {
	engine, _, clk := newTestEngine(t)
	ctx := context.Background()

	// AI answers a product question.
	out, err := engine.HandleInbound(ctx, "s1", "what is your price", nil)
	if err != nil {
		t.Fatalf("step 1: %v", err)
	}
	if out.Status != model.StatusAIOnly || out.AutoReply == nil {
		t.Fatalf("step 1: status=%s reply=%v", out.Status, out.AutoReply)
	}
	if !strings.Contains(out.AutoReply.Body, "300-800") {
		t.Errorf("step 1: expected the price answer, got %q", out.AutoReply.Body)
	}

	// A complaint triggers the hand-off.
	out, err = engine.HandleInbound(ctx, "s1", "I want to file a complaint", nil)
	if err != nil {
		t.Fatalf("step 2: %v", err)
	}
	if out.Status != model.StatusHumanRequested || out.AutoReply != nil {
		t.Fatalf("step 2: status=%s reply=%v", out.Status, out.AutoReply)
	}
	if !out.UserMessage.NeedHumanReply {
		t.Error("step 2: complaint not flagged for a human")
	}

	// An agent takes over.
	msg, err := engine.HandleHumanReply(ctx, "s1", "Sorry to hear that, tell me more.")
	if err != nil {
		t.Fatalf("step 3: %v", err)
	}
	if msg.SessionStatus != model.StatusHumanActive || msg.HumanActivityAt == nil {
		t.Fatalf("step 3: status=%s activity=%v", msg.SessionStatus, msg.HumanActivityAt)
	}

	// Four silent minutes later the session is reclaimed lazily and the
	// responder answers again.
	clk.Advance(4 * time.Minute)
	out, err = engine.HandleInbound(ctx, "s1", "hello", nil)
	if err != nil {
		t.Fatalf("step 4: %v", err)
	}
	if out.Status != model.StatusAIOnly {
		t.Errorf("step 4: status = %s, want %s", out.Status, model.StatusAIOnly)
	}
	if out.AutoReply == nil {
		t.Fatal("step 4: expected an automated reply after reclaim")
	}
}

func TestInvalidInput(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name string
		call func() error
	}{
		{"empty session id", func() error {
			_, err := engine.HandleInbound(ctx, "", "hi", nil)
			return err
		}},
		{"empty message", func() error {
			_, err := engine.HandleInbound(ctx, "s1", "   ", nil)
			return err
		}},
		{"empty human reply", func() error {
			_, err := engine.HandleHumanReply(ctx, "s1", "")
			return err
		}},
		{"empty end session id", func() error {
			_, err := engine.EndSession(ctx, " ")
			return err
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.call(); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}

	// Rejection happens before any store access.
	if msg := latest(t, st, "s1"); msg != nil {
		t.Errorf("unexpected persisted message: %+v", msg)
	}
}

// failingStore fails every call, to check the all-or-nothing contract.
type failingStore struct {
	store.SessionStore
}

func (f *failingStore) LatestMessage(ctx context.Context, sessionID string) (*model.Message, error) {
	return nil, store.ErrUnavailable
}

func (f *failingStore) Append(ctx context.Context, msg *model.Message) error {
	return store.ErrUnavailable
}

func TestStoreFailureIsSurfaced(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	r := responder.New(responder.Config{Intn: func(int) int { return 0 }})
	engine := NewEngine(&failingStore{store.NewMemoryStore()}, r, clk, 0, logger.NewNop())

	if _, err := engine.HandleInbound(context.Background(), "s1", "hi", nil); !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("HandleInbound err = %v, want ErrUnavailable", err)
	}
	if _, err := engine.HandleHumanReply(context.Background(), "s1", "hi"); !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("HandleHumanReply err = %v, want ErrUnavailable", err)
	}
}

func TestAuthorMetaAttached(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()

	meta := &model.AuthorMeta{UserID: "u1", DisplayName: "Zhang Wei", Phone: "13800000000"}
	if _, err := engine.HandleInbound(ctx, "s1", "complaint", meta); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}

	got := latest(t, st, "s1")
	if got.UserID != "u1" || got.UserName != "Zhang Wei" || got.UserPhone != "13800000000" {
		t.Errorf("author meta not persisted: %+v", got)
	}

	// Anonymous traffic in the same machine behaves identically.
	out, err := engine.HandleInbound(ctx, "s2", "what is your price", nil)
	if err != nil {
		t.Fatalf("anonymous HandleInbound: %v", err)
	}
	if out.AutoReply == nil {
		t.Error("anonymous visitor did not get a reply")
	}
}

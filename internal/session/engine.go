// Package session implements the conversation hand-off state machine. Every
// session is an append-only log of messages; the latest message's status
// decides whether the automated responder or a human agent owns the
// conversation, and idle human sessions are reclaimed for automation.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/baodeli/support-desk/internal/model"
	"github.com/baodeli/support-desk/internal/responder"
	"github.com/baodeli/support-desk/internal/store"
	"github.com/baodeli/support-desk/pkg/logger"
	"github.com/baodeli/support-desk/pkg/metrics"
)

// DefaultIdleThreshold is how long a human agent may stay silent before the
// session is reclaimed for the automated responder.
const DefaultIdleThreshold = 3 * time.Minute

// ErrInvalidInput rejects empty session ids or message bodies before any
// store access.
var ErrInvalidInput = errors.New("session id and message must not be empty")

// Canned bodies for system-authored messages.
const (
	reclaimNotice = "The human agent session ended automatically due to inactivity. I am happy to keep helping you here."
	endNotice     = "The human agent has ended this conversation. If you have any other questions, just send a new message."
	transferReply = "Your request has been forwarded to a human agent, please hold on. Outside business hours (9:00-18:00) leave a message and we will get back to you."
)

// Clock supplies the current time. Injectable for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock Clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// Outcome is the result of handling one inbound user message.
type Outcome struct {
	UserMessage *model.Message
	AutoReply   *model.Message
	Status      model.SessionStatus
}

// Engine is the session state machine. It holds no per-session state; all
// durable state lives in the append-only store, so concurrent use across
// sessions is unrestricted.
type Engine struct {
	store     store.SessionStore
	responder *responder.Responder
	clock     Clock
	idle      time.Duration
	logger    *logger.Logger
}

// NewEngine creates a session engine. A zero idle threshold defaults to
// DefaultIdleThreshold and a nil clock to the system clock.
func NewEngine(st store.SessionStore, r *responder.Responder, clk Clock, idle time.Duration, log *logger.Logger) *Engine {
	if clk == nil {
		clk = SystemClock{}
	}
	if idle <= 0 {
		idle = DefaultIdleThreshold
	}
	return &Engine{
		store:     st,
		responder: r,
		clock:     clk,
		idle:      idle,
		logger:    log,
	}
}

// HandleInbound processes one user message: it derives the session's next
// status from the latest persisted message, appends the user message and, when
// the responder owns the conversation, an automated reply. The operation is
// all-or-nothing; on a store failure the caller retries the whole call.
func (e *Engine) HandleInbound(ctx context.Context, sessionID, text string, meta *model.AuthorMeta) (*Outcome, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(text) == "" {
		return nil, ErrInvalidInput
	}

	prior, err := e.store.LatestMessage(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read latest message: %w", err)
	}

	priorStatus := model.StatusAIOnly
	var priorActivity *time.Time
	if prior != nil {
		priorStatus = prior.SessionStatus
		priorActivity = prior.HumanActivityAt
	}
	// A closed human session behaves like a fresh one for routing; the
	// human_ended record stays in history for audit.
	if priorStatus == model.StatusHumanEnded {
		priorStatus = model.StatusAIOnly
	}

	needsHuman := e.responder.NeedsHuman(text)
	now := e.clock.Now()

	nextStatus := priorStatus
	reclaimed := false
	switch {
	case needsHuman && priorStatus == model.StatusAIOnly:
		nextStatus = model.StatusHumanRequested
		metrics.HandoffsTotal.WithLabelValues("phrase").Inc()
	case priorStatus == model.StatusHumanActive:
		// Lazy reclaim: accept the message as human-attended only while
		// the agent's last activity is recent.
		activity := lastActivity(prior, priorActivity)
		if now.Sub(activity) > e.idle {
			nextStatus = model.StatusAIOnly
			reclaimed = true
		}
	}

	if reclaimed {
		// Status-correction write so later reads observe the reclaim even
		// if the periodic sweep never runs.
		if err := e.appendReclaimNotice(ctx, sessionID, now); err != nil {
			return nil, err
		}
		metrics.RecordReclaim("lazy")
		e.logger.Info("session reclaimed lazily", zap.String("session_id", sessionID))
	}

	userMsg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		SessionID:      sessionID,
		Sender:         model.SenderUser,
		Body:           text,
		NeedHumanReply: needsHuman || priorStatus == model.StatusHumanActive,
		SessionStatus:  nextStatus,
		CreatedAt:      now,
	}
	if nextStatus == model.StatusHumanActive {
		// Carry the last human moment forward so the latest message alone
		// still answers "when did a human last act".
		userMsg.HumanActivityAt = priorActivity
	}
	if meta != nil {
		userMsg.UserID = meta.UserID
		userMsg.UserName = meta.DisplayName
		userMsg.UserPhone = meta.Phone
	}

	if err := e.store.Append(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}
	metrics.RecordMessage(string(model.SenderUser))

	out := &Outcome{UserMessage: userMsg, Status: nextStatus}

	// The responder stays silent while a hand-off is pending or a human
	// agent is recently active.
	if nextStatus == model.StatusHumanRequested || nextStatus == model.StatusHumanActive {
		return out, nil
	}

	reply, err := e.appendAutoReply(ctx, sessionID, text, nextStatus, now)
	if err != nil {
		return nil, err
	}
	out.AutoReply = reply
	return out, nil
}

// HandleHumanReply records a human agent's reply. This is the only transition
// into human_active; it also refreshes the agent's activity timestamp.
func (e *Engine) HandleHumanReply(ctx context.Context, sessionID, text string) (*model.Message, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(text) == "" {
		return nil, ErrInvalidInput
	}

	now := e.clock.Now()
	msg := &model.Message{
		ID:              uuid.Must(uuid.NewV7()).String(),
		SessionID:       sessionID,
		Sender:          model.SenderHuman,
		Body:            text,
		SessionStatus:   model.StatusHumanActive,
		HumanActivityAt: &now,
		CreatedAt:       now,
	}
	if err := e.store.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("append human reply: %w", err)
	}
	metrics.RecordMessage(string(model.SenderHuman))
	e.logger.Info("human agent replied", zap.String("session_id", sessionID))
	return msg, nil
}

// EndSession closes the human-assisted portion of a conversation. Prior
// records stay untouched; the appended message is the forward-only marker.
func (e *Engine) EndSession(ctx context.Context, sessionID string) (*model.Message, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidInput
	}

	now := e.clock.Now()
	msg := &model.Message{
		ID:            uuid.Must(uuid.NewV7()).String(),
		SessionID:     sessionID,
		Sender:        model.SenderAI,
		Body:          endNotice,
		SessionStatus: model.StatusHumanEnded,
		CreatedAt:     now,
	}
	if err := e.store.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("append end marker: %w", err)
	}
	metrics.RecordMessage(string(model.SenderAI))
	e.logger.Info("session ended by agent", zap.String("session_id", sessionID))
	return msg, nil
}

// RequestHuman records an explicit hand-off request, independent of trigger
// phrase detection, and answers it with the canned transfer reply.
func (e *Engine) RequestHuman(ctx context.Context, sessionID, text string, meta *model.AuthorMeta) (*Outcome, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidInput
	}
	if strings.TrimSpace(text) == "" {
		text = "Visitor requested a transfer to a human agent."
	}

	now := e.clock.Now()
	userMsg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		SessionID:      sessionID,
		Sender:         model.SenderUser,
		Body:           text,
		NeedHumanReply: true,
		SessionStatus:  model.StatusHumanRequested,
		CreatedAt:      now,
	}
	if meta != nil {
		userMsg.UserID = meta.UserID
		userMsg.UserName = meta.DisplayName
		userMsg.UserPhone = meta.Phone
	}
	if err := e.store.Append(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("append hand-off request: %w", err)
	}
	metrics.RecordMessage(string(model.SenderUser))
	metrics.HandoffsTotal.WithLabelValues("explicit").Inc()

	note := &model.Message{
		ID:            uuid.Must(uuid.NewV7()).String(),
		SessionID:     sessionID,
		Sender:        model.SenderAI,
		Body:          transferReply,
		SessionStatus: model.StatusHumanRequested,
		CreatedAt:     now,
	}
	if err := e.store.Append(ctx, note); err != nil {
		return nil, fmt.Errorf("append transfer reply: %w", err)
	}
	metrics.RecordMessage(string(model.SenderAI))

	return &Outcome{UserMessage: userMsg, AutoReply: note, Status: model.StatusHumanRequested}, nil
}

// Sweep reclaims every human_active session whose agent has been silent past
// the idle threshold and returns the reclaimed session ids. A failure on one
// session is logged and does not stop the pass; the sweep is idempotent and
// races benignly with lazy reclaims, both converging on ai_only.
func (e *Engine) Sweep(ctx context.Context, now time.Time) ([]string, error) {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	snaps, err := e.store.SessionsWithStatus(ctx, model.StatusHumanActive)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}

	var reclaimed []string
	for _, snap := range snaps {
		activity := snap.LastMessageAt
		if snap.HumanActivityAt != nil {
			activity = *snap.HumanActivityAt
		}
		if now.Sub(activity) <= e.idle {
			continue
		}
		if err := e.appendReclaimNotice(ctx, snap.SessionID, now); err != nil {
			e.logger.Warn("sweep failed for session",
				zap.String("session_id", snap.SessionID),
				zap.Error(err),
			)
			continue
		}
		metrics.RecordReclaim("sweep")
		reclaimed = append(reclaimed, snap.SessionID)
	}

	if pending, err := e.store.SessionsWithStatus(ctx, model.StatusHumanRequested); err == nil {
		metrics.PendingHandoffs.Set(float64(len(pending)))
	}

	if len(reclaimed) > 0 {
		e.logger.Info("sweep reclaimed idle sessions", zap.Int("count", len(reclaimed)))
	}
	return reclaimed, nil
}

// SweepNow runs one sweep at the engine clock's current time.
func (e *Engine) SweepNow(ctx context.Context) ([]string, error) {
	return e.Sweep(ctx, e.clock.Now())
}

// IdleThreshold returns the configured human inactivity threshold.
func (e *Engine) IdleThreshold() time.Duration { return e.idle }

func (e *Engine) appendReclaimNotice(ctx context.Context, sessionID string, now time.Time) error {
	msg := &model.Message{
		ID:            uuid.Must(uuid.NewV7()).String(),
		SessionID:     sessionID,
		Sender:        model.SenderAI,
		Body:          reclaimNotice,
		SessionStatus: model.StatusAIOnly,
		CreatedAt:     now,
	}
	if err := e.store.Append(ctx, msg); err != nil {
		return fmt.Errorf("append reclaim notice: %w", err)
	}
	metrics.RecordMessage(string(model.SenderAI))
	return nil
}

func (e *Engine) appendAutoReply(ctx context.Context, sessionID, text string, status model.SessionStatus, now time.Time) (*model.Message, error) {
	replyStart := time.Now()
	body, _ := e.responder.Reply(text)
	latency := time.Since(replyStart)
	metrics.ResponderLatency.Observe(latency.Seconds())
	latencyMs := latency.Milliseconds()

	reply := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		SessionID:      sessionID,
		Sender:         model.SenderAI,
		Body:           body,
		SessionStatus:  status,
		ReplyLatencyMs: &latencyMs,
		CreatedAt:      now,
	}
	if err := e.store.Append(ctx, reply); err != nil {
		return nil, fmt.Errorf("append auto reply: %w", err)
	}
	metrics.RecordMessage(string(model.SenderAI))
	return reply, nil
}

func lastActivity(prior *model.Message, activity *time.Time) time.Time {
	if activity != nil {
		return *activity
	}
	if prior != nil {
		return prior.CreatedAt
	}
	return time.Time{}
}

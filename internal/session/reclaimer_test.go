package session

import (
	"context"
	"testing"
	"time"

	"github.com/baodeli/support-desk/internal/model"
	"github.com/baodeli/support-desk/pkg/logger"
)

func TestReclaimerRunSweeps(t *testing.T) {
	engine, st, clk := newTestEngine(t)
	ctx := context.Background()

	engine.HandleInbound(ctx, "s1", "complaint", nil)
	engine.HandleHumanReply(ctx, "s1", "agent here")
	clk.Advance(10 * time.Minute)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		NewReclaimer(engine, 10*time.Millisecond, logger.NewNop()).Run(runCtx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		msg := latest(t, st, "s1")
		if msg.SessionStatus == model.StatusAIOnly {
			break
		}
		select {
		case <-deadline:
			t.Fatal("reclaimer did not sweep the stale session in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reclaimer did not stop on context cancellation")
	}
}

func TestReclaimerDefaults(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	r := NewReclaimer(engine, 0, logger.NewNop())
	if r.interval != DefaultSweepInterval {
		t.Errorf("interval = %v, want %v", r.interval, DefaultSweepInterval)
	}
}

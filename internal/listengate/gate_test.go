package listengate

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestGate(window time.Duration) (*Gate, *atomic.Int32, *atomic.Int32) {
	var pauses, resumes atomic.Int32
	g := New(window, Hooks{
		Pause:  func() { pauses.Add(1) },
		Resume: func() { resumes.Add(1) },
	}, testLogger())
	return g, &pauses, &resumes
}

func TestPauseOncePerTurn(t *testing.T) {
	g, pauses, resumes := newTestGate(time.Minute)

	g.TurnStarted()
	g.TurnStarted() // second sentence streaming in, still one suspension
	if got := pauses.Load(); got != 1 {
		t.Fatalf("expected pause called once, got %d", got)
	}
	if g.State() != Suspended {
		t.Fatalf("expected suspended state, got %v", g.State())
	}

	g.TurnComplete()
	g.TurnComplete()
	if got := resumes.Load(); got != 1 {
		t.Fatalf("expected resume called once, got %d", got)
	}
	if g.State() != FollowUpWindow {
		t.Fatalf("expected follow-up window, got %v", g.State())
	}
}

func TestFollowUpAcceptedInsideWindow(t *testing.T) {
	g, _, _ := newTestGate(time.Minute)
	g.TurnStarted()
	g.TurnComplete()

	if !g.FollowUpReceived() {
		t.Fatal("expected follow-up accepted inside window")
	}
	if g.State() != Listening {
		t.Fatalf("expected listening after follow-up, got %v", g.State())
	}
	if g.FollowUpReceived() {
		t.Fatal("second input should require a wake word again")
	}
}

func TestWindowExpiresToListening(t *testing.T) {
	g, _, _ := newTestGate(10 * time.Millisecond)
	g.TurnStarted()
	g.TurnComplete()

	deadline := time.Now().Add(time.Second)
	for g.State() != Listening {
		if time.Now().After(deadline) {
			t.Fatalf("window never expired, state %v", g.State())
		}
		time.Sleep(2 * time.Millisecond)
	}
	if g.FollowUpReceived() {
		t.Fatal("expired window should not accept follow-up")
	}
}

func TestZeroWindowSkipsFollowUp(t *testing.T) {
	g, _, resumes := newTestGate(0)
	g.TurnStarted()
	g.TurnComplete()

	if g.State() != Listening {
		t.Fatalf("expected listening with zero window, got %v", g.State())
	}
	if got := resumes.Load(); got != 1 {
		t.Fatalf("expected resume still called once, got %d", got)
	}
}

func TestNewTurnDuringFollowUpSuspendsAgain(t *testing.T) {
	g, pauses, _ := newTestGate(time.Minute)
	g.TurnStarted()
	g.TurnComplete()
	g.TurnStarted()

	if g.State() != Suspended {
		t.Fatalf("expected suspended, got %v", g.State())
	}
	if got := pauses.Load(); got != 2 {
		t.Fatalf("expected two pauses across two turns, got %d", got)
	}
}

func TestCompleteWithoutTurnIsNoOp(t *testing.T) {
	g, _, resumes := newTestGate(time.Minute)
	g.TurnComplete()
	if got := resumes.Load(); got != 0 {
		t.Fatalf("expected no resume without a turn, got %d", got)
	}
	if g.State() != Listening {
		t.Fatalf("expected listening, got %v", g.State())
	}
}

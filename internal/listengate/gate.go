// Package listengate coordinates the external speech-input listener around a
// spoken turn so the system does not transcribe its own voice.
package listengate

import (
	"log/slog"
	"sync"
	"time"
)

type State int

const (
	// Listening is the normal wake-word-gated mode.
	Listening State = iota
	// Suspended means a turn is streaming or playing; input is paused.
	Suspended
	// FollowUpWindow means playback just finished; input is live and needs
	// no wake word until the window elapses.
	FollowUpWindow
)

func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Suspended:
		return "suspended"
	case FollowUpWindow:
		return "follow-up"
	default:
		return "unknown"
	}
}

// Hooks are the two external listener controls the gate toggles. The gate
// owns neither; it is pure coordination state.
type Hooks struct {
	Pause  func()
	Resume func()
}

type Gate struct {
	mu     sync.Mutex
	state  State
	hooks  Hooks
	window time.Duration
	timer  *time.Timer
	logger *slog.Logger
}

func New(window time.Duration, hooks Hooks, logger *slog.Logger) *Gate {
	return &Gate{
		state:  Listening,
		hooks:  hooks,
		window: window,
		logger: logger.With(slog.String("component", "listen-gate")),
	}
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// TurnStarted suspends listening before the first clip plays. Pause is called
// once per suspension; starting a turn while already suspended is a no-op.
func (g *Gate) TurnStarted() {
	g.mu.Lock()
	if g.state == Suspended {
		g.mu.Unlock()
		return
	}
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.state = Suspended
	pause := g.hooks.Pause
	g.mu.Unlock()

	g.logger.Debug("listener suspended for spoken turn")
	if pause != nil {
		pause()
	}
}

// TurnComplete resumes listening and opens the follow-up window. With a zero
// window the gate returns straight to wake-word-gated listening.
func (g *Gate) TurnComplete() {
	g.mu.Lock()
	if g.state != Suspended {
		g.mu.Unlock()
		return
	}
	resume := g.hooks.Resume
	if g.window > 0 {
		g.state = FollowUpWindow
		g.timer = time.AfterFunc(g.window, g.expireWindow)
	} else {
		g.state = Listening
	}
	g.mu.Unlock()

	g.logger.Debug("listener resumed", slog.Duration("follow_up_window", g.window))
	if resume != nil {
		resume()
	}
}

func (g *Gate) expireWindow() {
	g.mu.Lock()
	if g.state == FollowUpWindow {
		g.state = Listening
		g.timer = nil
	}
	g.mu.Unlock()
}

// FollowUpReceived reports whether input arriving now counts as a follow-up
// (no wake word required), closing the window if so.
func (g *Gate) FollowUpReceived() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != FollowUpWindow {
		return false
	}
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.state = Listening
	return true
}

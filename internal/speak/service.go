package speak

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxalabs/voxa-core/internal/bus"
	"github.com/voxalabs/voxa-core/internal/config"
	"github.com/voxalabs/voxa-core/internal/listengate"
	"github.com/voxalabs/voxa-core/internal/playback"
	"github.com/voxalabs/voxa-core/internal/protocol"
	"github.com/voxalabs/voxa-core/internal/segment"
	"github.com/voxalabs/voxa-core/internal/synth"
	"github.com/voxalabs/voxa-core/internal/turnlog"
)

// Service bridges the bus to the speak pipeline: text deltas in, ordered
// audio out, listener control around each turn. The speaker is a single
// shared output device, so at most one turn is live at a time; deltas for a
// different session are dropped until the active turn completes.
type Service struct {
	cfg         config.Config
	bus         *bus.Client
	synthesizer synth.Synthesizer
	player      playback.Player
	store       *turnlog.Store
	gate        *listengate.Gate
	metrics     *Metrics
	logger      *slog.Logger
	tracer      trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	subDelta      *nats.Subscription
	subAbort      *nats.Subscription
	subTranscript *nats.Subscription

	mu            sync.Mutex
	active        *Turn
	activeSession string
}

func NewService(parent context.Context, cfg config.Config, busClient *bus.Client, synthesizer synth.Synthesizer, player playback.Player, store *turnlog.Store, metrics *Metrics, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:         cfg,
		bus:         busClient,
		synthesizer: synthesizer,
		player:      player,
		store:       store,
		metrics:     metrics,
		logger:      logger.With(slog.String("component", "speak-service")),
		tracer:      otel.Tracer("github.com/voxalabs/voxa-core/internal/speak"),
		ctx:         ctx,
		cancel:      cancel,
	}
	window := time.Duration(cfg.Speak.FollowUpWindowMS) * time.Millisecond
	s.gate = listengate.New(window, listengate.Hooks{
		Pause:  func() { s.publishListenControl(true, false) },
		Resume: func() { s.publishListenControl(false, true) },
	}, logger)
	return s
}

func (s *Service) Start() error {
	if !s.cfg.Speak.Enabled {
		return nil
	}
	subDelta, err := s.bus.Conn().Subscribe(protocol.SubjectTextDelta, s.handleDelta)
	if err != nil {
		return fmt.Errorf("subscribe text deltas: %w", err)
	}
	s.subDelta = subDelta

	subAbort, err := s.bus.Conn().Subscribe(protocol.SubjectTurnAbort, s.handleAbort)
	if err != nil {
		s.subDelta.Drain()
		return fmt.Errorf("subscribe turn aborts: %w", err)
	}
	s.subAbort = subAbort

	subTranscript, err := s.bus.Conn().Subscribe(protocol.SubjectTranscriptFinal, s.handleTranscript)
	if err != nil {
		s.subDelta.Drain()
		s.subAbort.Drain()
		return fmt.Errorf("subscribe transcripts: %w", err)
	}
	s.subTranscript = subTranscript
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.subDelta != nil {
		_ = s.subDelta.Drain()
	}
	if s.subAbort != nil {
		_ = s.subAbort.Drain()
	}
	if s.subTranscript != nil {
		_ = s.subTranscript.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Speak.Enabled || (s.subDelta != nil && s.subAbort != nil)
}

// Gate exposes the listen gate state for readiness reporting.
func (s *Service) Gate() *listengate.Gate {
	return s.gate
}

func (s *Service) handleDelta(msg *nats.Msg) {
	var delta protocol.TextDelta
	if err := json.Unmarshal(msg.Data, &delta); err != nil {
		s.logger.Warn("failed to decode text delta", slogError(err))
		return
	}
	if delta.SessionID == "" {
		return
	}
	if delta.Text == "" && !delta.Final {
		return
	}

	turn := s.ensureTurn(delta.SessionID)
	if turn == nil {
		s.logger.Warn("dropping text delta while another turn is active",
			slog.String("session", delta.SessionID))
		return
	}
	if delta.Text != "" {
		turn.AppendText(delta.Text)
	}
	if delta.Final {
		turn.Finish()
	}
}

func (s *Service) handleAbort(msg *nats.Msg) {
	var abort protocol.TurnAbort
	if err := json.Unmarshal(msg.Data, &abort); err != nil {
		s.logger.Warn("failed to decode turn abort", slogError(err))
		return
	}
	s.mu.Lock()
	turn := s.active
	s.mu.Unlock()
	if turn == nil || turn.SessionID != abort.SessionID {
		return
	}
	s.logger.Info("aborting spoken turn",
		slog.String("session", abort.SessionID),
		slog.String("reason", abort.Reason))
	turn.Abort()
}

func (s *Service) handleTranscript(msg *nats.Msg) {
	var transcript protocol.Transcript
	if err := json.Unmarshal(msg.Data, &transcript); err != nil {
		s.logger.Warn("failed to decode transcript", slogError(err))
		return
	}
	if transcript.Partial {
		return
	}
	if s.gate.FollowUpReceived() {
		s.logger.Info("follow-up accepted without wake word",
			slog.String("session", transcript.SessionID))
	}
}

// ensureTurn returns the live turn for the session, creating one (and
// suspending the listener) when none is live. While another session's turn is
// active it returns nil: resuming the listener or starting a second sequencer
// mid-turn would talk over the clip that is playing. A turn that is already
// winding down keeps its slot until playback completes; late deltas for it
// are dropped by the turn itself.
func (s *Service) ensureTurn(sessionID string) *Turn {
	s.mu.Lock()
	if active := s.active; active != nil {
		s.mu.Unlock()
		if active.SessionID == sessionID {
			return active
		}
		return nil
	}

	turnID := uuid.NewString()
	s.activeSession = sessionID
	s.mu.Unlock()

	// Suspend the listener before any synthesis is dispatched so the first
	// clip can never play into an open microphone.
	s.gate.TurnStarted()

	turnCtx, span := s.tracer.Start(s.ctx, "speak.turn",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("turn.id", turnID),
		))

	turn := NewTurn(turnCtx, TurnOptions{
		ID:          turnID,
		SessionID:   sessionID,
		Speak:       s.cfg.Speak,
		Synth:       s.cfg.Synth,
		Synthesizer: s.synthesizer,
		Player:      s.player,
		Logger:      s.logger,
		Metrics:     s.metrics,
		OnSentence:  func(sent segment.Sentence) { s.recordSentence(turnID, sent) },
		OnClip:      func(clip playback.Clip, err error) { s.recordClip(turnID, clip, err) },
	})
	s.mu.Lock()
	s.active = turn
	s.mu.Unlock()

	s.metrics.TurnStarted(s.ctx)
	s.logger.Info("spoken turn started",
		slog.String("session", sessionID),
		slog.String("turn", turnID))

	if s.store != nil {
		if err := s.store.AppendTurn(s.ctx, turnID, sessionID); err != nil {
			s.logger.Warn("failed to record turn", slogError(err))
		}
	}

	s.wg.Add(1)
	go s.awaitTurn(sessionID, turn, span)
	return turn
}

func (s *Service) awaitTurn(sessionID string, turn *Turn, span trace.Span) {
	defer s.wg.Done()

	select {
	case <-turn.Done():
	case <-s.ctx.Done():
		turn.Abort()
		<-turn.Done()
	}

	s.gate.TurnComplete()

	s.mu.Lock()
	if s.active == turn {
		s.active = nil
		s.activeSession = ""
	}
	s.mu.Unlock()

	entryType := turnlog.EntryTurnDone
	if turn.Aborted() {
		entryType = turnlog.EntryTurnAborted
	}
	if s.store != nil {
		if err := s.store.AppendEntry(context.Background(), turnlog.Entry{TurnID: turn.ID, Type: entryType}); err != nil {
			s.logger.Warn("failed to record turn completion", slogError(err))
		}
	}

	span.SetAttributes(
		attribute.Int("turn.sentences", turn.Sentences()),
		attribute.Int("turn.failed", turn.Failed()),
		attribute.Bool("turn.aborted", turn.Aborted()),
	)
	span.End()

	s.publishStatus(turn)
	s.logger.Info("spoken turn complete",
		slog.String("session", sessionID),
		slog.String("turn", turn.ID),
		slog.Int("sentences", turn.Sentences()),
		slog.Int("failed", turn.Failed()),
		slog.Bool("aborted", turn.Aborted()))
}

func (s *Service) recordSentence(turnID string, sent segment.Sentence) {
	if s.store == nil {
		return
	}
	err := s.store.AppendEntry(s.ctx, turnlog.Entry{
		TurnID:        turnID,
		Type:          turnlog.EntrySentence,
		SentenceIndex: int64(sent.Index),
		Detail:        sent.Text,
	})
	if err != nil {
		s.logger.Warn("failed to record sentence", slogError(err))
	}
}

func (s *Service) recordClip(turnID string, clip playback.Clip, playErr error) {
	if s.store == nil {
		return
	}
	entryType := turnlog.EntryClipPlayed
	detail := ""
	if clip.Audio == nil {
		entryType = turnlog.EntrySynthFailed
	} else if playErr != nil {
		detail = playErr.Error()
	}
	err := s.store.AppendEntry(context.Background(), turnlog.Entry{
		TurnID:        turnID,
		Type:          entryType,
		SentenceIndex: int64(clip.Index),
		Detail:        detail,
	})
	if err != nil {
		s.logger.Warn("failed to record clip", slogError(err))
	}
}

func (s *Service) publishListenControl(pause, followUp bool) {
	s.mu.Lock()
	sessionID := s.activeSession
	s.mu.Unlock()

	msg := protocol.ListenControl{
		SessionID: sessionID,
		Pause:     pause,
		FollowUp:  followUp,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("failed to marshal listen control", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectListenControl, data); err != nil {
		s.logger.Warn("failed to publish listen control", slogError(err))
	}
}

func (s *Service) publishStatus(turn *Turn) {
	msg := protocol.TurnStatus{
		SessionID: turn.SessionID,
		TurnID:    turn.ID,
		Sentences: turn.Sentences(),
		Failed:    turn.Failed(),
		Aborted:   turn.Aborted(),
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("failed to marshal turn status", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectTurnDone, data); err != nil {
		s.logger.Warn("failed to publish turn status", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

package speak

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxalabs/voxa-core/internal/config"
	"github.com/voxalabs/voxa-core/internal/playback"
	"github.com/voxalabs/voxa-core/internal/reorder"
	"github.com/voxalabs/voxa-core/internal/segment"
	"github.com/voxalabs/voxa-core/internal/synth"
)

// Turn is the lifetime scope of one spoken response: segmenter, scheduler,
// reorder stage and sequencer, all torn down together. Nothing survives a
// turn; a new stream starts a new Turn.
type Turn struct {
	ID        string
	SessionID string

	cfg        config.SpeakConfig
	voice      string
	logger     *slog.Logger
	metrics    *Metrics
	onSentence func(segment.Sentence)

	ctx    context.Context
	cancel context.CancelFunc

	seg   *segment.Segmenter
	sched *synth.Scheduler
	clips chan playback.Clip
	done  chan struct{}

	// held implements the "context" dispatch policy: a sentence waits here
	// until its successor exists to serve as the following-text hint.
	held *segment.Sentence

	finished  atomic.Bool
	aborted   atomic.Bool
	finishOne sync.Once
	sentences atomic.Int64
	failed    atomic.Int64
}

// TurnOptions carries the collaborators a Turn wires together.
type TurnOptions struct {
	ID          string
	SessionID   string
	Speak       config.SpeakConfig
	Synth       config.SynthConfig
	Synthesizer synth.Synthesizer
	Player      playback.Player
	Logger      *slog.Logger
	Metrics     *Metrics
	// OnSentence is called for every segmented sentence, on the producer
	// goroutine.
	OnSentence func(segment.Sentence)
	// OnClip is called after the sequencer handles each clip.
	OnClip func(playback.Clip, error)
}

// NewTurn starts the pipeline goroutines: the bounded synthesis workers, the
// reorder stage, and the playback sequencer. The caller is the single text
// producer and must call Finish (or Abort) exactly once.
func NewTurn(parent context.Context, opts TurnOptions) *Turn {
	ctx, cancel := context.WithCancel(parent)
	t := &Turn{
		ID:         opts.ID,
		SessionID:  opts.SessionID,
		cfg:        opts.Speak,
		voice:      opts.Synth.Voice,
		logger:     opts.Logger.With(slog.String("turn", opts.ID)),
		metrics:    opts.Metrics,
		onSentence: opts.OnSentence,
		ctx:        ctx,
		cancel:     cancel,
		clips:      make(chan playback.Clip, opts.Speak.QueueDepth),
		done:       make(chan struct{}),
	}
	t.seg = segment.New(t.dispatch)
	t.sched = synth.NewScheduler(opts.Synth, opts.Synthesizer, opts.Logger, opts.Speak.QueueDepth)
	t.sched.OnRetry = func(uint64) { t.metrics.SynthRetried(ctx) }
	t.sched.Start(ctx)

	go t.reassemble()
	go t.sequence(opts.Player, opts.OnClip)
	return t
}

// AppendText feeds a text fragment into the segmenter. Single producer only.
func (t *Turn) AppendText(text string) {
	if t.finished.Load() || t.aborted.Load() {
		return
	}
	t.seg.Push(text)
}

// Finish signals the end of the text stream: the trailing remainder is
// flushed, any held sentence is dispatched, and the synthesis intake closes.
func (t *Turn) Finish() {
	t.finishOne.Do(func() {
		t.finished.Store(true)
		t.seg.Flush()
		if t.held != nil {
			t.submit(*t.held)
			t.held = nil
		}
		t.sched.CloseIntake()
	})
}

// Abort cancels the turn: in-flight synthesis stops, queues drain, and the
// sequencer exits without starting another clip.
func (t *Turn) Abort() {
	if t.aborted.Swap(true) {
		return
	}
	t.logger.Info("turn aborted")
	t.cancel()
}

// Done closes when playback has fully finished (or the abort has drained).
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

func (t *Turn) Aborted() bool { return t.aborted.Load() }

// Sentences reports how many sentences were dispatched. Stable once Done
// has closed.
func (t *Turn) Sentences() int { return int(t.sentences.Load()) }

// Failed reports how many sentences exhausted synthesis retries.
func (t *Turn) Failed() int { return int(t.failed.Load()) }

// dispatch receives sentences from the segmenter on the producer goroutine
// and applies the following-text policy before handing them to the scheduler.
func (t *Turn) dispatch(s segment.Sentence) {
	if t.onSentence != nil {
		t.onSentence(s)
	}
	if t.cfg.DispatchPolicy == "context" {
		if t.held != nil {
			prev := *t.held
			prev.Following = s.Text
			t.submit(prev)
		}
		held := s
		t.held = &held
		return
	}
	t.submit(s)
}

func (t *Turn) submit(s segment.Sentence) {
	t.sentences.Add(1)
	t.metrics.SentenceDispatched(t.ctx)
	job := synth.Job{
		Index: s.Index,
		Request: synth.Request{
			Text:      s.Text,
			Preceding: s.Preceding,
			Following: s.Following,
			Voice:     t.voice,
		},
	}
	if err := t.sched.Submit(t.ctx, job); err != nil {
		t.logger.Warn("sentence dropped after cancellation", slog.Uint64("sentence", s.Index))
	}
}

// reassemble is the sole owner of the reorder buffer: it re-imposes strict
// index order on out-of-order synthesis results, then closes the clip
// channel as the termination sentinel.
func (t *Turn) reassemble() {
	buf := reorder.NewBuffer[synth.Result]()
	for res := range t.sched.Results() {
		if res.Failed {
			t.failed.Add(1)
			t.metrics.SynthFailed(t.ctx)
		}
		for _, r := range buf.Offer(res.Index, res) {
			clip := playback.Clip{Index: r.Index}
			if !r.Failed {
				clip.Audio = r.Audio
			}
			t.clips <- clip
		}
	}
	if n := buf.Pending(); n > 0 && !t.aborted.Load() {
		t.logger.Warn("synthesis results missing at stream end", slog.Int("pending", n))
	}
	close(t.clips)
}

func (t *Turn) sequence(player playback.Player, onClip func(playback.Clip, error)) {
	seq := playback.NewSequencer(timedPlayer{inner: player, metrics: t.metrics}, t.logger, onClip)
	seq.Run(t.ctx, t.clips)
	close(t.done)
}

// timedPlayer records wall-clock playback time per clip.
type timedPlayer struct {
	inner   playback.Player
	metrics *Metrics
}

func (p timedPlayer) Play(ctx context.Context, pcm []byte) error {
	start := time.Now()
	err := p.inner.Play(ctx, pcm)
	p.metrics.ClipPlayed(ctx, time.Since(start).Seconds())
	return err
}
